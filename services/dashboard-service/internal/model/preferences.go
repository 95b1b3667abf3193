package model

import (
	"fmt"
	"time"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/weekday"
)

type UserType string

const (
	UserPropertyManager UserType = "property_manager"
	UserRealtor         UserType = "realtor"
)

func ParseUserType(raw string) (UserType, bool) {
	switch raw {
	case string(UserPropertyManager), "property-manager", "manager":
		return UserPropertyManager, true
	case string(UserRealtor):
		return UserRealtor, true
	}
	return "", false
}

// Preferences is a user's calendar configuration. WorkingDays is always in UI convention here.
type Preferences struct {
	StartTime         string          `json:"start_time"`
	EndTime           string          `json:"end_time"`
	Timezone          string          `json:"timezone"`
	SlotLengthMinutes int             `json:"slot_length_minutes"`
	WorkingDays       []weekday.UIDay `json:"working_days"`
	// Fallback marks the built-in defaults returned when the backend could not be reached.
	Fallback bool `json:"fallback,omitempty"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		StartTime:         "09:00",
		EndTime:           "17:00",
		Timezone:          "America/New_York",
		SlotLengthMinutes: 30,
		WorkingDays: []weekday.UIDay{
			weekday.Monday, weekday.Tuesday, weekday.Wednesday, weekday.Thursday, weekday.Friday,
		},
		Fallback: true,
	}
}

func (p Preferences) Validate() error {
	start, err := ParseClock(p.StartTime)
	if err != nil {
		return Invalid("preferences", "start_time: %v", err)
	}
	end, err := ParseClock(p.EndTime)
	if err != nil {
		return Invalid("preferences", "end_time: %v", err)
	}
	if end <= start {
		return Invalid("preferences", "end_time must be after start_time")
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil || p.Timezone == "" {
		return Invalid("preferences", "unknown timezone %q", p.Timezone)
	}
	switch p.SlotLengthMinutes {
	case 15, 30, 45, 60:
	default:
		return Invalid("preferences", "slot_length_minutes must be 15, 30, 45 or 60")
	}
	for _, d := range p.WorkingDays {
		if !d.Valid() {
			return Invalid("preferences", "working day %d out of range", d)
		}
	}
	return nil
}

// Location resolves Timezone, falling back to UTC for an unknown id.
func (p Preferences) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil || p.Timezone == "" {
		return time.UTC
	}
	return loc
}

// Hours returns the working-hours bounds as offsets from midnight.
func (p Preferences) Hours() (start, end time.Duration, err error) {
	if start, err = ParseClock(p.StartTime); err != nil {
		return 0, 0, err
	}
	if end, err = ParseClock(p.EndTime); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// ParseClock parses "HH:MM" (optionally "HH:MM:SS") into an offset from midnight.
func ParseClock(raw string) (time.Duration, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("invalid clock time %q", raw)
}
