package backend

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/weekday"
)

// Field-name variants seen across backend versions for the same logical field.
var (
	bookingIDKeys = []string{"booking_id", "bookingId", "id", "_id"}
	blockIDKeys   = []string{"id", "block_id", "blockId", "slot_id", "slotId", "_id"}
	startKeys     = []string{"start_at", "startAt", "start_time", "startTime", "start", "start_datetime"}
	endKeys       = []string{"end_at", "endAt", "end_time", "endTime", "end", "end_datetime"}
	timezoneKeys  = []string{"timezone", "time_zone", "timeZone", "tz"}
	blockKindKeys = []string{"kind", "block_type", "blockType", "slot_type", "slotType", "type"}
	fullDayKeys   = []string{"is_full_day", "isFullDay", "full_day", "fullDay", "all_day", "allDay"}
	listKeys      = []string{"data", "items", "results", "bookings", "blocks", "availability", "slots"}
	envelopeKeys  = []string{"data", "booking", "block", "preferences", "calendar_preferences", "result"}
)

type fields map[string]json.RawMessage

func decodeFields(raw json.RawMessage) (fields, error) {
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return f, nil
}

func (f fields) raw(keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := f[k]; ok && len(v) > 0 && string(v) != "null" {
			return v
		}
	}
	return nil
}

// str returns the first present key as a string. Numbers are returned in their JSON form.
func (f fields) str(keys ...string) string {
	v := f.raw(keys...)
	if v == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(v))
}

func (f fields) boolean(keys ...string) bool {
	switch strings.ToLower(strings.Trim(f.str(keys...), `"`)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

func (f fields) integer(keys ...string) (int, bool) {
	s := f.str(keys...)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (f fields) object(keys ...string) fields {
	v := f.raw(keys...)
	if v == nil {
		return nil
	}
	obj, err := decodeFields(v)
	if err != nil {
		return nil
	}
	return obj
}

func (f fields) list(keys ...string) []json.RawMessage {
	v := f.raw(keys...)
	if v == nil {
		return nil
	}
	var out []json.RawMessage
	if err := json.Unmarshal(v, &out); err != nil {
		return nil
	}
	return out
}

func (f fields) time(loc *time.Location, keys ...string) (time.Time, error) {
	s := f.str(keys...)
	if s == "" {
		return time.Time{}, nil
	}
	return parseTime(s, loc)
}

var naiveLayouts = []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02T15:04", "2006-01-02"}

// parseTime accepts RFC 3339 instants and zone-less timestamps, which are read in loc.
func parseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// unwrapObject strips a single-key envelope such as {"data": {...}}.
func unwrapObject(raw json.RawMessage) json.RawMessage {
	f, err := decodeFields(raw)
	if err != nil {
		return raw
	}
	if inner := f.raw(envelopeKeys...); inner != nil && len(inner) > 0 && inner[0] == '{' {
		return inner
	}
	return raw
}

// unwrapList accepts a bare array or an object wrapping one.
func unwrapList(raw json.RawMessage) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	f, err := decodeFields(raw)
	if err != nil {
		return nil, err
	}
	for _, k := range listKeys {
		if v := f.raw(k); v != nil && v[0] == '[' {
			if err := json.Unmarshal(v, &items); err != nil {
				return nil, err
			}
			return items, nil
		}
	}
	return nil, nil
}

func decodeBooking(raw json.RawMessage) (model.Booking, error) {
	f, err := decodeFields(unwrapObject(raw))
	if err != nil {
		return model.Booking{}, err
	}
	var b model.Booking
	b.ID = f.str(bookingIDKeys...)
	if b.ID == "" {
		return model.Booking{}, fmt.Errorf("booking without id")
	}
	b.PropertyID = f.str("property_id", "propertyId", "listing_id")
	b.AssignedTo = f.str("assigned_to", "assignedTo", "approver_id", "realtor_id", "assigned_realtor_id")
	b.Timezone = f.str(timezoneKeys...)
	loc := time.UTC
	if b.Timezone != "" {
		if l, err := time.LoadLocation(b.Timezone); err == nil {
			loc = l
		}
	}
	if b.StartAt, err = f.time(loc, startKeys...); err != nil {
		return model.Booking{}, err
	}
	if b.EndAt, err = f.time(loc, endKeys...); err != nil {
		return model.Booking{}, err
	}
	status, ok := model.ParseStatus(f.str("status", "booking_status", "state"))
	if !ok {
		return model.Booking{}, fmt.Errorf("booking %s: unknown status %q", b.ID, f.str("status", "booking_status", "state"))
	}
	b.Status = status
	b.CreatedBy = parseOrigin(f.str("created_by", "createdBy", "source"))
	b.Notes = f.str("notes", "note")

	if v := f.object("visitor", "guest", "tenant"); v != nil {
		b.Visitor = model.Visitor{
			Name:  v.str("name", "full_name", "fullName"),
			Phone: v.str("phone", "phone_number", "phoneNumber"),
			Email: v.str("email"),
		}
	} else {
		b.Visitor = model.Visitor{
			Name:  f.str("visitor_name", "visitorName", "guest_name"),
			Phone: f.str("visitor_phone", "visitorPhone", "guest_phone"),
			Email: f.str("visitor_email", "visitorEmail", "guest_email"),
		}
	}

	for _, item := range f.list("proposed_slots", "proposedSlots", "reschedule_slots") {
		slot, err := decodeSlot(item, loc)
		if err != nil {
			return model.Booking{}, err
		}
		b.ProposedSlots = append(b.ProposedSlots, slot)
	}
	for _, item := range f.list("audit_log", "auditLog", "history") {
		entry, err := decodeAuditEntry(item)
		if err != nil {
			return model.Booking{}, err
		}
		b.AuditLog = append(b.AuditLog, entry)
	}
	if b.CreatedAt, err = f.time(time.UTC, "created_at", "createdAt"); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

func parseOrigin(raw string) model.Origin {
	switch strings.ToLower(raw) {
	case "dashboard", "manual", "web":
		return model.OriginDashboard
	}
	return model.OriginVoiceAgent
}

func decodeSlot(raw json.RawMessage, loc *time.Location) (model.TimeSlot, error) {
	f, err := decodeFields(raw)
	if err != nil {
		return model.TimeSlot{}, err
	}
	var s model.TimeSlot
	if s.StartAt, err = f.time(loc, startKeys...); err != nil {
		return model.TimeSlot{}, err
	}
	if s.EndAt, err = f.time(loc, endKeys...); err != nil {
		return model.TimeSlot{}, err
	}
	return s, nil
}

func decodeAuditEntry(raw json.RawMessage) (model.AuditEntry, error) {
	f, err := decodeFields(raw)
	if err != nil {
		return model.AuditEntry{}, err
	}
	at, err := f.time(time.UTC, "performed_at", "performedAt", "at", "timestamp")
	if err != nil {
		return model.AuditEntry{}, err
	}
	return model.AuditEntry{
		Action:      model.Action(strings.ToLower(f.str("action"))),
		PerformedBy: f.str("performed_by", "performedBy", "actor"),
		PerformedAt: at,
		Notes:       f.str("notes", "note", "reason"),
	}, nil
}

func decodeBlock(raw json.RawMessage) (model.Block, error) {
	f, err := decodeFields(unwrapObject(raw))
	if err != nil {
		return model.Block{}, err
	}
	var b model.Block
	b.ID = f.str(blockIDKeys...)
	loc := time.UTC
	if tz := f.str(timezoneKeys...); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	if b.StartAt, err = f.time(loc, startKeys...); err != nil {
		return model.Block{}, err
	}
	if b.EndAt, err = f.time(loc, endKeys...); err != nil {
		return model.Block{}, err
	}
	kind, ok := model.ParseBlockKind(f.str(blockKindKeys...))
	if !ok {
		return model.Block{}, fmt.Errorf("block %s: unknown kind %q", b.ID, f.str(blockKindKeys...))
	}
	b.Kind = kind
	b.IsFullDay = f.boolean(fullDayKeys...)
	b.Reason = f.str("reason", "title", "notes", "description")
	return b, nil
}

// isBookingEvent tells bookings apart from availability entries in a combined events feed.
func isBookingEvent(raw json.RawMessage) bool {
	f, err := decodeFields(raw)
	if err != nil {
		return false
	}
	switch strings.ToLower(f.str("event_type", "eventType", "type", "kind")) {
	case "booking", "tour", "appointment":
		return true
	}
	return f.raw("booking_id", "bookingId", "visitor", "visitor_name") != nil
}

func decodePreferences(raw json.RawMessage) (model.Preferences, error) {
	f, err := decodeFields(unwrapObject(raw))
	if err != nil {
		return model.Preferences{}, err
	}
	p := model.Preferences{
		StartTime: f.str("start_time", "startTime", "work_start", "workStart"),
		EndTime:   f.str("end_time", "endTime", "work_end", "workEnd"),
		Timezone:  f.str(timezoneKeys...),
	}
	if n, ok := f.integer("slot_length_minutes", "slotLengthMinutes", "slot_length", "slotLength", "slot_duration"); ok {
		p.SlotLengthMinutes = n
	}
	var apiDays []weekday.APIDay
	if v := f.raw("working_days", "workingDays", "work_days"); v != nil {
		if err := json.Unmarshal(v, &apiDays); err != nil {
			return model.Preferences{}, fmt.Errorf("working_days: %w", err)
		}
	}
	p.WorkingDays = weekday.ToUISet(apiDays)
	if err := p.Validate(); err != nil {
		return model.Preferences{}, err
	}
	return p, nil
}

type preferencesPayload struct {
	StartTime         string           `json:"start_time"`
	EndTime           string           `json:"end_time"`
	Timezone          string           `json:"timezone"`
	SlotLengthMinutes int              `json:"slot_length_minutes"`
	WorkingDays       []weekday.APIDay `json:"working_days"`
}

func encodePreferences(p model.Preferences) preferencesPayload {
	return preferencesPayload{
		StartTime:         p.StartTime,
		EndTime:           p.EndTime,
		Timezone:          p.Timezone,
		SlotLengthMinutes: p.SlotLengthMinutes,
		WorkingDays:       weekday.ToAPISet(p.WorkingDays),
	}
}

type slotPayload struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func encodeSlots(slots []model.TimeSlot) []slotPayload {
	out := make([]slotPayload, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotPayload{StartTime: s.StartAt.Format(time.RFC3339), EndTime: s.EndAt.Format(time.RFC3339)})
	}
	return out
}
