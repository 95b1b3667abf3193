package model

import (
	"strings"
	"time"
)

type BlockKind string

const (
	BlockWorkingHours BlockKind = "working-hours"
	BlockUnavailable  BlockKind = "unavailable"
	BlockBusy         BlockKind = "busy"
	BlockPersonal     BlockKind = "personal"
	BlockHoliday      BlockKind = "holiday"
	BlockOffDay       BlockKind = "off-day"
)

func ParseBlockKind(raw string) (BlockKind, bool) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "_", "-")) {
	case "working-hours", "workinghours", "working":
		return BlockWorkingHours, true
	case "unavailable", "blocked":
		return BlockUnavailable, true
	case "busy":
		return BlockBusy, true
	case "personal":
		return BlockPersonal, true
	case "holiday":
		return BlockHoliday, true
	case "off-day", "offday", "day-off":
		return BlockOffDay, true
	}
	return "", false
}

// Block is a user-scoped availability interval. Working-hours blocks are synthesized from
// preferences and are never stored.
type Block struct {
	ID        string    `json:"id"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Kind      BlockKind `json:"kind"`
	IsFullDay bool      `json:"is_full_day"`
	Reason    string    `json:"reason,omitempty"`
}

// Validate checks a block that is about to be persisted.
func (b Block) Validate() error {
	if _, ok := ParseBlockKind(string(b.Kind)); !ok {
		return Invalid("block", "unknown kind %q", b.Kind)
	}
	if b.Kind == BlockWorkingHours {
		return Invalid("block", "working hours are configured through preferences")
	}
	return TimeSlot{StartAt: b.StartAt, EndAt: b.EndAt}.Validate()
}

// SpanFullDays widens a full-day block to whole calendar days in loc.
func (b Block) SpanFullDays(loc *time.Location) Block {
	if !b.IsFullDay || b.StartAt.IsZero() {
		return b
	}
	start := b.StartAt.In(loc)
	first := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	last := first
	if b.EndAt.After(b.StartAt) {
		end := b.EndAt.In(loc).Add(-time.Nanosecond)
		last = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
	}
	b.StartAt = first
	b.EndAt = last.AddDate(0, 0, 1)
	return b
}
