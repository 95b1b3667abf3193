package model

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusDenied      Status = "denied"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
)

// ParseStatus accepts the canonical names plus the spellings older backend builds emit.
func ParseStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "requested":
		return StatusPending, true
	case "approved", "confirmed":
		return StatusApproved, true
	case "denied", "rejected", "declined":
		return StatusDenied, true
	case "cancelled", "canceled":
		return StatusCancelled, true
	case "rescheduled", "reschedule_proposed":
		return StatusRescheduled, true
	}
	return "", false
}

type Origin string

const (
	OriginVoiceAgent Origin = "external-voice-agent"
	OriginDashboard  Origin = "dashboard"
)

type Action string

const (
	ActionCreate     Action = "create"
	ActionApprove    Action = "approve"
	ActionDeny       Action = "deny"
	ActionReschedule Action = "reschedule"
	ActionCancel     Action = "cancel"
)

type Visitor struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

type TimeSlot struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

func (s TimeSlot) Validate() error {
	if s.StartAt.IsZero() || s.EndAt.IsZero() {
		return Invalid("slot", "start_at and end_at are required")
	}
	if !s.EndAt.After(s.StartAt) {
		return Invalid("slot", "end_at must be after start_at")
	}
	return nil
}

type AuditEntry struct {
	Action      Action    `json:"action"`
	PerformedBy string    `json:"performed_by"`
	PerformedAt time.Time `json:"performed_at"`
	Notes       string    `json:"notes,omitempty"`
}

type Booking struct {
	ID            string       `json:"booking_id"`
	PropertyID    string       `json:"property_id"`
	AssignedTo    string       `json:"assigned_to,omitempty"`
	Visitor       Visitor      `json:"visitor"`
	StartAt       time.Time    `json:"start_at"`
	EndAt         time.Time    `json:"end_at"`
	Timezone      string       `json:"timezone,omitempty"`
	Status        Status       `json:"status"`
	CreatedBy     Origin       `json:"created_by"`
	Notes         string       `json:"notes,omitempty"`
	ProposedSlots []TimeSlot   `json:"proposed_slots,omitempty"`
	AuditLog      []AuditEntry `json:"audit_log,omitempty"`
	CreatedAt     time.Time    `json:"created_at,omitempty"`
}

// Clone returns a copy that shares no slices with b.
func (b Booking) Clone() Booking {
	out := b
	if b.ProposedSlots != nil {
		out.ProposedSlots = append([]TimeSlot(nil), b.ProposedSlots...)
	}
	if b.AuditLog != nil {
		out.AuditLog = append([]AuditEntry(nil), b.AuditLog...)
	}
	return out
}

// ManualBooking is a dashboard-created booking request. Such bookings start approved.
type ManualBooking struct {
	PropertyID string    `json:"property_id"`
	Visitor    Visitor   `json:"visitor"`
	StartAt    time.Time `json:"start_at"`
	EndAt      time.Time `json:"end_at"`
	Timezone   string    `json:"timezone,omitempty"`
	Notes      string    `json:"notes,omitempty"`
}

func (m ManualBooking) Validate() error {
	if strings.TrimSpace(m.PropertyID) == "" {
		return Invalid("create booking", "property_id is required")
	}
	if strings.TrimSpace(m.Visitor.Name) == "" {
		return Invalid("create booking", "visitor name is required")
	}
	if err := (TimeSlot{StartAt: m.StartAt, EndAt: m.EndAt}).Validate(); err != nil {
		return err
	}
	if m.Timezone != "" {
		if _, err := time.LoadLocation(m.Timezone); err != nil {
			return Invalid("create booking", "unknown timezone %q", m.Timezone)
		}
	}
	return nil
}

// TransitionRequest is what the backend receives for approve/deny/reschedule/cancel.
type TransitionRequest struct {
	BookingID string
	Action    Action
	Actor     string
	Reason    string
	Slots     []TimeSlot
}

// BookingQuery filters a bookings fetch. Zero fields are not sent.
type BookingQuery struct {
	Status Status
	From   time.Time
	To     time.Time
}

func (q BookingQuery) CacheKey() string {
	var b strings.Builder
	b.WriteString(string(q.Status))
	b.WriteByte('|')
	if !q.From.IsZero() {
		b.WriteString(q.From.UTC().Format(time.RFC3339))
	}
	b.WriteByte('|')
	if !q.To.IsZero() {
		b.WriteString(q.To.UTC().Format(time.RFC3339))
	}
	return b.String()
}
