// Package lifecycle owns a user's local booking collection and every status change made to it.
package lifecycle

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/cache"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/metrics"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/optimistic"
)

type Backend interface {
	Transition(ctx context.Context, req model.TransitionRequest) (model.Booking, error)
	CreateManual(ctx context.Context, userID string, req model.ManualBooking) (model.Booking, error)
	ListBookings(ctx context.Context, userID string, q model.BookingQuery) ([]model.Booking, error)
}

// localIDPrefix marks provisional bookings the backend has not assigned an id to yet.
const localIDPrefix = "local-"

// Settlement reports how a dispatched transition ended.
type Settlement = optimistic.Settlement[model.Booking]

type Manager struct {
	userID  string
	backend Backend
	cache   cache.Store
	logger  *slog.Logger
	runner  *optimistic.Runner
	now     func() time.Time

	mu       sync.Mutex
	bookings map[string]*model.Booking
	inflight map[string]int
	failures map[string]error
}

func NewManager(userID string, backend Backend, c cache.Store, runner *optimistic.Runner, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = &optimistic.Runner{}
	}
	return &Manager{
		userID:   userID,
		backend:  backend,
		cache:    c,
		logger:   logger.With("user_id", userID),
		runner:   runner,
		now:      time.Now,
		bookings: map[string]*model.Booking{},
		inflight: map[string]int{},
		failures: map[string]error{},
	}
}

func (m *Manager) UserID() string { return m.userID }

// Approve is only legal for the assigned approver. A booking with no assignee is approved by
// the collection's owner.
func (m *Manager) Approve(ctx context.Context, actor, bookingID string) (*Settlement, error) {
	return m.transition(ctx, transitionSpec{
		action: model.ActionApprove,
		target: model.StatusApproved,
		actor:  actor,
		id:     bookingID,
		check: func(b *model.Booking) error {
			approver := b.AssignedTo
			if approver == "" {
				approver = m.userID
			}
			if actor != approver {
				return model.IllegalTransition("approve", "only the assigned approver can approve booking %s", b.ID)
			}
			return nil
		},
	})
}

func (m *Manager) Deny(ctx context.Context, actor, bookingID, reason string) (*Settlement, error) {
	return m.transition(ctx, transitionSpec{
		action: model.ActionDeny,
		target: model.StatusDenied,
		actor:  actor,
		id:     bookingID,
		reason: reason,
	})
}

// Reschedule records one to three proposed slots; the visitor confirms one outside this system.
func (m *Manager) Reschedule(ctx context.Context, actor, bookingID string, slots []model.TimeSlot, reason string) (*Settlement, error) {
	if len(slots) == 0 || len(slots) > maxProposedSlots {
		metrics.Transitions.WithLabelValues(string(model.ActionReschedule), "rejected").Inc()
		return nil, model.Invalid("reschedule", "between 1 and %d proposed slots are required", maxProposedSlots)
	}
	for _, s := range slots {
		if err := s.Validate(); err != nil {
			metrics.Transitions.WithLabelValues(string(model.ActionReschedule), "rejected").Inc()
			return nil, err
		}
	}
	proposed := append([]model.TimeSlot(nil), slots...)
	return m.transition(ctx, transitionSpec{
		action: model.ActionReschedule,
		target: model.StatusRescheduled,
		actor:  actor,
		id:     bookingID,
		reason: reason,
		slots:  proposed,
		mutate: func(b *model.Booking) { b.ProposedSlots = append([]model.TimeSlot(nil), proposed...) },
	})
}

func (m *Manager) Cancel(ctx context.Context, actor, bookingID, reason string) (*Settlement, error) {
	return m.transition(ctx, transitionSpec{
		action: model.ActionCancel,
		target: model.StatusCancelled,
		actor:  actor,
		id:     bookingID,
		reason: reason,
	})
}

type transitionSpec struct {
	action model.Action
	target model.Status
	actor  string
	id     string
	reason string
	slots  []model.TimeSlot
	check  func(*model.Booking) error
	mutate func(*model.Booking)
}

func (m *Manager) transition(ctx context.Context, ts transitionSpec) (*Settlement, error) {
	op := string(ts.action)
	if _, _, err := m.Lookup(ctx, ts.id); err != nil {
		metrics.Transitions.WithLabelValues(op, "rejected").Inc()
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[ts.id]
	if !ok {
		metrics.Transitions.WithLabelValues(op, "rejected").Inc()
		return nil, model.Invalid(op, "unknown booking %q", ts.id)
	}
	if !CanTransition(b.Status, ts.target) {
		metrics.Transitions.WithLabelValues(op, "rejected").Inc()
		return nil, model.IllegalTransition(op, "booking %s is %s", b.ID, b.Status)
	}
	if ts.check != nil {
		if err := ts.check(b); err != nil {
			metrics.Transitions.WithLabelValues(op, "rejected").Inc()
			return nil, err
		}
	}

	req := model.TransitionRequest{
		BookingID: ts.id,
		Action:    ts.action,
		Actor:     ts.actor,
		Reason:    ts.reason,
		Slots:     ts.slots,
	}
	s := optimistic.Run(ctx, m.runner, optimistic.Command[model.Booking, model.Booking]{
		Capture: func() model.Booking { return b.Clone() },
		Apply: func() {
			b.Status = ts.target
			if ts.mutate != nil {
				ts.mutate(b)
			}
			b.AuditLog = append(b.AuditLog, model.AuditEntry{
				Action:      ts.action,
				PerformedBy: ts.actor,
				PerformedAt: m.now(),
				Notes:       ts.reason,
			})
			m.inflight[ts.id]++
			metrics.Transitions.WithLabelValues(op, "applied").Inc()
		},
		Send: func(ctx context.Context) (model.Booking, error) {
			return m.send(ctx, op, ts.id, func(ctx context.Context) (model.Booking, error) {
				return m.backend.Transition(ctx, req)
			})
		},
		Commit: func(model.Booking) model.Booking {
			m.mu.Lock()
			m.inflight[ts.id]--
			delete(m.failures, ts.id)
			out := m.bookings[ts.id].Clone()
			m.mu.Unlock()

			m.invalidate(ctx)
			metrics.Transitions.WithLabelValues(op, "committed").Inc()
			return out
		},
		Restore: func(prev model.Booking, err error) error {
			m.mu.Lock()
			m.inflight[ts.id]--
			restored := prev.Clone()
			m.bookings[ts.id] = &restored
			m.failures[ts.id] = err
			m.mu.Unlock()

			metrics.Transitions.WithLabelValues(op, "rolled_back").Inc()
			m.logger.Warn("booking transition rolled back", "booking_id", ts.id, "action", op, "err", err)
			return model.TransportFailure(op, err)
		},
	})
	return s, nil
}

// CreateManual inserts a provisional approved booking right away and returns it. It is replaced
// by the backend's booking on success and removed on failure.
func (m *Manager) CreateManual(ctx context.Context, actor string, req model.ManualBooking) (model.Booking, *Settlement, error) {
	const op = string(model.ActionCreate)
	if err := req.Validate(); err != nil {
		metrics.Transitions.WithLabelValues(op, "rejected").Inc()
		return model.Booking{}, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	localID := localIDPrefix + uuid.NewString()
	provisional := model.Booking{
		ID:         localID,
		PropertyID: req.PropertyID,
		AssignedTo: m.userID,
		Visitor:    req.Visitor,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Timezone:   req.Timezone,
		Status:     model.StatusApproved,
		CreatedBy:  model.OriginDashboard,
		Notes:      req.Notes,
		CreatedAt:  now,
		AuditLog:   []model.AuditEntry{{Action: model.ActionCreate, PerformedBy: actor, PerformedAt: now}},
	}
	s := optimistic.Run(ctx, m.runner, optimistic.Command[struct{}, model.Booking]{
		Apply: func() {
			stored := provisional.Clone()
			m.bookings[localID] = &stored
			m.inflight[localID]++
			metrics.Transitions.WithLabelValues(op, "applied").Inc()
		},
		Send: func(ctx context.Context) (model.Booking, error) {
			return m.send(ctx, op, localID, func(ctx context.Context) (model.Booking, error) {
				return m.backend.CreateManual(ctx, m.userID, req)
			})
		},
		Commit: func(created model.Booking) model.Booking {
			m.mu.Lock()
			local := m.bookings[localID]
			delete(m.bookings, localID)
			delete(m.inflight, localID)
			if created.ID == "" {
				created = local.Clone()
				created.ID = localID
			}
			if created.Status == "" {
				created.Status = model.StatusApproved
			}
			stored := created.Clone()
			m.bookings[stored.ID] = &stored
			m.mu.Unlock()

			m.invalidate(ctx)
			metrics.Transitions.WithLabelValues(op, "committed").Inc()
			return created.Clone()
		},
		Restore: func(_ struct{}, err error) error {
			m.mu.Lock()
			delete(m.bookings, localID)
			delete(m.inflight, localID)
			m.failures[localID] = err
			m.mu.Unlock()

			metrics.Transitions.WithLabelValues(op, "rolled_back").Inc()
			m.logger.Warn("manual booking rolled back", "booking_id", localID, "err", err)
			return model.TransportFailure(op, err)
		},
	})
	return provisional.Clone(), s, nil
}

func (m *Manager) send(ctx context.Context, op, bookingID string, call func(context.Context) (model.Booking, error)) (model.Booking, error) {
	ctx, span := otel.Tracer("lifecycle").Start(ctx, "booking."+op,
		trace.WithAttributes(
			attribute.String("booking.id", bookingID),
			attribute.String("user.id", m.userID),
		),
	)
	defer span.End()

	b, err := call(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return b, err
}

func (m *Manager) invalidate(ctx context.Context) {
	if err := cache.InvalidateKinds(context.WithoutCancel(ctx), m.cache, m.userID, cache.KindBookings, cache.KindEvents); err != nil {
		m.logger.Warn("booking cache invalidation failed", "err", err)
	}
}

// Load merges a booking page, served from cache when fresh.
func (m *Manager) Load(ctx context.Context, q model.BookingQuery) error {
	key := cache.Key(m.userID, cache.KindBookings, q.CacheKey())
	if page, ok, err := cache.GetJSON[[]model.Booking](ctx, m.cache, key); err == nil && ok {
		m.Merge(page)
		return nil
	}
	return m.Refresh(ctx, q)
}

// Refresh fetches a booking page from the backend and merges it.
func (m *Manager) Refresh(ctx context.Context, q model.BookingQuery) error {
	page, err := m.backend.ListBookings(ctx, m.userID, q)
	if err != nil {
		return err
	}
	if err := cache.SetJSON(ctx, m.cache, cache.Key(m.userID, cache.KindBookings, q.CacheKey()), page); err != nil {
		m.logger.Warn("booking cache write failed", "err", err)
	}
	m.Merge(page)
	return nil
}

// Merge folds remote bookings into the collection. Unknown bookings are added. A known booking
// takes the remote copy unless a transition on it is in flight or its local status is further
// along than the remote one. Nothing is removed.
func (m *Manager) Merge(remote []model.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range remote {
		if strings.TrimSpace(r.ID) == "" {
			continue
		}
		local, ok := m.bookings[r.ID]
		if !ok {
			c := r.Clone()
			m.bookings[r.ID] = &c
			continue
		}
		if m.inflight[r.ID] > 0 || rank(local.Status) > rank(r.Status) {
			continue
		}
		*local = r.Clone()
	}
}

func (m *Manager) Get(id string) (model.Booking, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return model.Booking{}, false
	}
	return b.Clone(), true
}

// Lookup returns the booking with id. A booking this collection has not seen yet is looked for
// once more in a full refresh from the backend before it is reported missing.
func (m *Manager) Lookup(ctx context.Context, id string) (model.Booking, bool, error) {
	if b, ok := m.Get(id); ok {
		return b, true, nil
	}
	if id == "" || strings.HasPrefix(id, localIDPrefix) {
		return model.Booking{}, false, nil
	}
	if err := m.Refresh(ctx, model.BookingQuery{}); err != nil {
		return model.Booking{}, false, err
	}
	b, ok := m.Get(id)
	return b, ok, nil
}

// Snapshot returns copies of every booking ordered by start time.
func (m *Manager) Snapshot() []model.Booking {
	m.mu.Lock()
	out := make([]model.Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		out = append(out, b.Clone())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.Before(out[j].StartAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// InFlight reports whether a transition on id has not settled yet. Callers disable the
// triggering control while it is true.
func (m *Manager) InFlight(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight[id] > 0
}

// LastFailure returns the error of the most recent rolled-back transition on id.
func (m *Manager) LastFailure(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[id]
}
