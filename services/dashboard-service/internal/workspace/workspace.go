// Package workspace keeps one booking collection per signed-in user and composes the calendar
// read model from preferences, availability blocks and bookings.
package workspace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/availability"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/backend"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/cache"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/lifecycle"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/metrics"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/optimistic"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/preferences"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/projection"
)

type Backend interface {
	lifecycle.Backend
	CalendarEvents(ctx context.Context, userID string, from, to time.Time) (backend.CalendarEvents, error)
}

type Config struct {
	WeekStart time.Weekday
	// IdleAfter bounds which workspaces the background refresher keeps warm.
	IdleAfter time.Duration
}

type Workspace struct {
	UserID   string
	UserType model.UserType
	Bookings *lifecycle.Manager

	mu        sync.Mutex
	lastQuery model.BookingQuery
	lastUsed  time.Time
}

func (w *Workspace) touch(q model.BookingQuery, now time.Time) {
	w.mu.Lock()
	w.lastQuery = q
	w.lastUsed = now
	w.mu.Unlock()
}

func (w *Workspace) last() (model.BookingQuery, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastQuery, w.lastUsed
}

type Registry struct {
	backend Backend
	prefs   *preferences.Store
	blocks  *availability.BlockService
	cache   cache.Store
	runner  *optimistic.Runner
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time

	mu     sync.Mutex
	spaces map[string]*Workspace
	cron   *cron.Cron
}

func NewRegistry(be Backend, prefs *preferences.Store, blocks *availability.BlockService, c cache.Store, logger *slog.Logger, cfg Config) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IdleAfter <= 0 {
		cfg.IdleAfter = 30 * time.Minute
	}
	return &Registry{
		backend: be,
		prefs:   prefs,
		blocks:  blocks,
		cache:   c,
		runner:  &optimistic.Runner{},
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
		spaces:  map[string]*Workspace{},
	}
}

func (r *Registry) Preferences() *preferences.Store { return r.prefs }

func (r *Registry) Blocks() *availability.BlockService { return r.blocks }

func (r *Registry) WeekStart() time.Weekday { return r.cfg.WeekStart }

// Get returns the user's workspace, creating it on first use.
func (r *Registry) Get(userID string, userType model.UserType) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.spaces[userID]
	if !ok {
		ws = &Workspace{
			UserID:   userID,
			UserType: userType,
			Bookings: lifecycle.NewManager(userID, r.backend, r.cache, r.runner, r.logger),
		}
		r.spaces[userID] = ws
	}
	return ws
}

func (r *Registry) lookup(userID string) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.spaces[userID]
	return ws, ok
}

type CalendarRequest struct {
	UserID   string
	UserType model.UserType
	// Anchor contributes only its calendar date, read in its own location. Zero means today in
	// the viewer location.
	Anchor      time.Time
	Granularity availability.Granularity
	// Viewer defaults to the preference timezone.
	Viewer *time.Location
}

// Calendar builds the view for req. A failed availability or bookings feed renders that layer
// empty and is listed in View.Degraded; only missing authentication fails the whole request.
func (r *Registry) Calendar(ctx context.Context, req CalendarRequest) (projection.View, error) {
	ws := r.Get(req.UserID, req.UserType)

	prefs, err := r.prefs.Load(ctx, req.UserID, req.UserType)
	if err != nil {
		return projection.View{}, err
	}
	viewer := req.Viewer
	if viewer == nil {
		viewer = prefs.Location()
	}
	anchor := r.now().In(viewer)
	if !req.Anchor.IsZero() {
		y, m, d := req.Anchor.Date()
		anchor = time.Date(y, m, d, 12, 0, 0, 0, viewer)
	}
	window := availability.WindowFor(anchor, req.Granularity, viewer, r.cfg.WeekStart)

	var degraded []string
	blocks, blocksDegraded, err := r.blocks.List(ctx, req.UserID, window)
	if err != nil {
		return projection.View{}, err
	}
	if blocksDegraded {
		degraded = append(degraded, string(availability.LayerAvailability))
	}

	q := model.BookingQuery{From: window.Start, To: window.End}
	ws.touch(q, r.now())
	var bookings []model.Booking
	if err := ws.Bookings.Load(ctx, q); err != nil {
		if model.KindOf(err) == model.KindNotAuthenticated {
			return projection.View{}, err
		}
		metrics.LayerDegraded.WithLabelValues(string(availability.LayerBooking)).Inc()
		r.logger.Warn("bookings feed failed; rendering without bookings", "user_id", req.UserID, "err", err)
		degraded = append(degraded, string(availability.LayerBooking))
	} else {
		bookings = ws.Bookings.Snapshot()
	}

	view := projection.Project(projection.Input{
		Anchor:      anchor,
		Granularity: req.Granularity,
		Preferences: prefs,
		Blocks:      blocks,
		Bookings:    bookings,
		Viewer:      viewer,
		WeekStart:   r.cfg.WeekStart,
		Now:         r.now(),
	})
	view.Degraded = degraded
	return view, nil
}

// Events returns the backend's combined events feed for w, cached per window.
func (r *Registry) Events(ctx context.Context, userID string, w availability.Window) (backend.CalendarEvents, error) {
	key := cache.Key(userID, cache.KindEvents, w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
	if cached, ok, err := cache.GetJSON[backend.CalendarEvents](ctx, r.cache, key); err == nil && ok {
		return cached, nil
	}
	events, err := r.backend.CalendarEvents(ctx, userID, w.Start, w.End)
	if err != nil {
		return backend.CalendarEvents{}, err
	}
	if err := cache.SetJSON(ctx, r.cache, key, events); err != nil {
		r.logger.Warn("events cache write failed", "user_id", userID, "err", err)
	}
	return events, nil
}

// Refresh re-reads the last viewed booking page of an active workspace. It reports false when
// the user has no workspace in this instance.
func (r *Registry) Refresh(ctx context.Context, userID string) (bool, error) {
	ws, ok := r.lookup(userID)
	if !ok {
		return false, nil
	}
	q, _ := ws.last()
	return true, ws.Bookings.Refresh(ctx, q)
}

// RefreshAll refreshes every workspace used within IdleAfter.
func (r *Registry) RefreshAll(ctx context.Context) {
	r.mu.Lock()
	spaces := make([]*Workspace, 0, len(r.spaces))
	for _, ws := range r.spaces {
		spaces = append(spaces, ws)
	}
	r.mu.Unlock()

	cutoff := r.now().Add(-r.cfg.IdleAfter)
	for _, ws := range spaces {
		q, used := ws.last()
		if used.Before(cutoff) {
			continue
		}
		if err := ws.Bookings.Refresh(ctx, q); err != nil {
			r.logger.Warn("background booking refresh failed", "user_id", ws.UserID, "err", err)
		}
	}
}

// StartRefresher schedules RefreshAll on a cron spec such as "@every 1m".
func (r *Registry) StartRefresher(spec string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		r.RefreshAll(ctx)
	}); err != nil {
		return err
	}
	r.mu.Lock()
	r.cron = c
	r.mu.Unlock()
	c.Start()
	r.logger.Info("booking refresher started", "spec", spec)
	return nil
}

// Close stops the refresher and waits for dispatched transitions to settle.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	c := r.cron
	r.mu.Unlock()
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.runner.Wait(ctx)
}
