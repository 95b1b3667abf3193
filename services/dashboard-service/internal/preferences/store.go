// Package preferences owns per-user calendar preferences. The backend is the only source of
// truth; the cache is a read-through optimization and the built-in defaults are never cached.
package preferences

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/cache"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/metrics"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
)

type Backend interface {
	GetPreferences(ctx context.Context, userID string, userType model.UserType) (model.Preferences, error)
	UpdatePreferences(ctx context.Context, userID string, userType model.UserType, prefs model.Preferences) error
}

const defaultFetchTimeout = 10 * time.Second

// userState orders reads against saves. A read may only write the cache when no save started
// after the read did.
type userState struct {
	gen    uint64
	saving int
}

type Store struct {
	backend Backend
	cache   cache.Store
	bus     *Bus
	logger  *slog.Logger
	group   singleflight.Group
	timeout time.Duration

	mu    sync.Mutex
	users map[string]*userState
}

func NewStore(backend Backend, c cache.Store, bus *Bus, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if bus == nil {
		bus = NewBus()
	}
	return &Store{backend: backend, cache: c, bus: bus, logger: logger, timeout: defaultFetchTimeout, users: map[string]*userState{}}
}

// SetFetchTimeout bounds a shared live fetch. Waiters join it with their own contexts, so the
// fetch itself cannot be tied to any one of them.
func (s *Store) SetFetchTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

func (s *Store) Bus() *Bus { return s.bus }

func (s *Store) state(userID string) *userState {
	st, ok := s.users[userID]
	if !ok {
		st = &userState{}
		s.users[userID] = st
	}
	return st
}

// Load fetches live preferences. On any failure other than missing authentication it returns
// DefaultPreferences (flagged Fallback) and caches nothing.
func (s *Store) Load(ctx context.Context, userID string, userType model.UserType) (model.Preferences, error) {
	s.mu.Lock()
	gen := s.state(userID).gen
	s.mu.Unlock()

	key := userID + "#" + strconv.FormatUint(gen, 10)
	ch := s.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.backend.GetPreferences(fctx, userID, userType)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return model.Preferences{}, model.TransportFailure("load preferences", ctx.Err())
	case res = <-ch:
	}
	v, err := res.Val, res.Err
	if err != nil {
		if model.KindOf(err) == model.KindNotAuthenticated {
			return model.Preferences{}, err
		}
		if ctx.Err() != nil {
			return model.Preferences{}, model.TransportFailure("load preferences", ctx.Err())
		}
		metrics.PreferencesFallbacks.Inc()
		s.logger.Warn("preferences fetch failed; using defaults", "user_id", userID, "err", err)
		return model.DefaultPreferences(), nil
	}
	prefs := v.(model.Preferences)
	prefs.Fallback = false

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(userID)
	if st.gen == gen && st.saving == 0 {
		if err := cache.SetJSON(ctx, s.cache, cache.Key(userID, cache.KindPreferences), prefs); err != nil {
			s.logger.Warn("preferences cache write failed", "user_id", userID, "err", err)
		}
		return prefs, nil
	}
	// A save started while this read was in flight; its value is authoritative once stored.
	if saved, ok, _ := cache.GetJSON[model.Preferences](ctx, s.cache, cache.Key(userID, cache.KindPreferences)); ok {
		return saved, nil
	}
	return prefs, nil
}

// Peek returns the cached value, if any. It never contacts the backend.
func (s *Store) Peek(ctx context.Context, userID string) (model.Preferences, bool) {
	p, ok, err := cache.GetJSON[model.Preferences](ctx, s.cache, cache.Key(userID, cache.KindPreferences))
	if err != nil {
		return model.Preferences{}, false
	}
	return p, ok
}

// Save validates prefs, drops every cached page for the user, sends the update and then
// re-fetches rather than trusting the update response. The re-fetched value is cached and
// published to subscribers.
func (s *Store) Save(ctx context.Context, userID string, userType model.UserType, prefs model.Preferences) (model.Preferences, error) {
	prefs.Fallback = false
	if err := prefs.Validate(); err != nil {
		return model.Preferences{}, err
	}

	s.mu.Lock()
	st := s.state(userID)
	st.gen++
	st.saving++
	gen := st.gen
	s.mu.Unlock()

	done := func() {
		s.mu.Lock()
		s.state(userID).saving--
		s.mu.Unlock()
	}

	if err := cache.InvalidateUser(ctx, s.cache, userID); err != nil {
		done()
		return model.Preferences{}, model.TransportFailure("save preferences", err)
	}
	if err := s.backend.UpdatePreferences(ctx, userID, userType, prefs); err != nil {
		done()
		return model.Preferences{}, err
	}
	fresh, err := s.backend.GetPreferences(ctx, userID, userType)
	if err != nil {
		done()
		s.logger.Warn("preferences saved but re-fetch failed", "user_id", userID, "err", err)
		return model.Preferences{}, model.TransportFailure("save preferences", err)
	}
	fresh.Fallback = false

	s.mu.Lock()
	st = s.state(userID)
	st.saving--
	current := st.gen == gen
	if current {
		st.gen++
		if err := cache.SetJSON(ctx, s.cache, cache.Key(userID, cache.KindPreferences), fresh); err != nil {
			s.logger.Warn("preferences cache write failed", "user_id", userID, "err", err)
		}
	}
	s.mu.Unlock()

	if current {
		s.bus.Publish(ctx, userID, fresh)
	}
	return fresh, nil
}
