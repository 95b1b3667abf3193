// Package handlers exposes the dashboard core to the presentation layer over HTTP/JSON.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tourdesk/tourdesk/libs/auth"
	"github.com/tourdesk/tourdesk/libs/httpx"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/backend"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/workspace"
)

type Config struct {
	JWTSecret string
	// RequestTimeout bounds every route except the preference stream. Zero disables it.
	RequestTimeout time.Duration
	// Heartbeat is the comment interval on the preference stream.
	Heartbeat time.Duration
}

type API struct {
	registry  *workspace.Registry
	logger    *slog.Logger
	secret    string
	timeout   time.Duration
	heartbeat time.Duration

	closing   chan struct{}
	closeOnce sync.Once
}

func New(registry *workspace.Registry, logger *slog.Logger, cfg Config) *API {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 25 * time.Second
	}
	return &API{
		registry:  registry,
		logger:    logger,
		secret:    cfg.JWTSecret,
		timeout:   cfg.RequestTimeout,
		heartbeat: cfg.Heartbeat,
		closing:   make(chan struct{}),
	}
}

// Close ends open preference streams so a graceful server shutdown does not wait on them.
func (a *API) Close() {
	a.closeOnce.Do(func() { close(a.closing) })
}

// Routes mounts the API under /api/v1.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(a.requireAuth)
		r.Get("/preferences/stream", a.StreamPreferences)

		r.Group(func(r chi.Router) {
			if a.timeout > 0 {
				r.Use(httpx.WithTimeout(a.timeout))
			}
			r.Get("/calendar", a.Calendar)
			r.Get("/calendar-events", a.CalendarEvents)

			r.Get("/preferences", a.GetPreferences)
			r.Put("/preferences", a.PutPreferences)

			r.Get("/availability-blocks", a.ListBlocks)
			r.Post("/availability-blocks", a.CreateBlock)
			r.Delete("/availability-blocks/{id}", a.DeleteBlock)

			r.Get("/bookings", a.ListBookings)
			r.Post("/bookings", a.CreateBooking)
			r.Get("/bookings/{id}", a.GetBooking)
			r.Post("/bookings/{id}/{action}", a.TransitionBooking)
		})
	})
	return r
}

type identity struct {
	userID   string
	userType model.UserType
}

func identityFrom(r *http.Request) identity {
	c, _ := auth.ClaimsFromContext(r.Context())
	ut, _ := model.ParseUserType(c.UserType)
	return identity{userID: c.Sub, userType: ut}
}

// requireAuth verifies the dashboard session token and forwards it to the booking backend.
// EventSource cannot set headers, so the stream may pass the token as access_token.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			token = r.URL.Query().Get("access_token")
		}
		if token == "" {
			a.writeError(w, r, model.Unauthenticated("authenticate"))
			return
		}
		claims, err := auth.ParseAndVerifyHS256(token, a.secret)
		if err != nil {
			a.writeError(w, r, model.Unauthenticated("authenticate"))
			return
		}
		if _, ok := model.ParseUserType(claims.UserType); !ok {
			a.writeError(w, r, model.Unauthenticated("authenticate"))
			return
		}

		ctx := auth.WithClaims(r.Context(), claims)
		ctx = backend.WithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type errorResponse struct {
	Error   model.Kind `json:"error"`
	Message string     `json:"message"`
}

func statusFor(kind model.Kind) int {
	switch kind {
	case model.KindNotAuthenticated:
		return http.StatusUnauthorized
	case model.KindInvalidTransition:
		return http.StatusConflict
	case model.KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := model.KindOf(err)
	code := statusFor(kind)
	if code >= 500 {
		a.logger.Warn("request failed", "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()), "err", err)
	}
	writeJSON(w, code, errorResponse{Error: kind, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody decodes a JSON body into dst. An empty body leaves dst untouched when optional.
func decodeBody(r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return model.Invalid("decode request", "invalid json body: %v", err)
	}
	return nil
}

func parseTimeParam(r *http.Request, name string, required bool) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			return time.Time{}, model.Invalid("query", "%s is required", name)
		}
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, model.Invalid("query", "%s must be RFC3339", name)
	}
	return t, nil
}
