package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tourdesk/tourdesk/libs/auth"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/availability"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/backend"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/cache"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/preferences"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/weekday"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/workspace"
)

const secret = "test-secret"

type fakeBackend struct {
	mu       sync.Mutex
	prefs    *model.Preferences
	bookings []model.Booking
	blocks   []model.Block
	gate     chan struct{}
	tokens   []string
}

func (f *fakeBackend) seen(ctx context.Context) {
	tok := backend.TokenFromContext(ctx)
	f.mu.Lock()
	f.tokens = append(f.tokens, tok)
	f.mu.Unlock()
}

func (f *fakeBackend) GetPreferences(ctx context.Context, _ string, _ model.UserType) (model.Preferences, error) {
	f.seen(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prefs == nil {
		return model.Preferences{}, model.TransportFailure("get preferences", io.ErrUnexpectedEOF)
	}
	return *f.prefs, nil
}

func (f *fakeBackend) UpdatePreferences(_ context.Context, _ string, _ model.UserType, p model.Preferences) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefs = &p
	return nil
}

func (f *fakeBackend) ListBlocks(context.Context, string, time.Time, time.Time) ([]model.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocks, nil
}

func (f *fakeBackend) CreateBlock(_ context.Context, _ string, b model.Block) (model.Block, error) {
	b.ID = "blk-1"
	return b, nil
}

func (f *fakeBackend) DeleteBlock(context.Context, string, string) error { return nil }

func (f *fakeBackend) Transition(_ context.Context, req model.TransitionRequest) (model.Booking, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return model.Booking{ID: req.BookingID}, nil
}

func (f *fakeBackend) CreateManual(_ context.Context, _ string, req model.ManualBooking) (model.Booking, error) {
	return model.Booking{ID: "srv-9", PropertyID: req.PropertyID, StartAt: req.StartAt, EndAt: req.EndAt, Status: model.StatusApproved}, nil
}

func (f *fakeBackend) ListBookings(ctx context.Context, _ string, _ model.BookingQuery) ([]model.Booking, error) {
	f.seen(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bookings, nil
}

func (f *fakeBackend) CalendarEvents(context.Context, string, time.Time, time.Time) (backend.CalendarEvents, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return backend.CalendarEvents{Bookings: f.bookings, Blocks: f.blocks}, nil
}

var tourStart = time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, be *fakeBackend) *httptest.Server {
	t.Helper()
	c := cache.NewMemory(time.Minute)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	prefs := preferences.NewStore(be, c, preferences.NewBus(), logger)
	blocks := availability.NewBlockService(be, c, logger)
	reg := workspace.NewRegistry(be, prefs, blocks, c, logger, workspace.Config{WeekStart: time.Sunday})
	api := New(reg, logger, Config{JWTSecret: secret, RequestTimeout: 5 * time.Second, Heartbeat: time.Hour})
	srv := httptest.NewServer(api.Routes())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = reg.Close(ctx)
	})
	return srv
}

func token(t *testing.T, sub string) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.Claims{
		Sub:      sub,
		UserType: "property_manager",
		Iat:      time.Now().Unix(),
		Exp:      time.Now().Add(time.Hour).Unix(),
	}, secret)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func call(t *testing.T, srv *httptest.Server, method, path, tok, body string) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	if err != nil {
		t.Fatal(err)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp, raw
}

func pendingTour() model.Booking {
	return model.Booking{
		ID:         "b1",
		PropertyID: "p1",
		AssignedTo: "pm-1",
		Visitor:    model.Visitor{Name: "Ana"},
		StartAt:    tourStart,
		EndAt:      tourStart.Add(30 * time.Minute),
		Status:     model.StatusPending,
		CreatedBy:  model.OriginVoiceAgent,
	}
}

func TestRequestsWithoutValidTokenAreRejected(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{})
	for _, tok := range []string{"", "not.a.token"} {
		resp, raw := call(t, srv, http.MethodGet, "/api/v1/preferences", tok, "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("token %q: status %d", tok, resp.StatusCode)
		}
		var e errorResponse
		if err := json.Unmarshal(raw, &e); err != nil || e.Error != model.KindNotAuthenticated {
			t.Fatalf("body = %s", raw)
		}
	}
}

func TestTokenWithoutUserTypeIsRejected(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{})
	tok, err := auth.SignHS256(auth.Claims{
		Sub: "pm-1",
		Iat: time.Now().Unix(),
		Exp: time.Now().Add(time.Hour).Unix(),
	}, secret)
	if err != nil {
		t.Fatal(err)
	}
	resp, _ := call(t, srv, http.MethodGet, "/api/v1/preferences", tok, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestCalendarForwardsTokenAndRendersBookings(t *testing.T) {
	be := &fakeBackend{bookings: []model.Booking{pendingTour()}}
	srv := newTestServer(t, be)
	tok := token(t, "pm-1")

	resp, raw := call(t, srv, http.MethodGet, "/api/v1/calendar?anchor=2026-03-11&granularity=week&tz=UTC", tok, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, raw)
	}
	var view struct {
		Anchor        string               `json:"anchor"`
		BookingEvents []availability.Event `json:"booking_events"`
		Preferences   model.Preferences    `json:"preferences"`
	}
	if err := json.Unmarshal(raw, &view); err != nil {
		t.Fatal(err)
	}
	if view.Anchor != "2026-03-11" || len(view.BookingEvents) != 1 || !view.Preferences.Fallback {
		t.Fatalf("view = %+v", view)
	}
	be.mu.Lock()
	defer be.mu.Unlock()
	for _, got := range be.tokens {
		if got != tok {
			t.Fatalf("backend saw token %q", got)
		}
	}
}

func TestCalendarRejectsBadQuery(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{})
	tok := token(t, "pm-1")
	for _, q := range []string{"granularity=year", "tz=Mars/Olympus", "anchor=11-03-2026"} {
		resp, _ := call(t, srv, http.MethodGet, "/api/v1/calendar?"+q, tok, "")
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("%s: status %d", q, resp.StatusCode)
		}
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{})
	tok := token(t, "pm-1")

	resp, _ := call(t, srv, http.MethodPut, "/api/v1/preferences", tok, `{"start_time":"18:00","end_time":"09:00","timezone":"UTC","slot_length_minutes":30,"working_days":[1]}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("invalid save status %d", resp.StatusCode)
	}

	resp, raw := call(t, srv, http.MethodPut, "/api/v1/preferences", tok, `{"start_time":"08:00","end_time":"16:00","timezone":"Europe/Berlin","slot_length_minutes":45,"working_days":[0,6]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save status %d: %s", resp.StatusCode, raw)
	}
	resp, raw = call(t, srv, http.MethodGet, "/api/v1/preferences", tok, "")
	var got model.Preferences
	if err := json.Unmarshal(raw, &got); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("get: %d %s", resp.StatusCode, raw)
	}
	if got.Fallback || got.Timezone != "Europe/Berlin" || len(got.WorkingDays) != 2 || got.WorkingDays[0] != weekday.Sunday {
		t.Fatalf("prefs = %+v", got)
	}
}

func TestApproveAcceptedThenSettled(t *testing.T) {
	be := &fakeBackend{bookings: []model.Booking{pendingTour()}}
	srv := newTestServer(t, be)
	tok := token(t, "pm-1")
	call(t, srv, http.MethodGet, "/api/v1/bookings", tok, "")

	resp, raw := call(t, srv, http.MethodPost, "/api/v1/bookings/b1/approve?wait=true", tok, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", resp.StatusCode, raw)
	}
	var out bookingResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out.Booking.Status != model.StatusApproved || out.Pending {
		t.Fatalf("booking = %+v", out)
	}

	resp, _ = call(t, srv, http.MethodPost, "/api/v1/bookings/b1/approve", tok, "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second approve status %d", resp.StatusCode)
	}
}

func TestApproveWithoutPriorListing(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{bookings: []model.Booking{pendingTour()}})
	tok := token(t, "pm-1")

	resp, raw := call(t, srv, http.MethodPost, "/api/v1/bookings/b1/approve?wait=true", tok, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", resp.StatusCode, raw)
	}
	var out bookingResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if out.Booking.Status != model.StatusApproved {
		t.Fatalf("booking = %+v", out)
	}

	resp, _ = call(t, srv, http.MethodPost, "/api/v1/bookings/b7/approve", tok, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing booking status %d", resp.StatusCode)
	}
}

func TestTransitionInFlightConflicts(t *testing.T) {
	be := &fakeBackend{bookings: []model.Booking{pendingTour()}, gate: make(chan struct{})}
	srv := newTestServer(t, be)
	tok := token(t, "pm-1")
	call(t, srv, http.MethodGet, "/api/v1/bookings", tok, "")

	resp, raw := call(t, srv, http.MethodPost, "/api/v1/bookings/b1/deny", tok, `{"reason":"no access"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("deny status %d: %s", resp.StatusCode, raw)
	}
	var out bookingResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	if !out.Pending || !out.Booking.InFlight || out.Booking.Status != model.StatusDenied {
		t.Fatalf("optimistic booking = %+v", out)
	}

	resp, _ = call(t, srv, http.MethodPost, "/api/v1/bookings/b1/reschedule", tok, "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("in-flight status %d", resp.StatusCode)
	}
	close(be.gate)
}

func TestRescheduleValidationAndUnknownAction(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{bookings: []model.Booking{pendingTour()}})
	tok := token(t, "pm-1")
	call(t, srv, http.MethodGet, "/api/v1/bookings", tok, "")

	resp, _ := call(t, srv, http.MethodPost, "/api/v1/bookings/b1/reschedule", tok, `{"slots":[]}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("empty slots status %d", resp.StatusCode)
	}
	resp, _ = call(t, srv, http.MethodPost, "/api/v1/bookings/b1/archive", tok, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown action status %d", resp.StatusCode)
	}
	resp, _ = call(t, srv, http.MethodGet, "/api/v1/bookings/nope", tok, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown booking status %d", resp.StatusCode)
	}
}

func TestCreateManualBooking(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{})
	tok := token(t, "pm-1")
	body := `{"property_id":"p1","visitor":{"name":"Bo"},"start_at":"2026-03-12T10:00:00Z","end_at":"2026-03-12T10:30:00Z"}`

	resp, raw := call(t, srv, http.MethodPost, "/api/v1/bookings?wait=true", tok, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", resp.StatusCode, raw)
	}
	var out bookingResponse
	if err := json.Unmarshal(raw, &out); err != nil || out.Booking.ID != "srv-9" {
		t.Fatalf("created = %s", raw)
	}

	resp, _ = call(t, srv, http.MethodPost, "/api/v1/bookings", tok, `{"property_id":"p1","visitor":{"name":"Bo"}}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("invalid create status %d", resp.StatusCode)
	}
}

func TestAvailabilityBlocks(t *testing.T) {
	srv := newTestServer(t, &fakeBackend{})
	tok := token(t, "pm-1")

	resp, _ := call(t, srv, http.MethodPost, "/api/v1/availability-blocks", tok, `{"start_at":"2026-03-12T10:00:00Z","end_at":"2026-03-12T11:00:00Z","kind":"working_hours"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("working-hours block status %d", resp.StatusCode)
	}
	resp, raw := call(t, srv, http.MethodPost, "/api/v1/availability-blocks", tok, `{"start_at":"2026-03-12T10:00:00Z","end_at":"2026-03-12T11:00:00Z","kind":"busy"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", resp.StatusCode, raw)
	}
	resp, raw = call(t, srv, http.MethodGet, "/api/v1/availability-blocks?from=2026-03-01T00:00:00Z&to=2026-04-01T00:00:00Z", tok, "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), `"blocks":[]`) {
		t.Fatalf("list %d: %s", resp.StatusCode, raw)
	}
	resp, _ = call(t, srv, http.MethodGet, "/api/v1/availability-blocks", tok, "")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("missing range status %d", resp.StatusCode)
	}
	resp, _ = call(t, srv, http.MethodDelete, "/api/v1/availability-blocks/blk-1", tok, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d", resp.StatusCode)
	}
}

func TestPreferenceStreamDeliversSavedValue(t *testing.T) {
	be := &fakeBackend{}
	srv := newTestServer(t, be)
	tok := token(t, "pm-1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/preferences/stream?access_token="+tok, nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	events := make(chan model.Preferences, 4)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var p model.Preferences
				if json.Unmarshal([]byte(data), &p) == nil {
					events <- p
				}
			}
		}
	}()

	select {
	case p := <-events:
		if !p.Fallback {
			t.Fatalf("initial event should carry fallback preferences: %+v", p)
		}
	case <-ctx.Done():
		t.Fatal("no initial event")
	}

	saved, _ := call(t, srv, http.MethodPut, "/api/v1/preferences", tok, `{"start_time":"10:00","end_time":"14:00","timezone":"UTC","slot_length_minutes":60,"working_days":[2]}`)
	if saved.StatusCode != http.StatusOK {
		t.Fatalf("save status %d", saved.StatusCode)
	}
	select {
	case p := <-events:
		if p.StartTime != "10:00" || p.Fallback {
			t.Fatalf("pushed %+v", p)
		}
	case <-ctx.Done():
		t.Fatal("no update event")
	}
}

func TestCloseEndsPreferenceStreams(t *testing.T) {
	be := &fakeBackend{}
	c := cache.NewMemory(time.Minute)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := workspace.NewRegistry(be, preferences.NewStore(be, c, preferences.NewBus(), logger), availability.NewBlockService(be, c, logger), c, logger, workspace.Config{})
	api := New(reg, logger, Config{JWTSecret: secret, Heartbeat: time.Hour})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/preferences/stream", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "pm-1"))
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		api.Routes().ServeHTTP(rec, req)
		close(done)
	}()

	api.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after Close")
	}
}
