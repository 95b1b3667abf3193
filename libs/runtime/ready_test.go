package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadyzFailsOnRequiredCheck(t *testing.T) {
	mux := NewBaseMuxWithReady(
		ReadyCheck{Name: "redis", Check: func(context.Context) error { return errors.New("refused") }},
	)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "redis: refused") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestReadyzReportsOptionalCheck(t *testing.T) {
	mux := NewBaseMuxWithReady(
		ReadyCheck{Name: "kafka", Optional: true, Check: func(context.Context) error { return errors.New("no brokers") }},
	)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "degraded") {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG").String() != "DEBUG" || ParseLevel("bogus").String() != "INFO" {
		t.Fatalf("unexpected level parsing")
	}
}
