// Package backend is the REST client for the remote booking service. Every payload is
// normalized here into the canonical model shapes; nothing past this package sees backend
// field names or backend weekday numbering.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/metrics"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/model"
)

type Config struct {
	BaseURL       string
	ServiceToken  string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

type Client struct {
	baseURL      string
	serviceToken string
	timeout      time.Duration
	transport    http.RoundTripper
	limiter      *rate.Limiter
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		baseURL:      base,
		serviceToken: strings.TrimSpace(cfg.ServiceToken),
		timeout:      cfg.Timeout,
		transport:    otelhttp.NewTransport(transport),
		limiter:      rate.NewLimiter(limit, cfg.Burst),
	}, nil
}

type tokenKey struct{}

// WithToken attaches the caller's bearer token to ctx. Calls made with that context
// authenticate as the caller instead of the service.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func TokenFromContext(ctx context.Context) string {
	v, _ := ctx.Value(tokenKey{}).(string)
	return v
}

func (c *Client) httpClient(token string) *http.Client {
	return &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.transport,
		},
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any, out *json.RawMessage) error {
	token := TokenFromContext(ctx)
	if token == "" {
		token = c.serviceToken
	}
	if token == "" {
		return model.Unauthenticated(op)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return model.TransportFailure(op, err)
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return model.TransportFailure(op, err)
		}
		reader = bytes.NewReader(raw)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return model.TransportFailure(op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	start := time.Now()
	resp, err := c.httpClient(token).Do(req)
	if err != nil {
		metrics.BackendRequestDuration.WithLabelValues(op, "error").Observe(time.Since(start).Seconds())
		return model.TransportFailure(op, err)
	}
	defer resp.Body.Close()
	metrics.BackendRequestDuration.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.TransportFailure(op, err)
	}
	*out = raw
	return nil
}

func statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	msg := errorMessage(raw)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &model.Error{Kind: model.KindNotAuthenticated, Op: op, Message: msg}
	case http.StatusConflict:
		return &model.Error{Kind: model.KindInvalidTransition, Op: op, Message: msg}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &model.Error{Kind: model.KindValidation, Op: op, Message: msg}
	}
	return &model.Error{
		Kind:    model.KindTransport,
		Op:      op,
		Message: "backend request failed",
		Err:     fmt.Errorf("status %d: %s", resp.StatusCode, msg),
	}
}

func errorMessage(raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, key := range []string{"message", "error", "detail"} {
			if s, ok := body[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(raw))
}

func segments(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

func decodeFailure(op string, err error) error {
	return model.TransportFailure(op, errors.Join(errors.New("malformed backend payload"), err))
}
