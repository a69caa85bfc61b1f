// Package relayclient is the terminal's HTTP transport to the relay. It
// implements services.RelayTransport over the relay's JSON API and folds
// transport failures into the service error vocabulary:
//
//   - connection errors, timeouts, 429 and 5xx answers -> services.ErrNetwork
//   - other 4xx answers                                 -> services.ErrInvalidRequest
//
// Trace context is propagated on every request so relay spans join the
// terminal's sync cycle.
package relayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"github.com/tbourn/pos-sync/internal/domain"
	"github.com/tbourn/pos-sync/internal/observability"
	"github.com/tbourn/pos-sync/internal/services"
)

// Header names shared with the relay.
const (
	HeaderTerminalID     = "X-Terminal-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Client talks to one relay. The zero value is not usable; call New.
type Client struct {
	base *url.URL
	http *http.Client
}

// New returns a client for the relay at baseURL. A nil hc gets a client with
// the given timeout (or 10s when timeout <= 0).
func New(baseURL string, hc *http.Client, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("relay url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("relay url %q: scheme must be http or https", baseURL)
	}
	if hc == nil {
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{base: u, http: hc}, nil
}

// envelope is the relay's error body.
type envelope struct {
	Success   bool   `json:"success"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Register implements services.RelayTransport.
func (c *Client) Register(ctx context.Context, req domain.RegisterRequest) (int64, error) {
	var out struct {
		Success    bool  `json:"success"`
		TerminalID int64 `json:"terminal_id"`
	}
	if _, err := c.do(ctx, "Register", http.MethodPost, "/api/sync/terminals", nil, nil, req, &out); err != nil {
		return 0, err
	}
	return out.TerminalID, nil
}

// Push implements services.RelayTransport. The batch key travels as the
// Idempotency-Key header; a replayed answer is reported via Replayed.
func (c *Client) Push(ctx context.Context, req domain.PushRequest) (*domain.PushResult, error) {
	hdr := http.Header{}
	hdr.Set(HeaderTerminalID, strconv.FormatInt(req.TerminalID, 10))
	if req.IdempotencyKey != "" {
		hdr.Set(HeaderIdempotencyKey, req.IdempotencyKey)
	}

	var out struct {
		Success bool `json:"success"`
		domain.PushResult
	}
	resp, err := c.do(ctx, "Push", http.MethodPost, "/api/sync/push", nil, hdr, req, &out)
	if err != nil {
		return nil, err
	}
	res := out.PushResult
	res.Replayed = resp.Header.Get(HeaderReplayed) == "true"
	return &res, nil
}

// Pull implements services.RelayTransport.
func (c *Client) Pull(ctx context.Context, q domain.PullQuery) (*domain.PullResult, error) {
	v := url.Values{}
	v.Set("terminal_id", strconv.FormatInt(q.TerminalID, 10))
	v.Set("since_version", strconv.FormatInt(q.SinceVersion, 10))
	if q.StoreID > 0 {
		v.Set("store_id", strconv.FormatInt(q.StoreID, 10))
	}
	hdr := http.Header{}
	hdr.Set(HeaderTerminalID, strconv.FormatInt(q.TerminalID, 10))

	var out struct {
		Success bool `json:"success"`
		domain.PullResult
	}
	if _, err := c.do(ctx, "Pull", http.MethodGet, "/api/sync/pull", v, hdr, nil, &out); err != nil {
		return nil, err
	}
	res := out.PullResult
	if res.Changes == nil {
		res.Changes = []domain.ChangeLogEntry{}
	}
	return &res, nil
}

// Health implements services.RelayTransport.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if _, err := c.do(ctx, "Health", http.MethodGet, "/health", nil, nil, nil, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("%w: health status %q", services.ErrNetwork, out.Status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, hdr http.Header, in, out any) (*http.Response, error) {
	ctx, span := observability.Tracer("relayclient").Start(ctx, op)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	)

	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%w: encode %s: %v", services.ErrInvalidRequest, op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: build %s: %v", services.ErrInvalidRequest, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	observability.InjectHeaders(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return nil, fmt.Errorf("%w: %s: %v", services.ErrNetwork, op, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 300 {
		err := statusError(op, resp)
		span.RecordError(err)
		span.SetStatus(codes.Error, resp.Status)
		return nil, err
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("%w: decode %s response: %v", services.ErrNetwork, op, err)
		}
	}
	return resp, nil
}

// statusError maps a non-2xx answer onto the service errors. Relay overload
// and storage trouble are retryable; anything else the relay rejected will
// not succeed unchanged.
func statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var env envelope
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &env) == nil && env.Message != "" {
		msg = env.Message
		if env.Code != "" {
			msg = env.Code + ": " + msg
		}
	}
	if msg == "" {
		msg = resp.Status
	}

	sentinel := services.ErrInvalidRequest
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout {
		sentinel = services.ErrNetwork
	}
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Message: msg, RequestID: env.RequestID, sentinel: sentinel}
}

// StatusError is returned for non-2xx relay answers. It matches
// services.ErrNetwork or services.ErrInvalidRequest under errors.Is.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
	RequestID  string

	sentinel error
}

func (e *StatusError) Error() string {
	s := fmt.Sprintf("%v: %s: relay answered %d: %s", e.sentinel, e.Op, e.StatusCode, e.Message)
	if e.RequestID != "" {
		s += " (request_id " + e.RequestID + ")"
	}
	return s
}

func (e *StatusError) Unwrap() error { return e.sentinel }

var _ services.RelayTransport = (*Client)(nil)
