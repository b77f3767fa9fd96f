// Package api is a client for the blood pressure REST backend.
//
// Every backend response is wrapped in an envelope:
//
//	{"status": "success", "message": "...", "data": {...}, "meta": {...}, "request_id": "..."}
//
// Failed calls come back either as an envelope with status "error" or as a
// bare {"detail": "..."} body. Both are returned as *APIError.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jwulff/bptrack/internal/bloodpressure"
	"github.com/jwulff/bptrack/internal/logging"
)

// Prefix is the versioned path all endpoints live under.
const Prefix = "/api/v1"

// Header names sent with every request.
const (
	HeaderAPIKey    = "X-API-Key"
	HeaderRequestID = "X-Request-ID"
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryCount int // Retries for GET requests only
}

// Client is an HTTP client for the backend.
type Client struct {
	http   *resty.Client
	logger *zap.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a new backend client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(retryIdempotent).
		SetLogger(logger.Sugar()).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		httpClient.SetHeader(HeaderAPIKey, cfg.APIKey)
	}

	return &Client{
		http:   httpClient,
		logger: logger,
	}
}

// retryIdempotent retries failed GETs. Writes are never retried so a slow
// save cannot produce a duplicate record.
func retryIdempotent(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
		return false
	}
	return err != nil || resp.StatusCode() >= http.StatusInternalServerError
}

// SetToken sets the bearer token sent with authenticated requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// APIError is a failed backend call.
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
	Errors     []FieldError
	RequestID  string
}

// FieldError is one validation failure reported by the backend.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Message
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if len(e.Errors) > 0 {
		parts := make([]string, 0, len(e.Errors))
		for _, fe := range e.Errors {
			parts = append(parts, fe.Field+": "+fe.Message)
		}
		msg += " (" + strings.Join(parts, "; ") + ")"
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, msg)
}

// IsStatus reports whether err is an *APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// IsUnauthorized reports whether err means the session is missing or expired.
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}

type envelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Meta      json.RawMessage `json:"meta"`
	Errors    []FieldError    `json:"errors"`
	RequestID string          `json:"request_id"`
	Detail    json.RawMessage `json:"detail"`
}

func (e *envelope) detail() string {
	if len(e.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Detail, &s); err == nil {
		return s
	}
	return string(e.Detail)
}

// call describes one backend request.
type call struct {
	method string
	path   string
	query  map[string]string
	body   any
	prep   func(*resty.Request)
	data   any // decoded from envelope.data
	meta   any // decoded from envelope.meta
}

func (c *Client) do(ctx context.Context, cl call) error {
	requestID := uuid.NewString()
	logger := logging.WithRequestID(c.logger, requestID).With(
		zap.String("method", cl.method),
		zap.String("path", cl.path),
	)

	var env envelope
	req := c.http.R().
		SetContext(ctx).
		SetHeader(HeaderRequestID, requestID).
		SetResult(&env).
		SetError(&env)
	if token := c.Token(); token != "" {
		req.SetAuthToken(token)
	}
	if cl.query != nil {
		req.SetQueryParams(cl.query)
	}
	if cl.body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(cl.body)
	}
	if cl.prep != nil {
		cl.prep(req)
	}

	start := time.Now()
	resp, err := req.Execute(cl.method, cl.path)
	if err != nil {
		logger.Error("backend request failed", zap.Error(err))
		return fmt.Errorf("%s %s: %w", cl.method, cl.path, err)
	}

	logger.Debug("backend request",
		zap.Int("status_code", resp.StatusCode()),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.IsError() || env.Status == "error" {
		apiErr := &APIError{
			StatusCode: resp.StatusCode(),
			Message:    env.Message,
			Detail:     env.detail(),
			Errors:     env.Errors,
			RequestID:  env.RequestID,
		}
		if apiErr.Message == "" && apiErr.Detail == "" && len(resp.Body()) > 0 && env.Status == "" {
			apiErr.Detail = strings.TrimSpace(string(resp.Body()))
		}
		logger.Warn("backend returned error",
			zap.Int("status_code", apiErr.StatusCode),
			zap.String("message", apiErr.Error()),
			zap.String("backend_request_id", apiErr.RequestID),
		)
		return apiErr
	}

	if cl.data != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, cl.data); err != nil {
			return fmt.Errorf("failed to parse %s response: %w", cl.path, err)
		}
	}
	if cl.meta != nil && len(env.Meta) > 0 && string(env.Meta) != "null" {
		if err := json.Unmarshal(env.Meta, cl.meta); err != nil {
			return fmt.Errorf("failed to parse %s metadata: %w", cl.path, err)
		}
	}
	return nil
}

// Time is a backend timestamp. The backend emits ISO 8601 with or without a
// zone; zone-less values are read as UTC.
type Time struct {
	time.Time
}

// NewTime wraps t, returning nil for the zero time.
func NewTime(t time.Time) *Time {
	if t.IsZero() {
		return nil
	}
	return &Time{t}
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Time) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := bloodpressure.ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// Ptr returns a pointer to the wrapped time, or nil when t is nil or zero.
func (t *Time) Ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}
