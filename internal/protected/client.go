// Package protected implements the REST client for the protected service,
// the backend owning chat, file, and summary data. It satisfies
// ports.ProtectedService and maps every failure onto the shared error
// taxonomy: transport faults, malformed payloads, and upstream business
// rejections stay distinguishable for callers.
package protected

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	skalderrors "skald/internal/errors"
	"skald/internal/logging"
	"skald/internal/observability"
)

const defaultTimeout = 30 * time.Second

// envelope is the protected service's uniform response wrapper. Code zero
// means success; anything else is a business rejection carried over HTTP 200.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Config carries the client's connection settings.
type Config struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
	Logger    logging.Logger
}

// Client talks to the protected service. Safe for concurrent use; WithToken
// derives per-request clients sharing the same transport.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	logger     logging.Logger
}

// NewClient builds a client from config.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		authToken:  cfg.AuthToken,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.OrNop(cfg.Logger),
	}
}

// WithToken returns a shallow copy authenticating as the given caller. The
// underlying transport and connection pool are shared.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.authToken = token
	return &clone
}

// doJSON performs one request/response cycle: marshal body, send, unwrap the
// envelope, and decode data into out (when out is non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := method + " " + path

	ctx, span := observability.StartSpan(ctx, observability.SpanBackendRequest,
		attribute.String(observability.AttrEndpoint, endpoint),
	)
	defer span.End()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return skalderrors.NewValidationError(endpoint, "request body not serializable", err)
		}
		reader = bytes.NewReader(payload)
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return skalderrors.NewTransportError(endpoint, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("protected request failed: %s: %v", endpoint, err)
		return skalderrors.NewTransportError(endpoint, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return skalderrors.NewTransportError(endpoint, resp.StatusCode, err)
	}

	c.logger.Debug("protected %s -> %d in %s (%d bytes)",
		endpoint, resp.StatusCode, time.Since(started).Round(time.Millisecond), len(raw))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return skalderrors.NewTransportError(endpoint, resp.StatusCode,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncateBody(raw)))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return skalderrors.NewValidationError(endpoint, "response is not a valid envelope", err)
	}
	if env.Code != 0 {
		return skalderrors.NewUpstreamLogicError(endpoint, env.Code, env.Message)
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 {
		return skalderrors.NewValidationError(endpoint, "envelope has no data", nil)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return skalderrors.NewValidationError(endpoint, "envelope data has unexpected shape", err)
	}
	return nil
}

func truncateBody(raw []byte) string {
	const max = 256
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}

type requestIDKey struct{}

// WithRequestID stamps a request id onto the context; the client propagates
// it as the X-Request-ID header.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext reads back a stamped request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}
