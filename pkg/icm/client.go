package icm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const maxResponseBytes = 4 << 20

// Client provides typed access to the ICM resource hierarchy. Every call takes
// its project (and environment) explicitly, so one Client can be shared by
// concurrent callers.
type Client struct {
	tokens *TokenManager
	http   *transport
	logger *slog.Logger

	mu      sync.Mutex
	keyPath string
}

// New constructs a Client from an already loaded credential.
func New(cred *Credential, opts ...Option) (*Client, error) {
	if cred == nil {
		return nil, &ConfigError{Reason: "credential is required"}
	}
	s := newSettings(opts)
	tokens := newTokenManager(cred, s)
	return &Client{tokens: tokens, http: tokens.transport, logger: s.logger}, nil
}

// Open loads the key file at path and constructs a Client. Reset re-reads the
// same file.
func Open(path string, opts ...Option) (*Client, error) {
	cred, err := LoadCredential(path)
	if err != nil {
		return nil, err
	}
	c, err := New(cred, opts...)
	if err != nil {
		return nil, err
	}
	c.keyPath = path
	return c, nil
}

// Reset drops the cached token and, for clients created with Open, reloads the
// key file. On a load failure the client stays unusable until a later Reset
// succeeds.
func (c *Client) Reset() error {
	c.mu.Lock()
	path := c.keyPath
	c.mu.Unlock()
	if path == "" {
		c.tokens.Invalidate()
		return nil
	}
	cred, err := LoadCredential(path)
	if err != nil {
		c.tokens.Reset(nil)
		return err
	}
	c.tokens.Reset(cred)
	return nil
}

// Close forgets the credential and cached token. Later calls fail with a
// ConfigError wrapping ErrClosed.
func (c *Client) Close() error {
	c.tokens.Reset(nil)
	return nil
}

// Tokens exposes the underlying token manager.
func (c *Client) Tokens() *TokenManager { return c.tokens }

// AccessToken returns a bearer token, refreshing it when stale.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	return c.tokens.AccessToken(ctx)
}

// TokenInfo describes the identity of the current access token.
func (c *Client) TokenInfo(ctx context.Context) (*TokenInfo, error) {
	return c.tokens.TokenInfo(ctx)
}

// call performs an authenticated request and wraps failures into an APIError.
func (c *Client) call(ctx context.Context, op, method, path string, body, v any) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}
	base := c.tokens.BaseURL()
	if base == "" {
		return &ConfigError{Reason: "no base url available", Err: ErrClosed}
	}
	if err := c.http.send(ctx, op, method, base+path, body, token, v); err != nil {
		up, cause := classify(err)
		if up.Status == http.StatusUnauthorized {
			c.tokens.discard(token)
		}
		return &APIError{Op: op, Upstream: up, Err: cause}
	}
	return nil
}

type transport struct {
	httpClient *http.Client
	logger     *slog.Logger
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func (t *transport) send(ctx context.Context, op, method, endpoint string, body any, token string, v any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	t.logger.Debug("icm request",
		"op", op,
		"method", method,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{Upstream: upstreamFrom(resp.StatusCode, data)}
	}
	if v == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return errors.New("decode response: missing data")
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// classify separates upstream status details from transport-level causes.
func classify(err error) (Upstream, error) {
	var se *statusError
	if errors.As(err, &se) {
		return se.Upstream, nil
	}
	return Upstream{}, err
}
