package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultRequestTimeout = 15 * time.Second

var (
	// ErrSessionExpired marks an auth-class failure that survived one
	// silent refresh attempt. Callers surface it distinctly; it is never
	// retried here.
	ErrSessionExpired = errors.New("api: session expired")
	// ErrConflict marks an idempotent conflict ("already saved", "vote
	// already removed"). Mutation callers treat it as success.
	ErrConflict = errors.New("api: idempotent conflict")
	// ErrRejected marks a mutation the server refused for any other
	// reason; it triggers rollback.
	ErrRejected = errors.New("api: request rejected")

	errMissingBaseURL     = errors.New("base url is required")
	errMissingTokenSource = errors.New("token source is required")
)

// Envelope is the platform's uniform response shape. Success=false is a
// rollback trigger regardless of HTTP status, except documented conflicts.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// TokenSource supplies the opaque bearer credential and performs silent
// reauthentication when the platform reports it stale.
type TokenSource interface {
	Token() (string, error)
	Refresh(ctx context.Context) error
}

// ClientConfig bundles configuration for the REST client.
type ClientConfig struct {
	BaseURL    string
	Tokens     TokenSource
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the Abroado REST API. It does not inspect credentials
// beyond attaching them, and defers reauthentication to the token source.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a Client with validated configuration.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	if cfg.Tokens == nil {
		return nil, errMissingTokenSource
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    baseURL,
		tokens:     cfg.Tokens,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Mutate issues a write (POST/DELETE/...) and decodes the envelope.
// Conflict responses return ErrConflict alongside any payload so callers
// can treat them as idempotent success.
func (c *Client) Mutate(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = encoded
	}
	return c.do(ctx, method, path, payload)
}

// FetchView retrieves one cache view's backing data.
func (c *Client) FetchView(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) (json.RawMessage, error) {
	response, err := c.send(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}

	if isAuthStatus(response.StatusCode) {
		drain(response)
		c.logger.Debug("auth-class response, attempting silent refresh",
			zap.String("path", path), zap.Int("status", response.StatusCode))
		if refreshErr := c.tokens.Refresh(ctx); refreshErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, refreshErr)
		}
		response, err = c.send(ctx, method, path, payload)
		if err != nil {
			return nil, err
		}
		if isAuthStatus(response.StatusCode) {
			drain(response)
			return nil, ErrSessionExpired
		}
	}

	defer response.Body.Close()
	var envelope Envelope
	if err := json.NewDecoder(response.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}

	if envelope.Success {
		return envelope.Data, nil
	}
	if isConflictMessage(envelope.Message) {
		return envelope.Data, fmt.Errorf("%w: %s", ErrConflict, envelope.Message)
	}
	return nil, fmt.Errorf("%w: %s", ErrRejected, envelope.Message)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	request.Header.Set("Authorization", "Bearer "+token)

	return c.httpClient.Do(request)
}

func isAuthStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// Conflict phrases the platform uses for idempotent no-op writes.
var conflictMessages = []string{
	"already saved",
	"already removed",
	"not saved",
	"already voted",
}

func isConflictMessage(message string) bool {
	lowered := strings.ToLower(message)
	for _, phrase := range conflictMessages {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

func drain(response *http.Response) {
	io.Copy(io.Discard, response.Body) //nolint:errcheck
	response.Body.Close()
}
