// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/ragchat/internal/auth"
	"github.com/jeranaias/ragchat/internal/logging"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// DefaultBaseURL is where the RAG service listens in development.
const DefaultBaseURL = "http://localhost:5000/api"

// Header names sent with every request.
const (
	HeaderSkipBrowserWarning = "ngrok-skip-browser-warning"
	HeaderRequestID          = "X-Request-ID"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// Config holds configuration options for the client.
type Config struct {
	// BaseURL is the service root including any path prefix (default: http://localhost:5000/api)
	BaseURL string

	// Timeout bounds each request. Zero means no client-side timeout.
	Timeout time.Duration

	// RequestsPerSecond throttles outgoing calls. Zero disables throttling.
	RequestsPerSecond float64

	// Burst is the limiter burst size (default: 1 when throttling)
	Burst int

	// UserAgent is sent when non-empty
	UserAgent string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
	}
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.log = logging.OrNop(l).Named("api")
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client issues authenticated calls to the RAG service.
//
// The Client is safe for concurrent use.
type Client struct {
	config     Config
	baseURL    *url.URL
	httpClient *http.Client
	auth       auth.Provider
	limiter    *rate.Limiter
	log        *zap.Logger
}

// NewClient creates a client. provider may be nil for unauthenticated use.
func NewClient(config *Config, provider auth.Provider, opts ...Option) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", cfg.BaseURL)
	}

	c := &Client{
		config:     cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		auth:       provider,
		log:        zap.NewNop(),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// =============================================================================
// HEALTH
// =============================================================================

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.doJSON(ctx, "health check", http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Info reads GET /info: document counts plus the file being processed.
func (c *Client) Info(ctx context.Context) (*InfoResponse, error) {
	var out InfoResponse
	if err := c.doJSON(ctx, "get info", http.MethodGet, "/info", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// ListSessions returns the user's sessions in server order.
func (c *Client) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	var out []SessionRecord
	if err := c.doJSON(ctx, "list sessions", http.MethodGet, "/history", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSession starts a new conversation.
func (c *Client) CreateSession(ctx context.Context) (*SessionRecord, error) {
	var out SessionRecord
	if err := c.doJSON(ctx, "create session", http.MethodPost, "/history", nil, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &Error{Kind: KindInvalidResponse, Op: "create session", Message: "response has no session id"}
	}
	return &out, nil
}

// GetHistory returns the messages of session id in server order.
func (c *Client) GetHistory(ctx context.Context, id string) ([]HistoryRecord, error) {
	if id == "" {
		return nil, NewValidationError("get history", "session id is required")
	}
	var out []HistoryRecord
	if err := c.doJSON(ctx, "get history", http.MethodGet, "/history/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteSession removes session id.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return NewValidationError("delete session", "session id is required")
	}
	return c.doJSON(ctx, "delete session", http.MethodDelete, "/history/"+url.PathEscape(id), nil, nil)
}

// =============================================================================
// CHAT
// =============================================================================

// SendChat posts a user message. An empty sessionID is sent as null.
func (c *Client) SendChat(ctx context.Context, text, sessionID string) (*ChatResponse, error) {
	req := ChatRequest{Message: text}
	if sessionID != "" {
		req.SessionID = &sessionID
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Op: "send chat", Message: "failed to marshal request", Cause: err}
	}

	var out ChatResponse
	if err := c.doJSON(ctx, "send chat", http.MethodPost, "/chat", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// Upload sends f as the multipart field "file".
func (c *Client) Upload(ctx context.Context, f File) (*UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(f.Name)))
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Op: "upload", Message: "failed to build form", Cause: err}
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, &Error{Kind: KindValidation, Op: "upload", Message: "failed to build form", Cause: err}
	}
	if err := mw.Close(); err != nil {
		return nil, &Error{Kind: KindValidation, Op: "upload", Message: "failed to build form", Cause: err}
	}

	resp, err := c.do(ctx, "upload", http.MethodPost, "/upload", &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out UploadResponse
	if err := decodeResponse("upload", resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadStatus reads GET /upload/status.
func (c *Client) UploadStatus(ctx context.Context) (*ProcessingStatus, error) {
	var out ProcessingStatus
	if err := c.doJSON(ctx, "upload status", http.MethodGet, "/upload/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearDocuments removes every loaded document on the service.
func (c *Client) ClearDocuments(ctx context.Context) (*ClearResponse, error) {
	var out ClearResponse
	if err := c.doJSON(ctx, "clear documents", http.MethodPost, "/clear", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

// doJSON sends an optional JSON body and decodes the response into out.
// A nil out discards the body after the status check.
func (c *Client) doJSON(ctx context.Context, op, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		reader = bytes.NewReader(body)
		contentType = "application/json"
	}

	resp, err := c.do(ctx, op, method, path, reader, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeResponse(op, resp, out)
}

// do builds and sends one request with the common headers.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: KindNetwork, Op: op, Message: "request throttled", Cause: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Message: "failed to create request", Cause: err}
	}

	requestID := uuid.NewString()
	req.Header.Set(HeaderSkipBrowserWarning, "true")
	req.Header.Set(HeaderRequestID, requestID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.auth != nil {
		if token := c.auth.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("API_REQUEST_FAILED",
			zap.String("op", op),
			zap.String("request_id", requestID),
			zap.Error(err))
		msg := "could not reach the RAG service"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "request timed out"
		} else if errors.Is(err, context.Canceled) {
			msg = "request canceled"
		}
		return nil, &Error{Kind: KindNetwork, Op: op, Message: msg, Cause: err}
	}

	c.log.Debug("API_REQUEST",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))
	return resp, nil
}

// decodeResponse maps non-2xx statuses to errors and decodes 2xx bodies.
func decodeResponse(op string, resp *http.Response, out interface{}) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if len(data) > 0 {
			_ = json.Unmarshal(data, &eb)
		}
		return statusError(op, resp.StatusCode, resp.Status, eb.Error)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindInvalidResponse, Op: op, Message: "failed to decode response", Cause: err}
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
