// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package completion calls the remote completion service (the Claude
// Messages API) and classifies every failure as a transport, service or
// malformed-response error. It never retries; retry policy belongs to the
// caller.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pdiddy/statement-review/internal/httputil"
	"github.com/pdiddy/statement-review/pkg/types"
)

const (
	DefaultBaseURL    = "https://api.anthropic.com"
	DefaultAPIVersion = "2023-06-01"
	DefaultMaxTokens  = 4000
	DefaultTimeout    = 5 * time.Minute

	// reviewTemperature is sent with every call; reviews are deterministic.
	reviewTemperature = 0.0

	messagesPath = "/v1/messages"

	// errorBodyLimit caps how much of a rejected response is read for the
	// diagnostic message.
	errorBodyLimit = 4096
)

// Client sends single review requests to the completion service. It is safe
// for concurrent use; its configuration is read-only after New.
type Client struct {
	endpoint   string
	apiKey     string
	apiVersion string
	maxTokens  int
	timeout    time.Duration
	http       *http.Client
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, e.g. with an httptest server client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for per-call debug lines.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New validates cfg and returns a Client. The credential must be supplied in
// cfg; New never reads the environment. A missing key, a negative token
// ceiling or an invalid base URL is reported as ErrConfiguration before any
// request is issued. Zero max tokens selects DefaultMaxTokens.
func New(cfg types.CompletionConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrConfiguration)
	}
	if cfg.MaxTokens < 0 {
		return nil, fmt.Errorf("%w: max tokens must not be negative, got %d", ErrConfiguration, cfg.MaxTokens)
	}

	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid base URL %q", ErrConfiguration, base)
	}

	c := &Client{
		endpoint:   strings.TrimRight(base, "/") + messagesPath,
		apiKey:     cfg.APIKey,
		apiVersion: cfg.APIVersion,
		maxTokens:  cfg.MaxTokens,
		timeout:    cfg.Timeout,
		logger:     slog.Default(),
	}
	if c.apiVersion == "" {
		c.apiVersion = DefaultAPIVersion
	}
	if c.maxTokens == 0 {
		c.maxTokens = DefaultMaxTokens
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httputil.NewClient(cfg.HTTPConfig)
	}
	return c, nil
}

// messagesRequest is the request body for the Messages API.
type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	System      string    `json:"system"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesResponse is the part of the response body the client reads.
// Text is a pointer so a block without a text field is distinguishable from
// an empty completion.
type messagesResponse struct {
	Content []struct {
		Type string  `json:"type"`
		Text *string `json:"text"`
	} `json:"content"`
}

// errorResponse is the service's error envelope.
type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// SystemPrompt renders the system instruction for a role and goal.
func SystemPrompt(role, goal string) string {
	return fmt.Sprintf("You are a %s, your goal is to %s.", role, goal)
}

// UserContent renders the single user message carrying the task.
func UserContent(task string) string {
	return "here is the task: " + task
}

// Complete issues exactly one request for req and returns the generated
// text, whitespace-trimmed. Failures are returned as *Error.
func (c *Client) Complete(ctx context.Context, req types.ReviewRequest) (string, error) {
	body, err := json.Marshal(messagesRequest{
		Model:       req.Model,
		MaxTokens:   c.maxTokens,
		Temperature: reviewTemperature,
		System:      SystemPrompt(req.Role, req.Goal),
		Messages:    []message{{Role: "user", Content: UserContent(req.Task)}},
	})
	if err != nil {
		return "", transportErr(req.Model, fmt.Errorf("marshaling request: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", transportErr(req.Model, fmt.Errorf("creating request: %w", err))
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", c.apiVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", transportErr(req.Model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return "", &Error{
			Kind:       KindService,
			Model:      req.Model,
			StatusCode: resp.StatusCode,
			Msg:        serviceMessage(data),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportErr(req.Model, fmt.Errorf("reading response: %w", err))
	}

	text, err := firstText(data)
	if err != nil {
		return "", &Error{Kind: KindMalformed, Model: req.Model, Err: err}
	}

	c.logger.DebugContext(ctx, "completion returned",
		"persona", req.Persona,
		"model", req.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"chars", len(text))
	return text, nil
}

// firstText extracts content[0].text from a response body.
func firstText(data []byte) (string, error) {
	var mr messagesResponse
	if err := json.Unmarshal(data, &mr); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(mr.Content) == 0 {
		return "", fmt.Errorf("response has no content blocks")
	}
	if mr.Content[0].Text == nil {
		return "", fmt.Errorf("first content block (type %q) has no text", mr.Content[0].Type)
	}
	return strings.TrimSpace(*mr.Content[0].Text), nil
}

// serviceMessage returns the error message from the service's envelope, or
// the raw body when it is not the envelope.
func serviceMessage(data []byte) string {
	var er errorResponse
	if err := json.Unmarshal(data, &er); err == nil && er.Error.Message != "" {
		if er.Error.Type != "" {
			return er.Error.Type + ": " + er.Error.Message
		}
		return er.Error.Message
	}
	return strings.TrimSpace(string(data))
}
