// Package llm wraps the Anthropic Messages API with tool use and retry.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"ikpa/internal/apperr"
)

const (
	DefaultBaseURL    = "https://api.anthropic.com"
	DefaultModel      = "claude-3-5-sonnet-latest"
	DefaultMaxRetries = 3
	DefaultMaxTokens  = 1024

	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Messenger sends one Messages API request.
type Messenger interface {
	CreateMessage(ctx context.Context, req Request) (*Response, error)
}

type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
	MaxTokens  int
	Timeout    time.Duration
}

// APIError is a non-success response from the API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("anthropic: %d %s: %s", e.StatusCode, e.Type, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client retries on top of the SDK, whose own retries are disabled so the
// backoff schedule and Retry-After handling stay in one place.
type Client struct {
	cfg      Config
	messages anthropic.MessageService
	sleep    func(ctx context.Context, d time.Duration) error
}

var _ Messenger = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/"

	sdk := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	)
	return &Client{
		cfg:      cfg,
		messages: sdk.Messages,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff returns the wait before retry number attempt (0-based).
func Backoff(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return min(retryAfter, maxBackoff)
	}
	d := initialBackoff << attempt
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}

// CreateMessage sends req, retrying 429, 5xx and transport failures. When
// retries run out it returns an AIServiceUnavailable error.
func (c *Client) CreateMessage(ctx context.Context, req Request) (*Response, error) {
	if req.Model == "" {
		req.Model = c.cfg.Model
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.cfg.MaxTokens
	}
	params, err := toParams(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			var retryAfter time.Duration
			var apiErr *APIError
			if errors.As(lastErr, &apiErr) {
				retryAfter = apiErr.RetryAfter
			}
			wait := Backoff(attempt-1, retryAfter)
			slog.WarnContext(ctx, "Retrying LLM request",
				"component", "llm",
				"attempt", attempt,
				"wait", wait.String(),
				"error", lastErr)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		resp, err := c.send(ctx, params)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return nil, err
		}
		lastErr = err
	}

	slog.ErrorContext(ctx, "LLM retries exhausted",
		"component", "llm",
		"retries", c.cfg.MaxRetries,
		"error", lastErr)
	return nil, apperr.AIServiceUnavailable().Wrap(lastErr)
}

func (c *Client) send(ctx context.Context, params anthropic.MessageNewParams) (*Response, error) {
	msg, err := c.messages.New(ctx, params)
	if err != nil {
		return nil, apiError(err)
	}
	return fromMessage(msg)
}

// apiError turns an SDK status error into an APIError. Anything else is a
// transport failure.
func apiError(err error) error {
	var sdkErr *anthropic.Error
	if !errors.As(err, &sdkErr) {
		return fmt.Errorf("send request: %w", err)
	}

	out := &APIError{StatusCode: sdkErr.StatusCode, Err: err}
	if sdkErr.Response != nil {
		out.RetryAfter = parseRetryAfter(sdkErr.Response.Header.Get("Retry-After"), time.Now())
	}
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(sdkErr.RawJSON()), &envelope) == nil {
		out.Type = envelope.Error.Type
		out.Message = envelope.Error.Message
	}
	if out.Message == "" {
		out.Message = http.StatusText(sdkErr.StatusCode)
	}
	return out
}

func toParams(req Request) (anthropic.MessageNewParams, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  make([]anthropic.MessageParam, 0, len(req.Messages)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	for i, m := range req.Messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Type {
			case BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case BlockToolUse:
				input := b.Input
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{ID: b.ID, Name: b.Name, Input: input},
				})
			case BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			default:
				return params, fmt.Errorf("message %d: unsupported content block %q", i, b.Type)
			}
		}
		switch m.Role {
		case RoleUser:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(blocks...))
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(blocks...))
		default:
			return params, fmt.Errorf("message %d: unsupported role %q", i, m.Role)
		}
	}

	for _, t := range req.Tools {
		var schema struct {
			Properties any      `json:"properties"`
			Required   []string `json:"required"`
		}
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
				return params, fmt.Errorf("tool %s: decode input schema: %w", t.Name, err)
			}
		}
		tool := anthropic.ToolParam{
			Name: t.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema.Properties,
				Required:   schema.Required,
			},
		}
		if t.Description != "" {
			tool.Description = anthropic.String(t.Description)
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return params, nil
}

func fromMessage(msg *anthropic.Message) (*Response, error) {
	out := &Response{
		ID:         msg.ID,
		Model:      string(msg.Model),
		Role:       RoleAssistant,
		StopReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	for _, b := range msg.Content {
		switch b.Type {
		case BlockText:
			out.Content = append(out.Content, TextBlock(b.Text))
		case BlockToolUse:
			input, err := json.Marshal(b.Input)
			if err != nil {
				return nil, fmt.Errorf("decode tool input for %s: %w", b.Name, err)
			}
			out.Content = append(out.Content, ContentBlock{Type: BlockToolUse, ID: b.ID, Name: b.Name, Input: input})
		}
	}
	return out, nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
