// Package llm provides a minimal messages-API client for the model provider
// used by the analysis and modernization agents. The engine never touches
// this package; agents inject the client so tests can substitute a mock.
package llm

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
	"time"
)

// DefaultBaseURL is the provider messages endpoint.
const DefaultBaseURL = "https://api.anthropic.com/v1/messages"

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-20250514"

const (
	defaultMaxTokens = 8192
	defaultTimeout   = 120 * time.Second
	apiVersion       = "2023-06-01"
)

// Exported sentinel errors. ErrRateLimited and ErrServerError mark transient
// failures worth retrying; ErrBadResponse marks a malformed reply.
var (
	ErrMissingAPIKey = errors.New("llm: api key not configured")
	ErrRateLimited   = errors.New("llm: rate limited")
	ErrServerError   = errors.New("llm: server error")
	ErrBadResponse   = errors.New("llm: unexpected response")
)

// Request is one completion request.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Client issues completion requests. Implementations must be safe for
// concurrent use; the scheduler calls ProcessFuncs from multiple goroutines.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Config holds the provider connection settings.
type Config struct {
	APIKey    string        `mapstructure:"apiKey"`
	Model     string        `mapstructure:"model"`
	BaseURL   string        `mapstructure:"baseUrl"`
	MaxTokens int           `mapstructure:"maxTokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// HTTPClient is the production Client over the provider's messages API.
type HTTPClient struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewHTTPClient builds a client; the API key is the only required setting.
func NewHTTPClient(cfg Config, loggerHandler slog.Handler) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &HTTPClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: slog.New(loggerHandler).With(slog.String("component", "llm")),
	}, nil
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []apiMessage `json:"messages"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one prompt and returns the concatenated text blocks of the
// reply. Transient provider failures are wrapped in ErrRateLimited or
// ErrServerError so callers can distinguish them with errors.Is.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	body, err := json.Marshal(apiRequest{
		Model:     c.cfg.Model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  []apiMessage{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("llm: encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("llm: reading response: %w", err)
	}
	c.logger.Debug("Completion request finished",
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: %s", ErrRateLimited, summarizeAPIError(respBody))
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: status %d: %s", ErrServerError, resp.StatusCode, summarizeAPIError(respBody))
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, summarizeAPIError(respBody))
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: reply contained no text blocks", ErrBadResponse)
	}
	return sb.String(), nil
}

func summarizeAPIError(body []byte) string {
	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil {
		return parsed.Error.Message
	}
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
