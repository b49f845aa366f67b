package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(Config{
		APIKey:  "test-key",
		Model:   "test-model",
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestNewHTTPClientRequiresAPIKey(t *testing.T) {
	_, err := NewHTTPClient(Config{}, nil)
	require.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestCompleteSuccess(t *testing.T) {
	var got apiRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "hello "},
				{"type": "text", "text": "world"},
			},
		})
	})

	out, err := c.Complete(context.Background(), Request{System: "sys", Prompt: "hi", MaxTokens: 42})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, "sys", got.System)
	assert.Equal(t, 42, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "hi", got.Messages[0].Content)
}

func TestCompleteRateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	})
	_, err := c.Complete(context.Background(), Request{Prompt: "hi"})
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, err.Error(), "slow down")
}

func TestCompleteServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.Complete(context.Background(), Request{Prompt: "hi"})
	require.ErrorIs(t, err, ErrServerError)
}

func TestCompleteBadStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad model"}}`))
	})
	_, err := c.Complete(context.Background(), Request{Prompt: "hi"})
	require.ErrorIs(t, err, ErrBadResponse)
}

func TestCompleteEmptyReply(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	})
	_, err := c.Complete(context.Background(), Request{Prompt: "hi"})
	require.ErrorIs(t, err, ErrBadResponse)
}

func TestCompleteContextCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Complete(ctx, Request{Prompt: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}
