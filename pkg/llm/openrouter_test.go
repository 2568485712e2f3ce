package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"finboard/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(&config.OpenRouterConfig{
		APIKey:    "or-key",
		Model:     "openai/gpt-4o-mini",
		BaseURL:   srv.URL + "/api/v1/",
		SiteURL:   "https://finboard.test",
		AppName:   "Finboard",
		MaxTokens: 256,
	}, zap.NewNop(), nil)
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(&config.OpenRouterConfig{}, zap.NewNop(), nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestComplete(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer or-key", r.Header.Get("Authorization"))
		assert.Equal(t, "https://finboard.test", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "Finboard", r.Header.Get("X-Title"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "openai/gpt-4o-mini", req["model"])
		assert.Len(t, req["messages"], 2)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"gen-1","model":"openai/gpt-4o-mini",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Spend less on coffee."},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":120,"completion_tokens":6,"total_tokens":126}
		}`))
	})

	out, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "You are a budgeting assistant."},
		{Role: RoleUser, Content: "How do I save?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Spend less on coffee.", out.Content)
	assert.Equal(t, 120, out.PromptTokens)
	assert.Equal(t, 6, out.CompletionTokens)
}

func TestCompleteRateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit","code":429}}`))
	})

	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func sseHandler(chunks ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: {\"model\":\"openai/gpt-4o-mini\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func TestStreamAccumulatesDeltas(t *testing.T) {
	c := newTestClient(t, sseHandler("You spent ", "$1,234.56", " on food."))

	var deltas []string
	out, err := c.Stream(context.Background(), []Message{{Role: RoleUser, Content: "food?"}}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"You spent ", "$1,234.56", " on food."}, deltas)
	assert.Equal(t, "You spent $1,234.56 on food.", out.Content)
	assert.Equal(t, "openai/gpt-4o-mini", out.Model)
}

func TestStreamCallbackErrorAborts(t *testing.T) {
	c := newTestClient(t, sseHandler("a", "b", "c"))
	stop := errors.New("client went away")

	calls := 0
	_, err := c.Stream(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, func(string) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestStreamEmpty(t *testing.T) {
	c := newTestClient(t, sseHandler())

	_, err := c.Stream(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, func(string) error { return nil })
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.True(t, strings.Contains(err.Error(), "no choices"))
}
