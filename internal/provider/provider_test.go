package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/extraction-engine/internal/httputil"
	"github.com/pdiddy/extraction-engine/pkg/types"
)

func init() {
	// Keep the 429 backoff out of test runtime.
	httputil.RetryBaseDelay = time.Millisecond
}

func TestAnthropicInvoke(t *testing.T) {
	var gotReq anthropicRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(anthropicResponse{Content: []anthropicContent{
			{Type: "text", Text: `{"extractions": []}`},
		}})
	}))
	defer ts.Close()

	a := &Anthropic{APIKey: "test-key", Model: "test-model", BaseURL: ts.URL, Client: ts.Client()}
	out, err := a.Invoke(context.Background(), "extract things")
	require.NoError(t, err)
	assert.Equal(t, `{"extractions": []}`, out)
	assert.Equal(t, "test-model", gotReq.Model)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "extract things", gotReq.Messages[0].Content)
}

func TestAnthropicServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	a := &Anthropic{Model: "m", BaseURL: ts.URL, Client: ts.Client()}
	_, err := a.Invoke(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, IsTransient(err), "5xx must classify as transient")
}

func TestAnthropicClientError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad api key", http.StatusUnauthorized)
	}))
	defer ts.Close()

	a := &Anthropic{Model: "m", BaseURL: ts.URL, Client: ts.Client()}
	_, err := a.Invoke(context.Background(), "p")
	require.Error(t, err)
	assert.False(t, IsTransient(err), "4xx must not classify as transient")
}

func TestOpenAIInvoke(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "raw output"}},
			},
		})
	}))
	defer ts.Close()

	o := &OpenAI{APIKey: "sk-test", Model: "meta-llama/llama-3-70b", BaseURL: ts.URL, Client: ts.Client()}
	out, err := o.Invoke(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "raw output", out)
}

func TestOpenAINoChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer ts.Close()

	o := &OpenAI{Model: "m", BaseURL: ts.URL, Client: ts.Client()}
	_, err := o.Invoke(context.Background(), "p")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestNewSelectsBackend(t *testing.T) {
	tests := []struct {
		name     string
		cfg      types.ProviderConfig
		wantName string
		wantErr  bool
	}{
		{"explicit anthropic", types.ProviderConfig{Provider: types.ProviderAnthropic, Model: "claude"}, "anthropic", false},
		{"explicit openai", types.ProviderConfig{Provider: types.ProviderOpenAI, Model: "gpt"}, "openai", false},
		{"slash infers openai", types.ProviderConfig{Model: "meta-llama/llama-3-70b"}, "openai", false},
		{"plain name infers anthropic", types.ProviderConfig{Model: "claude-sonnet"}, "anthropic", false},
		{"unknown provider", types.ProviderConfig{Provider: "cohere", Model: "m"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				var cfgErr *types.ConfigError
				assert.ErrorAs(t, err, &cfgErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(context.Canceled))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(&Error{Transient: true}))
	assert.False(t, IsTransient(&Error{Transient: false}))
}
