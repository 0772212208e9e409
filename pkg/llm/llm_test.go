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

func TestGenerateRoundTrip(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "generated text"}},
			},
		})
	}))
	defer srv.Close()

	gen, err := NewHTTPGenerator(HTTPConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-test"}, nil)
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), Request{Prompt: "say hi", MaxTokens: 32})
	require.NoError(t, err)
	assert.Equal(t, "generated text", out)

	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-test", gotBody["model"])
	assert.Equal(t, 32.0, gotBody["max_tokens"])

	messages := gotBody["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "say hi", messages[0].(map[string]any)["content"])
}

func TestGenerateRequestModelOverridesDefault(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel, _ = body["model"].(string)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "x"}}},
		})
	}))
	defer srv.Close()

	gen, err := NewHTTPGenerator(HTTPConfig{BaseURL: srv.URL, Model: "default-model"}, nil)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), Request{Prompt: "p", Model: "special-model"})
	require.NoError(t, err)
	assert.Equal(t, "special-model", gotModel)
}

func TestGenerateErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	gen, err := NewHTTPGenerator(HTTPConfig{BaseURL: srv.URL, Model: "m"}, nil)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestGenerateNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	gen, err := NewHTTPGenerator(HTTPConfig{BaseURL: srv.URL, Model: "m"}, nil)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestGenerateRequiresModel(t *testing.T) {
	gen, err := NewHTTPGenerator(HTTPConfig{BaseURL: "http://localhost:0"}, nil)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model")
}

func TestGenerateHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	gen, err := NewHTTPGenerator(HTTPConfig{BaseURL: srv.URL, Model: "m"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = gen.Generate(ctx, Request{Prompt: "p"})
	require.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	_, err := NewHTTPGenerator(HTTPConfig{}, nil)
	require.Error(t, err)

	cfg := HTTPConfig{BaseURL: "http://x"}
	cfg.ApplyDefaults()
	assert.Equal(t, 60*time.Second, cfg.Timeout)
}
