package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"ragpipe/internal/adapter/gemini"
	"ragpipe/internal/llm"
)

func newClient(t *testing.T, handler http.HandlerFunc) *gemini.Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c, err := gemini.NewClient(context.Background(), "test-key", "gemini-embedding-001", "gemini-2.5-flash",
		option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Embed(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Contains(t, r.URL.Path, "gemini-embedding-001:embedContent")
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"embedding": map[string]interface{}{
					"values": []float32{0.1, 0.2, 0.3},
				},
			})
		})

		vec, err := c.Embed(context.Background(), "hello world")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	})

	t.Run("Empty embedding", func(t *testing.T) {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"embedding": {"values": []}}`))
		})

		_, err := c.Embed(context.Background(), "hello")
		assert.ErrorIs(t, err, gemini.ErrEmptyResponse)
	})

	t.Run("Server error", func(t *testing.T) {
		c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error": {"code": 500, "message": "backend unavailable"}}`))
		})

		_, err := c.Embed(context.Background(), "hello")
		assert.Error(t, err)
	})
}

func TestClient_Complete(t *testing.T) {
	var body map[string]interface{}
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-2.5-flash:generateContent"), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []interface{}{
				map[string]interface{}{
					"content": map[string]interface{}{
						"role":  "model",
						"parts": []interface{}{map[string]interface{}{"text": "The population is 8.2 billion [1]."}},
					},
					"finishReason": "STOP",
				},
			},
		})
	})

	out, err := c.Complete(context.Background(), "What is the population?", llm.Options{
		Temperature:     0,
		MaxOutputTokens: 256,
		System:          "Use only the context.",
	})
	require.NoError(t, err)
	assert.Equal(t, "The population is 8.2 billion [1].", out)

	cfg := body["generationConfig"].(map[string]interface{})
	assert.EqualValues(t, 256, cfg["maxOutputTokens"])
	assert.Contains(t, body, "systemInstruction")
}

func TestClient_Complete_NoCandidates(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates": []}`))
	})

	_, err := c.Complete(context.Background(), "q", llm.Options{})
	assert.ErrorIs(t, err, gemini.ErrEmptyResponse)
}
