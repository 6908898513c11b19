package llmprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompleteParsesResponseAndTokenUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "test-model", req.Model)

		json.NewEncoder(w).Encode(generateResponse{
			Response:        "hello",
			Done:            true,
			PromptEvalCount: 10,
			EvalCount:       5,
		})
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	c := NewClient(cfg)

	result, err := c.Complete(context.Background(), "hi", SamplingParams{Model: "test-model"})
	require.NoError(t, err)
	require.Equal(t, "hello", result.Text)
	require.Equal(t, 10, result.Usage.PromptTokens)
	require.Equal(t, 5, result.Usage.CompletionTokens)
	require.Equal(t, 15, result.Usage.TotalTokens)
}

func TestCompleteSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	c := NewClient(cfg)

	_, err := c.Complete(context.Background(), "hi", SamplingParams{})
	require.Error(t, err)
}
