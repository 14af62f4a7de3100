package analysis_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devraulu/sitescout/pkg/analysis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLMStudioNormalizesEndpoint(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"http://localhost:1234",
		"http://localhost:1234/",
		"http://localhost:1234/v1",
		"http://localhost:1234/v1/chat/completions",
		"http://localhost:1234/v1/models",
	} {
		c := analysis.NewLMStudio(analysis.Config{Endpoint: in})
		assert.Equal(t, "http://localhost:1234/v1", c.BaseURL(), in)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Contains(t, req.Messages[1].Content, "Page Title")
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  A short summary. "}}]}`))
	}))
	defer srv.Close()

	c := analysis.NewLMStudio(analysis.Config{Endpoint: srv.URL, Model: "test-model", Timeout: time.Second})
	got, err := c.Summarize(context.Background(), analysis.Document{URL: "https://a.com", Title: "Page Title", Text: "body"})
	require.NoError(t, err)
	assert.Equal(t, "A short summary.", got)
}

func TestSummarizeEmptyChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := analysis.NewLMStudio(analysis.Config{Endpoint: srv.URL, Timeout: time.Second})
	_, err := c.Summarize(context.Background(), analysis.Document{})
	assert.ErrorIs(t, err, analysis.ErrNoChoices)
}

func TestSummarizeServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := analysis.NewLMStudio(analysis.Config{Endpoint: srv.URL, Timeout: time.Second})
	_, err := c.Summarize(context.Background(), analysis.Document{})
	assert.Error(t, err)
}
