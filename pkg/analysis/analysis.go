// Package analysis talks to an optional text-analysis service used to fill
// in page descriptions.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	defaultMaxInput   = 4000
	defaultMaxTokens  = 120
	defaultConcurrent = 3
)

var ErrNoChoices = errors.New("analysis: empty choices in response")

type Document struct {
	URL   string
	Title string
	Text  string
}

// Summarizer produces a short description of a document.
type Summarizer interface {
	Summarize(ctx context.Context, doc Document) (string, error)
}

type Config struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// LMStudio is a client for an OpenAI-compatible chat completions endpoint.
type LMStudio struct {
	baseURL string
	model   string
	client  *http.Client
	slots   *semaphore.Weighted
}

var endpointSuffix = regexp.MustCompile(`/(chat/completions|completions|models)$`)

func NewLMStudio(cfg Config) *LMStudio {
	base := strings.TrimRight(cfg.Endpoint, "/")
	base = endpointSuffix.ReplaceAllString(base, "")
	base = strings.TrimSuffix(base, "/v1") + "/v1"

	model := cfg.Model
	if model == "" {
		model = "local-model"
	}

	return &LMStudio{
		baseURL: base,
		model:   model,
		client:  &http.Client{Timeout: cfg.Timeout},
		slots:   semaphore.NewWeighted(defaultConcurrent),
	}
}

func (c *LMStudio) BaseURL() string {
	return c.baseURL
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *LMStudio) Summarize(ctx context.Context, doc Document) (string, error) {
	if err := c.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.slots.Release(1)

	text := doc.Text
	if len(text) > defaultMaxInput {
		text = text[:defaultMaxInput]
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "Summarize the web page in one or two plain sentences. Reply with the summary only."},
			{Role: "user", Content: fmt.Sprintf("URL: %s\nTitle: %s\n\n%s", doc.URL, doc.Title, text)},
		},
		Temperature: 0.2,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("analysis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", fmt.Errorf("analysis request: unexpected status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode analysis response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrNoChoices
	}

	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
