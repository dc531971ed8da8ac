// Package embeddings converts chunk and query text into fixed-dimension
// vectors via a remote embedding provider.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tripwell/policy-rag/pkg/models"
)

// Config holds embeddings client configuration.
type Config struct {
	BaseURL     string        // OpenAI-compatible API base, e.g. "http://localhost:11434/v1"
	APIKey      string        // optional bearer token
	Model       string        // model name (e.g. "nomic-embed-text")
	Timeout     time.Duration // per-request timeout
	Concurrency int           // max in-flight embedding calls during a batch
	MaxRetries  int           // attempts per item before it is dropped
	RetryDelay  time.Duration // base delay, grows linearly per attempt
}

// Client calls a remote embedding provider.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	concurrency int
	maxRetries  int
	retryDelay  time.Duration
}

// New creates a new embeddings client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 15
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 1 * time.Second
	}

	return &Client{
		httpClient:  &http.Client{Timeout: config.Timeout},
		baseURL:     strings.TrimSuffix(config.BaseURL, "/"),
		apiKey:      config.APIKey,
		model:       config.Model,
		concurrency: config.Concurrency,
		maxRetries:  config.MaxRetries,
		retryDelay:  config.RetryDelay,
	}, nil
}

// embeddingRequest is the request payload for the embeddings API.
type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embeddingResponse is the response from the embeddings API.
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// MaxInputChars limits input to stay within the provider's context window.
const MaxInputChars = 20000

// Embed generates an embedding vector for the given text with a single
// synchronous request. Text exceeding MaxInputChars is truncated.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if len(text) > MaxInputChars {
		text = text[:MaxInputChars]
	}

	req := embeddingRequest{Model: c.model, Input: text}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if embResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", embResp.Error.Message)
	}
	if len(embResp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	return embResp.Data[0].Embedding, nil
}

// Embedded pairs a chunk with its computed vector.
type Embedded struct {
	Chunk  models.Chunk
	Vector []float32
}

// EmbedBatch embeds every chunk with at most Concurrency calls in flight.
// Each item is retried with linear backoff before being dropped; a failed
// item never aborts its siblings. The returned slice preserves the input
// order of the surviving items.
func (c *Client) EmbedBatch(ctx context.Context, chunks []models.Chunk) []Embedded {
	results := make([]*Embedded, len(chunks))

	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)

	for i, chunk := range chunks {
		g.Go(func() error {
			vector, err := c.embedWithRetry(ctx, chunk.Text)
			if err != nil {
				slog.Warn("failed to embed chunk", "id", chunk.ID, "error", err)
				return nil
			}
			results[i] = &Embedded{Chunk: chunk, Vector: vector}
			return nil
		})
	}
	g.Wait()

	embedded := make([]Embedded, 0, len(chunks))
	for _, r := range results {
		if r != nil {
			embedded = append(embedded, *r)
		}
	}
	return embedded
}

// embedWithRetry attempts a single embedding up to maxRetries times with a
// linearly increasing delay between attempts.
func (c *Client) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		vector, err := c.Embed(ctx, text)
		if err == nil {
			return vector, nil
		}
		lastErr = err

		if attempt < c.maxRetries {
			slog.Debug("embedding attempt failed, retrying", "attempt", attempt, "error", err)
			select {
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("embedding failed after %d attempts: %w", c.maxRetries, lastErr)
}

// Dimensions returns the expected embedding dimensions for common models.
func Dimensions(model string) int {
	switch model {
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large":
		return 1024
	case "text-embedding-3-small":
		return 1536
	default:
		return 768 // default assumption
	}
}
