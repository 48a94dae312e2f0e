package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	ollamaEmbedTimeout  = 60 * time.Second
	ollamaHealthTimeout = 5 * time.Second
)

// OllamaClient embeds text through an Ollama server's /api/embed endpoint.
type OllamaClient struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
}

func NewOllamaClient(baseURL, model string, dim int) *OllamaClient {
	return &OllamaClient{
		baseURL: baseURL,
		model:   model,
		dim:     dim,
		client:  &http.Client{},
	}
}

// Dimensions returns the configured embedding size.
func (c *OllamaClient) Dimensions() int { return c.dim }

// Embed requests a single embedding. Each call carries its own deadline so
// a stalled model server cannot wedge the write path.
func (c *OllamaClient) Embed(text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(context.Background(), ollamaEmbedTimeout)
	defer cancel()

	payload, err := json.Marshal(struct {
		Model string `json:"model"`
		Input string `json:"input"`
	}{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama embed: status %d: %s", resp.StatusCode, msg)
	}

	var out struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(out.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings")
	}
	return out.Embeddings[0], nil
}

// HealthCheck verifies the server is reachable.
func (c *OllamaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), ollamaHealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health check: status %d", resp.StatusCode)
	}
	return nil
}
