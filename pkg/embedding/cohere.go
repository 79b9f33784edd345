package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"lite-rag-go/internal/config"
	"lite-rag-go/pkg/resilience"
)

func init() {
	Register("cohere", func(cfg config.EmbeddingConfig) (Client, error) { return newCohere(cfg) })
}

// cohereClient 调用 Cohere v2 /embed 接口。
type cohereClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

func newCohere(cfg config.EmbeddingConfig) (*cohereClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cohere.com/v2"
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("cohere embedding: model is required")
	}
	return &cohereClient{cfg: cfg, client: &http.Client{}}, nil
}

type cohereEmbedRequest struct {
	Model          string   `json:"model"`
	Texts          []string `json:"texts"`
	InputType      string   `json:"input_type"`
	EmbeddingTypes []string `json:"embedding_types"`
}

type cohereEmbedResponse struct {
	Embeddings struct {
		Float [][]float32 `json:"float"`
	} `json:"embeddings"`
}

func (c *cohereClient) Name() string   { return "cohere" }
func (c *cohereClient) Dimension() int { return c.cfg.Dimensions }

func (c *cohereClient) Embed(ctx context.Context, texts []string, inputType InputType) ([][]float32, error) {
	it := "search_document"
	if inputType == InputQuery {
		it = "search_query"
	}
	reqBytes, err := json.Marshal(cohereEmbedRequest{
		Model:          c.cfg.Model,
		Texts:          texts,
		InputType:      it,
		EmbeddingTypes: []string{"float"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cohere embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/embed", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create cohere embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call cohere embed api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &resilience.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out cohereEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode cohere embed response: %w", err)
	}
	return out.Embeddings.Float, nil
}
