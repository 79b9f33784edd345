package llm

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
	Register("cohere", func(cfg config.LLMConfig) (Provider, error) { return newCohere(cfg) })
}

// cohereClient 适配 Cohere v2 /chat 接口。
type cohereClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

func newCohere(cfg config.LLMConfig) (*cohereClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cohere.com/v2"
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("cohere llm: model is required")
	}
	return &cohereClient{cfg: cfg, client: &http.Client{}}, nil
}

type cohereChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type cohereChatResponse struct {
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
}

func (c *cohereClient) Name() string { return "cohere" }

func (c *cohereClient) Generate(ctx context.Context, messages []Message, temperature float64, maxTokens int) (string, error) {
	reqBytes, err := json.Marshal(cohereChatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal cohere chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat", bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create cohere chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call cohere chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &resilience.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out cohereChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode cohere chat response: %w", err)
	}
	var sb strings.Builder
	for _, part := range out.Message.Content {
		if part.Type == "text" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}
