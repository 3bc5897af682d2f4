package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"loom/internal/config"
	"loom/internal/domain"
)

// OllamaDriver generates structured items through a local Ollama server.
// It additionally exposes GetEmbedding, for deployments where the same
// provider serves both the generation and embedding roles.
type OllamaDriver struct {
	host       string
	model      string
	embedModel string
	dimension  int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaDriver creates a driver bound to the configured host and models.
func NewOllamaDriver(cfg *config.Config, logger *slog.Logger) *OllamaDriver {
	return &OllamaDriver{
		host:       strings.TrimRight(cfg.OllamaHost, "/"),
		model:      cfg.LLMModel,
		embedModel: cfg.EmbeddingModel,
		dimension:  cfg.EmbeddingDimension,
		httpClient: &http.Client{Timeout: cfg.LLMTimeout},
		logger:     logger,
	}
}

func (d *OllamaDriver) Name() string { return "ollama" }

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Format   string        `json:"format,omitempty"`
	Stream   bool          `json:"stream"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Call invokes POST /api/chat with streaming disabled and JSON format
// requested, then normalizes the response.
func (d *OllamaDriver) Call(ctx context.Context, systemPrompt, userPrompt string) (*Result, error) {
	reqBody := ollamaChatRequest{
		Model: d.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt + "\n\n" + schemaInstruction},
		},
		Format: "json",
		Stream: false,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := d.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d.logger.Warn("ollama call failed", "model", d.model, "error", err)
		return connectionFailure(err), nil
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(httpResp.Body, 2048))
		err := fmt.Errorf("status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(detail)))
		d.logger.Warn("ollama call rejected", "model", d.model, "error", err)
		return connectionFailure(err), nil
	}

	var resp ollamaChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return parseFailure(fmt.Errorf("decode chat response: %w", err)), nil
	}

	items, err := extractItems(resp.Message.Content)
	if err != nil {
		d.logger.Warn("ollama output was not parseable", "model", d.model, "error", err)
		return parseFailure(err), nil
	}

	return &Result{Status: StatusOK, Items: items}, nil
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// GetEmbedding embeds text via POST /api/embed, matching the embedding
// driver contract.
func (d *OllamaDriver) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &domain.EmptyEmbeddingError{Provider: d.Name()}
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: d.embedModel, Input: text})
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &domain.ProviderError{Provider: d.Name(), Op: "embed", Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(httpResp.Body, 2048))
		return nil, &domain.ProviderError{
			Provider: d.Name(),
			Op:       "embed",
			Err:      fmt.Errorf("status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(detail))),
		}
	}

	var resp ollamaEmbedResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, &domain.ProviderError{Provider: d.Name(), Op: "decode embed response", Err: err}
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, &domain.EmptyEmbeddingError{Provider: d.Name()}
	}

	vec := resp.Embeddings[0]
	if len(vec) != d.dimension {
		return nil, &domain.ProviderError{
			Provider: d.Name(),
			Op:       "embed",
			Err:      fmt.Errorf("expected %d dimensions, got %d", d.dimension, len(vec)),
		}
	}

	return vec, nil
}
