package embedding

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

// OllamaDriver embeds text through a local Ollama server. Same driver
// contract as the OpenAI variant behind a different endpoint and payload
// shape.
type OllamaDriver struct {
	host       string
	model      string
	dimension  int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaDriver creates a driver bound to the configured model and dimension.
func NewOllamaDriver(cfg *config.Config, logger *slog.Logger) *OllamaDriver {
	return &OllamaDriver{
		host:       strings.TrimRight(cfg.OllamaHost, "/"),
		model:      cfg.EmbeddingModel,
		dimension:  cfg.EmbeddingDimension,
		httpClient: &http.Client{Timeout: cfg.EmbedTimeout},
		logger:     logger,
	}
}

func (d *OllamaDriver) Name() string { return "ollama" }

func (d *OllamaDriver) Dimension() int { return d.dimension }

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// GetEmbedding embeds text via POST /api/embed.
func (d *OllamaDriver) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &domain.EmptyEmbeddingError{Provider: d.Name()}
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: d.model, Input: text})
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
