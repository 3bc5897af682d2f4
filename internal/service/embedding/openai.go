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

// OpenAIDriver embeds text through an OpenAI-compatible /v1/embeddings
// endpoint. It also serves self-hosted gateways that speak the same wire
// shape, selected via OPENAI_BASE_URL.
type OpenAIDriver struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIDriver creates a driver bound to the configured model and dimension.
func NewOpenAIDriver(cfg *config.Config, logger *slog.Logger) *OpenAIDriver {
	return &OpenAIDriver{
		baseURL:    strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		apiKey:     cfg.OpenAIAPIKey,
		model:      cfg.EmbeddingModel,
		dimension:  cfg.EmbeddingDimension,
		httpClient: &http.Client{Timeout: cfg.EmbedTimeout},
		logger:     logger,
	}
}

func (d *OpenAIDriver) Name() string { return "openai" }

func (d *OpenAIDriver) Dimension() int { return d.dimension }

type openaiEmbeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiEmbeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// GetEmbedding embeds text via POST /v1/embeddings.
func (d *OpenAIDriver) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &domain.EmptyEmbeddingError{Provider: d.Name()}
	}

	body, err := json.Marshal(openaiEmbeddingsRequest{
		Model: d.model,
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("encode embeddings request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	httpResp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &domain.ProviderError{Provider: d.Name(), Op: "embeddings", Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(httpResp.Body, 2048))
		return nil, &domain.ProviderError{
			Provider: d.Name(),
			Op:       "embeddings",
			Err:      fmt.Errorf("status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(detail))),
		}
	}

	var resp openaiEmbeddingsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, &domain.ProviderError{Provider: d.Name(), Op: "decode embeddings response", Err: err}
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &domain.EmptyEmbeddingError{Provider: d.Name()}
	}

	raw := resp.Data[0].Embedding
	if len(raw) != d.dimension {
		return nil, &domain.ProviderError{
			Provider: d.Name(),
			Op:       "embeddings",
			Err:      fmt.Errorf("expected %d dimensions, got %d", d.dimension, len(raw)),
		}
	}

	vec := make([]float32, len(raw))
	for i, f := range raw {
		vec[i] = float32(f)
	}

	return vec, nil
}
