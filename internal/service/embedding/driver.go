// Package embedding provides text-to-vector drivers over external
// providers. Driver selection is process-wide configuration resolved at
// startup; there is no per-call override.
package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"loom/internal/config"
)

// Driver converts text into a fixed-dimension vector via an external
// provider. GetEmbedding is a slow, fallible network call: callers own the
// timeout and retry policy, the driver never retries.
type Driver interface {
	// Name identifies the provider for logs and error values.
	Name() string

	// Dimension is the fixed length of every vector this driver returns.
	Dimension() int

	// GetEmbedding embeds non-empty text. Provider failures surface as
	// *domain.ProviderError, a response with no values as
	// *domain.EmptyEmbeddingError. It never returns a partial vector.
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// SetupDriver builds the configured embedding driver.
func SetupDriver(cfg *config.Config, logger *slog.Logger) (Driver, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		return NewOpenAIDriver(cfg, logger), nil
	case "ollama":
		return NewOllamaDriver(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}
