// Package llm provides structured-generation drivers over external LLM
// providers. All backends are normalized to one output contract: a flat
// list of {title, body, criteria} items, with provider failures folded
// into the result value instead of crossing the boundary as errors.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"loom/internal/config"
)

// Result statuses and error kinds.
const (
	StatusOK    = "ok"
	StatusError = "error"

	ErrorTypeConnection = "connection"
	ErrorTypeJSONParse  = "json_parse"
)

// Item is one generated deliverable.
type Item struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Criteria []string `json:"criteria"`
}

// Result is the normalized outcome of one generation call. Error results
// always carry a human-readable Message and an empty item list, so callers
// can treat the value uniformly.
type Result struct {
	Status    string `json:"status"`
	ErrorType string `json:"error_type,omitempty"`
	Message   string `json:"message,omitempty"`
	Items     []Item `json:"items"`
}

// OK reports whether the call produced usable output.
func (r *Result) OK() bool { return r.Status == StatusOK }

func connectionFailure(err error) *Result {
	return &Result{
		Status:    StatusError,
		ErrorType: ErrorTypeConnection,
		Message:   err.Error(),
		Items:     []Item{},
	}
}

func parseFailure(err error) *Result {
	return &Result{
		Status:    StatusError,
		ErrorType: ErrorTypeJSONParse,
		Message:   err.Error(),
		Items:     []Item{},
	}
}

// Driver turns a (system prompt, user prompt) pair into structured items.
type Driver interface {
	// Name identifies the provider for logs and error values.
	Name() string

	// Call invokes the backend. Provider and parse failures come back as
	// an error-status Result, never as a returned error; the error return
	// is reserved for context cancellation and request-building faults.
	Call(ctx context.Context, systemPrompt, userPrompt string) (*Result, error)
}

// SetupDriver builds the configured LLM driver.
func SetupDriver(cfg *config.Config, logger *slog.Logger) (Driver, error) {
	switch cfg.LLMProvider {
	case "anthropic":
		return NewAnthropicDriver(cfg, logger)
	case "openai":
		return NewOpenAIDriver(cfg, logger), nil
	case "ollama":
		return NewOllamaDriver(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}
