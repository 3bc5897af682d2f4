package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"loom/internal/config"
)

// AnthropicDriver generates structured items through the Anthropic
// Messages API. Claude has no schema-constrained output mode, so the
// driver relies on the shared JSON extraction.
type AnthropicDriver struct {
	client *anthropic.Client
	model  string
	logger *slog.Logger
}

// NewAnthropicDriver creates a driver with the configured API key and model.
func NewAnthropicDriver(cfg *config.Config, logger *slog.Logger) (*AnthropicDriver, error) {
	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))

	return &AnthropicDriver{
		client: &client,
		model:  cfg.LLMModel,
		logger: logger,
	}, nil
}

func (d *AnthropicDriver) Name() string { return "anthropic" }

// Call invokes the Messages API and normalizes the response.
func (d *AnthropicDriver) Call(ctx context.Context, systemPrompt, userPrompt string) (*Result, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(d.model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt + "\n\n" + schemaInstruction)),
		},
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: systemPrompt},
		},
	}

	message, err := d.client.Messages.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d.logger.Warn("anthropic call failed", "model", d.model, "error", err)
		return connectionFailure(err), nil
	}

	var text strings.Builder
	for _, content := range message.Content {
		if content.Type == "text" {
			text.WriteString(content.Text)
		}
	}

	items, err := extractItems(text.String())
	if err != nil {
		d.logger.Warn("anthropic output was not parseable", "model", d.model, "error", err)
		return parseFailure(err), nil
	}

	return &Result{Status: StatusOK, Items: items}, nil
}

// schemaInstruction pins every backend to the shared output contract.
const schemaInstruction = `Respond with JSON only, no prose, matching exactly:
{"items": [{"title": "...", "body": "...", "criteria": ["..."]}]}`
