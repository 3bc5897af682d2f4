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
)

// OpenAIDriver generates structured items through an OpenAI-compatible
// /v1/chat/completions endpoint, using JSON response mode where the
// backend honors it and fenced-JSON extraction where it does not.
type OpenAIDriver struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIDriver creates a driver bound to the configured endpoint and model.
func NewOpenAIDriver(cfg *config.Config, logger *slog.Logger) *OpenAIDriver {
	return &OpenAIDriver{
		baseURL:    strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		apiKey:     cfg.OpenAIAPIKey,
		model:      cfg.LLMModel,
		httpClient: &http.Client{Timeout: cfg.LLMTimeout},
		logger:     logger,
	}
}

func (d *OpenAIDriver) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Call invokes the chat completions API and normalizes the response.
func (d *OpenAIDriver) Call(ctx context.Context, systemPrompt, userPrompt string) (*Result, error) {
	reqBody := chatCompletionsRequest{
		Model: d.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt + "\n\n" + schemaInstruction},
		},
		ResponseFormat: &struct {
			Type string `json:"type"`
		}{Type: "json_object"},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	httpResp, err := d.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d.logger.Warn("openai call failed", "model", d.model, "error", err)
		return connectionFailure(err), nil
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(httpResp.Body, 2048))
		err := fmt.Errorf("status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(detail)))
		d.logger.Warn("openai call rejected", "model", d.model, "error", err)
		return connectionFailure(err), nil
	}

	var resp chatCompletionsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return parseFailure(fmt.Errorf("decode chat response: %w", err)), nil
	}

	if len(resp.Choices) == 0 {
		return parseFailure(fmt.Errorf("chat response contained no choices")), nil
	}

	items, err := extractItems(resp.Choices[0].Message.Content)
	if err != nil {
		d.logger.Warn("openai output was not parseable", "model", d.model, "error", err)
		return parseFailure(err), nil
	}

	return &Result{Status: StatusOK, Items: items}, nil
}
