package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// itemsEnvelope is the schema drivers instruct every backend to produce.
type itemsEnvelope struct {
	Items []rawItem `json:"items"`
}

// rawItem tolerates the body field name varying by use-case: "body",
// "content" or "action_item".
type rawItem struct {
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Content    string   `json:"content"`
	ActionItem string   `json:"action_item"`
	Criteria   []string `json:"criteria"`
}

func (r rawItem) toItem() Item {
	body := r.Body
	if body == "" {
		body = r.Content
	}
	if body == "" {
		body = r.ActionItem
	}
	criteria := r.Criteria
	if criteria == nil {
		criteria = []string{}
	}
	return Item{Title: r.Title, Body: body, Criteria: criteria}
}

var errNoJSON = errors.New("no JSON object or array in output")

// extractItems parses model output defensively. Backends without native
// schema-constrained output wrap JSON in code fences or prepend reasoning
// text; both are stripped before parsing. Accepted payloads are an
// {"items": [...]} envelope or a bare item array.
func extractItems(raw string) ([]Item, error) {
	text := stripFences(strings.TrimSpace(raw))

	payload, err := carveJSON(text)
	if err != nil {
		return nil, err
	}

	var envelope itemsEnvelope
	if strings.HasPrefix(payload, "{") {
		if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
			return nil, fmt.Errorf("decode items envelope: %w", err)
		}
	} else {
		if err := json.Unmarshal([]byte(payload), &envelope.Items); err != nil {
			return nil, fmt.Errorf("decode items array: %w", err)
		}
	}

	items := make([]Item, 0, len(envelope.Items))
	for _, r := range envelope.Items {
		items = append(items, r.toItem())
	}
	return items, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "JSON", ...).
		text = text[idx+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// carveJSON cuts the first balanced-looking JSON value out of surrounding
// prose: everything before the first '{' or '[' and after the matching
// last '}' or ']' is discarded.
func carveJSON(text string) (string, error) {
	objStart := strings.IndexByte(text, '{')
	arrStart := strings.IndexByte(text, '[')

	start := objStart
	open, closer := byte('{'), byte('}')
	if start < 0 || (arrStart >= 0 && arrStart < start) {
		start = arrStart
		open, closer = '[', ']'
	}
	if start < 0 {
		return "", errNoJSON
	}

	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return "", fmt.Errorf("unterminated JSON value starting with %q", string(open))
	}

	return text[start : end+1], nil
}
