package llm

import (
	"testing"
)

func TestExtractItems(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantItems int
		wantErr   bool
	}{
		{
			name:      "plain envelope",
			raw:       `{"items": [{"title": "Login", "body": "As a user...", "criteria": ["works"]}]}`,
			wantItems: 1,
		},
		{
			name:      "bare array",
			raw:       `[{"title": "Login", "body": "As a user..."}, {"title": "Logout", "body": "..."}]`,
			wantItems: 2,
		},
		{
			name: "fenced with language tag",
			raw: "```json\n" +
				`{"items": [{"title": "A", "body": "B"}]}` +
				"\n```",
			wantItems: 1,
		},
		{
			name: "fenced without language tag",
			raw: "```\n" +
				`{"items": []}` +
				"\n```",
			wantItems: 0,
		},
		{
			name:      "prose around the JSON",
			raw:       `Sure! Here are the items: {"items": [{"title": "A", "body": "B"}]} Hope that helps.`,
			wantItems: 1,
		},
		{
			name:      "empty items",
			raw:       `{"items": []}`,
			wantItems: 0,
		},
		{
			name:    "no JSON at all",
			raw:     "I could not produce any items.",
			wantErr: true,
		},
		{
			name:    "truncated envelope",
			raw:     `{"items": [`,
			wantErr: true,
		},
		{
			name:    "malformed JSON",
			raw:     `{"items": [{"title": }]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := extractItems(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("extractItems(%q) expected error, got %d items", tt.raw, len(items))
				}
				return
			}
			if err != nil {
				t.Fatalf("extractItems(%q) unexpected error: %v", tt.raw, err)
			}
			if len(items) != tt.wantItems {
				t.Errorf("extractItems(%q) = %d items, want %d", tt.raw, len(items), tt.wantItems)
			}
		})
	}
}

func TestExtractItemsBodyAliases(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantBody string
	}{
		{
			name:     "body field",
			raw:      `{"items": [{"title": "A", "body": "from body"}]}`,
			wantBody: "from body",
		},
		{
			name:     "content field",
			raw:      `{"items": [{"title": "A", "content": "from content"}]}`,
			wantBody: "from content",
		},
		{
			name:     "action_item field",
			raw:      `{"items": [{"title": "A", "action_item": "from action item"}]}`,
			wantBody: "from action item",
		},
		{
			name:     "body wins over content",
			raw:      `{"items": [{"title": "A", "body": "b", "content": "c"}]}`,
			wantBody: "b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := extractItems(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(items) != 1 {
				t.Fatalf("got %d items, want 1", len(items))
			}
			if items[0].Body != tt.wantBody {
				t.Errorf("Body = %q, want %q", items[0].Body, tt.wantBody)
			}
		})
	}
}

func TestExtractItemsCriteriaNeverNil(t *testing.T) {
	items, err := extractItems(`{"items": [{"title": "A", "body": "B"}]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if items[0].Criteria == nil {
		t.Error("Criteria should be an empty slice, not nil")
	}
	if len(items[0].Criteria) != 0 {
		t.Errorf("Criteria = %v, want empty", items[0].Criteria)
	}
}
