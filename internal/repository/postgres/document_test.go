package postgres

import (
	"testing"

	"loom/internal/domain/models"
)

func scoredDoc(id string, similarity float64) models.ScoredDocument {
	return models.ScoredDocument{Document: models.Document{ID: id}, Similarity: similarity}
}

func TestFilterByFloor(t *testing.T) {
	tests := []struct {
		name    string
		results []models.ScoredDocument
		floor   float64
		wantIDs []string
	}{
		{
			name:    "weak best match yields empty result",
			results: []models.ScoredDocument{scoredDoc("d1", 0.40)},
			floor:   0.45,
			wantIDs: nil,
		},
		{
			name: "truncates at first row under the floor",
			results: []models.ScoredDocument{
				scoredDoc("d1", 0.90),
				scoredDoc("d2", 0.46),
				scoredDoc("d3", 0.44),
				scoredDoc("d4", 0.10),
			},
			floor:   0.45,
			wantIDs: []string{"d1", "d2"},
		},
		{
			name: "zero floor keeps everything",
			results: []models.ScoredDocument{
				scoredDoc("d1", 0.90),
				scoredDoc("d2", -0.20),
			},
			floor:   0,
			wantIDs: []string{"d1", "d2"},
		},
		{
			name:    "all above the floor",
			results: []models.ScoredDocument{scoredDoc("d1", 0.80), scoredDoc("d2", 0.50)},
			floor:   0.45,
			wantIDs: []string{"d1", "d2"},
		},
		{
			name:    "empty input",
			results: nil,
			floor:   0.45,
			wantIDs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterByFloor(tt.results, tt.floor)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("results = %d, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].Document.ID != id {
					t.Errorf("result[%d] = %s, want %s", i, got[i].Document.ID, id)
				}
			}
		})
	}
}
