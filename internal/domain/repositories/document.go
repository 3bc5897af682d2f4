package repositories

import (
	"context"
	"time"

	"loom/internal/domain/models"
)

// VectorSearchOptions filters a nearest-neighbor query. Only rows with a
// non-null vector ever participate.
type VectorSearchOptions struct {
	ProjectID string
	// Types restricts candidates to these document types. Empty = all types.
	Types []string
	// K bounds the result count. Fewer candidates than K is not an error.
	K int
	// MinSimilarity rejects results below the floor when > 0. Retrieval for
	// generation leaves it at 0 so best-effort context is always returned.
	MinSimilarity float64
}

// DocumentRepository defines data access operations for documents.
type DocumentRepository interface {
	// Create creates a new document
	Create(ctx context.Context, doc *models.Document) error

	// GetByID retrieves a document by ID within a project
	GetByID(ctx context.Context, id, projectID string) (*models.Document, error)

	// ListByProject lists documents in a project, creation order
	ListByProject(ctx context.Context, projectID string) ([]models.Document, error)

	// Update persists content/name/metadata/state mutations
	Update(ctx context.Context, doc *models.Document) error

	// Delete deletes a document
	Delete(ctx context.Context, id, projectID string) error

	// SetEmbedding overwrites the vector column. Overwriting is idempotent,
	// which keeps crashed embedding jobs safely re-dispatchable.
	SetEmbedding(ctx context.Context, id string, vector []float32) error

	// ClearEmbedding nulls the vector so a stale embedding never serves search.
	ClearEmbedding(ctx context.Context, id string) error

	// SetPipelineState records the document's position in the pipeline.
	SetPipelineState(ctx context.Context, id string, state models.PipelineState) error

	// SetProcessedAt sets or clears the at-rest marker.
	SetProcessedAt(ctx context.Context, id string, at *time.Time) error

	// SetMetadata replaces the metadata JSON document.
	SetMetadata(ctx context.Context, id string, metadata map[string]any) error

	// NearestNeighbors returns documents ordered by descending cosine
	// similarity to the query vector. Ties break on (created_at, id) so
	// results are deterministic.
	NearestNeighbors(ctx context.Context, query []float32, opts VectorSearchOptions) ([]models.ScoredDocument, error)
}
