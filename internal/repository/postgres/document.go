package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"loom/internal/domain"
	"loom/internal/domain/models"
	"loom/internal/domain/repositories"
)

// PostgresDocumentRepository implements the DocumentRepository interface
type PostgresDocumentRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(config *RepositoryConfig) repositories.DocumentRepository {
	return &PostgresDocumentRepository{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

const documentColumns = `id, project_id, parent_id, type, name, content, embedding, metadata,
	pipeline_state, processed_at, status, created_by, updated_by, assigned_to, created_at, updated_at`

// Create creates a new document. It participates in a surrounding
// transaction when one is bound to ctx, so creation and lifecycle dispatch
// can commit atomically.
func (r *PostgresDocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	metadataJSON, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	if doc.PipelineState == "" {
		doc.PipelineState = models.StateUnprocessed
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (project_id, parent_id, type, name, content, metadata,
			pipeline_state, processed_at, status, created_by, assigned_to, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING id, created_at, updated_at
	`, r.tables.Documents)

	err = querier(ctx, r.pool).QueryRow(ctx, query,
		doc.ProjectID,
		doc.ParentID,
		doc.Type,
		doc.Name,
		doc.Content,
		metadataJSON,
		doc.PipelineState,
		doc.ProcessedAt,
		doc.Status,
		doc.CreatedBy,
		doc.AssignedTo,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)

	if err != nil {
		if isPgForeignKeyError(err) {
			return fmt.Errorf("project %s does not exist: %w", doc.ProjectID, domain.ErrValidation)
		}
		return fmt.Errorf("create document: %w", err)
	}

	return nil
}

// GetByID retrieves a document by ID within a project
func (r *PostgresDocumentRepository) GetByID(ctx context.Context, id, projectID string) (*models.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = $1 AND project_id = $2
	`, documentColumns, r.tables.Documents)

	row := querier(ctx, r.pool).QueryRow(ctx, query, id, projectID)
	doc, err := scanDocument(row)
	if err != nil {
		if isPgNoRowsError(err) {
			return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}

	return doc, nil
}

// ListByProject lists documents in a project in creation order
func (r *PostgresDocumentRepository) ListByProject(ctx context.Context, projectID string) ([]models.Document, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE project_id = $1
		ORDER BY created_at, id
	`, documentColumns, r.tables.Documents)

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}

	return docs, rows.Err()
}

// Update persists content/name/metadata/state mutations
func (r *PostgresDocumentRepository) Update(ctx context.Context, doc *models.Document) error {
	metadataJSON, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET name = $1, content = $2, metadata = $3, pipeline_state = $4,
			processed_at = $5, status = $6, updated_by = $7, assigned_to = $8, updated_at = now()
		WHERE id = $9 AND project_id = $10
	`, r.tables.Documents)

	result, err := querier(ctx, r.pool).Exec(ctx, query,
		doc.Name,
		doc.Content,
		metadataJSON,
		doc.PipelineState,
		doc.ProcessedAt,
		doc.Status,
		doc.UpdatedBy,
		doc.AssignedTo,
		doc.ID,
		doc.ProjectID,
	)

	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", doc.ID, domain.ErrNotFound)
	}

	return nil
}

// Delete deletes a document
func (r *PostgresDocumentRepository) Delete(ctx context.Context, id, projectID string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE id = $1 AND project_id = $2
	`, r.tables.Documents)

	result, err := r.pool.Exec(ctx, query, id, projectID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

// SetEmbedding overwrites the vector column. Re-running a crashed embedding
// job simply overwrites with the same vector.
func (r *PostgresDocumentRepository) SetEmbedding(ctx context.Context, id string, vector []float32) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET embedding = $1, updated_at = now()
		WHERE id = $2
	`, r.tables.Documents)

	result, err := r.pool.Exec(ctx, query, pgvector.NewVector(vector), id)
	if err != nil {
		return fmt.Errorf("set embedding: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}

	return nil
}

// ClearEmbedding nulls the vector so a stale embedding never serves search.
func (r *PostgresDocumentRepository) ClearEmbedding(ctx context.Context, id string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET embedding = NULL, updated_at = now()
		WHERE id = $1
	`, r.tables.Documents)

	if _, err := querier(ctx, r.pool).Exec(ctx, query, id); err != nil {
		return fmt.Errorf("clear embedding: %w", err)
	}

	return nil
}

// SetPipelineState records the document's position in the pipeline
func (r *PostgresDocumentRepository) SetPipelineState(ctx context.Context, id string, state models.PipelineState) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET pipeline_state = $1, updated_at = now()
		WHERE id = $2
	`, r.tables.Documents)

	if _, err := querier(ctx, r.pool).Exec(ctx, query, state, id); err != nil {
		return fmt.Errorf("set pipeline state: %w", err)
	}

	return nil
}

// SetProcessedAt sets or clears the at-rest marker
func (r *PostgresDocumentRepository) SetProcessedAt(ctx context.Context, id string, at *time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET processed_at = $1, updated_at = now()
		WHERE id = $2
	`, r.tables.Documents)

	if _, err := querier(ctx, r.pool).Exec(ctx, query, at, id); err != nil {
		return fmt.Errorf("set processed_at: %w", err)
	}

	return nil
}

// SetMetadata replaces the metadata JSON document
func (r *PostgresDocumentRepository) SetMetadata(ctx context.Context, id string, metadata map[string]any) error {
	metadataJSON, err := marshalMetadata(metadata)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET metadata = $1, updated_at = now()
		WHERE id = $2
	`, r.tables.Documents)

	if _, err := querier(ctx, r.pool).Exec(ctx, query, metadataJSON, id); err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}

	return nil
}

// NearestNeighbors runs a cosine-distance ordered scan over embedded rows.
// Similarity is 1 - (embedding <=> query); ties break on (created_at, id).
func (r *PostgresDocumentRepository) NearestNeighbors(ctx context.Context, query []float32, opts repositories.VectorSearchOptions) ([]models.ScoredDocument, error) {
	if opts.K <= 0 {
		return nil, nil
	}

	var sb strings.Builder
	args := []interface{}{pgvector.NewVector(query), opts.ProjectID}

	fmt.Fprintf(&sb, `
		SELECT %s, 1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE project_id = $2 AND embedding IS NOT NULL
	`, documentColumns, r.tables.Documents)

	if len(opts.Types) > 0 {
		args = append(args, opts.Types)
		fmt.Fprintf(&sb, " AND type = ANY($%d)", len(args))
	}

	args = append(args, opts.K)
	fmt.Fprintf(&sb, `
		ORDER BY embedding <=> $1, created_at, id
		LIMIT $%d
	`, len(args))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", err)
	}
	defer rows.Close()

	var results []models.ScoredDocument
	for rows.Next() {
		doc, similarity, err := scanScoredDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		results = append(results, models.ScoredDocument{Document: *doc, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return filterByFloor(results, opts.MinSimilarity), nil
}

// filterByFloor truncates scored results at the similarity floor. Input
// arrives ordered by descending similarity, so the first row under the
// floor ends the result set; a weak best match yields an empty list, not
// the least-bad document. A floor of zero keeps everything.
func filterByFloor(results []models.ScoredDocument, floor float64) []models.ScoredDocument {
	if floor <= 0 {
		return results
	}
	for i, r := range results {
		if r.Similarity < floor {
			return results[:i]
		}
	}
	return results
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var (
		doc          models.Document
		embedding    *pgvector.Vector
		metadataJSON []byte
	)

	err := row.Scan(
		&doc.ID,
		&doc.ProjectID,
		&doc.ParentID,
		&doc.Type,
		&doc.Name,
		&doc.Content,
		&embedding,
		&metadataJSON,
		&doc.PipelineState,
		&doc.ProcessedAt,
		&doc.Status,
		&doc.CreatedBy,
		&doc.UpdatedBy,
		&doc.AssignedTo,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if embedding != nil {
		doc.Embedding = embedding.Slice()
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}

	return &doc, nil
}

func scanScoredDocument(row pgx.Row) (*models.Document, float64, error) {
	var (
		doc          models.Document
		embedding    *pgvector.Vector
		metadataJSON []byte
		similarity   float64
	)

	err := row.Scan(
		&doc.ID,
		&doc.ProjectID,
		&doc.ParentID,
		&doc.Type,
		&doc.Name,
		&doc.Content,
		&embedding,
		&metadataJSON,
		&doc.PipelineState,
		&doc.ProcessedAt,
		&doc.Status,
		&doc.CreatedBy,
		&doc.UpdatedBy,
		&doc.AssignedTo,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&similarity,
	)
	if err != nil {
		return nil, 0, err
	}

	if embedding != nil {
		doc.Embedding = embedding.Slice()
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
			return nil, 0, fmt.Errorf("decode metadata: %w", err)
		}
	}

	return &doc, similarity, nil
}
