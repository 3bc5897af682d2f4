package models

import (
	"time"
)

// PipelineState tracks where a document sits in the embedding/AI pipeline.
type PipelineState string

const (
	StateUnprocessed PipelineState = "unprocessed"
	StateEmbedding   PipelineState = "embedding"
	StateAwaitingAI  PipelineState = "awaiting_ai"
	StateProcessed   PipelineState = "processed"
	StateErrored     PipelineState = "errored"
)

// TypeIntake is the document type that seeds a project: its creation
// triggers AI generation instead of plain embedding.
const TypeIntake = "intake"

// Metadata keys written by the pipeline.
const (
	MetaCriteria  = "criteria"
	MetaError     = "error"
	MetaErrorKind = "error_kind"
)

// Document is the atomic unit of content subject to embedding and AI
// transformation.
//
// ProcessedAt is the at-rest marker for the pipeline: non-nil means no
// embedding or AI job is in flight for this document. It must be cleared
// before a reprocessing job is dispatched and re-set only by the pipeline
// on completion.
type Document struct {
	ID        string  `json:"id" db:"id"`
	ProjectID string  `json:"project_id" db:"project_id"`
	ParentID  *string `json:"parent_id,omitempty" db:"parent_id"` // hierarchical derivation, e.g. intake -> user story -> task
	Type      string  `json:"type" db:"type"`                     // schema slot key of the owning project type
	Name      string  `json:"name" db:"name"`
	Content   string  `json:"content" db:"content"`

	// Embedding is nil until the pipeline persists a vector. A stale vector
	// is nulled out when content changes so it never serves search.
	Embedding []float32 `json:"-" db:"embedding"`

	Metadata      map[string]any `json:"metadata,omitempty" db:"metadata"`
	PipelineState PipelineState  `json:"pipeline_state" db:"pipeline_state"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty" db:"processed_at"`
	Status        string         `json:"status" db:"status"`
	CreatedBy     string         `json:"created_by" db:"created_by"`
	UpdatedBy     *string        `json:"updated_by,omitempty" db:"updated_by"`
	AssignedTo    *string        `json:"assigned_to,omitempty" db:"assigned_to"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// Embedded reports whether the document currently has a usable vector.
func (d *Document) Embedded() bool {
	return len(d.Embedding) > 0
}

// AtRest reports whether the pipeline considers this document settled.
func (d *Document) AtRest() bool {
	return d.ProcessedAt != nil
}

// ScoredDocument pairs a document with its similarity to a query vector.
// Similarity is 1 - cosine distance, so it lies in [-1, 1].
type ScoredDocument struct {
	Document   Document `json:"document"`
	Similarity float64  `json:"similarity"`
}
