package models

import (
	"time"
)

// SchemaSlot declares one document type a project of this type can hold.
// IsTask marks slots whose generated items become work items rather than
// narrative documents.
type SchemaSlot struct {
	Key    string `json:"key" yaml:"key"`
	Label  string `json:"label" yaml:"label"`
	IsTask bool   `json:"is_task" yaml:"is_task"`
}

// WorkflowStep is a directed edge in the generation graph: documents of
// FromKey feed an AI template that produces documents of ToKey.
type WorkflowStep struct {
	FromKey      string `json:"from_key" yaml:"from_key"`
	ToKey        string `json:"to_key" yaml:"to_key"`
	AiTemplateID string `json:"ai_template_id" yaml:"ai_template_id"`
}

// ProjectType defines the declarative document schema, the workflow graph
// and the user-facing lifecycle steps for projects of this type.
type ProjectType struct {
	ID             string         `json:"id" db:"id"`
	Name           string         `json:"name" db:"name"`
	DocumentSchema []SchemaSlot   `json:"document_schema" db:"document_schema"`
	Workflow       []WorkflowStep `json:"workflow" db:"workflow"`
	LifecycleSteps []string       `json:"lifecycle_steps" db:"lifecycle_steps"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// HasSlot reports whether key appears in the document schema.
func (pt *ProjectType) HasSlot(key string) bool {
	for _, s := range pt.DocumentSchema {
		if s.Key == key {
			return true
		}
	}
	return false
}

// SlotByKey returns the schema slot for key, if present.
func (pt *ProjectType) SlotByKey(key string) (SchemaSlot, bool) {
	for _, s := range pt.DocumentSchema {
		if s.Key == key {
			return s, true
		}
	}
	return SchemaSlot{}, false
}

// StepsFrom returns the workflow edges whose source is key.
func (pt *ProjectType) StepsFrom(key string) []WorkflowStep {
	var out []WorkflowStep
	for _, step := range pt.Workflow {
		if step.FromKey == key {
			out = append(out, step)
		}
	}
	return out
}

// Validate enforces workflow-edge referential integrity against the
// document schema. Edges referencing unknown keys are rejected on save.
func (pt *ProjectType) Validate() error {
	for _, step := range pt.Workflow {
		if !pt.HasSlot(step.FromKey) {
			return &workflowKeyError{Key: step.FromKey}
		}
		if !pt.HasSlot(step.ToKey) {
			return &workflowKeyError{Key: step.ToKey}
		}
	}
	return nil
}

type workflowKeyError struct {
	Key string
}

func (e *workflowKeyError) Error() string {
	return "workflow step references unknown schema key: " + e.Key
}

// AiTemplate is a reusable (system prompt, user prompt) pair referenced by
// workflow steps. Deletion is blocked while any workflow references it.
type AiTemplate struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	SystemPrompt string    `json:"system_prompt" db:"system_prompt"`
	UserPrompt   string    `json:"user_prompt" db:"user_prompt"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
