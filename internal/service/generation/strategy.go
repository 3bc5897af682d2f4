// Package generation composes retrieval and structured LLM calls into
// workflow deliverables: given a project and a strategy, it retrieves the
// most relevant embedded documents and turns the model's items into new
// child documents.
package generation

import (
	"strings"

	"loom/internal/domain/models"
)

// Strategy is a generation policy: which source document types feed the
// context, how to query them, and which prompts to run. One variant per
// policy, selected by the caller.
type Strategy interface {
	// Name identifies the strategy in logs.
	Name() string

	// RequiredDocTypes are the source types eligible as retrieval context.
	RequiredDocTypes() []string

	// TargetType is the document type generated items become.
	TargetType() string

	// SearchQuery is the retrieval query, templated from the project.
	SearchQuery(project *models.Project) string

	// SystemPrompt is passed to the LLM driver verbatim.
	SystemPrompt() string

	// UserPrompt is a template; {{input}}, {{project_name}} and
	// {{project_description}} are substituted before the call.
	UserPrompt() string
}

// renderTemplate substitutes {{key}} occurrences. Unknown keys are left in
// place so a template typo is visible in the output rather than silently
// blanked.
func renderTemplate(template string, vars map[string]string) string {
	out := template
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return out
}

// WorkflowStrategy drives generation from a project type's workflow edge
// and its bound AI template.
type WorkflowStrategy struct {
	Step     models.WorkflowStep
	Template *models.AiTemplate
	Slot     models.SchemaSlot
}

// NewWorkflowStrategy binds a workflow edge to its template.
func NewWorkflowStrategy(step models.WorkflowStep, tpl *models.AiTemplate, target models.SchemaSlot) *WorkflowStrategy {
	return &WorkflowStrategy{Step: step, Template: tpl, Slot: target}
}

func (s *WorkflowStrategy) Name() string { return "workflow:" + s.Step.FromKey + "->" + s.Step.ToKey }

func (s *WorkflowStrategy) RequiredDocTypes() []string { return []string{s.Step.FromKey} }

func (s *WorkflowStrategy) TargetType() string { return s.Step.ToKey }

func (s *WorkflowStrategy) SearchQuery(project *models.Project) string {
	return strings.TrimSpace(project.Name + " " + project.Description)
}

func (s *WorkflowStrategy) SystemPrompt() string { return s.Template.SystemPrompt }

func (s *WorkflowStrategy) UserPrompt() string { return s.Template.UserPrompt }

// SoftwareDeliverablesStrategy is the built-in policy for software
// projects: it turns intake notes into user stories without requiring a
// configured template.
type SoftwareDeliverablesStrategy struct{}

func (SoftwareDeliverablesStrategy) Name() string { return "software-deliverables" }

func (SoftwareDeliverablesStrategy) RequiredDocTypes() []string {
	return []string{models.TypeIntake}
}

func (SoftwareDeliverablesStrategy) TargetType() string { return "user_story" }

func (SoftwareDeliverablesStrategy) SearchQuery(project *models.Project) string {
	return strings.TrimSpace(project.Name + " " + project.Description)
}

func (SoftwareDeliverablesStrategy) SystemPrompt() string {
	return `You are a senior software delivery consultant. From the provided project
intake material, derive concrete, independently deliverable user stories.
Each story needs a short title, a body describing the change from the
user's perspective, and testable acceptance criteria.`
}

func (SoftwareDeliverablesStrategy) UserPrompt() string {
	return `Project: {{project_name}}
{{project_description}}

Source material:
{{input}}`
}
