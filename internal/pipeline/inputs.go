package pipeline

import "github.com/metalagman/socratic/internal/model"

// SubmitAnswerInput is an answer to a question asked in a session.
type SubmitAnswerInput struct {
	SessionID  string `json:"session_id"  validate:"required,uuid"  jsonschema:"session that asked the question"`
	QuestionID string `json:"question_id" validate:"required,uuid"  jsonschema:"question being answered"`
	Answer     string `json:"answer"      validate:"required,notblank" jsonschema:"free-text answer"`
}

// SubmitTurnInput is a free conversation turn in a session.
type SubmitTurnInput struct {
	SessionID string `json:"session_id" validate:"required,uuid"      jsonschema:"active session"`
	Text      string `json:"text"       validate:"required,notblank" jsonschema:"what the user said"`
}

// AddSpecificationInput is a specification typed in directly by the user.
type AddSpecificationInput struct {
	ProjectID string `json:"project_id" validate:"required,uuid"      jsonschema:"target project"`
	Category  string `json:"category"   validate:"required,notblank" jsonschema:"specification category, e.g. security"`
	Key       string `json:"key"        validate:"required,notblank" jsonschema:"short snake_case identifier"`
	Value     string `json:"value"      validate:"required,notblank" jsonschema:"the fact"`
	Content   string `json:"content,omitempty" jsonschema:"optional elaboration"`
}

// ApplyTemplateInput applies a named template to a project.
type ApplyTemplateInput struct {
	ProjectID string `json:"project_id" validate:"required,uuid" jsonschema:"target project"`
	Template  string `json:"template"   validate:"required"      jsonschema:"template name"`
}

// ResolveConflictInput is a user's decision on an open conflict.
type ResolveConflictInput struct {
	ConflictID string               `json:"conflict_id" validate:"required,uuid"                            jsonschema:"conflict to resolve"`
	Kind       model.ResolutionKind `json:"kind"        validate:"required,oneof=keep_old replace merge ignore" jsonschema:"keep_old, replace, merge or ignore"`
	Notes      string               `json:"notes,omitempty" jsonschema:"optional reason"`
}

// ProjectInput addresses a project.
type ProjectInput struct {
	ProjectID string `json:"project_id" validate:"required,uuid" jsonschema:"project id"`
}

// check validates in and converts the first failure into a model.ValidationError.
func (p *Pipeline) check(in any) error {
	return p.validate.Struct(in)
}
