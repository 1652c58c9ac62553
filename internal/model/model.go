// Package model defines the domain records shared by the socratic services.
package model

import "time"

// Category is a specification category such as "goals" or "security".
type Category string

// Canonical categories.
const (
	CategoryGoals            Category = "goals"
	CategoryRequirements     Category = "requirements"
	CategoryTechStack        Category = "tech_stack"
	CategoryScalability      Category = "scalability"
	CategorySecurity         Category = "security"
	CategoryPerformance      Category = "performance"
	CategoryTesting          Category = "testing"
	CategoryMonitoring       Category = "monitoring"
	CategoryDataRetention    Category = "data_retention"
	CategoryDisasterRecovery Category = "disaster_recovery"
)

// Source describes where a specification came from.
type Source string

// Specification sources.
const (
	SourceUserInput Source = "user_input"
	SourceExtracted Source = "extracted"
	SourceInferred  Source = "inferred"
	SourceTemplate  Source = "template"
)

// Default confidences per source.
const (
	DefaultExtractedConfidence = 0.9
	TemplateConfidence         = 0.8
	UserInputConfidence        = 1.0
)

// Project is the aggregate root. MaturityScore is only ever written by rescoring.
type Project struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	MaturityScore int       `json:"maturity_score"`
	CurrentPhase  string    `json:"current_phase"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Session groups the questions asked for a project.
type Session struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Session statuses.
const (
	SessionActive    = "active"
	SessionCompleted = "completed"
)

// Question is a single Socratic question asked in a session.
type Question struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	Text       string     `json:"text"`
	Category   Category   `json:"category"`
	BiasScore  float64    `json:"bias_score"`
	Answer     string     `json:"answer,omitempty"`
	AskedAt    time.Time  `json:"asked_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}

// SpecCandidate is an extracted but not yet accepted specification.
type SpecCandidate struct {
	Category   Category `json:"category"`
	Key        string   `json:"key"`
	Value      string   `json:"value"`
	Content    string   `json:"content"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning,omitempty"`
}

// Specification is one accepted fact about a project. Rows are append-only:
// only IsCurrent, SupersededBy and SupersededAt change after insert.
type Specification struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"project_id"`
	SessionID    string     `json:"session_id,omitempty"`
	QuestionID   string     `json:"question_id,omitempty"`
	Category     Category   `json:"category"`
	Key          string     `json:"key"`
	Value        string     `json:"value"`
	Content      string     `json:"content"`
	Confidence   float64    `json:"confidence"`
	Source       Source     `json:"source"`
	Reasoning    string     `json:"reasoning,omitempty"`
	IsCurrent    bool       `json:"is_current"`
	SupersededBy string     `json:"superseded_by,omitempty"`
	SupersededAt *time.Time `json:"superseded_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// SpecFilter narrows specification queries.
type SpecFilter struct {
	IsCurrent *bool
	Category  Category
	Limit     int
}

// CurrentOnly returns a filter selecting accepted (current) specifications.
func CurrentOnly() SpecFilter {
	current := true
	return SpecFilter{IsCurrent: &current}
}

// ConflictType classifies a contradiction.
type ConflictType string

// Conflict types.
const (
	ConflictTechnology  ConflictType = "technology"
	ConflictRequirement ConflictType = "requirement"
	ConflictTimeline    ConflictType = "timeline"
	ConflictResource    ConflictType = "resource"
)

// Severity of a conflict.
type Severity string

// Severities.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ConflictStatus is the conflict lifecycle state.
type ConflictStatus string

// Conflict statuses. A conflict leaves open exactly once.
const (
	ConflictOpen     ConflictStatus = "open"
	ConflictResolved ConflictStatus = "resolved"
	ConflictIgnored  ConflictStatus = "ignored"
)

// Conflict is a detected contradiction between candidates and accepted specifications.
type Conflict struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	Type        ConflictType    `json:"type"`
	Severity    Severity        `json:"severity"`
	Description string          `json:"description"`
	Reasoning   string          `json:"reasoning,omitempty"`
	SpecIDs     []string        `json:"spec_ids"`
	Candidates  []SpecCandidate `json:"candidates,omitempty"`
	Status      ConflictStatus  `json:"status"`
	Resolution  string          `json:"resolution,omitempty"`
	DetectedAt  time.Time       `json:"detected_at"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
}

// ResolutionKind is the user's decision on a conflict.
type ResolutionKind string

// Resolution kinds.
const (
	ResolutionKeepOld ResolutionKind = "keep_old"
	ResolutionReplace ResolutionKind = "replace"
	ResolutionMerge   ResolutionKind = "merge"
	ResolutionIgnore  ResolutionKind = "ignore"
)

// Status returns the terminal status a resolution kind moves a conflict to.
func (k ResolutionKind) Status() (ConflictStatus, bool) {
	switch k {
	case ResolutionIgnore:
		return ConflictIgnored, true
	case ResolutionKeepOld, ResolutionReplace, ResolutionMerge:
		return ConflictResolved, true
	default:
		return "", false
	}
}

// ConflictResolution is the update applied when a conflict leaves the open state.
type ConflictResolution struct {
	Status     ConflictStatus
	Resolution string
	ResolvedAt time.Time
	// SupersedeSpecIDs are flipped to is_current=false in the same transaction.
	SupersedeSpecIDs []string
}

// Generation is a stored code-generation output.
type Generation struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AnswerRecord stores the raw answer on its question in the same transaction
// that commits the extracted specifications.
type AnswerRecord struct {
	QuestionID string
	Answer     string
	AnsweredAt time.Time
}
