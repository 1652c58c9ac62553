// Package conflict detects contradictions between candidate and accepted
// specifications and manages the resolution of detected conflicts.
package conflict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/metalagman/socratic/internal/model"
	"github.com/metalagman/socratic/internal/oracle"
	"github.com/rs/zerolog/log"
)

const responseSchema = `{
  "type": "object",
  "required": ["conflicts_detected"],
  "properties": {
    "conflicts_detected": {"type": "boolean"},
    "conflicts": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["description"],
        "properties": {
          "type":        {"type": "string"},
          "description": {"type": "string"},
          "severity":    {"type": "string"},
          "spec_ids":    {"type": ["array", "null"], "items": {"type": "string"}},
          "reasoning":   {"type": "string"}
        }
      }
    }
  }
}`

// Store persists conflicts.
type Store interface {
	InsertConflicts(ctx context.Context, conflicts []model.Conflict) ([]model.Conflict, error)
	Conflict(ctx context.Context, id string) (model.Conflict, error)
	Conflicts(ctx context.Context, projectID string, status *model.ConflictStatus) ([]model.Conflict, error)
	ResolveConflict(ctx context.Context, id string, res model.ConflictResolution) (model.Conflict, error)
}

// Report is the outcome of a conflict check.
type Report struct {
	Conflicts    []model.Conflict `json:"conflicts"`
	SafeToCommit bool             `json:"safe_to_commit"`
}

// Detector asks the oracle for contradictions and owns conflict records.
type Detector struct {
	oracle oracle.Oracle
	store  Store
	now    func() time.Time
}

// NewDetector creates a detector.
func NewDetector(o oracle.Oracle, store Store) *Detector {
	return &Detector{oracle: o, store: store, now: func() time.Time { return time.Now().UTC() }}
}

type rawConflict struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Severity    string   `json:"severity"`
	SpecIDs     []string `json:"spec_ids"`
	Reasoning   string   `json:"reasoning"`
}

type rawReport struct {
	ConflictsDetected bool          `json:"conflicts_detected"`
	Conflicts         []rawConflict `json:"conflicts"`
}

// Detect checks candidates against existing accepted specifications. Found
// conflicts are persisted as open records before Detect returns. With no
// existing specifications the oracle is not consulted.
func (d *Detector) Detect(ctx context.Context, projectID string, candidates []model.SpecCandidate, existing []model.Specification) (Report, error) {
	if len(existing) == 0 || len(candidates) == 0 {
		return Report{SafeToCommit: true}, nil
	}

	prompt, err := d.prompt(candidates, existing)
	if err != nil {
		return Report{}, err
	}
	raw, err := oracle.Call(ctx, d.oracle, "detect conflicts", prompt)
	if err != nil {
		return Report{}, err
	}

	var rr rawReport
	if err := oracle.DecodeJSON("detect conflicts", raw, responseSchema, &rr); err != nil {
		return Report{}, err
	}
	if !rr.ConflictsDetected {
		return Report{SafeToCommit: true}, nil
	}
	if len(rr.Conflicts) == 0 {
		return Report{}, &model.ParseError{Op: "detect conflicts", Raw: raw, Err: errors.New("conflicts_detected is true but no conflicts were listed")}
	}

	known := make(map[string]bool, len(existing))
	for _, s := range existing {
		known[s.ID] = true
	}

	detected := d.now()
	conflicts := make([]model.Conflict, 0, len(rr.Conflicts))
	for _, rc := range rr.Conflicts {
		ids := make([]string, 0, len(rc.SpecIDs))
		for _, id := range rc.SpecIDs {
			id = strings.Trim(strings.TrimSpace(id), "[]")
			if known[id] {
				ids = append(ids, id)
			} else {
				log.Debug().Str("spec_id", id).Msg("ignoring unknown spec id in conflict")
			}
		}
		conflicts = append(conflicts, model.Conflict{
			ProjectID:   projectID,
			Type:        parseType(rc.Type),
			Severity:    parseSeverity(rc.Severity),
			Description: strings.TrimSpace(rc.Description),
			Reasoning:   strings.TrimSpace(rc.Reasoning),
			SpecIDs:     ids,
			Candidates:  candidates,
			DetectedAt:  detected,
		})
	}

	stored, err := d.store.InsertConflicts(ctx, conflicts)
	if err != nil {
		return Report{}, err
	}
	return Report{Conflicts: stored, SafeToCommit: false}, nil
}

func (d *Detector) prompt(candidates []model.SpecCandidate, existing []model.Specification) (string, error) {
	batch, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal candidates: %w", err)
	}

	var b strings.Builder
	b.WriteString("You check a software project's specifications for logical contradictions.\n\n")
	b.WriteString("Accepted specifications:\n")
	for _, s := range existing {
		fmt.Fprintf(&b, "[%s] %s: %s (confidence: %.2f)\n", s.ID, s.Category, s.Content, s.Confidence)
	}
	b.WriteString("\nNew candidate specifications:\n")
	b.Write(batch)
	b.WriteString("\n\nReport every contradiction between a candidate and the accepted specifications.\n")
	b.WriteString("Return ONLY a JSON object:\n")
	b.WriteString(`{"conflicts_detected": bool, "conflicts": [{"type": "technology|requirement|timeline|resource", `)
	b.WriteString(`"description": string, "severity": "critical|high|medium|low", "spec_ids": [accepted ids involved], "reasoning": string}]}` + "\n")
	return b.String(), nil
}

func parseType(raw string) model.ConflictType {
	switch t := model.ConflictType(strings.ToLower(strings.TrimSpace(raw))); t {
	case model.ConflictTechnology, model.ConflictRequirement, model.ConflictTimeline, model.ConflictResource:
		return t
	default:
		return model.ConflictRequirement
	}
}

func parseSeverity(raw string) model.Severity {
	switch s := model.Severity(strings.ToLower(strings.TrimSpace(raw))); s {
	case model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow:
		return s
	default:
		return model.SeverityMedium
	}
}

// Resolve moves an open conflict to resolved or ignored. A replace resolution
// retires the implicated specifications in the same write.
func (d *Detector) Resolve(ctx context.Context, id string, kind model.ResolutionKind, notes string) (model.Conflict, error) {
	if err := uuid.Validate(id); err != nil {
		return model.Conflict{}, &model.ValidationError{Field: "conflict_id", Reason: "must be a UUID"}
	}
	status, ok := kind.Status()
	if !ok {
		return model.Conflict{}, &model.ValidationError{Field: "resolution_kind", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}

	res := model.ConflictResolution{
		Status:     status,
		Resolution: Stamp(kind, notes),
		ResolvedAt: d.now(),
	}
	if kind == model.ResolutionReplace {
		current, err := d.store.Conflict(ctx, id)
		if err != nil {
			return model.Conflict{}, err
		}
		res.SupersedeSpecIDs = current.SpecIDs
	}
	return d.store.ResolveConflict(ctx, id, res)
}

// Stamp formats the stored resolution text.
func Stamp(kind model.ResolutionKind, notes string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return string(kind)
	}
	return string(kind) + ": " + notes
}

// List returns a project's conflicts, newest first, optionally filtered by status.
func (d *Detector) List(ctx context.Context, projectID string, status *model.ConflictStatus) ([]model.Conflict, error) {
	return d.store.Conflicts(ctx, projectID, status)
}

// Get returns one conflict.
func (d *Detector) Get(ctx context.Context, id string) (model.Conflict, error) {
	if err := uuid.Validate(id); err != nil {
		return model.Conflict{}, &model.ValidationError{Field: "conflict_id", Reason: "must be a UUID"}
	}
	return d.store.Conflict(ctx, id)
}
