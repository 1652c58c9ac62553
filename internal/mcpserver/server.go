// Package mcpserver exposes the counselor and the extraction pipeline as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/metalagman/socratic/internal/counselor"
	"github.com/metalagman/socratic/internal/model"
	"github.com/metalagman/socratic/internal/pipeline"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// Tools holds the services behind the tool handlers.
type Tools struct {
	Counselor *counselor.Counselor
	Pipeline  *pipeline.Pipeline
}

// New creates an MCP server with all tools registered.
func New(t *Tools) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "socratic",
		Version: Version,
	}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_project",
		Description: "Create a project to gather specifications for",
	}, t.CreateProject)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "start_session",
		Description: "Start a Socratic questioning session on a project",
	}, t.StartSession)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "next_question",
		Description: "Ask the next neutral question, aimed at the least covered category",
	}, t.NextQuestion)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "submit_answer",
		Description: "Answer a question; specifications are extracted and committed unless they conflict with accepted ones",
	}, t.SubmitAnswer)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "submit_turn",
		Description: "Extract specifications from a free conversation turn",
	}, t.SubmitTurn)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "add_specification",
		Description: "Add a specification directly, at full confidence",
	}, t.AddSpecification)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "apply_template",
		Description: "Apply a named specification template to a project",
	}, t.ApplyTemplate)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_conflicts",
		Description: "List a project's conflicts, optionally filtered by status (open, resolved, ignored)",
	}, t.ListConflicts)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "resolve_conflict",
		Description: "Resolve an open conflict with keep_old, replace, merge or ignore",
	}, t.ResolveConflict)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "can_generate",
		Description: "Check whether the project is mature enough and free of open conflicts",
	}, t.CanGenerate)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "request_generation",
		Description: "Generate an implementation plan when the generation gate allows it",
	}, t.RequestGeneration)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "check_question",
		Description: "Score a question for solution, technology and leading bias",
	}, t.CheckQuestion)

	return srv
}

// SessionInput addresses a session.
type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"session id"`
}

// ListConflictsInput filters conflicts.
type ListConflictsInput struct {
	ProjectID string `json:"project_id"       jsonschema:"project id"`
	Status    string `json:"status,omitempty" jsonschema:"open, resolved or ignored; empty lists all"`
}

// CheckQuestionInput is a question to score.
type CheckQuestionInput struct {
	Question string `json:"question"           jsonschema:"question text"`
	Category string `json:"category,omitempty" jsonschema:"category used for suggestions"`
}

type resolveResult struct {
	Conflict      model.Conflict `json:"conflict"`
	MaturityScore int            `json:"maturity_score"`
}

func (t *Tools) CreateProject(ctx context.Context, _ *mcp.CallToolRequest, in counselor.CreateProjectInput) (*mcp.CallToolResult, any, error) {
	p, err := t.Counselor.CreateProject(ctx, in)
	if err != nil {
		return toolFailure(err), nil, nil
	}
	return toolJSON(p)
}

func (t *Tools) StartSession(ctx context.Context, _ *mcp.CallToolRequest, in pipeline.ProjectInput) (*mcp.CallToolResult, any, error) {
	s, err := t.Counselor.StartSession(ctx, in.ProjectID)
	if err != nil {
		return toolFailure(err), nil, nil
	}
	return toolJSON(s)
}

func (t *Tools) NextQuestion(ctx context.Context, _ *mcp.CallToolRequest, in SessionInput) (*mcp.CallToolResult, any, error) {
	q, err := t.Counselor.NextQuestion(ctx, in.SessionID)
	if err != nil {
		return toolFailure(err), nil, nil
	}
	return toolJSON(q)
}

func (t *Tools) SubmitAnswer(ctx context.Context, _ *mcp.CallToolRequest, in pipeline.SubmitAnswerInput) (*mcp.CallToolResult, any, error) {
	res, err := t.Pipeline.SubmitAnswer(ctx, in)
	if err != nil {
		return toolFailure(err), nil, nil
	}
	return toolJSON(res)
}

func (t *Tools) SubmitTurn(ctx context.Context, _ *mcp.CallToolRequest, in pipeline.SubmitTurnInput) (*mcp.CallToolResult, any, error) {
	res, err := t.Pipeline.SubmitTurn(ctx, in)
	if err != nil {
		return toolFailure(err), nil, nil
	}
	return toolJSON(res)
}

func (t *Tools) AddSpecification(ctx context.Context, _ *mcp.CallToolRequest, in pipeline.AddSpecificationInput) (*mcp.CallToolResult, any, error) {
	res, err := t.Pipeline.AddUserSpecification(ctx, in)
	if err != nil {
		return toolFailure(err), nil, nil
	}
	return toolJSON(res)
}

func (t *Tools) ApplyTemplate(ctx context.Context, _ *mcp.CallToolRequest, in pipeline.ApplyTemplateInput) (*mcp.CallToolResult, any, error) {
	res, err := t.Pipeline.ApplyTemplate(ctx, in)
	if err != nil {
		return toolFailure(err), nil, nil
	}
	return toolJSON(res)
}

func (t *Tools) ListConflicts(ctx context.Context, _ *mcp.CallToolRequest, in ListConflictsInput) (*mcp.CallToolResult, any, error) {
	var status *model.ConflictStatus
	switch s := model.ConflictStatus(in.Status); s {
	case "":
	case model.ConflictOpen, model.ConflictResolved, model.ConflictIgnored:
		status = &s
	default:
		return toolError("Invalid status %q: use open, resolved or ignored", in.Status), nil, nil
	}
	conflicts, err := t.Pipeline.Conflicts(ctx, in.ProjectID, status)
	if err != nil {
		return toolFailure(err), nil, nil
	}
	if conflicts == nil {
		conflicts = []model.Conflict{}
	}
	return toolJSON(conflicts)
}

func (t *Tools) ResolveConflict(ctx context.Context, _ *mcp.CallToolRequest, in pipeline.ResolveConflictInput) (*mcp.CallToolResult, any, error) {
	c, score, err := t.Pipeline.ResolveConflict(ctx, in)
	if err != nil {
		return toolFailure(err), nil, nil
	}
	return toolJSON(resolveResult{Conflict: c, MaturityScore: score})
}

func (t *Tools) CanGenerate(ctx context.Context, _ *mcp.CallToolRequest, in pipeline.ProjectInput) (*mcp.CallToolResult, any, error) {
	d, err := t.Pipeline.CanGenerate(ctx, in.ProjectID)
	if err != nil {
		return toolFailure(err), nil, nil
	}
	return toolJSON(d)
}

func (t *Tools) RequestGeneration(ctx context.Context, _ *mcp.CallToolRequest, in pipeline.ProjectInput) (*mcp.CallToolResult, any, error) {
	res, err := t.Pipeline.RequestGeneration(ctx, in.ProjectID)
	if err != nil {
		return toolFailure(err), nil, nil
	}
	return toolJSON(res)
}

func (t *Tools) CheckQuestion(_ context.Context, _ *mcp.CallToolRequest, in CheckQuestionInput) (*mcp.CallToolResult, any, error) {
	if in.Question == "" {
		return toolError("Question is required"), nil, nil
	}
	return toolJSON(t.Counselor.CheckQuestion(in.Question, model.NormalizeCategory(in.Category)))
}

// toolFailure reports err to the client. Gate denials carry their decision and
// any coverage gaps as JSON.
func toolFailure(err error) *mcp.CallToolResult {
	var denied *pipeline.GateDeniedError
	if errors.As(err, &denied) {
		data, merr := json.MarshalIndent(denied, "", "  ")
		if merr == nil {
			return toolError("%s\n%s", err, data)
		}
	}
	if !model.IsValidation(err) && !errors.Is(err, model.ErrNotFound) {
		log.Warn().Err(err).Bool("retryable", model.Retryable(err)).Msg("tool call failed")
	}
	if model.Retryable(err) {
		return toolError("%v (retryable)", err)
	}
	return toolError("%v", err)
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
