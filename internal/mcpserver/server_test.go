package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/metalagman/socratic/internal/conflict"
	"github.com/metalagman/socratic/internal/maturity"
	"github.com/metalagman/socratic/internal/counselor"
	"github.com/metalagman/socratic/internal/db"
	"github.com/metalagman/socratic/internal/extract"
	"github.com/metalagman/socratic/internal/lock"
	"github.com/metalagman/socratic/internal/model"
	"github.com/metalagman/socratic/internal/oracle"
	"github.com/metalagman/socratic/internal/pipeline"
	"github.com/metalagman/socratic/internal/quality"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, questions, extraction oracle.Oracle) *mcp.ClientSession {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "socratic.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	store := db.NewStore(conn)

	tools := &Tools{
		Counselor: counselor.New(store, questions, nil, nil),
		Pipeline: pipeline.New(pipeline.Deps{
			Store:     store,
			Extractor: extract.New(extraction, 0),
			Detector:  conflict.NewDetector(nil, store),
			Locks:     lock.New(t.TempDir()),
		}, pipeline.Options{}),
	}
	srv := New(tools)

	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	_, err = srv.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func call(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err, "CallTool(%s)", name)
	require.NotEmpty(t, result.Content, "CallTool(%s): empty content", name)
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	return tc.Text, result.IsError
}

func callJSON(t *testing.T, session *mcp.ClientSession, name string, args map[string]any, out any) {
	t.Helper()
	text, isErr := call(t, session, name, args)
	require.False(t, isErr, "CallTool(%s) returned error: %s", name, text)
	require.NoError(t, json.Unmarshal([]byte(text), out))
}

func TestListTools(t *testing.T) {
	t.Parallel()
	session := connect(t, nil, nil)

	result, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		"add_specification", "apply_template", "can_generate", "check_question", "create_project",
		"list_conflicts", "next_question", "request_generation", "resolve_conflict", "start_session",
		"submit_answer", "submit_turn",
	}, names)
}

func TestSessionFlow(t *testing.T) {
	t.Parallel()
	session := connect(t,
		oracle.Script(`{"question": "Who will use the shop?", "category": "requirements"}`),
		oracle.Script(`[{"category": "goals", "key": "audience", "value": "small retailers"}]`),
	)

	var project model.Project
	callJSON(t, session, "create_project", map[string]any{"name": "shop"}, &project)
	require.NotEmpty(t, project.ID)

	var sess model.Session
	callJSON(t, session, "start_session", map[string]any{"project_id": project.ID}, &sess)
	assert.Equal(t, model.SessionActive, sess.Status)

	var q model.Question
	callJSON(t, session, "next_question", map[string]any{"session_id": sess.ID}, &q)
	assert.Equal(t, "Who will use the shop?", q.Text)

	var res pipeline.Result
	callJSON(t, session, "submit_answer", map[string]any{
		"session_id": sess.ID, "question_id": q.ID, "answer": "small retailers",
	}, &res)
	assert.True(t, res.Committed)
	require.Len(t, res.Specs, 1)
	assert.Equal(t, "audience", res.Specs[0].Key)
	assert.Equal(t, 1, res.MaturityScore)

	text, isErr := call(t, session, "request_generation", map[string]any{"project_id": project.ID})
	assert.True(t, isErr)
	assert.Contains(t, text, "generation denied")
	assert.Contains(t, text, `"allowed": false`)

	var conflicts []model.Conflict
	callJSON(t, session, "list_conflicts", map[string]any{"project_id": project.ID, "status": "open"}, &conflicts)
	assert.Empty(t, conflicts)
}

func TestToolErrors(t *testing.T) {
	t.Parallel()
	session := connect(t, nil, nil)

	text, isErr := call(t, session, "resolve_conflict", map[string]any{"conflict_id": "nope", "kind": "ignore"})
	assert.True(t, isErr)
	assert.Contains(t, text, "invalid conflict_id")

	text, isErr = call(t, session, "list_conflicts", map[string]any{"project_id": "x", "status": "maybe"})
	assert.True(t, isErr)
	assert.Contains(t, text, "Invalid status")

	text, isErr = call(t, session, "start_session", map[string]any{"project_id": "0b8f2a4e-8f56-4c8e-9d5a-3d3c1f0e7a11"})
	assert.True(t, isErr)
	assert.Contains(t, text, "not found")
}

func TestToolFailure_GateDeniedCarriesCoverageGaps(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("request generation: %w", &pipeline.GateDeniedError{
		Decision: maturity.Decision{Allowed: true, MaturityScore: 85},
		Coverage: &quality.CoverageResult{
			Score:   0.5,
			Blocked: true,
			Gaps:    []quality.CoverageGap{{Category: model.CategorySecurity, Count: 0, Required: 1}},
		},
	})

	res := toolFailure(err)
	require.True(t, res.IsError)
	require.Len(t, res.Content, 1)
	text := res.Content[0].(*mcp.TextContent).Text

	start := strings.Index(text, "{")
	require.GreaterOrEqual(t, start, 0)
	var got pipeline.GateDeniedError
	require.NoError(t, json.Unmarshal([]byte(text[start:]), &got))
	assert.Equal(t, 85, got.Decision.MaturityScore)
	require.NotNil(t, got.Coverage)
	assert.True(t, got.Coverage.Blocked)
	require.Len(t, got.Coverage.Gaps, 1)
	assert.Equal(t, model.CategorySecurity, got.Coverage.Gaps[0].Category)
}

func TestCheckQuestion(t *testing.T) {
	t.Parallel()
	session := connect(t, nil, nil)

	var biased struct {
		Score       float64  `json:"score"`
		Blocked     bool     `json:"blocked"`
		Suggestions []string `json:"suggestions"`
	}
	callJSON(t, session, "check_question", map[string]any{
		"question": "Obviously PostgreSQL is the best database, don't you think?",
		"category": "tech_stack",
	}, &biased)
	assert.True(t, biased.Blocked)
	assert.NotEmpty(t, biased.Suggestions)

	var neutral struct {
		Score   float64 `json:"score"`
		Blocked bool    `json:"blocked"`
	}
	callJSON(t, session, "check_question", map[string]any{"question": "How will users sign in?"}, &neutral)
	assert.False(t, neutral.Blocked)
	assert.Zero(t, neutral.Score)
}
