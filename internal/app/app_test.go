package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/metalagman/socratic/internal/config"
	"github.com/metalagman/socratic/internal/counselor"
	"github.com/metalagman/socratic/internal/model"
	"github.com/metalagman/socratic/internal/oracle"
	"github.com/metalagman/socratic/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Oracle.APIKeyEnv = "SOCRATIC_TEST_UNSET_KEY"
	cfg.Storage.Path = filepath.Join(dir, "state", "socratic.db")
	cfg.Storage.LocksDir = filepath.Join(dir, "state", "locks")
	require.NoError(t, cfg.Normalize())
	return cfg
}

func start(t *testing.T, cfg config.Config, extra ...fx.Option) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, extra...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestNew_StartsWithoutOracleCredentials(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	a := start(t, cfg)
	ctx := context.Background()

	p, err := a.Counselor.CreateProject(ctx, counselor.CreateProjectInput{Name: "shop"})
	require.NoError(t, err)
	res, err := a.Pipeline.AddUserSpecification(ctx, pipeline.AddSpecificationInput{
		ProjectID: p.ID, Category: "goals", Key: "mission", Value: "sell online",
	})
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.FileExists(t, cfg.Storage.Path)

	sess, err := a.Counselor.StartSession(ctx, p.ID)
	require.NoError(t, err)
	q, err := a.Counselor.AddQuestion(ctx, counselor.AddQuestionInput{SessionID: sess.ID, Text: "Who buys?", Category: "goals"})
	require.NoError(t, err)
	_, err = a.Pipeline.SubmitAnswer(ctx, pipeline.SubmitAnswerInput{SessionID: sess.ID, QuestionID: q.ID, Answer: "retailers"})
	var oe *model.OracleError
	require.ErrorAs(t, err, &oe)
	assert.True(t, model.Retryable(err))
}

func TestNew_DecoratedOracle(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	a := start(t, cfg, fx.Decorate(func(oracle.Oracle) oracle.Oracle {
		return oracle.Script(`[{"category": "goals", "key": "audience", "value": "retailers"}]`)
	}))
	ctx := context.Background()

	p, err := a.Counselor.CreateProject(ctx, counselor.CreateProjectInput{Name: "shop"})
	require.NoError(t, err)
	sess, err := a.Counselor.StartSession(ctx, p.ID)
	require.NoError(t, err)
	q, err := a.Counselor.AddQuestion(ctx, counselor.AddQuestionInput{SessionID: sess.ID, Text: "Who buys?", Category: "goals"})
	require.NoError(t, err)

	res, err := a.Pipeline.SubmitAnswer(ctx, pipeline.SubmitAnswerInput{SessionID: sess.ID, QuestionID: q.ID, Answer: "retailers"})
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.Equal(t, 1, res.MaturityScore)
}

func TestNew_LoadsLocalTemplates(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	dir := TemplatesDir(cfg)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "team.yaml"), []byte(`name: team
description: Team defaults
items:
  - category: testing
    key: ci
    value: Every merge runs the full test suite
`), 0o644))

	a := start(t, cfg)
	tpl, err := a.Templates.Get("team")
	require.NoError(t, err)
	assert.Len(t, tpl.Items, 1)
	_, err = a.Templates.Get("web-api")
	assert.NoError(t, err)
}
