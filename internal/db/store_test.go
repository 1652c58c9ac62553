package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/metalagman/socratic/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	sqlDB, err := Open(filepath.Join(t.TempDir(), "socratic.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewStore(sqlDB)
}

func TestOpen_AppliesMigrationsTwice(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "socratic.db")
	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	var n int
	require.NoError(t, second.QueryRow(`SELECT COUNT(*) FROM projects`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestProjectLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	p, err := store.CreateProject(ctx, "billing", "invoicing service")
	require.NoError(t, err)
	assert.Equal(t, 0, p.MaturityScore)
	assert.Equal(t, "discovery", p.CurrentPhase)

	require.NoError(t, store.UpdateProjectMaturity(ctx, p.ID, 42))
	got, err := store.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, got.MaturityScore)

	_, err = store.Project(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, store.UpdateProjectMaturity(ctx, "missing", 1), model.ErrNotFound)

	projects, err := store.Projects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
}

func TestInsertSpecifications_RecordsAnswerAtomically(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	p, err := store.CreateProject(ctx, "p", "")
	require.NoError(t, err)
	sess, err := store.CreateSession(ctx, p.ID)
	require.NoError(t, err)
	q, err := store.InsertQuestion(ctx, model.Question{SessionID: sess.ID, Text: "What database?", Category: model.CategoryTechStack})
	require.NoError(t, err)

	specs, err := store.InsertSpecifications(ctx, []model.Specification{
		{ProjectID: p.ID, SessionID: sess.ID, QuestionID: q.ID, Category: model.CategoryTechStack, Key: "db", Value: "PostgreSQL", Content: "PostgreSQL", Confidence: 0.9, Source: model.SourceExtracted},
	}, &model.AnswerRecord{QuestionID: q.ID, Answer: "We use PostgreSQL", AnsweredAt: store.now()})
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.NotEmpty(t, specs[0].ID)
	assert.True(t, specs[0].IsCurrent)

	gotQ, err := store.Question(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "We use PostgreSQL", gotQ.Answer)
	require.NotNil(t, gotQ.AnsweredAt)
}

func TestInsertSpecifications_RollsBackWholeBatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	p, err := store.CreateProject(ctx, "p", "")
	require.NoError(t, err)

	_, err = store.InsertSpecifications(ctx, []model.Specification{
		{ProjectID: p.ID, Category: model.CategoryGoals, Key: "goal", Value: "ship", Content: "ship", Confidence: 0.9, Source: model.SourceExtracted},
		{ProjectID: p.ID, Category: model.CategoryGoals, Key: "bad", Value: "x", Content: "x", Confidence: 1.5, Source: model.SourceExtracted},
	}, nil)
	require.Error(t, err)
	var se *model.StorageError
	require.True(t, errors.As(err, &se))
	assert.False(t, se.Fatal)

	specs, err := store.Specifications(ctx, p.ID, model.SpecFilter{})
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestInsertSpecifications_UnknownQuestionRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	p, err := store.CreateProject(ctx, "p", "")
	require.NoError(t, err)

	_, err = store.InsertSpecifications(ctx, []model.Specification{
		{ProjectID: p.ID, Category: model.CategoryGoals, Key: "goal", Value: "ship", Content: "ship", Confidence: 0.9, Source: model.SourceExtracted},
	}, &model.AnswerRecord{QuestionID: "missing", Answer: "a", AnsweredAt: store.now()})
	require.ErrorIs(t, err, model.ErrNotFound)

	specs, err := store.Specifications(ctx, p.ID, model.SpecFilter{})
	require.NoError(t, err)
	assert.Empty(t, specs)
}

func TestSpecifications_FiltersAndLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	p, err := store.CreateProject(ctx, "p", "")
	require.NoError(t, err)
	for _, key := range []string{"a", "b", "c"} {
		_, err := store.InsertSpecifications(ctx, []model.Specification{
			{ProjectID: p.ID, Category: model.CategoryGoals, Key: key, Value: key, Content: key, Confidence: 0.9, Source: model.SourceExtracted},
		}, nil)
		require.NoError(t, err)
	}

	recent, err := store.Specifications(ctx, p.ID, model.SpecFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Key)
	assert.Equal(t, "b", recent[1].Key)

	tech, err := store.Specifications(ctx, p.ID, model.SpecFilter{Category: model.CategoryTechStack})
	require.NoError(t, err)
	assert.Empty(t, tech)
}

func TestResolveConflict_StateMachineAndSupersede(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	p, err := store.CreateProject(ctx, "p", "")
	require.NoError(t, err)
	existing, err := store.InsertSpecifications(ctx, []model.Specification{
		{ProjectID: p.ID, Category: model.CategoryTechStack, Key: "db", Value: "PostgreSQL", Content: "PostgreSQL", Confidence: 1, Source: model.SourceUserInput},
	}, nil)
	require.NoError(t, err)

	inserted, err := store.InsertConflicts(ctx, []model.Conflict{{
		ProjectID:   p.ID,
		Type:        model.ConflictTechnology,
		Severity:    model.SeverityHigh,
		Description: "PostgreSQL vs MongoDB",
		SpecIDs:     []string{existing[0].ID},
		Candidates:  []model.SpecCandidate{{Category: model.CategoryTechStack, Key: "db", Value: "MongoDB"}},
	}})
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	assert.Equal(t, model.ConflictOpen, inserted[0].Status)

	open, err := store.CountOpenConflicts(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, open)

	resolved, err := store.ResolveConflict(ctx, inserted[0].ID, model.ConflictResolution{
		Status:           model.ConflictResolved,
		Resolution:       "replace: moving to MongoDB",
		SupersedeSpecIDs: []string{existing[0].ID},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ConflictResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = store.ResolveConflict(ctx, inserted[0].ID, model.ConflictResolution{Status: model.ConflictIgnored, Resolution: "ignore"})
	assert.ErrorIs(t, err, model.ErrConflictNotOpen)

	current, err := store.Specifications(ctx, p.ID, model.CurrentOnly())
	require.NoError(t, err)
	assert.Empty(t, current)

	replacement, err := store.InsertSpecifications(ctx, []model.Specification{
		{ProjectID: p.ID, Category: model.CategoryTechStack, Key: "db", Value: "MongoDB", Content: "MongoDB", Confidence: 0.9, Source: model.SourceExtracted},
	}, nil)
	require.NoError(t, err)

	all, err := store.Specifications(ctx, p.ID, model.SpecFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	old := all[1]
	assert.Equal(t, existing[0].ID, old.ID)
	assert.False(t, old.IsCurrent)
	assert.Equal(t, replacement[0].ID, old.SupersededBy)
	assert.NotNil(t, old.SupersededAt)

	stored, err := store.Conflict(ctx, inserted[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "replace: moving to MongoDB", stored.Resolution)
	assert.Equal(t, []string{existing[0].ID}, stored.SpecIDs)
	require.Len(t, stored.Candidates, 1)
	assert.Equal(t, "MongoDB", stored.Candidates[0].Value)
}

func TestConflicts_OrderedNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	p, err := store.CreateProject(ctx, "p", "")
	require.NoError(t, err)
	for _, desc := range []string{"first", "second"} {
		_, err := store.InsertConflicts(ctx, []model.Conflict{{ProjectID: p.ID, Type: model.ConflictRequirement, Severity: model.SeverityLow, Description: desc}})
		require.NoError(t, err)
	}

	all, err := store.Conflicts(ctx, p.ID, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "second", all[0].Description)

	status := model.ConflictResolved
	resolved, err := store.Conflicts(ctx, p.ID, &status)
	require.NoError(t, err)
	assert.Empty(t, resolved)
}

func TestCommitAttempt_ScoresInsideTransaction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	p, err := store.CreateProject(ctx, "p", "")
	require.NoError(t, err)

	var seen int
	specs, score, err := store.CommitAttempt(ctx, p.ID, []model.Specification{
		{ProjectID: p.ID, Category: model.CategoryGoals, Key: "goal", Value: "ship", Content: "ship", Confidence: 0.9, Source: model.SourceExtracted},
	}, nil, func(current []model.Specification) int {
		seen = len(current)
		return 17
	})
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, 1, seen)
	assert.Equal(t, 17, score)

	got, err := store.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 17, got.MaturityScore)
}

func TestCommitAttempt_FailedMaturityWriteRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openTestStore(t)

	p, err := store.CreateProject(ctx, "p", "")
	require.NoError(t, err)
	_, err = store.DB().ExecContext(ctx, `CREATE TRIGGER fail_maturity BEFORE UPDATE OF maturity_score ON projects
		BEGIN SELECT RAISE(ABORT, 'disk full'); END`)
	require.NoError(t, err)

	_, _, err = store.CommitAttempt(ctx, p.ID, []model.Specification{
		{ProjectID: p.ID, Category: model.CategoryGoals, Key: "goal", Value: "ship", Content: "ship", Confidence: 0.9, Source: model.SourceExtracted},
	}, nil, func([]model.Specification) int { return 50 })
	var se *model.StorageError
	require.True(t, errors.As(err, &se))
	assert.False(t, se.Fatal)

	specs, err := store.Specifications(ctx, p.ID, model.SpecFilter{})
	require.NoError(t, err)
	assert.Empty(t, specs)
	got, err := store.Project(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.MaturityScore)
}
