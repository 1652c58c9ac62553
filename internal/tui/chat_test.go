package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/metalagman/socratic/internal/model"
	"github.com/metalagman/socratic/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAsker struct {
	questions []model.Question
	asked     int
	completed bool
}

func (f *fakeAsker) NextQuestion(context.Context, string) (model.Question, error) {
	if f.asked >= len(f.questions) {
		return model.Question{}, errors.New("no more questions")
	}
	q := f.questions[f.asked]
	f.asked++
	return q, nil
}

func (f *fakeAsker) CompleteSession(_ context.Context, id string) (model.Session, error) {
	f.completed = true
	return model.Session{ID: id, Status: model.SessionCompleted}, nil
}

type fakeAnswerer struct {
	results []pipeline.Result
	errs    []error
	inputs  []pipeline.SubmitAnswerInput
}

func (f *fakeAnswerer) SubmitAnswer(_ context.Context, in pipeline.SubmitAnswerInput) (pipeline.Result, error) {
	i := len(f.inputs)
	f.inputs = append(f.inputs, in)
	if i < len(f.errs) && f.errs[i] != nil {
		return pipeline.Result{}, f.errs[i]
	}
	return f.results[i], nil
}

func step(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func typeAndSend(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	return step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
}

func TestChat_AnswerCommitsAndAsksAgain(t *testing.T) {
	t.Parallel()
	asker := &fakeAsker{questions: []model.Question{
		{ID: "q1", Category: model.CategoryGoals, Text: "Who is it for?"},
		{ID: "q2", Category: model.CategorySecurity, Text: "How do users sign in?"},
	}}
	answerer := &fakeAnswerer{results: []pipeline.Result{{
		Committed:     true,
		Specs:         []model.Specification{{Category: model.CategoryGoals, Key: "audience", Value: "retailers"}},
		MaturityScore: 1,
	}}}
	m := New(context.Background(), asker, answerer, model.Project{Name: "shop"}, "s1")

	m, _ = step(t, m, m.fetchQuestion()())
	require.NotNil(t, m.question)
	assert.Equal(t, "q1", m.question.ID)
	assert.Contains(t, m.View(), "Who is it for?")

	m, cmd := typeAndSend(t, m, "  retailers ")
	require.NotNil(t, cmd)
	assert.True(t, m.busy)
	m, cmd = step(t, m, cmd())
	require.Len(t, answerer.inputs, 1)
	assert.Equal(t, pipeline.SubmitAnswerInput{SessionID: "s1", QuestionID: "q1", Answer: "retailers"}, answerer.inputs[0])
	assert.Equal(t, 1, m.maturity)
	assert.Contains(t, m.View(), "goals/audience: retailers")

	require.NotNil(t, cmd)
	m, _ = step(t, m, cmd())
	assert.Equal(t, "q2", m.question.ID)
	assert.False(t, m.busy)
}

func TestChat_ConflictKeepsQuestion(t *testing.T) {
	t.Parallel()
	asker := &fakeAsker{questions: []model.Question{{ID: "q1", Category: model.CategoryTechStack, Text: "Which database?"}}}
	answerer := &fakeAnswerer{results: []pipeline.Result{{
		Conflicts: []model.Conflict{{Type: model.ConflictTechnology, Severity: model.SeverityHigh, Description: "PostgreSQL vs MongoDB"}},
	}}}
	m := New(context.Background(), asker, answerer, model.Project{Name: "shop"}, "s1")
	m, _ = step(t, m, m.fetchQuestion()())

	m, cmd := typeAndSend(t, m, "MongoDB")
	m, cmd = step(t, m, cmd())
	assert.Nil(t, cmd)
	assert.Equal(t, "q1", m.question.ID)
	assert.Contains(t, m.View(), "PostgreSQL vs MongoDB")
	assert.Equal(t, 1, asker.asked)
}

func TestChat_RetryableErrorRestoresAnswer(t *testing.T) {
	t.Parallel()
	asker := &fakeAsker{questions: []model.Question{{ID: "q1", Text: "Why?"}}}
	answerer := &fakeAnswerer{
		errs:    []error{&model.OracleError{Op: "extract", Err: context.DeadlineExceeded}},
		results: []pipeline.Result{{}},
	}
	m := New(context.Background(), asker, answerer, model.Project{Name: "shop"}, "s1")
	m, _ = step(t, m, m.fetchQuestion()())

	m, cmd := typeAndSend(t, m, "because")
	m, _ = step(t, m, cmd())
	assert.False(t, m.busy)
	assert.Equal(t, "because", m.input.Value())
	assert.Contains(t, m.View(), "press Enter to retry")
}

func TestChat_DoneCompletesSession(t *testing.T) {
	t.Parallel()
	asker := &fakeAsker{questions: []model.Question{{ID: "q1", Text: "Why?"}}}
	m := New(context.Background(), asker, &fakeAnswerer{}, model.Project{Name: "shop", MaturityScore: 40}, "s1")
	m, _ = step(t, m, m.fetchQuestion()())

	m, cmd := typeAndSend(t, m, "/done")
	require.NotNil(t, cmd)
	m, cmd = step(t, m, cmd())
	assert.True(t, asker.completed)
	assert.True(t, m.done)
	assert.Contains(t, m.View(), "Session completed at maturity 40%")
	_, isQuit := cmd().(tea.QuitMsg)
	assert.True(t, isQuit)
}

func TestChat_IgnoresEnterWhileBusy(t *testing.T) {
	t.Parallel()
	m := New(context.Background(), &fakeAsker{}, &fakeAnswerer{}, model.Project{Name: "shop"}, "s1")
	_, cmd := typeAndSend(t, m, "hello")
	assert.Nil(t, cmd)
}
