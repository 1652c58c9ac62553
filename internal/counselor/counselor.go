// Package counselor runs the Socratic side of a session: it manages projects and
// sessions and picks the next question to ask.
package counselor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/metalagman/socratic/internal/maturity"
	"github.com/metalagman/socratic/internal/model"
	"github.com/metalagman/socratic/internal/oracle"
	"github.com/metalagman/socratic/internal/quality"
	"github.com/metalagman/socratic/internal/validate"
	"github.com/rs/zerolog/log"
)

// Store is the persistence the counselor needs.
type Store interface {
	CreateProject(ctx context.Context, name, description string) (model.Project, error)
	Project(ctx context.Context, id string) (model.Project, error)
	Projects(ctx context.Context) ([]model.Project, error)
	CreateSession(ctx context.Context, projectID string) (model.Session, error)
	Session(ctx context.Context, id string) (model.Session, error)
	CompleteSession(ctx context.Context, id string) error
	InsertQuestion(ctx context.Context, q model.Question) (model.Question, error)
	Questions(ctx context.Context, sessionID string) ([]model.Question, error)
	Specifications(ctx context.Context, projectID string, filter model.SpecFilter) ([]model.Specification, error)
}

// CreateProjectInput names a new project.
type CreateProjectInput struct {
	Name        string `json:"name"                  validate:"required,notblank,max=200" jsonschema:"project name"`
	Description string `json:"description,omitempty" validate:"max=2000"                  jsonschema:"what the project is about"`
}

// AddQuestionInput is a question written by the user instead of the oracle.
type AddQuestionInput struct {
	SessionID string `json:"session_id" validate:"required,uuid"      jsonschema:"active session"`
	Text      string `json:"text"       validate:"required,notblank" jsonschema:"question text"`
	Category  string `json:"category"   validate:"required,notblank" jsonschema:"category the question explores"`
}

// BiasRejectedError is returned when a question is too biased to be asked.
type BiasRejectedError struct {
	Result quality.BiasResult
}

func (e *BiasRejectedError) Error() string {
	return fmt.Sprintf("question rejected: bias score %.2f (%s)", e.Result.Score, joinTypes(e.Result.Types))
}

func joinTypes(types []quality.BiasType) string {
	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, string(t))
	}
	return strings.Join(parts, ", ")
}

// Counselor manages projects, sessions and questions.
type Counselor struct {
	store    Store
	oracle   oracle.Oracle
	bias     *quality.BiasChecker
	scorer   *maturity.Scorer
	validate *validate.Validator
}

// New creates a counselor. A nil scorer selects the canonical taxonomy.
func New(store Store, o oracle.Oracle, bias *quality.BiasChecker, scorer *maturity.Scorer) *Counselor {
	if bias == nil {
		bias = quality.NewBiasChecker(0)
	}
	if scorer == nil {
		scorer = maturity.NewScorer(nil)
	}
	return &Counselor{store: store, oracle: o, bias: bias, scorer: scorer, validate: validate.New()}
}

// CreateProject stores a new project at maturity zero.
func (c *Counselor) CreateProject(ctx context.Context, in CreateProjectInput) (model.Project, error) {
	if err := c.validate.Struct(in); err != nil {
		return model.Project{}, err
	}
	p, err := c.store.CreateProject(ctx, strings.TrimSpace(in.Name), strings.TrimSpace(in.Description))
	if err != nil {
		return model.Project{}, err
	}
	log.Info().Str("project_id", p.ID).Str("name", p.Name).Msg("project created")
	return p, nil
}

// Project returns one project.
func (c *Counselor) Project(ctx context.Context, id string) (model.Project, error) {
	if err := c.validate.ID("project_id", id); err != nil {
		return model.Project{}, err
	}
	return c.store.Project(ctx, id)
}

// Projects lists all projects.
func (c *Counselor) Projects(ctx context.Context) ([]model.Project, error) {
	return c.store.Projects(ctx)
}

// StartSession opens an active session on a project.
func (c *Counselor) StartSession(ctx context.Context, projectID string) (model.Session, error) {
	if err := c.validate.ID("project_id", projectID); err != nil {
		return model.Session{}, err
	}
	if _, err := c.store.Project(ctx, projectID); err != nil {
		return model.Session{}, err
	}
	sess, err := c.store.CreateSession(ctx, projectID)
	if err != nil {
		return model.Session{}, err
	}
	log.Info().Str("project_id", projectID).Str("session_id", sess.ID).Msg("session started")
	return sess, nil
}

// CompleteSession closes a session. Completed sessions accept no further answers.
func (c *Counselor) CompleteSession(ctx context.Context, sessionID string) (model.Session, error) {
	sess, err := c.activeSession(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}
	if err := c.store.CompleteSession(ctx, sess.ID); err != nil {
		return model.Session{}, err
	}
	return c.store.Session(ctx, sess.ID)
}

// Questions lists the questions of a session.
func (c *Counselor) Questions(ctx context.Context, sessionID string) ([]model.Question, error) {
	if err := c.validate.ID("session_id", sessionID); err != nil {
		return nil, err
	}
	return c.store.Questions(ctx, sessionID)
}

// CheckQuestion scores question without storing anything.
func (c *Counselor) CheckQuestion(question string, category model.Category) quality.BiasResult {
	return c.bias.Score(question, category)
}

// AddQuestion stores a user-written question. A biased question is rejected
// with *BiasRejectedError and nothing is stored.
func (c *Counselor) AddQuestion(ctx context.Context, in AddQuestionInput) (model.Question, error) {
	if err := c.validate.Struct(in); err != nil {
		return model.Question{}, err
	}
	sess, err := c.activeSession(ctx, in.SessionID)
	if err != nil {
		return model.Question{}, err
	}
	category := model.NormalizeCategory(in.Category)
	res := c.bias.Score(in.Text, category)
	if res.Blocked {
		return model.Question{}, &BiasRejectedError{Result: res}
	}
	return c.store.InsertQuestion(ctx, model.Question{
		SessionID: sess.ID,
		Text:      strings.TrimSpace(in.Text),
		Category:  category,
		BiasScore: res.Score,
	})
}

const questionSchema = `{
  "type": "object",
  "required": ["question"],
  "properties": {
    "question": {"type": "string", "minLength": 1},
    "category": {"type": "string"}
  }
}`

type generatedQuestion struct {
	Question string `json:"question"`
	Category string `json:"category"`
}

// NextQuestion asks the oracle for a neutral question about the category with
// the largest coverage gap. A biased or unusable suggestion is replaced by the
// templated question for that category.
func (c *Counselor) NextQuestion(ctx context.Context, sessionID string) (model.Question, error) {
	sess, err := c.activeSession(ctx, sessionID)
	if err != nil {
		return model.Question{}, err
	}
	project, err := c.store.Project(ctx, sess.ProjectID)
	if err != nil {
		return model.Question{}, err
	}
	specs, err := c.store.Specifications(ctx, project.ID, model.CurrentOnly())
	if err != nil {
		return model.Question{}, err
	}
	asked, err := c.store.Questions(ctx, sess.ID)
	if err != nil {
		return model.Question{}, err
	}

	category := c.focus(specs)
	text, err := c.generate(ctx, project, category, specs, asked)
	if err != nil {
		var oe *model.OracleError
		var pe *model.ParseError
		if !errors.As(err, &oe) && !errors.As(err, &pe) {
			return model.Question{}, err
		}
		log.Warn().Err(err).Str("session_id", sess.ID).Str("category", string(category)).
			Msg("question generation failed, using templated question")
		text = quality.NeutralQuestion(category)
	}

	res := c.bias.Score(text, category)
	if res.Blocked {
		log.Info().Str("session_id", sess.ID).Float64("bias_score", res.Score).
			Msg("generated question rejected as biased")
		text = quality.NeutralQuestion(category)
		res = c.bias.Score(text, category)
	}
	return c.store.InsertQuestion(ctx, model.Question{
		SessionID: sess.ID,
		Text:      text,
		Category:  category,
		BiasScore: res.Score,
	})
}

// focus returns the category furthest from its target. Ties go to table order.
func (c *Counselor) focus(specs []model.Specification) model.Category {
	var best model.Category
	bestGap := -1.0
	for _, cs := range c.scorer.Breakdown(specs).Categories {
		if gap := cs.Target - cs.Capped; gap > bestGap {
			best, bestGap = cs.Category, gap
		}
	}
	return best
}

func (c *Counselor) generate(ctx context.Context, project model.Project, category model.Category, specs []model.Specification, asked []model.Question) (string, error) {
	var b strings.Builder
	b.WriteString("You are a Socratic requirements counselor. Ask exactly one open, neutral question ")
	b.WriteString("that helps the user clarify their project. Never suggest a technology or solution, ")
	b.WriteString("never presume the answer.\n\n")
	fmt.Fprintf(&b, "Project: %s\n", project.Name)
	if project.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", project.Description)
	}
	fmt.Fprintf(&b, "Category to explore: %s\n", category)

	known := 0
	for _, s := range specs {
		if s.Category != category {
			continue
		}
		if known == 0 {
			b.WriteString("\nAlready known in this category:\n")
		}
		fmt.Fprintf(&b, "- %s: %s\n", s.Key, s.Value)
		known++
	}
	if len(asked) > 0 {
		b.WriteString("\nQuestions already asked (do not repeat them):\n")
		for _, q := range asked {
			fmt.Fprintf(&b, "- %s\n", q.Text)
		}
	}
	b.WriteString("\nRespond with JSON only: {\"question\": \"...\", \"category\": \"")
	b.WriteString(string(category))
	b.WriteString("\"}\n")

	raw, err := oracle.Call(ctx, c.oracle, "question", b.String())
	if err != nil {
		return "", err
	}
	var out generatedQuestion
	if err := oracle.DecodeJSON("question", raw, questionSchema, &out); err != nil {
		return "", err
	}
	text := strings.TrimSpace(out.Question)
	if text == "" {
		return "", &model.ParseError{Op: "question", Raw: raw, Err: errors.New("empty question")}
	}
	return text, nil
}

func (c *Counselor) activeSession(ctx context.Context, id string) (model.Session, error) {
	if err := c.validate.ID("session_id", id); err != nil {
		return model.Session{}, err
	}
	sess, err := c.store.Session(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	if sess.Status != model.SessionActive {
		return model.Session{}, &model.ValidationError{Field: "session_id", Reason: "session is " + sess.Status}
	}
	return sess, nil
}
