// Package pipeline is the extraction pipeline: extract, conflict-check, commit
// and rescore, as one all-or-nothing attempt per user input. It is the only
// writer of specifications and of the project maturity score.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/metalagman/socratic/internal/config"
	"github.com/metalagman/socratic/internal/conflict"
	"github.com/metalagman/socratic/internal/extract"
	"github.com/metalagman/socratic/internal/lock"
	"github.com/metalagman/socratic/internal/maturity"
	"github.com/metalagman/socratic/internal/model"
	"github.com/metalagman/socratic/internal/quality"
	"github.com/metalagman/socratic/internal/templates"
	"github.com/metalagman/socratic/internal/validate"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/metalagman/socratic/internal/pipeline")

// Store is the persistence the pipeline needs.
type Store interface {
	Project(ctx context.Context, id string) (model.Project, error)
	Session(ctx context.Context, id string) (model.Session, error)
	Question(ctx context.Context, id string) (model.Question, error)
	Specifications(ctx context.Context, projectID string, filter model.SpecFilter) ([]model.Specification, error)
	CommitAttempt(
		ctx context.Context,
		projectID string,
		specs []model.Specification,
		answer *model.AnswerRecord,
		score func(current []model.Specification) int,
	) ([]model.Specification, int, error)
	UpdateProjectMaturity(ctx context.Context, id string, score int) error
	CountOpenConflicts(ctx context.Context, projectID string) (int, error)
	InsertGeneration(ctx context.Context, projectID, content string) (model.Generation, error)
}

// Result is the outcome of one attempt.
type Result struct {
	Committed     bool                  `json:"committed"`
	Specs         []model.Specification `json:"specs,omitempty"`
	Conflicts     []model.Conflict      `json:"conflicts,omitempty"`
	MaturityScore int                   `json:"maturity_score"`
}

// Options tune the pipeline.
type Options struct {
	// ConflictCheckPolicy is config.PolicyFailClosed or config.PolicyFailOpen.
	ConflictCheckPolicy string
	ExistingSampleSize  int
	EnforceCoverage     bool
}

// Pipeline sequences the extraction attempt and the generation request.
type Pipeline struct {
	store     Store
	extractor *extract.Extractor
	detector  *conflict.Detector
	scorer    *maturity.Scorer
	gate      *maturity.Gate
	coverage  *quality.CoverageChecker
	generator *Generator
	templates *templates.Registry
	locks     *lock.Locker
	validate  *validate.Validator
	opts      Options
	now       func() time.Time
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Store     Store
	Extractor *extract.Extractor
	Detector  *conflict.Detector
	Scorer    *maturity.Scorer
	Coverage  *quality.CoverageChecker
	Generator *Generator
	Templates *templates.Registry
	Locks     *lock.Locker
}

// New creates a pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if opts.ConflictCheckPolicy == "" {
		opts.ConflictCheckPolicy = config.PolicyFailClosed
	}
	if opts.ExistingSampleSize <= 0 {
		opts.ExistingSampleSize = extract.DefaultSampleSize
	}
	scorer := deps.Scorer
	if scorer == nil {
		scorer = maturity.NewScorer(nil)
	}
	locks := deps.Locks
	if locks == nil {
		locks = lock.New("")
	}
	return &Pipeline{
		store:     deps.Store,
		extractor: deps.Extractor,
		detector:  deps.Detector,
		scorer:    scorer,
		gate:      maturity.NewGate(scorer),
		coverage:  deps.Coverage,
		generator: deps.Generator,
		templates: deps.Templates,
		locks:     locks,
		validate:  validate.New(),
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// attempt is one pass from candidates to commit.
type attempt struct {
	projectID  string
	sessionID  string
	questionID string
	source     model.Source
	candidates []model.SpecCandidate
	answer     *model.AnswerRecord
}

// SubmitAnswer extracts specifications from an answer and commits them unless
// they conflict with accepted specifications.
func (p *Pipeline) SubmitAnswer(ctx context.Context, in SubmitAnswerInput) (Result, error) {
	if err := p.check(in); err != nil {
		return Result{}, err
	}
	started := time.Now()

	sess, err := p.activeSession(ctx, in.SessionID)
	if err != nil {
		return Result{}, err
	}
	q, err := p.store.Question(ctx, in.QuestionID)
	if err != nil {
		return Result{}, err
	}
	if q.SessionID != sess.ID {
		return Result{}, &model.ValidationError{Field: "question_id", Reason: "does not belong to the session"}
	}
	sample, err := p.store.Specifications(ctx, sess.ProjectID, p.sampleFilter())
	if err != nil {
		return Result{}, err
	}

	candidates, err := p.extractor.Extract(ctx, extract.Request{
		QuestionText: q.Text,
		Category:     q.Category,
		Answer:       in.Answer,
		Existing:     sample,
	})
	if err != nil {
		p.finish(sess.ProjectID, "extract", started, Result{}, err)
		return Result{}, err
	}

	return p.run(ctx, attempt{
		projectID:  sess.ProjectID,
		sessionID:  sess.ID,
		questionID: q.ID,
		source:     model.SourceExtracted,
		candidates: candidates,
		answer:     &model.AnswerRecord{QuestionID: q.ID, Answer: in.Answer, AnsweredAt: p.now()},
	}, started)
}

// SubmitTurn extracts specifications from a free conversation turn.
func (p *Pipeline) SubmitTurn(ctx context.Context, in SubmitTurnInput) (Result, error) {
	if err := p.check(in); err != nil {
		return Result{}, err
	}
	started := time.Now()

	sess, err := p.activeSession(ctx, in.SessionID)
	if err != nil {
		return Result{}, err
	}
	sample, err := p.store.Specifications(ctx, sess.ProjectID, p.sampleFilter())
	if err != nil {
		return Result{}, err
	}
	candidates, err := p.extractor.ExtractTurn(ctx, in.Text, sample)
	if err != nil {
		p.finish(sess.ProjectID, "extract", started, Result{}, err)
		return Result{}, err
	}
	return p.run(ctx, attempt{
		projectID:  sess.ProjectID,
		sessionID:  sess.ID,
		source:     model.SourceExtracted,
		candidates: candidates,
	}, started)
}

// AddUserSpecification commits a specification typed in by the user at full confidence.
func (p *Pipeline) AddUserSpecification(ctx context.Context, in AddSpecificationInput) (Result, error) {
	if err := p.check(in); err != nil {
		return Result{}, err
	}
	if _, err := p.store.Project(ctx, in.ProjectID); err != nil {
		return Result{}, err
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		content = strings.TrimSpace(in.Value)
	}
	return p.run(ctx, attempt{
		projectID: in.ProjectID,
		source:    model.SourceUserInput,
		candidates: []model.SpecCandidate{{
			Category:   model.NormalizeCategory(in.Category),
			Key:        strings.TrimSpace(in.Key),
			Value:      strings.TrimSpace(in.Value),
			Content:    content,
			Confidence: model.UserInputConfidence,
		}},
	}, time.Now())
}

// ApplyTemplate commits the items of a named template.
func (p *Pipeline) ApplyTemplate(ctx context.Context, in ApplyTemplateInput) (Result, error) {
	if err := p.check(in); err != nil {
		return Result{}, err
	}
	if p.templates == nil {
		return Result{}, errors.New("no template registry configured")
	}
	tpl, err := p.templates.Get(in.Template)
	if err != nil {
		return Result{}, err
	}
	if _, err := p.store.Project(ctx, in.ProjectID); err != nil {
		return Result{}, err
	}
	return p.run(ctx, attempt{
		projectID:  in.ProjectID,
		source:     model.SourceTemplate,
		candidates: tpl.Candidates(),
	}, time.Now())
}

func (p *Pipeline) activeSession(ctx context.Context, id string) (model.Session, error) {
	sess, err := p.store.Session(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	if sess.Status != model.SessionActive {
		return model.Session{}, &model.ValidationError{Field: "session_id", Reason: "session is " + sess.Status}
	}
	return sess, nil
}

func (p *Pipeline) sampleFilter() model.SpecFilter {
	f := model.CurrentOnly()
	f.Limit = p.opts.ExistingSampleSize
	return f
}

// run executes the conflict-check, commit and rescore steps under the project
// lock, so concurrent attempts for one project never check against a stale baseline.
func (p *Pipeline) run(ctx context.Context, a attempt, started time.Time) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "pipeline.attempt")
	defer span.End()
	span.SetAttributes(
		attribute.String("project.id", a.projectID),
		attribute.String("spec.source", string(a.source)),
		attribute.Int("candidates", len(a.candidates)),
	)

	stage := "lock"
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "attempt failed")
		}
		span.SetAttributes(attribute.Bool("committed", res.Committed))
		p.finish(a.projectID, stage, started, res, err)
	}()

	held, err := p.locks.Acquire(ctx, a.projectID)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if rerr := held.Release(); rerr != nil {
			log.Warn().Err(rerr).Str("project_id", a.projectID).Msg("release project lock")
		}
	}()

	stage = "load"
	project, err := p.store.Project(ctx, a.projectID)
	if err != nil {
		return Result{}, err
	}
	existing, err := p.store.Specifications(ctx, a.projectID, model.CurrentOnly())
	if err != nil {
		return Result{}, err
	}

	stage = "conflict check"
	report, err := p.detector.Detect(ctx, a.projectID, a.candidates, existing)
	if err != nil {
		if !p.failOpen(err) {
			return Result{}, err
		}
		log.Warn().Err(err).Str("project_id", a.projectID).Str("policy", config.PolicyFailOpen).
			Msg("conflict check failed, committing without it")
		report = conflict.Report{SafeToCommit: true}
	}
	if !report.SafeToCommit {
		return Result{Conflicts: report.Conflicts, MaturityScore: project.MaturityScore}, nil
	}

	stage = "commit"
	specs := make([]model.Specification, 0, len(a.candidates))
	for _, c := range a.candidates {
		specs = append(specs, model.Specification{
			ProjectID:  a.projectID,
			SessionID:  a.sessionID,
			QuestionID: a.questionID,
			Category:   c.Category,
			Key:        c.Key,
			Value:      c.Value,
			Content:    c.Content,
			Confidence: c.Confidence,
			Source:     a.source,
			Reasoning:  c.Reasoning,
		})
	}
	// The rescore runs in the commit transaction, so a failed maturity write
	// leaves the attempt uncommitted and safe to retry.
	committed, score, err := p.store.CommitAttempt(ctx, a.projectID, specs, a.answer, p.scorer.Score)
	if err != nil {
		return Result{}, err
	}
	return Result{Committed: true, Specs: committed, MaturityScore: score}, nil
}

// failOpen reports whether a detector error may be bypassed. Storage failures
// never are.
func (p *Pipeline) failOpen(err error) bool {
	if p.opts.ConflictCheckPolicy != config.PolicyFailOpen {
		return false
	}
	var oe *model.OracleError
	var pe *model.ParseError
	return errors.As(err, &oe) || errors.As(err, &pe)
}

// rescore recomputes the maturity from the committed current set. Callers hold the project lock.
func (p *Pipeline) rescore(ctx context.Context, projectID string) (int, error) {
	current, err := p.store.Specifications(ctx, projectID, model.CurrentOnly())
	if err != nil {
		return 0, err
	}
	score := p.scorer.Score(current)
	if err := p.store.UpdateProjectMaturity(ctx, projectID, score); err != nil {
		return 0, err
	}
	return score, nil
}

// Rescore recomputes and stores a project's maturity score.
func (p *Pipeline) Rescore(ctx context.Context, projectID string) (int, error) {
	held, err := p.locks.Acquire(ctx, projectID)
	if err != nil {
		return 0, err
	}
	defer func() { _ = held.Release() }()
	return p.rescore(ctx, projectID)
}

func (p *Pipeline) finish(projectID, stage string, started time.Time, res Result, err error) {
	outcome := "committed"
	event := log.Info()
	switch {
	case err != nil:
		outcome = "error"
		event = log.Warn().Err(err).Str("stage", stage).Bool("retryable", model.Retryable(err))
		var pe *model.ParseError
		var oe *model.OracleError
		switch {
		case errors.As(err, &pe):
			event = event.Str("reason", "oracle response unparseable")
		case errors.As(err, &oe):
			event = event.Str("reason", "oracle call failed").Bool("timeout", oe.Timeout())
		}
	case !res.Committed:
		outcome = "conflicts"
	}
	event.
		Str("project_id", projectID).
		Str("outcome", outcome).
		Int("specs", len(res.Specs)).
		Int("conflicts", len(res.Conflicts)).
		Int("maturity", res.MaturityScore).
		Dur("duration", time.Since(started)).
		Msg("attempt finished")
}

// ResolveConflict applies a user's decision. A replace resolution retires the
// implicated specifications and rescores the project.
func (p *Pipeline) ResolveConflict(ctx context.Context, in ResolveConflictInput) (model.Conflict, int, error) {
	if err := p.check(in); err != nil {
		return model.Conflict{}, 0, err
	}
	current, err := p.detector.Get(ctx, in.ConflictID)
	if err != nil {
		return model.Conflict{}, 0, err
	}

	held, err := p.locks.Acquire(ctx, current.ProjectID)
	if err != nil {
		return model.Conflict{}, 0, err
	}
	defer func() { _ = held.Release() }()

	resolved, err := p.detector.Resolve(ctx, in.ConflictID, in.Kind, in.Notes)
	if err != nil {
		return model.Conflict{}, 0, err
	}
	log.Info().Str("conflict_id", resolved.ID).Str("project_id", resolved.ProjectID).
		Str("status", string(resolved.Status)).Msg("conflict resolved")

	if in.Kind != model.ResolutionReplace {
		project, err := p.store.Project(ctx, resolved.ProjectID)
		if err != nil {
			return resolved, 0, err
		}
		return resolved, project.MaturityScore, nil
	}
	score, err := p.rescore(ctx, resolved.ProjectID)
	return resolved, score, err
}

// Conflicts lists a project's conflicts, newest first.
func (p *Pipeline) Conflicts(ctx context.Context, projectID string, status *model.ConflictStatus) ([]model.Conflict, error) {
	if err := p.check(ProjectInput{ProjectID: projectID}); err != nil {
		return nil, err
	}
	return p.detector.List(ctx, projectID, status)
}

// Conflict returns one conflict.
func (p *Pipeline) Conflict(ctx context.Context, id string) (model.Conflict, error) {
	return p.detector.Get(ctx, id)
}
