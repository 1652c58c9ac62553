package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/metalagman/socratic/internal/model"
	"github.com/rs/zerolog/log"
)

// Store provides persistence for projects, sessions, questions, specifications,
// conflicts and generations.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a store on an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateProject inserts a new project with a zero maturity score.
func (s *Store) CreateProject(ctx context.Context, name, description string) (model.Project, error) {
	now := s.now()
	p := model.Project{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  description,
		CurrentPhase: "discovery",
		Status:       "active",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO projects(id, name, description, maturity_score, current_phase, status, created_at, updated_at)
		VALUES(?, ?, ?, 0, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.CurrentPhase, p.Status, formatTime(now), formatTime(now)); err != nil {
		return model.Project{}, storageErr("insert project", err)
	}
	return p, nil
}

// Project fetches a project by id.
func (s *Store) Project(ctx context.Context, id string) (model.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, description, maturity_score, current_phase, status, created_at, updated_at
		FROM projects WHERE id=?`, id)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Project{}, fmt.Errorf("project %s: %w", id, model.ErrNotFound)
		}
		return model.Project{}, storageErr("read project", err)
	}
	return p, nil
}

// Projects lists all projects ordered by creation time.
func (s *Store) Projects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, maturity_score, current_phase, status, created_at, updated_at
		FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, storageErr("query projects", err)
	}
	defer rows.Close()
	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, storageErr("scan project", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate projects", err)
	}
	return out, nil
}

// UpdateProjectMaturity stores a recomputed maturity score.
func (s *Store) UpdateProjectMaturity(ctx context.Context, id string, score int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET maturity_score=?, updated_at=? WHERE id=?`,
		score, formatTime(s.now()), id)
	if err != nil {
		return storageErr("update project maturity", err)
	}
	return requireAffected(res, "project", id)
}

// CreateSession starts a new session for a project.
func (s *Store) CreateSession(ctx context.Context, projectID string) (model.Session, error) {
	sess := model.Session{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Status:    model.SessionActive,
		StartedAt: s.now(),
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO sessions(id, project_id, status, started_at) VALUES(?, ?, ?, ?)`,
		sess.ID, sess.ProjectID, sess.Status, formatTime(sess.StartedAt)); err != nil {
		return model.Session{}, storageErr("insert session", err)
	}
	return sess, nil
}

// Session fetches a session by id.
func (s *Store) Session(ctx context.Context, id string) (model.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, project_id, status, started_at, completed_at FROM sessions WHERE id=?`, id)
	var sess model.Session
	var startedAt string
	var completedAt sql.NullString
	if err := row.Scan(&sess.ID, &sess.ProjectID, &sess.Status, &startedAt, &completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Session{}, fmt.Errorf("session %s: %w", id, model.ErrNotFound)
		}
		return model.Session{}, storageErr("read session", err)
	}
	sess.StartedAt = parseTime(startedAt)
	sess.CompletedAt = parseNullTime(completedAt)
	return sess, nil
}

// CompleteSession marks a session completed.
func (s *Store) CompleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET status=?, completed_at=? WHERE id=?`,
		model.SessionCompleted, formatTime(s.now()), id)
	if err != nil {
		return storageErr("complete session", err)
	}
	return requireAffected(res, "session", id)
}

// InsertQuestion stores a question asked in a session.
func (s *Store) InsertQuestion(ctx context.Context, q model.Question) (model.Question, error) {
	q.ID = uuid.NewString()
	if q.AskedAt.IsZero() {
		q.AskedAt = s.now()
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO questions(id, session_id, text, category, bias_score, asked_at) VALUES(?, ?, ?, ?, ?, ?)`,
		q.ID, q.SessionID, q.Text, string(q.Category), q.BiasScore, formatTime(q.AskedAt)); err != nil {
		return model.Question{}, storageErr("insert question", err)
	}
	return q, nil
}

// Question fetches a question by id.
func (s *Store) Question(ctx context.Context, id string) (model.Question, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, session_id, text, category, bias_score, answer, asked_at, answered_at
		FROM questions WHERE id=?`, id)
	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Question{}, fmt.Errorf("question %s: %w", id, model.ErrNotFound)
		}
		return model.Question{}, storageErr("read question", err)
	}
	return q, nil
}

// Questions lists the questions of a session in the order they were asked.
func (s *Store) Questions(ctx context.Context, sessionID string) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, text, category, bias_score, answer, asked_at, answered_at
		FROM questions WHERE session_id=? ORDER BY asked_at, id`, sessionID)
	if err != nil {
		return nil, storageErr("query questions", err)
	}
	defer rows.Close()
	var out []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, storageErr("scan question", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate questions", err)
	}
	return out, nil
}

// InsertGeneration stores a generation output.
func (s *Store) InsertGeneration(ctx context.Context, projectID, content string) (model.Generation, error) {
	g := model.Generation{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Content:   content,
		CreatedAt: s.now(),
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO generations(id, project_id, content, created_at) VALUES(?, ?, ?, ?)`,
		g.ID, g.ProjectID, g.Content, formatTime(g.CreatedAt)); err != nil {
		return model.Generation{}, storageErr("insert generation", err)
	}
	return g, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (model.Project, error) {
	var p model.Project
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.MaturityScore, &p.CurrentPhase, &p.Status, &createdAt, &updatedAt); err != nil {
		return model.Project{}, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

func scanQuestion(row scanner) (model.Question, error) {
	var q model.Question
	var category, askedAt string
	var answer, answeredAt sql.NullString
	if err := row.Scan(&q.ID, &q.SessionID, &q.Text, &category, &q.BiasScore, &answer, &askedAt, &answeredAt); err != nil {
		return model.Question{}, err
	}
	q.Category = model.Category(category)
	q.Answer = answer.String
	q.AskedAt = parseTime(askedAt)
	q.AnsweredAt = parseNullTime(answeredAt)
	return q, nil
}

// rollback aborts tx after cause. A failed rollback is a fatal inconsistency.
func rollback(tx *sql.Tx, op string, cause error) error {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Error().Err(err).AnErr("cause", cause).Str("op", op).Bool("fatal_inconsistency", true).Msg("rollback failed")
		return &model.StorageError{Op: op, Err: errors.Join(cause, err), Fatal: true}
	}
	var se *model.StorageError
	if errors.As(cause, &se) {
		return cause
	}
	if errors.Is(cause, model.ErrNotFound) || errors.Is(cause, model.ErrConflictNotOpen) {
		return cause
	}
	return &model.StorageError{Op: op, Err: cause}
}

func storageErr(op string, err error) error {
	return &model.StorageError{Op: op, Err: err}
}

func requireAffected(res sql.Result, kind, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return storageErr("rows affected", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, model.ErrNotFound)
	}
	return nil
}

// timeLayout is fixed-width so that TEXT ordering matches chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullTime(value sql.NullString) *time.Time {
	if !value.Valid || value.String == "" {
		return nil
	}
	t := parseTime(value.String)
	return &t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
