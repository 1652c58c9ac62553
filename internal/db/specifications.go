package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/metalagman/socratic/internal/model"
)

const specColumns = `id, project_id, session_id, question_id, category, key, value, content, confidence, source, reasoning,
	is_current, superseded_by, superseded_at, created_at`

// Specifications returns a project's specifications, most recent first.
func (s *Store) Specifications(ctx context.Context, projectID string, filter model.SpecFilter) ([]model.Specification, error) {
	return querySpecifications(ctx, s.db, projectID, filter)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func querySpecifications(ctx context.Context, q querier, projectID string, filter model.SpecFilter) ([]model.Specification, error) {
	query := `SELECT ` + specColumns + ` FROM specifications WHERE project_id=?`
	args := []any{projectID}
	if filter.IsCurrent != nil {
		query += " AND is_current=?"
		args = append(args, boolInt(*filter.IsCurrent))
	}
	if filter.Category != "" {
		query += " AND category=?"
		args = append(args, string(filter.Category))
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query specifications", err)
	}
	defer rows.Close()
	var out []model.Specification
	for rows.Next() {
		spec, err := scanSpecification(rows)
		if err != nil {
			return nil, storageErr("scan specification", err)
		}
		out = append(out, spec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate specifications", err)
	}
	return out, nil
}

// InsertSpecifications commits a batch of specifications atomically. When answer
// is set, the answer is recorded on its question in the same transaction.
// Earlier rows with the same key that were superseded by a conflict resolution
// get their superseded_by link pointed at the new row.
func (s *Store) InsertSpecifications(ctx context.Context, specs []model.Specification, answer *model.AnswerRecord) ([]model.Specification, error) {
	const op = "commit specifications"
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, storageErr("begin "+op, err)
	}
	out, err := s.insertSpecifications(ctx, tx, specs, answer)
	if err != nil {
		return nil, rollback(tx, op, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

// CommitAttempt inserts specs like InsertSpecifications, then scores the
// project's current specifications as seen inside the transaction and stores
// the result as its maturity. Either all of it is committed or none of it.
func (s *Store) CommitAttempt(
	ctx context.Context,
	projectID string,
	specs []model.Specification,
	answer *model.AnswerRecord,
	score func(current []model.Specification) int,
) ([]model.Specification, int, error) {
	const op = "commit attempt"
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, 0, storageErr("begin "+op, err)
	}
	out, err := s.insertSpecifications(ctx, tx, specs, answer)
	if err != nil {
		return nil, 0, rollback(tx, op, err)
	}

	current, err := querySpecifications(ctx, tx, projectID, model.CurrentOnly())
	if err != nil {
		return nil, 0, rollback(tx, op, err)
	}
	maturity := score(current)
	res, err := tx.ExecContext(ctx, `UPDATE projects SET maturity_score=?, updated_at=? WHERE id=?`,
		maturity, formatTime(s.now()), projectID)
	if err != nil {
		return nil, 0, rollback(tx, op, fmt.Errorf("update project maturity: %w", err))
	}
	if err := requireAffected(res, "project", projectID); err != nil {
		return nil, 0, rollback(tx, op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, storageErr(op, err)
	}
	return out, maturity, nil
}

func (s *Store) insertSpecifications(ctx context.Context, tx *sql.Tx, specs []model.Specification, answer *model.AnswerRecord) ([]model.Specification, error) {
	now := s.now()
	out := make([]model.Specification, 0, len(specs))
	for _, spec := range specs {
		if spec.ID == "" {
			spec.ID = uuid.NewString()
		}
		spec.IsCurrent = true
		spec.CreatedAt = now
		if _, err := tx.ExecContext(ctx, `INSERT INTO specifications(`+specColumns+`)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, NULL, NULL, ?)`,
			spec.ID, spec.ProjectID, nullableString(spec.SessionID), nullableString(spec.QuestionID),
			string(spec.Category), spec.Key, spec.Value, spec.Content, spec.Confidence, string(spec.Source),
			spec.Reasoning, formatTime(spec.CreatedAt)); err != nil {
			return nil, fmt.Errorf("insert specification %q: %w", spec.Key, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE specifications SET superseded_by=?
			WHERE project_id=? AND key=? AND id<>? AND is_current=0 AND superseded_at IS NOT NULL AND superseded_by IS NULL`,
			spec.ID, spec.ProjectID, spec.Key, spec.ID); err != nil {
			return nil, fmt.Errorf("link superseded %q: %w", spec.Key, err)
		}
		out = append(out, spec)
	}

	if answer != nil {
		res, err := tx.ExecContext(ctx, `UPDATE questions SET answer=?, answered_at=? WHERE id=?`,
			answer.Answer, formatTime(answer.AnsweredAt), answer.QuestionID)
		if err != nil {
			return nil, fmt.Errorf("record answer: %w", err)
		}
		if err := requireAffected(res, "question", answer.QuestionID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanSpecification(row scanner) (model.Specification, error) {
	var spec model.Specification
	var sessionID, questionID, supersededBy, supersededAt sql.NullString
	var category, source, createdAt string
	var isCurrent int
	if err := row.Scan(&spec.ID, &spec.ProjectID, &sessionID, &questionID, &category, &spec.Key, &spec.Value,
		&spec.Content, &spec.Confidence, &source, &spec.Reasoning, &isCurrent, &supersededBy, &supersededAt, &createdAt); err != nil {
		return model.Specification{}, err
	}
	spec.SessionID = sessionID.String
	spec.QuestionID = questionID.String
	spec.Category = model.Category(category)
	spec.Source = model.Source(source)
	spec.IsCurrent = isCurrent == 1
	spec.SupersededBy = supersededBy.String
	spec.SupersededAt = parseNullTime(supersededAt)
	spec.CreatedAt = parseTime(createdAt)
	return spec, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
