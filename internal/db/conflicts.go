package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/metalagman/socratic/internal/model"
)

const conflictColumns = `id, project_id, type, severity, description, reasoning, spec_ids_json, candidates_json,
	status, resolution, detected_at, resolved_at`

// InsertConflicts stores newly detected conflicts in the open state, atomically.
func (s *Store) InsertConflicts(ctx context.Context, conflicts []model.Conflict) ([]model.Conflict, error) {
	const op = "insert conflicts"
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, storageErr("begin "+op, err)
	}
	out := make([]model.Conflict, 0, len(conflicts))
	for _, c := range conflicts {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.DetectedAt.IsZero() {
			c.DetectedAt = s.now()
		}
		c.Status = model.ConflictOpen
		c.Resolution = ""
		c.ResolvedAt = nil
		if c.SpecIDs == nil {
			c.SpecIDs = []string{}
		}
		specIDs, err := json.Marshal(c.SpecIDs)
		if err != nil {
			return nil, rollback(tx, op, fmt.Errorf("marshal spec ids: %w", err))
		}
		candidates := c.Candidates
		if candidates == nil {
			candidates = []model.SpecCandidate{}
		}
		candidatesJSON, err := json.Marshal(candidates)
		if err != nil {
			return nil, rollback(tx, op, fmt.Errorf("marshal candidates: %w", err))
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO conflicts(`+conflictColumns+`)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, NULL)`,
			c.ID, c.ProjectID, string(c.Type), string(c.Severity), c.Description, c.Reasoning,
			string(specIDs), string(candidatesJSON), string(c.Status), formatTime(c.DetectedAt)); err != nil {
			return nil, rollback(tx, op, fmt.Errorf("insert conflict: %w", err))
		}
		out = append(out, c)
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

// Conflict fetches a conflict by id.
func (s *Store) Conflict(ctx context.Context, id string) (model.Conflict, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE id=?`, id)
	c, err := scanConflict(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Conflict{}, fmt.Errorf("conflict %s: %w", id, model.ErrNotFound)
		}
		return model.Conflict{}, storageErr("read conflict", err)
	}
	return c, nil
}

// Conflicts lists a project's conflicts, newest first, optionally filtered by status.
func (s *Store) Conflicts(ctx context.Context, projectID string, status *model.ConflictStatus) ([]model.Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE project_id=?`
	args := []any{projectID}
	if status != nil {
		query += " AND status=?"
		args = append(args, string(*status))
	}
	query += " ORDER BY detected_at DESC, rowid DESC"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query conflicts", err)
	}
	defer rows.Close()
	var out []model.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, storageErr("scan conflict", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate conflicts", err)
	}
	return out, nil
}

// CountOpenConflicts returns the number of open conflicts for a project.
func (s *Store) CountOpenConflicts(ctx context.Context, projectID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conflicts WHERE project_id=? AND status=?`,
		projectID, string(model.ConflictOpen)).Scan(&n); err != nil {
		return 0, storageErr("count open conflicts", err)
	}
	return n, nil
}

// ResolveConflict moves an open conflict to its terminal status and flips the
// superseded specifications in one transaction. Conflicts that already left the
// open state are rejected with model.ErrConflictNotOpen.
func (s *Store) ResolveConflict(ctx context.Context, id string, res model.ConflictResolution) (model.Conflict, error) {
	const op = "resolve conflict"
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return model.Conflict{}, storageErr("begin "+op, err)
	}

	c, err := scanConflict(tx.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE id=?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Conflict{}, rollback(tx, op, fmt.Errorf("conflict %s: %w", id, model.ErrNotFound))
		}
		return model.Conflict{}, rollback(tx, op, fmt.Errorf("read conflict: %w", err))
	}
	if c.Status != model.ConflictOpen {
		return model.Conflict{}, rollback(tx, op, fmt.Errorf("conflict %s is %s: %w", id, c.Status, model.ErrConflictNotOpen))
	}

	resolvedAt := res.ResolvedAt
	if resolvedAt.IsZero() {
		resolvedAt = s.now()
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conflicts SET status=?, resolution=?, resolved_at=? WHERE id=? AND status=?`,
		string(res.Status), res.Resolution, formatTime(resolvedAt), id, string(model.ConflictOpen)); err != nil {
		return model.Conflict{}, rollback(tx, op, fmt.Errorf("update conflict: %w", err))
	}

	if len(res.SupersedeSpecIDs) > 0 {
		args := []any{formatTime(resolvedAt), c.ProjectID}
		for _, specID := range res.SupersedeSpecIDs {
			args = append(args, specID)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE specifications SET is_current=0, superseded_at=?
			WHERE project_id=? AND is_current=1 AND id IN (`+placeholders(len(res.SupersedeSpecIDs))+`)`, args...); err != nil {
			return model.Conflict{}, rollback(tx, op, fmt.Errorf("supersede specifications: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Conflict{}, storageErr(op, err)
	}

	c.Status = res.Status
	c.Resolution = res.Resolution
	c.ResolvedAt = &resolvedAt
	return c, nil
}

func scanConflict(row scanner) (model.Conflict, error) {
	var c model.Conflict
	var typ, severity, status, specIDs, candidates, detectedAt string
	var resolution, resolvedAt sql.NullString
	if err := row.Scan(&c.ID, &c.ProjectID, &typ, &severity, &c.Description, &c.Reasoning, &specIDs, &candidates,
		&status, &resolution, &detectedAt, &resolvedAt); err != nil {
		return model.Conflict{}, err
	}
	c.Type = model.ConflictType(typ)
	c.Severity = model.Severity(severity)
	c.Status = model.ConflictStatus(status)
	c.Resolution = resolution.String
	c.DetectedAt = parseTime(detectedAt)
	c.ResolvedAt = parseNullTime(resolvedAt)
	if err := json.Unmarshal([]byte(specIDs), &c.SpecIDs); err != nil {
		return model.Conflict{}, fmt.Errorf("parse spec ids: %w", err)
	}
	if err := json.Unmarshal([]byte(candidates), &c.Candidates); err != nil {
		return model.Conflict{}, fmt.Errorf("parse candidates: %w", err)
	}
	return c, nil
}
