package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/studytool/internal/model"
)

const attemptColumns = `id, exam_id, status, started_at, finished_at, score_pct, duration_seconds, exam_type, progress_state`

// CreateAttempt inserts an attempt and returns its ID.
func (s *Store) CreateAttempt(ctx context.Context, a model.Attempt) (int64, error) {
	ps, err := json.Marshal(a.Progress)
	if err != nil {
		return 0, fmt.Errorf("marshal progress: %w", err)
	}
	if a.Status == "" {
		a.Status = model.StatusInProgress
	}
	if a.ExamType == "" {
		a.ExamType = model.ExamTypeExam
	}
	id, err := s.insert(ctx,
		`INSERT INTO attempts (exam_id, status, started_at, finished_at, score_pct, duration_seconds, exam_type, progress_state)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ExamID, string(a.Status), a.StartedAt.UTC(), utcPtr(a.FinishedAt), a.ScorePct,
		a.DurationSeconds, string(a.ExamType), string(ps))
	if err != nil {
		return 0, fmt.Errorf("insert attempt: %w", err)
	}
	return id, nil
}

// GetAttempt returns the attempt with the given ID.
func (s *Store) GetAttempt(ctx context.Context, id int64) (model.Attempt, error) {
	row := s.queryRow(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id = ?`, id)
	a, err := scanAttempt(row)
	return a, notFound(err)
}

// InProgressAttempt returns the newest in-progress attempt of an exam, or
// nil if there is none.
func (s *Store) InProgressAttempt(ctx context.Context, examID int64) (*model.Attempt, error) {
	row := s.queryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE exam_id = ? AND status = ?
		 ORDER BY id DESC LIMIT 1`,
		examID, string(model.StatusInProgress))
	return optionalAttempt(scanAttempt(row))
}

// LatestCompletedAttempt returns the most recently finished attempt of an
// exam with the given exam type, or nil if there is none.
func (s *Store) LatestCompletedAttempt(ctx context.Context, examID int64, examType model.ExamType) (*model.Attempt, error) {
	row := s.queryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE exam_id = ? AND status = ? AND exam_type = ? AND finished_at IS NOT NULL
		 ORDER BY finished_at DESC, id DESC LIMIT 1`,
		examID, string(model.StatusCompleted), string(examType))
	return optionalAttempt(scanAttempt(row))
}

// UpdateAttempt overwrites the mutable fields of an attempt.
func (s *Store) UpdateAttempt(ctx context.Context, a model.Attempt) error {
	ps, err := json.Marshal(a.Progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return affectedOrNotFound(s.exec(ctx,
		`UPDATE attempts SET status = ?, finished_at = ?, score_pct = ?, duration_seconds = ?,
		 exam_type = ?, progress_state = ? WHERE id = ?`,
		string(a.Status), utcPtr(a.FinishedAt), a.ScorePct, a.DurationSeconds,
		string(a.ExamType), string(ps), a.ID))
}

// SetAttemptScore updates only the score of an attempt.
func (s *Store) SetAttemptScore(ctx context.Context, id int64, scorePct float64) error {
	return affectedOrNotFound(s.exec(ctx, `UPDATE attempts SET score_pct = ? WHERE id = ?`, scorePct, id))
}

// ListRecentAttempts returns completed attempts, newest first.
func (s *Store) ListRecentAttempts(ctx context.Context, limit int) ([]model.Attempt, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.listAttempts(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE status = ?
		 ORDER BY finished_at DESC, id DESC LIMIT ?`,
		string(model.StatusCompleted), limit)
}

// ListAttempts returns every attempt ordered by ID.
func (s *Store) ListAttempts(ctx context.Context) ([]model.Attempt, error) {
	return s.listAttempts(ctx, `SELECT `+attemptColumns+` FROM attempts ORDER BY id`)
}

// DeleteAttempt removes an attempt and its answers.
func (s *Store) DeleteAttempt(ctx context.Context, id int64) error {
	return s.InTx(ctx, func(tx *Store) error {
		if _, err := tx.exec(ctx, `DELETE FROM attempt_answers WHERE attempt_id = ?`, id); err != nil {
			return fmt.Errorf("delete answers: %w", err)
		}
		return affectedOrNotFound(tx.exec(ctx, `DELETE FROM attempts WHERE id = ?`, id))
	})
}

func (s *Store) listAttempts(ctx context.Context, query string, args ...any) ([]model.Attempt, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAttempt(sc scanner) (model.Attempt, error) {
	var (
		a             model.Attempt
		status, etype string
		progress      string
	)
	err := sc.Scan(&a.ID, &a.ExamID, &status, &a.StartedAt, &a.FinishedAt, &a.ScorePct,
		&a.DurationSeconds, &etype, &progress)
	if err != nil {
		return a, err
	}
	a.Status = model.AttemptStatus(status)
	a.ExamType = model.ParseExamType(etype)
	if progress != "" {
		if err := json.Unmarshal([]byte(progress), &a.Progress); err != nil {
			return a, fmt.Errorf("attempt %d progress: %w", a.ID, err)
		}
	}
	return a, nil
}

func optionalAttempt(a model.Attempt, err error) (*model.Attempt, error) {
	if err != nil {
		if errors.Is(notFound(err), ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
