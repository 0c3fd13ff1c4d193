package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/studytool/internal/model"
)

// CreateExam stores an exam with its fixed question order.
func (s *Store) CreateExam(ctx context.Context, e model.Exam) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	ids, err := json.Marshal(e.QuestionIDs)
	if err != nil {
		return 0, fmt.Errorf("marshal question ids: %w", err)
	}
	settings := string(e.Settings)
	if settings == "" {
		settings = "{}"
	}
	id, err := s.insert(ctx,
		`INSERT INTO exams (upload_id, question_ids, settings, created_at) VALUES (?, ?, ?, ?)`,
		e.UploadID, string(ids), settings, e.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert exam: %w", err)
	}
	return id, nil
}

// GetExam returns the exam with the given ID.
func (s *Store) GetExam(ctx context.Context, id int64) (model.Exam, error) {
	var (
		e        model.Exam
		ids      string
		settings string
	)
	err := s.queryRow(ctx,
		`SELECT id, upload_id, question_ids, settings, created_at FROM exams WHERE id = ?`, id,
	).Scan(&e.ID, &e.UploadID, &ids, &settings, &e.CreatedAt)
	if err != nil {
		return e, notFound(err)
	}
	if err := json.Unmarshal([]byte(ids), &e.QuestionIDs); err != nil {
		return e, fmt.Errorf("exam %d question ids: %w", id, err)
	}
	e.Settings = json.RawMessage(settings)
	return e, nil
}
