package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/studytool/internal/model"
)

// CreateUpload inserts an upload and returns its ID.
func (s *Store) CreateUpload(ctx context.Context, u model.Upload) (int64, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	id, err := s.insert(ctx,
		`INSERT INTO uploads (filename, file_type, created_at) VALUES (?, ?, ?)`,
		u.Filename, u.FileType, u.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert upload: %w", err)
	}
	return id, nil
}

// GetUpload returns the upload with the given ID.
func (s *Store) GetUpload(ctx context.Context, id int64) (model.Upload, error) {
	var u model.Upload
	err := s.queryRow(ctx,
		`SELECT id, filename, file_type, created_at FROM uploads WHERE id = ?`, id,
	).Scan(&u.ID, &u.Filename, &u.FileType, &u.CreatedAt)
	return u, notFound(err)
}

// InsertQuestion adds a question and returns its ID.
func (s *Store) InsertQuestion(ctx context.Context, q model.Question) (int64, error) {
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return 0, fmt.Errorf("marshal options: %w", err)
	}
	answer, err := json.Marshal(q.Answer)
	if err != nil {
		return 0, fmt.Errorf("marshal answer: %w", err)
	}
	id, err := s.insert(ctx,
		`INSERT INTO questions (upload_id, stem, qtype, options, answer, explanation, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.UploadID, q.Stem, string(q.Type), string(opts), string(answer), q.Explanation, true)
	if err != nil {
		return 0, fmt.Errorf("insert question: %w", err)
	}
	return id, nil
}

const questionColumns = `id, upload_id, stem, qtype, options, answer, explanation, active`

// GetQuestion returns a single question by ID, active or not.
func (s *Store) GetQuestion(ctx context.Context, id int64) (model.Question, error) {
	row := s.queryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ?`, id)
	q, err := scanQuestion(row)
	return q, notFound(err)
}

// QuestionsByID loads the given questions, keyed by ID. Missing IDs are
// absent from the map.
func (s *Store) QuestionsByID(ctx context.Context, ids []int64) (map[int64]model.Question, error) {
	out := make(map[int64]model.Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out[q.ID] = q
	}
	return out, rows.Err()
}

// ListQuestions returns active questions of the given uploads, optionally
// restricted to the given types, ordered by ID.
func (s *Store) ListQuestions(ctx context.Context, uploadIDs []int64, types []model.QuestionType) ([]model.Question, error) {
	if len(uploadIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + questionColumns + ` FROM questions WHERE active = ? AND upload_id IN (` +
		placeholders(len(uploadIDs)) + `)`
	args := []any{true}
	for _, id := range uploadIDs {
		args = append(args, id)
	}
	if len(types) > 0 {
		query += ` AND qtype IN (` + placeholders(len(types)) + `)`
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	query += ` ORDER BY id`

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var qs []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	return qs, rows.Err()
}

// SetQuestionActive soft-deletes or restores a question.
func (s *Store) SetQuestionActive(ctx context.Context, id int64, active bool) error {
	return affectedOrNotFound(s.exec(ctx, `UPDATE questions SET active = ? WHERE id = ?`, active, id))
}

// UpdateQuestion overwrites the editable fields of a question.
func (s *Store) UpdateQuestion(ctx context.Context, q model.Question) error {
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	answer, err := json.Marshal(q.Answer)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	return affectedOrNotFound(s.exec(ctx,
		`UPDATE questions SET stem = ?, options = ?, answer = ?, explanation = ? WHERE id = ?`,
		q.Stem, string(opts), string(answer), q.Explanation, q.ID))
}

// QuestionCount returns the number of active questions.
func (s *Store) QuestionCount(ctx context.Context) (int, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM questions WHERE active = ?`, true).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(sc scanner) (model.Question, error) {
	var (
		q            model.Question
		qtype        string
		opts, answer string
	)
	if err := sc.Scan(&q.ID, &q.UploadID, &q.Stem, &qtype, &opts, &answer, &q.Explanation, &q.Active); err != nil {
		return q, err
	}
	q.Type = model.QuestionType(qtype)
	if err := json.Unmarshal([]byte(opts), &q.Options); err != nil {
		return q, fmt.Errorf("question %d options: %w", q.ID, err)
	}
	if err := json.Unmarshal([]byte(answer), &q.Answer); err != nil {
		return q, fmt.Errorf("question %d answer: %w", q.ID, err)
	}
	return q, nil
}
