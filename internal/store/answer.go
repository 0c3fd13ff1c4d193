package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/studytool/internal/model"
)

// UpsertAnswer writes the answer for (attempt, question), replacing any
// earlier response, correctness and explanation.
func (s *Store) UpsertAnswer(ctx context.Context, a model.AttemptAnswer) error {
	resp, err := json.Marshal(a.Response)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO attempt_answers (attempt_id, question_id, response, correct, ai_explanation)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE SET
		   response = excluded.response,
		   correct = excluded.correct,
		   ai_explanation = excluded.ai_explanation`,
		a.AttemptID, a.QuestionID, string(resp), a.Correct, a.AIExplanation)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

// DeleteAnswers removes every answer of an attempt.
func (s *Store) DeleteAnswers(ctx context.Context, attemptID int64) error {
	_, err := s.exec(ctx, `DELETE FROM attempt_answers WHERE attempt_id = ?`, attemptID)
	return err
}

const answerColumns = `id, attempt_id, question_id, response, correct, ai_explanation`

// GetAnswer returns the answer for one question of an attempt.
func (s *Store) GetAnswer(ctx context.Context, attemptID, questionID int64) (model.AttemptAnswer, error) {
	row := s.queryRow(ctx,
		`SELECT `+answerColumns+` FROM attempt_answers WHERE attempt_id = ? AND question_id = ?`,
		attemptID, questionID)
	a, err := scanAnswer(row)
	return a, notFound(err)
}

// ListAnswers returns the answers of an attempt in insertion order.
func (s *Store) ListAnswers(ctx context.Context, attemptID int64) ([]model.AttemptAnswer, error) {
	rows, err := s.query(ctx,
		`SELECT `+answerColumns+` FROM attempt_answers WHERE attempt_id = ? ORDER BY id`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	var out []model.AttemptAnswer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetAnswerCorrect sets the correctness of an answer unconditionally.
func (s *Store) SetAnswerCorrect(ctx context.Context, attemptID, questionID int64, correct bool) error {
	return affectedOrNotFound(s.exec(ctx,
		`UPDATE attempt_answers SET correct = ? WHERE attempt_id = ? AND question_id = ?`,
		correct, attemptID, questionID))
}

// ResolvePending sets the correctness of an answer only if it is still
// unset. It reports whether the answer was updated.
func (s *Store) ResolvePending(ctx context.Context, attemptID, questionID int64, correct bool) (bool, error) {
	res, err := s.exec(ctx,
		`UPDATE attempt_answers SET correct = ?
		 WHERE attempt_id = ? AND question_id = ? AND correct IS NULL`,
		correct, attemptID, questionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetAnswerExplanation stores the generated explanation of an answer.
func (s *Store) SetAnswerExplanation(ctx context.Context, attemptID, questionID int64, text string) error {
	return affectedOrNotFound(s.exec(ctx,
		`UPDATE attempt_answers SET ai_explanation = ? WHERE attempt_id = ? AND question_id = ?`,
		text, attemptID, questionID))
}

// AnswerTally counts graded answers of an attempt and how many of them are
// correct. Answers still awaiting validation are not counted.
func (s *Store) AnswerTally(ctx context.Context, attemptID int64) (correct, graded int, err error) {
	err = s.queryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN correct THEN 1 ELSE 0 END), 0)
		 FROM attempt_answers WHERE attempt_id = ? AND correct IS NOT NULL`,
		attemptID).Scan(&graded, &correct)
	return correct, graded, err
}

func scanAnswer(sc scanner) (model.AttemptAnswer, error) {
	var (
		a    model.AttemptAnswer
		resp string
	)
	if err := sc.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &resp, &a.Correct, &a.AIExplanation); err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(resp), &a.Response); err != nil {
		return a, fmt.Errorf("answer %d response: %w", a.ID, err)
	}
	return a, nil
}
