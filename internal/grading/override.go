package grading

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pavelanni/studytool/internal/model"
	"github.com/pavelanni/studytool/internal/store"
)

// Override flips the correctness of one answer and recomputes the attempt
// score over its answered questions. A pending answer becomes correct.
func (s *Service) Override(ctx context.Context, attemptID, questionID int64) (model.OverrideResult, error) {
	var res model.OverrideResult
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		if _, err := tx.GetAttempt(ctx, attemptID); err != nil {
			return notFound(err, "attempt", attemptID)
		}
		ans, err := tx.GetAnswer(ctx, attemptID, questionID)
		if err != nil {
			return notFound(err, "answer for question", questionID)
		}

		next := true
		if ans.Correct != nil {
			next = !*ans.Correct
		}
		if err := tx.SetAnswerCorrect(ctx, attemptID, questionID, next); err != nil {
			return fmt.Errorf("set answer correctness: %w", err)
		}

		answers, err := tx.ListAnswers(ctx, attemptID)
		if err != nil {
			return fmt.Errorf("load answers of attempt %d: %w", attemptID, err)
		}
		correct := 0
		for _, a := range answers {
			if a.Correct != nil && *a.Correct {
				correct++
			}
		}
		score := percent(correct, len(answers))
		if err := tx.SetAttemptScore(ctx, attemptID, score); err != nil {
			return fmt.Errorf("update score of attempt %d: %w", attemptID, err)
		}
		res.Success, res.NewStatus, res.NewScorePct = true, next, score
		return nil
	})
	if err != nil {
		return model.OverrideResult{}, err
	}
	slog.Info("grade overridden",
		"attempt_id", attemptID, "question_id", questionID,
		"correct", res.NewStatus, "score_pct", res.NewScorePct)
	return res, nil
}
