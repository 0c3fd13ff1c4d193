package grading

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pavelanni/studytool/internal/model"
)

// dispatch queues the background work of a freshly graded attempt. It never
// blocks the caller.
func (s *Service) dispatch(attemptID int64, pending, incorrect []model.AnswerCheck, credential string) {
	if s.pool == nil {
		return
	}
	if len(pending) > 0 {
		name := fmt.Sprintf("validate attempt %d", attemptID)
		if !s.pool.Submit(name, func(ctx context.Context) error {
			return s.validatePending(ctx, attemptID, pending, credential)
		}) {
			slog.Warn("validation not scheduled", "attempt_id", attemptID, "pending", len(pending))
		}
	}
	if len(incorrect) > 0 && s.oracles != nil {
		name := fmt.Sprintf("explain attempt %d", attemptID)
		s.pool.Submit(name, func(ctx context.Context) error {
			return s.explainIncorrect(ctx, attemptID, incorrect, credential)
		})
	}
}

// oracle returns an Oracle for credential, or nil when none is available.
func (s *Service) oracle(ctx context.Context, credential string) Oracle {
	if s.oracles == nil {
		return nil
	}
	o, err := s.oracles(ctx, credential)
	if err != nil {
		slog.Warn("no oracle available", "error", err)
		return nil
	}
	return o
}

// validatePending resolves every pending answer of an attempt and then
// recomputes its score over the graded answers. Any oracle failure marks
// the answer incorrect. Answers resolved in the meantime, for example by a
// manual override, are left alone.
func (s *Service) validatePending(ctx context.Context, attemptID int64, items []model.AnswerCheck, credential string) error {
	o := s.oracle(ctx, credential)
	if o != nil {
		defer o.Close()
	}

	for _, c := range items {
		verdict := false
		if o != nil {
			callCtx, cancel := context.WithTimeout(ctx, s.oracleTimeout)
			ok, err := o.IsSemanticallyCorrect(callCtx, c)
			cancel()
			if err != nil {
				slog.Warn("semantic check failed, marking incorrect",
					"attempt_id", attemptID, "question_id", c.QuestionID, "error", err)
			} else {
				verdict = ok
			}
		}
		updated, err := s.store.ResolvePending(ctx, attemptID, c.QuestionID, verdict)
		if err != nil {
			return fmt.Errorf("resolve answer %d/%d: %w", attemptID, c.QuestionID, err)
		}
		if !updated {
			slog.Info("answer already resolved, keeping it",
				"attempt_id", attemptID, "question_id", c.QuestionID)
			continue
		}
		slog.Debug("answer validated", "attempt_id", attemptID, "question_id", c.QuestionID, "correct", verdict)
	}

	correct, graded, err := s.store.AnswerTally(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("tally attempt %d: %w", attemptID, err)
	}
	score := percent(correct, graded)
	if err := s.store.SetAttemptScore(ctx, attemptID, score); err != nil {
		return fmt.Errorf("update score of attempt %d: %w", attemptID, err)
	}
	slog.Info("validation complete", "attempt_id", attemptID, "checked", len(items), "score_pct", score)
	return nil
}

// explainIncorrect stores an explanation for every incorrect answer.
// Failures are logged and skipped.
func (s *Service) explainIncorrect(ctx context.Context, attemptID int64, items []model.AnswerCheck, credential string) error {
	o := s.oracle(ctx, credential)
	if o == nil {
		return nil
	}
	defer o.Close()

	for _, c := range items {
		callCtx, cancel := context.WithTimeout(ctx, s.oracleTimeout)
		text, err := o.ExplainAnswer(callCtx, c)
		cancel()
		if err != nil {
			slog.Warn("explanation failed", "attempt_id", attemptID, "question_id", c.QuestionID, "error", err)
			continue
		}
		if text == "" {
			continue
		}
		if err := s.store.SetAnswerExplanation(ctx, attemptID, c.QuestionID, text); err != nil {
			slog.Warn("store explanation", "attempt_id", attemptID, "question_id", c.QuestionID, "error", err)
		}
	}
	return nil
}

// ValidationStatus reports how far background validation of an attempt has
// progressed.
func (s *Service) ValidationStatus(ctx context.Context, attemptID int64) (model.ValidationStatus, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return model.ValidationStatus{}, notFound(err, "attempt", attemptID)
	}
	answers, err := s.store.ListAnswers(ctx, attemptID)
	if err != nil {
		return model.ValidationStatus{}, fmt.Errorf("load answers of attempt %d: %w", attemptID, err)
	}
	qids := make([]int64, 0, len(answers))
	for _, ans := range answers {
		qids = append(qids, ans.QuestionID)
	}
	questions, err := s.store.QuestionsByID(ctx, qids)
	if err != nil {
		return model.ValidationStatus{}, fmt.Errorf("load questions: %w", err)
	}

	st := model.ValidationStatus{
		AttemptID:          attemptID,
		CurrentScore:       a.ScorePct,
		ValidatedQuestions: []model.ValidatedQuestion{},
	}
	for _, ans := range answers {
		if ans.Correct == nil {
			st.PendingCount++
			continue
		}
		st.ValidatedQuestions = append(st.ValidatedQuestions, model.ValidatedQuestion{
			QuestionID:    ans.QuestionID,
			Correct:       *ans.Correct,
			CorrectAnswer: questions[ans.QuestionID].Answer,
			UserAnswer:    ans.Response,
		})
	}
	st.AllComplete = st.PendingCount == 0
	return st, nil
}
