package grading

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pavelanni/studytool/internal/model"
)

// Review returns an attempt with one entry per question, in the order the
// questions were presented.
func (s *Service) Review(ctx context.Context, attemptID int64) (model.AttemptReview, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return model.AttemptReview{}, notFound(err, "attempt", attemptID)
	}
	exam, err := s.store.GetExam(ctx, a.ExamID)
	if err != nil {
		return model.AttemptReview{}, notFound(err, "exam", a.ExamID)
	}
	answers, err := s.store.ListAnswers(ctx, attemptID)
	if err != nil {
		return model.AttemptReview{}, fmt.Errorf("load answers of attempt %d: %w", attemptID, err)
	}
	byQuestion := make(map[int64]model.AttemptAnswer, len(answers))
	for _, ans := range answers {
		byQuestion[ans.QuestionID] = ans
	}

	order := reviewOrder(a.Progress.QuestionOrder, exam.QuestionIDs)
	questions, err := s.store.QuestionsByID(ctx, order)
	if err != nil {
		return model.AttemptReview{}, fmt.Errorf("load questions: %w", err)
	}

	review := model.AttemptReview{
		ID:         a.ID,
		ExamID:     a.ExamID,
		Status:     a.Status,
		ScorePct:   a.ScorePct,
		ExamType:   a.ExamType,
		FinishedAt: a.FinishedAt,
		Questions:  make([]model.QuestionReview, 0, len(order)),
	}
	for _, qid := range order {
		q, ok := questions[qid]
		if !ok {
			continue
		}
		ans := byQuestion[qid]
		review.Questions = append(review.Questions, model.QuestionReview{
			Question:      q.View(),
			UserAnswer:    ans.Response,
			CorrectAnswer: q.Answer,
			IsCorrect:     ans.Correct,
			AIExplanation: ans.AIExplanation,
		})
	}
	return review, nil
}

// reviewOrder is the stored presentation order followed by any exam
// questions it does not mention.
func reviewOrder(presented, exam []int64) []int64 {
	if len(presented) == 0 {
		return exam
	}
	seen := make(map[int64]bool, len(presented))
	order := make([]int64, 0, len(exam))
	for _, id := range presented {
		if !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
	}
	for _, id := range exam {
		if !seen[id] {
			order = append(order, id)
		}
	}
	return order
}

// Recent lists the latest completed attempts.
func (s *Service) Recent(ctx context.Context, limit int) ([]model.Attempt, error) {
	attempts, err := s.store.ListRecentAttempts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent attempts: %w", err)
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	return attempts, nil
}

// Delete removes an attempt and its answers.
func (s *Service) Delete(ctx context.Context, attemptID int64) error {
	if err := s.store.DeleteAttempt(ctx, attemptID); err != nil {
		return notFound(err, "attempt", attemptID)
	}
	slog.Info("attempt deleted", "attempt_id", attemptID)
	return nil
}
