package store

import (
	"context"
	"fmt"

	"github.com/pavelanni/studytool/internal/model"
)

// ExportAllAttempts builds export-ready results for every attempt.
func (s *Store) ExportAllAttempts(ctx context.Context) ([]model.AttemptResult, error) {
	attempts, err := s.ListAttempts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	var results []model.AttemptResult
	for _, a := range attempts {
		answers, err := s.ListAnswers(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("list answers of attempt %d: %w", a.ID, err)
		}
		ids := make([]int64, len(answers))
		for i, ans := range answers {
			ids[i] = ans.QuestionID
		}
		questions, err := s.QuestionsByID(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load questions of attempt %d: %w", a.ID, err)
		}

		var out []model.AnswerResult
		for _, ans := range answers {
			q := questions[ans.QuestionID]
			ar := model.AnswerResult{
				QuestionID:    ans.QuestionID,
				Stem:          q.Stem,
				Type:          q.Type,
				CorrectAnswer: q.Answer,
				Response:      ans.Response,
				Correct:       ans.Correct,
				AIExplanation: ans.AIExplanation,
			}
			out = append(out, ar)
		}

		results = append(results, model.AttemptResult{
			AttemptID:       a.ID,
			ExamID:          a.ExamID,
			Status:          a.Status,
			ExamType:        a.ExamType,
			StartedAt:       a.StartedAt,
			FinishedAt:      a.FinishedAt,
			DurationSeconds: a.DurationSeconds,
			ScorePct:        a.ScorePct,
			Answers:         out,
		})
	}
	return results, nil
}
