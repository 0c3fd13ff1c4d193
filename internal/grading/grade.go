package grading

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pavelanni/studytool/internal/matcher"
	"github.com/pavelanni/studytool/internal/model"
	"github.com/pavelanni/studytool/internal/store"
)

// GradeOptions carry the optional request metadata of a grading call.
type GradeOptions struct {
	DurationSeconds *int
	ExamType        model.ExamType
	// Credential is passed to the OracleFactory for background work.
	Credential string
}

// Grade grades submitted answers for an exam and completes the attempt.
// Answers the matcher cannot decide are stored as pending and resolved in
// the background. A repeat call for the same exam and exam type within the
// duplicate window returns the earlier report.
func (s *Service) Grade(ctx context.Context, examID int64, submitted []model.SubmittedAnswer, opts GradeOptions) (model.GradeReport, error) {
	if opts.ExamType == "" {
		opts.ExamType = model.ExamTypeExam
	}

	exam, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return model.GradeReport{}, notFound(err, "exam", examID)
	}
	questions, err := s.store.QuestionsByID(ctx, exam.QuestionIDs)
	if err != nil {
		return model.GradeReport{}, fmt.Errorf("load questions of exam %d: %w", examID, err)
	}

	unlock := s.examLocks.Lock(examID)
	defer unlock()

	existing, err := s.store.InProgressAttempt(ctx, examID)
	if err != nil {
		return model.GradeReport{}, fmt.Errorf("find in-progress attempt: %w", err)
	}
	if existing == nil {
		prior, err := s.recentDuplicate(ctx, examID, opts.ExamType)
		if err != nil {
			return model.GradeReport{}, err
		}
		if prior != nil {
			slog.Info("duplicate submission, returning earlier result",
				"exam_id", examID, "attempt_id", prior.ID)
			return s.storedReport(ctx, *prior, questions, len(exam.QuestionIDs))
		}
	}

	answers := dedupeAnswers(submitted, questions)
	report := model.GradeReport{PerQuestion: make([]model.GradeItem, 0, len(answers))}
	var (
		correctCount int
		pending      []model.AnswerCheck
		incorrect    []model.AnswerCheck
		order        = make([]int64, 0, len(answers))
	)
	for _, a := range answers {
		q := questions[a.QuestionID]
		res := matcher.Match(q.Type, a.Response, q.Answer)
		order = append(order, q.ID)
		report.PerQuestion = append(report.PerQuestion, model.GradeItem{
			QuestionID:    q.ID,
			Type:          q.Type,
			Correct:       res.CorrectPtr(),
			Pending:       res.Verdict == matcher.Pending,
			Confidence:    res.Confidence,
			CorrectAnswer: q.Answer,
			UserAnswer:    a.Response,
		})
		check := answerCheck(q, a.Response)
		switch res.Verdict {
		case matcher.Correct:
			correctCount++
		case matcher.Pending:
			pending = append(pending, check)
		default:
			incorrect = append(incorrect, check)
		}
	}
	report.ScorePct = percent(correctCount, len(exam.QuestionIDs))
	report.PendingCount = len(pending)
	report.EstimatedWaitSeconds = len(pending) * secondsPerPending

	now := s.now()
	attempt := model.Attempt{ExamID: examID, StartedAt: now}
	if existing != nil {
		attempt = *existing
	}
	attempt.Status = model.StatusCompleted
	attempt.FinishedAt = &now
	attempt.ScorePct = report.ScorePct
	attempt.DurationSeconds = opts.DurationSeconds
	attempt.ExamType = opts.ExamType
	attempt.Progress = model.ProgressState{QuestionOrder: order}

	err = s.store.InTx(ctx, func(tx *store.Store) error {
		if attempt.ID == 0 {
			id, err := tx.CreateAttempt(ctx, attempt)
			if err != nil {
				return err
			}
			attempt.ID = id
		} else if err := tx.UpdateAttempt(ctx, attempt); err != nil {
			return fmt.Errorf("complete attempt %d: %w", attempt.ID, err)
		}
		if err := tx.DeleteAnswers(ctx, attempt.ID); err != nil {
			return fmt.Errorf("clear answers: %w", err)
		}
		for i, a := range answers {
			err := tx.UpsertAnswer(ctx, model.AttemptAnswer{
				AttemptID:  attempt.ID,
				QuestionID: a.QuestionID,
				Response:   a.Response,
				Correct:    report.PerQuestion[i].Correct,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.GradeReport{}, fmt.Errorf("save graded attempt: %w", err)
	}
	report.AttemptID = attempt.ID

	slog.Info("attempt graded",
		"exam_id", examID, "attempt_id", attempt.ID, "score_pct", report.ScorePct,
		"answered", len(answers), "pending", len(pending))

	s.dispatch(attempt.ID, pending, incorrect, opts.Credential)
	return report, nil
}

// recentDuplicate returns the latest completed attempt of the exam with the
// same exam type if it finished within the duplicate window.
func (s *Service) recentDuplicate(ctx context.Context, examID int64, examType model.ExamType) (*model.Attempt, error) {
	prior, err := s.store.LatestCompletedAttempt(ctx, examID, examType)
	if err != nil {
		return nil, fmt.Errorf("find completed attempt: %w", err)
	}
	if prior == nil || prior.FinishedAt == nil {
		return nil, nil
	}
	if age := s.now().Sub(*prior.FinishedAt); age < 0 || age > s.window {
		return nil, nil
	}
	return prior, nil
}

// storedReport rebuilds the report an already graded attempt returned
// when it was submitted. The answers are matched again so the score and
// pending flags are those of the synchronous result, not of any later
// background validation.
func (s *Service) storedReport(ctx context.Context, a model.Attempt, questions map[int64]model.Question, total int) (model.GradeReport, error) {
	answers, err := s.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return model.GradeReport{}, fmt.Errorf("load answers of attempt %d: %w", a.ID, err)
	}
	byQuestion := make(map[int64]model.AttemptAnswer, len(answers))
	for _, ans := range answers {
		byQuestion[ans.QuestionID] = ans
	}
	order := a.Progress.QuestionOrder
	if len(order) == 0 {
		for _, ans := range answers {
			order = append(order, ans.QuestionID)
		}
	}

	report := model.GradeReport{AttemptID: a.ID}
	correctCount := 0
	for _, qid := range order {
		ans, ok := byQuestion[qid]
		if !ok {
			continue
		}
		q := questions[qid]
		res := matcher.Match(q.Type, ans.Response, q.Answer)
		report.PerQuestion = append(report.PerQuestion, model.GradeItem{
			QuestionID:    qid,
			Type:          q.Type,
			Correct:       res.CorrectPtr(),
			Pending:       res.Verdict == matcher.Pending,
			Confidence:    res.Confidence,
			CorrectAnswer: q.Answer,
			UserAnswer:    ans.Response,
		})
		switch res.Verdict {
		case matcher.Correct:
			correctCount++
		case matcher.Pending:
			report.PendingCount++
		}
	}
	report.ScorePct = percent(correctCount, total)
	report.EstimatedWaitSeconds = report.PendingCount * secondsPerPending
	return report, nil
}

// dedupeAnswers keeps submissions for questions of the exam, one per
// question, in order of first appearance. A later response for the same
// question replaces the earlier one.
func dedupeAnswers(submitted []model.SubmittedAnswer, questions map[int64]model.Question) []model.SubmittedAnswer {
	index := make(map[int64]int, len(submitted))
	out := make([]model.SubmittedAnswer, 0, len(submitted))
	for _, a := range submitted {
		if _, ok := questions[a.QuestionID]; !ok {
			slog.Debug("ignoring answer for question outside the exam", "question_id", a.QuestionID)
			continue
		}
		if i, seen := index[a.QuestionID]; seen {
			out[i].Response = a.Response
			continue
		}
		index[a.QuestionID] = len(out)
		out = append(out, a)
	}
	return out
}

func answerCheck(q model.Question, response model.Value) model.AnswerCheck {
	return model.AnswerCheck{
		QuestionID:    q.ID,
		Stem:          q.Stem,
		Type:          q.Type,
		Options:       q.Options,
		UserAnswer:    response,
		CorrectAnswer: q.Answer,
	}
}
