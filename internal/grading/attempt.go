package grading

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/pavelanni/studytool/internal/model"
	"github.com/pavelanni/studytool/internal/store"
)

// Start returns the in-progress attempt of an exam, creating one if none
// exists. At most one attempt per exam is in progress at any time.
func (s *Service) Start(ctx context.Context, examID int64, examType model.ExamType) (model.Attempt, error) {
	if _, err := s.store.GetExam(ctx, examID); err != nil {
		return model.Attempt{}, notFound(err, "exam", examID)
	}

	unlock := s.examLocks.Lock(examID)
	defer unlock()

	existing, err := s.store.InProgressAttempt(ctx, examID)
	if err != nil {
		return model.Attempt{}, fmt.Errorf("find in-progress attempt: %w", err)
	}
	if existing != nil {
		return *existing, nil
	}

	if examType == "" {
		examType = model.ExamTypeExam
	}
	a := model.Attempt{
		ExamID:    examID,
		Status:    model.StatusInProgress,
		StartedAt: s.now(),
		ExamType:  examType,
		Progress:  model.ProgressState{ExamType: examType},
	}
	id, err := s.store.CreateAttempt(ctx, a)
	if err != nil {
		return model.Attempt{}, err
	}
	a.ID = id
	slog.Info("attempt started", "exam_id", examID, "attempt_id", id, "exam_type", examType)
	return a, nil
}

// SaveProgress checkpoints an in-progress attempt and returns it. Saved
// answers stay ungraded until the attempt is submitted.
func (s *Service) SaveProgress(ctx context.Context, attemptID int64, u model.ProgressUpdate) (model.Attempt, error) {
	var saved model.Attempt
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		a, err := tx.GetAttempt(ctx, attemptID)
		if err != nil {
			return notFound(err, "attempt", attemptID)
		}
		if a.Status != model.StatusInProgress {
			return fmt.Errorf("save progress of attempt %d (%s): %w", attemptID, a.Status, ErrInvalidState)
		}
		exam, err := tx.GetExam(ctx, a.ExamID)
		if err != nil {
			return notFound(err, "exam", a.ExamID)
		}

		qids := make([]int64, 0, len(u.Answers))
		for qid := range u.Answers {
			if slices.Contains(exam.QuestionIDs, qid) {
				qids = append(qids, qid)
			}
		}
		slices.Sort(qids)
		for _, qid := range qids {
			err := tx.UpsertAnswer(ctx, model.AttemptAnswer{
				AttemptID:  attemptID,
				QuestionID: qid,
				Response:   u.Answers[qid],
			})
			if err != nil {
				return err
			}
		}

		now := s.now()
		ps := model.ProgressState{
			CurrentIndex:       u.CurrentQuestionIndex,
			Timer:              u.TimerState,
			Bookmarks:          u.Bookmarks,
			CompletedQuestions: u.CompletedQuestions,
			QuestionOrder:      u.QuestionOrder,
			ExamType:           a.Progress.ExamType,
			LastSavedAt:        &now,
		}
		if len(ps.QuestionOrder) == 0 {
			ps.QuestionOrder = a.Progress.QuestionOrder
		}
		if u.ExamType != "" {
			ps.ExamType = model.ParseExamType(u.ExamType)
			a.ExamType = ps.ExamType
		}
		a.Progress = ps
		if err := tx.UpdateAttempt(ctx, a); err != nil {
			return fmt.Errorf("update attempt %d: %w", attemptID, err)
		}
		saved = a
		slog.Debug("progress saved", "attempt_id", attemptID, "answers", len(qids))
		return nil
	})
	if err != nil {
		return model.Attempt{}, err
	}
	return saved, nil
}

// GetProgress returns an attempt with its checkpoint and saved answers.
func (s *Service) GetProgress(ctx context.Context, attemptID int64) (model.ProgressView, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return model.ProgressView{}, notFound(err, "attempt", attemptID)
	}
	return s.progressView(ctx, a)
}

// InProgress returns the resumable attempt of an exam, or nil if none.
func (s *Service) InProgress(ctx context.Context, examID int64) (*model.ProgressView, error) {
	a, err := s.store.InProgressAttempt(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("find in-progress attempt: %w", err)
	}
	if a == nil {
		return nil, nil
	}
	v, err := s.progressView(ctx, *a)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Service) progressView(ctx context.Context, a model.Attempt) (model.ProgressView, error) {
	answers, err := s.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return model.ProgressView{}, fmt.Errorf("load answers of attempt %d: %w", a.ID, err)
	}
	saved := make(map[int64]model.Value, len(answers))
	for _, ans := range answers {
		saved[ans.QuestionID] = ans.Response
	}
	return model.ProgressView{
		AttemptID:     a.ID,
		ExamID:        a.ExamID,
		Status:        a.Status,
		StartedAt:     a.StartedAt,
		ProgressState: a.Progress,
		SavedAnswers:  saved,
	}, nil
}
