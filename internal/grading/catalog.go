package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/studytool/internal/model"
	"github.com/pavelanni/studytool/internal/store"
)

// CreateExam draws a fixed question set from one or more uploads.
func (s *Service) CreateExam(ctx context.Context, req model.ExamRequest) (model.Exam, error) {
	uploads := req.UploadIDs
	if len(uploads) == 0 && req.UploadID != 0 {
		uploads = []int64{req.UploadID}
	}
	if len(uploads) == 0 {
		return model.Exam{}, fmt.Errorf("no upload given: %w", ErrInvalidInput)
	}
	if req.Count < 1 {
		return model.Exam{}, fmt.Errorf("count must be positive, got %d: %w", req.Count, ErrInvalidInput)
	}
	for _, t := range req.QuestionTypes {
		if !t.Valid() {
			return model.Exam{}, fmt.Errorf("unknown question type %q: %w", t, ErrInvalidInput)
		}
	}
	for _, id := range uploads {
		if _, err := s.store.GetUpload(ctx, id); err != nil {
			return model.Exam{}, notFound(err, "upload", id)
		}
	}

	available, err := s.store.ListQuestions(ctx, uploads, req.QuestionTypes)
	if err != nil {
		return model.Exam{}, fmt.Errorf("list questions: %w", err)
	}
	if req.Count > len(available) {
		return model.Exam{}, fmt.Errorf("requested %d questions but only %d are available: %w",
			req.Count, len(available), ErrInvalidInput)
	}

	settings, err := json.Marshal(req)
	if err != nil {
		return model.Exam{}, fmt.Errorf("marshal exam settings: %w", err)
	}
	exam := model.Exam{
		UploadID:    uploads[0],
		QuestionIDs: make([]int64, 0, req.Count),
		Settings:    settings,
		CreatedAt:   s.now(),
	}
	for _, q := range available[:req.Count] {
		exam.QuestionIDs = append(exam.QuestionIDs, q.ID)
	}
	if exam.ID, err = s.store.CreateExam(ctx, exam); err != nil {
		return model.Exam{}, err
	}
	slog.Info("exam created", "exam_id", exam.ID, "questions", len(exam.QuestionIDs))
	return exam, nil
}

// ExamView returns the questions of an exam, without answers, in exam
// order.
func (s *Service) ExamView(ctx context.Context, examID int64) (model.ExamView, error) {
	exam, questions, err := s.examQuestions(ctx, examID)
	if err != nil {
		return model.ExamView{}, err
	}
	view := model.ExamView{ExamID: exam.ID, Questions: make([]model.QuestionView, 0, len(questions))}
	for _, q := range questions {
		view.Questions = append(view.Questions, q.View())
	}
	return view, nil
}

// Preview returns the canonical answers of an exam.
func (s *Service) Preview(ctx context.Context, examID int64) (model.ExamPreview, error) {
	_, questions, err := s.examQuestions(ctx, examID)
	if err != nil {
		return model.ExamPreview{}, err
	}
	p := model.ExamPreview{Answers: make([]model.AnswerPreview, 0, len(questions))}
	for _, q := range questions {
		p.Answers = append(p.Answers, model.AnswerPreview{QuestionID: q.ID, CorrectAnswer: q.Answer})
	}
	return p, nil
}

func (s *Service) examQuestions(ctx context.Context, examID int64) (model.Exam, []model.Question, error) {
	exam, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return model.Exam{}, nil, notFound(err, "exam", examID)
	}
	byID, err := s.store.QuestionsByID(ctx, exam.QuestionIDs)
	if err != nil {
		return model.Exam{}, nil, fmt.Errorf("load questions of exam %d: %w", examID, err)
	}
	qs := make([]model.Question, 0, len(exam.QuestionIDs))
	for _, id := range exam.QuestionIDs {
		if q, ok := byID[id]; ok {
			qs = append(qs, q)
		}
	}
	return exam, qs, nil
}

// UploadQuestions lists the active questions of an upload without answers.
func (s *Service) UploadQuestions(ctx context.Context, uploadID int64) ([]model.QuestionView, error) {
	if _, err := s.store.GetUpload(ctx, uploadID); err != nil {
		return nil, notFound(err, "upload", uploadID)
	}
	qs, err := s.store.ListQuestions(ctx, []int64{uploadID}, nil)
	if err != nil {
		return nil, fmt.Errorf("list questions of upload %d: %w", uploadID, err)
	}
	out := make([]model.QuestionView, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.View())
	}
	return out, nil
}

// DeleteQuestion soft-deletes a question. Existing exams keep it.
func (s *Service) DeleteQuestion(ctx context.Context, questionID int64) error {
	if err := s.store.SetQuestionActive(ctx, questionID, false); err != nil {
		return notFound(err, "question", questionID)
	}
	slog.Info("question deactivated", "question_id", questionID)
	return nil
}

// UpdateQuestion edits a question in place. Exams already holding it grade
// later submissions against the new answer; graded attempts keep their
// stored results.
func (s *Service) UpdateQuestion(ctx context.Context, questionID int64, u model.QuestionUpdate) (model.Question, error) {
	var q model.Question
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		var err error
		q, err = tx.GetQuestion(ctx, questionID)
		if err != nil {
			return notFound(err, "question", questionID)
		}
		if u.Stem != nil {
			if strings.TrimSpace(*u.Stem) == "" {
				return fmt.Errorf("question stem is empty: %w", ErrInvalidInput)
			}
			q.Stem = *u.Stem
		}
		if u.Options != nil {
			q.Options = *u.Options
		}
		if u.CorrectAnswer != nil {
			if u.CorrectAnswer.IsNull() {
				return fmt.Errorf("correct answer is empty: %w", ErrInvalidInput)
			}
			q.Answer = *u.CorrectAnswer
		}
		if u.Explanation != nil {
			q.Explanation = *u.Explanation
		}
		return tx.UpdateQuestion(ctx, q)
	})
	if err != nil {
		return model.Question{}, err
	}
	slog.Info("question updated", "question_id", questionID)
	return q, nil
}

// ImportRequest describes a batch of questions loaded from a file.
type ImportRequest struct {
	Name      string
	FileType  string
	Questions []model.QuestionImport
	// WithExam also creates an exam holding every imported question.
	WithExam bool
}

// ImportResult reports what an import created.
type ImportResult struct {
	UploadID int64
	ExamID   int64
	Imported int
}

// Import stores an upload with its questions, and optionally an exam over
// them, in one transaction.
func (s *Service) Import(ctx context.Context, req ImportRequest) (ImportResult, error) {
	if len(req.Questions) == 0 {
		return ImportResult{}, fmt.Errorf("no questions to import: %w", ErrInvalidInput)
	}
	for i, q := range req.Questions {
		if strings.TrimSpace(q.Stem) == "" {
			return ImportResult{}, fmt.Errorf("question %d has no stem: %w", i+1, ErrInvalidInput)
		}
		if !q.Type.Valid() {
			return ImportResult{}, fmt.Errorf("question %d has unknown type %q: %w", i+1, q.Type, ErrInvalidInput)
		}
	}
	if req.FileType == "" {
		req.FileType = "json"
	}

	var res ImportResult
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		id, err := tx.CreateUpload(ctx, model.Upload{Filename: req.Name, FileType: req.FileType, CreatedAt: s.now()})
		if err != nil {
			return err
		}
		res.UploadID = id

		ids := make([]int64, 0, len(req.Questions))
		for _, qi := range req.Questions {
			qid, err := tx.InsertQuestion(ctx, model.Question{
				UploadID:    id,
				Stem:        qi.Stem,
				Type:        qi.Type,
				Options:     qi.Options,
				Answer:      qi.Answer,
				Explanation: qi.Explanation,
			})
			if err != nil {
				return err
			}
			ids = append(ids, qid)
		}
		res.Imported = len(ids)

		if req.WithExam {
			settings, _ := json.Marshal(model.ExamRequest{UploadID: id, Count: len(ids)})
			res.ExamID, err = tx.CreateExam(ctx, model.Exam{
				UploadID: id, QuestionIDs: ids, Settings: settings, CreatedAt: s.now(),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, fmt.Errorf("import %s: %w", req.Name, err)
	}
	slog.Info("questions imported", "upload_id", res.UploadID, "count", res.Imported, "exam_id", res.ExamID)
	return res, nil
}
