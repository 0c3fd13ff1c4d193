// Package generate builds exams from study material with the LLM and
// reports progress through the job queue.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/pavelanni/studytool/internal/jobs"
	"github.com/pavelanni/studytool/internal/llm"
	"github.com/pavelanni/studytool/internal/model"
	"github.com/pavelanni/studytool/internal/store"
	"github.com/pavelanni/studytool/internal/worker"
)

// Progress checkpoints reported while a generation job runs.
const (
	progressStarted    = 0.05
	progressConfigured = 0.25
	progressGenerated  = 0.55
	progressTopUp      = 0.62
	progressPersisting = 0.75
	progressDone       = 1.0
)

const (
	minContentChars = 100
	// FileType marks uploads created by generation.
	FileType = "ai_generated"
	// ShortfallLLM means the model returned fewer questions than asked even
	// after a top-up request.
	ShortfallLLM = "llm_shortfall"
)

var (
	ErrInvalidRequest      = errors.New("invalid generation request")
	ErrInsufficientContent = errors.New("insufficient content to generate questions")
)

// Generator produces questions from content.
type Generator interface {
	GenerateQuestions(ctx context.Context, req llm.GenerateRequest) ([]llm.GeneratedQuestion, error)
	Close() error
}

// GeneratorFactory returns a Generator for the given credential.
type GeneratorFactory func(ctx context.Context, credential string) (Generator, error)

// Request is the body of an exam-generation call.
type Request struct {
	Name          string               `json:"name"`
	Content       string               `json:"content"`
	QuestionCount int                  `json:"questionCount"`
	Difficulty    string               `json:"difficulty"`
	QuestionTypes []model.QuestionType `json:"questionTypes"`
	// Mode is strict, mixed or creative.
	Mode     string         `json:"mode"`
	ExamType model.ExamType `json:"examType,omitempty"`
}

// Normalize fills defaults and checks the request.
func (r *Request) Normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return fmt.Errorf("exam name is required: %w", ErrInvalidRequest)
	}
	if r.QuestionCount == 0 {
		r.QuestionCount = 20
	}
	if r.QuestionCount < 1 {
		return fmt.Errorf("question count must be positive: %w", ErrInvalidRequest)
	}
	if r.Difficulty == "" {
		r.Difficulty = "medium"
	}
	if len(r.QuestionTypes) == 0 {
		r.QuestionTypes = []model.QuestionType{model.TypeMCQ, model.TypeShort}
	}
	for _, t := range r.QuestionTypes {
		if !t.Valid() {
			return fmt.Errorf("unknown question type %q: %w", t, ErrInvalidRequest)
		}
	}
	r.Mode = strings.ToLower(strings.TrimSpace(r.Mode))
	switch r.Mode {
	case "":
		r.Mode = "strict"
	case "strict", "mixed", "creative":
	default:
		return fmt.Errorf("unknown generation mode %q: %w", r.Mode, ErrInvalidRequest)
	}
	if r.ExamType == "" {
		r.ExamType = model.ExamTypeExam
	}
	return nil
}

// Pipeline runs generation jobs on the worker pool.
type Pipeline struct {
	store      *store.Store
	jobs       *jobs.Manager
	pool       *worker.Pool
	generators GeneratorFactory
}

// NewPipeline returns a Pipeline.
func NewPipeline(st *store.Store, jm *jobs.Manager, pool *worker.Pool, generators GeneratorFactory) *Pipeline {
	return &Pipeline{store: st, jobs: jm, pool: pool, generators: generators}
}

// Start queues a generation job and returns its ID.
func (p *Pipeline) Start(req Request, credential string) (string, error) {
	if err := req.Normalize(); err != nil {
		return "", err
	}
	id := p.jobs.Create(map[string]any{"type": "exam_generation", "examName": req.Name})
	if !p.pool.Submit("generate exam "+id, func(ctx context.Context) error {
		return p.Run(ctx, id, req, credential)
	}) {
		p.fail(id, errors.New("server is shutting down"))
	}
	return id, nil
}

// Run executes one generation job. Failures are recorded on the job.
func (p *Pipeline) Run(ctx context.Context, jobID string, req Request, credential string) error {
	examID, err := p.run(ctx, jobID, req, credential)
	if err != nil {
		p.fail(jobID, err)
		return fmt.Errorf("job %s: %w", jobID, err)
	}
	if err := p.jobs.SetResult(jobID, examID); err != nil {
		return err
	}
	if err := p.jobs.SetStatus(jobID, jobs.StatusSucceeded, progressDone); err != nil {
		return err
	}
	slog.Info("exam generated", "job_id", jobID, "exam_id", examID)
	return nil
}

func (p *Pipeline) run(ctx context.Context, jobID string, req Request, credential string) (int64, error) {
	p.progress(jobID, jobs.StatusRunning, progressStarted)
	if utf8.RuneCountInString(strings.TrimSpace(req.Content)) < minContentChars {
		return 0, ErrInsufficientContent
	}

	p.progress(jobID, jobs.StatusRunning, progressConfigured)
	gen, err := p.generators(ctx, credential)
	if err != nil {
		return 0, fmt.Errorf("create generator: %w", err)
	}
	defer gen.Close()
	greq := llm.GenerateRequest{
		Content:    req.Content,
		Count:      req.QuestionCount,
		Difficulty: req.Difficulty,
		Types:      req.QuestionTypes,
		Mode:       req.Mode,
	}

	p.progress(jobID, jobs.StatusRunning, progressGenerated)
	generated, err := gen.GenerateQuestions(ctx, greq)
	if err != nil {
		return 0, fmt.Errorf("generate questions: %w", err)
	}
	questions := dedupe(generated)

	var shortfallReason any
	if missing := req.QuestionCount - len(questions); missing > 0 {
		p.progress(jobID, jobs.StatusRunning, progressTopUp)
		greq.Count = missing
		greq.AvoidStems = stems(questions)
		extra, err := gen.GenerateQuestions(ctx, greq)
		if err != nil {
			slog.Warn("top-up generation failed", "job_id", jobID, "missing", missing, "error", err)
		}
		questions = dedupe(append(questions, extra...))
		if len(questions) < req.QuestionCount {
			shortfallReason = ShortfallLLM
		}
	}
	if len(questions) > req.QuestionCount {
		questions = questions[:req.QuestionCount]
	}

	p.progress(jobID, jobs.StatusRunning, progressPersisting)
	examID, err := p.persist(ctx, req, questions)
	if err != nil {
		return 0, err
	}

	if err := p.jobs.SetMetadata(jobID, map[string]any{
		"requestedCount":  req.QuestionCount,
		"generatedCount":  len(questions),
		"shortfall":       len(questions) < req.QuestionCount,
		"shortfallReason": shortfallReason,
	}); err != nil {
		return 0, err
	}
	return examID, nil
}

// persist stores the upload, its questions and the exam in one transaction.
func (p *Pipeline) persist(ctx context.Context, req Request, questions []llm.GeneratedQuestion) (int64, error) {
	settings, err := json.Marshal(map[string]any{
		"question_count":  req.QuestionCount,
		"difficulty":      req.Difficulty,
		"question_types":  req.QuestionTypes,
		"exam_name":       req.Name,
		"exam_mode":       req.ExamType,
		"generation_mode": req.Mode,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal exam settings: %w", err)
	}

	var examID int64
	err = p.store.InTx(ctx, func(tx *store.Store) error {
		uploadID, err := tx.CreateUpload(ctx, model.Upload{Filename: req.Name, FileType: FileType})
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(questions))
		for _, g := range questions {
			id, err := tx.InsertQuestion(ctx, toQuestion(uploadID, g))
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		examID, err = tx.CreateExam(ctx, model.Exam{UploadID: uploadID, QuestionIDs: ids, Settings: settings})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("save generated exam: %w", err)
	}
	return examID, nil
}

func (p *Pipeline) progress(jobID string, status jobs.Status, progress float64) {
	if err := p.jobs.SetStatus(jobID, status, progress); err != nil {
		slog.Warn("update job progress", "job_id", jobID, "error", err)
	}
}

func (p *Pipeline) fail(jobID string, cause error) {
	slog.Error("exam generation failed", "job_id", jobID, "error", cause)
	if err := p.jobs.SetError(jobID, cause.Error()); err != nil {
		slog.Warn("record job error", "job_id", jobID, "error", err)
	}
	p.progress(jobID, jobs.StatusFailed, progressDone)
}

// toQuestion converts a generated question, turning comma-separated
// answers of multi and cloze questions into lists.
func toQuestion(uploadID int64, g llm.GeneratedQuestion) model.Question {
	answer := g.Answer
	if g.Type == model.TypeMulti || g.Type == model.TypeCloze {
		if items, ok := answer.SplitItems(); ok {
			answer = model.List(items...)
		}
	}
	opts := g.Options
	if len(opts) == 0 {
		opts = nil
	}
	return model.Question{
		UploadID:    uploadID,
		Stem:        strings.TrimSpace(g.Question),
		Type:        g.Type,
		Options:     opts,
		Answer:      answer,
		Explanation: g.Explanation,
	}
}

// dedupe drops questions whose stem repeats an earlier one, ignoring case
// and surrounding space, and questions with an empty stem or unknown type.
func dedupe(qs []llm.GeneratedQuestion) []llm.GeneratedQuestion {
	seen := make(map[string]bool, len(qs))
	out := make([]llm.GeneratedQuestion, 0, len(qs))
	for _, q := range qs {
		key := strings.ToLower(strings.TrimSpace(q.Question))
		if key == "" || seen[key] || !q.Type.Valid() {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out
}

func stems(qs []llm.GeneratedQuestion) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.Question
	}
	return out
}
