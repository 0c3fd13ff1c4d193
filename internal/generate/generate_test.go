package generate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/pavelanni/studytool/internal/jobs"
	"github.com/pavelanni/studytool/internal/llm"
	"github.com/pavelanni/studytool/internal/model"
	"github.com/pavelanni/studytool/internal/store"
	"github.com/pavelanni/studytool/internal/worker"
)

type fakeGenerator struct {
	mu       sync.Mutex
	batches  [][]llm.GeneratedQuestion
	err      error
	requests []llm.GenerateRequest
}

func (f *fakeGenerator) GenerateQuestions(_ context.Context, req llm.GenerateRequest) ([]llm.GeneratedQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, errors.New("no more questions")
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

func (f *fakeGenerator) Close() error { return nil }

func newTestPipeline(t *testing.T, gen *fakeGenerator) (*Pipeline, *store.Store, *jobs.Manager) {
	t.Helper()
	st, err := store.New(store.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	pool := worker.New(1)
	t.Cleanup(func() {
		pool.Shutdown(context.Background())
		st.Close()
	})
	jm := jobs.NewManager()
	factory := func(context.Context, string) (Generator, error) { return gen, nil }
	return NewPipeline(st, jm, pool, factory), st, jm
}

var notes = strings.Repeat("The capital of France is Paris. The capital of Japan is Tokyo. ", 4)

func q(stem string, qtype model.QuestionType, answer model.Value) llm.GeneratedQuestion {
	return llm.GeneratedQuestion{Question: stem, Type: qtype, Answer: answer}
}

func TestRunGeneratesExam(t *testing.T) {
	gen := &fakeGenerator{batches: [][]llm.GeneratedQuestion{{
		q("Capital of France?", model.TypeShort, model.Text("Paris")),
		q("Pick the capitals", model.TypeMulti, model.Text("Paris, Tokyo")),
	}}}
	p, st, jm := newTestPipeline(t, gen)
	ctx := context.Background()

	req := Request{Name: "Capitals", Content: notes, QuestionCount: 2}
	if err := req.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	id := jm.Create(nil)
	if err := p.Run(ctx, id, req, "key"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	job, err := jm.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != jobs.StatusSucceeded || job.Progress != 1 || job.ResultID == nil {
		t.Fatalf("job = %+v", job)
	}
	if job.Metadata["generatedCount"] != 2 || job.Metadata["shortfall"] != false {
		t.Errorf("metadata = %v", job.Metadata)
	}
	if len(gen.requests) != 1 {
		t.Errorf("made %d generation calls, want 1", len(gen.requests))
	}

	exam, err := st.GetExam(ctx, *job.ResultID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if len(exam.QuestionIDs) != 2 {
		t.Fatalf("exam has %d questions", len(exam.QuestionIDs))
	}
	upload, _ := st.GetUpload(ctx, exam.UploadID)
	if upload.FileType != FileType || upload.Filename != "Capitals" {
		t.Errorf("upload = %+v", upload)
	}
	multi, _ := st.GetQuestion(ctx, exam.QuestionIDs[1])
	items, _ := multi.Answer.Items()
	if multi.Answer.Kind() != model.KindList || len(items) != 2 || items[1] != "Tokyo" {
		t.Errorf("multi answer not split: %v", multi.Answer)
	}
	if !strings.Contains(string(exam.Settings), `"generation_mode":"strict"`) {
		t.Errorf("settings = %s", exam.Settings)
	}
}

func TestRunTopsUpShortfall(t *testing.T) {
	gen := &fakeGenerator{batches: [][]llm.GeneratedQuestion{
		{
			q("Capital of France?", model.TypeShort, model.Text("Paris")),
			q("capital of france? ", model.TypeShort, model.Text("Paris")),
		},
		{
			q("Capital of Japan?", model.TypeShort, model.Text("Tokyo")),
		},
	}}
	p, _, jm := newTestPipeline(t, gen)

	req := Request{Name: "Capitals", Content: notes, QuestionCount: 3}
	req.Normalize()
	id := jm.Create(nil)
	if err := p.Run(context.Background(), id, req, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(gen.requests) != 2 {
		t.Fatalf("made %d generation calls, want 2", len(gen.requests))
	}
	topUp := gen.requests[1]
	if topUp.Count != 2 || len(topUp.AvoidStems) != 1 {
		t.Errorf("top-up request = %+v", topUp)
	}
	job, _ := jm.Get(id)
	if job.Status != jobs.StatusSucceeded {
		t.Fatalf("status = %s (%s)", job.Status, job.Error)
	}
	if job.Metadata["generatedCount"] != 2 || job.Metadata["shortfall"] != true ||
		job.Metadata["shortfallReason"] != ShortfallLLM {
		t.Errorf("metadata = %v", job.Metadata)
	}
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		gen     *fakeGenerator
		wantErr string
	}{
		{"short content", "too short", &fakeGenerator{}, "insufficient content"},
		{"llm error", notes, &fakeGenerator{err: errors.New("quota exceeded")}, "quota exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, st, jm := newTestPipeline(t, tt.gen)
			req := Request{Name: "x", Content: tt.content}
			req.Normalize()
			id := jm.Create(nil)
			if err := p.Run(context.Background(), id, req, ""); err == nil {
				t.Fatal("expected error")
			}
			job, _ := jm.Get(id)
			if job.Status != jobs.StatusFailed || job.Progress != 1 {
				t.Errorf("job = %+v", job)
			}
			if !strings.Contains(job.Error, tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", job.Error, tt.wantErr)
			}
			if n, _ := st.QuestionCount(context.Background()); n != 0 {
				t.Errorf("failed job left %d questions", n)
			}
		})
	}
}

func TestStartRunsOnPool(t *testing.T) {
	gen := &fakeGenerator{batches: [][]llm.GeneratedQuestion{{
		q("Capital of France?", model.TypeShort, model.Text("Paris")),
	}}}
	p, _, jm := newTestPipeline(t, gen)

	id, err := p.Start(Request{Name: "Capitals", Content: notes, QuestionCount: 1}, "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	p.pool.Wait()
	job, _ := jm.Get(id)
	if job.Status != jobs.StatusSucceeded || job.Metadata["examName"] != "Capitals" {
		t.Errorf("job = %+v", job)
	}

	if _, err := p.Start(Request{Content: notes}, ""); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("missing name: err = %v", err)
	}
}

func TestNormalize(t *testing.T) {
	r := Request{Name: "  Quiz  "}
	if err := r.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if r.Name != "Quiz" || r.QuestionCount != 20 || r.Difficulty != "medium" || r.Mode != "strict" {
		t.Errorf("defaults not applied: %+v", r)
	}
	if len(r.QuestionTypes) != 2 {
		t.Errorf("QuestionTypes = %v", r.QuestionTypes)
	}

	bad := []Request{
		{Name: "q", Mode: "wild"},
		{Name: "q", QuestionTypes: []model.QuestionType{"essay"}},
		{Name: "q", QuestionCount: -1},
	}
	for _, r := range bad {
		if err := r.Normalize(); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("Normalize(%+v) = %v, want ErrInvalidRequest", r, err)
		}
	}
}

func TestDedupe(t *testing.T) {
	in := []llm.GeneratedQuestion{
		q("What is Go?", model.TypeShort, model.Text("a language")),
		q(" what is go? ", model.TypeShort, model.Text("a language")),
		q("", model.TypeShort, model.Text("x")),
		q("Essay", "essay", model.Text("x")),
		q("Why?", model.TypeShort, model.Text("because")),
	}
	got := dedupe(in)
	if len(got) != 2 || got[1].Question != "Why?" {
		t.Errorf("dedupe = %+v", got)
	}
}
