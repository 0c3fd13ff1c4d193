package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pavelanni/studytool/internal/llm/prompts"
	"github.com/pavelanni/studytool/internal/model"
)

type fakeGenerator struct {
	reply  string
	err    error
	prompt string
	cfg    GenConfig
	closed bool
}

func (f *fakeGenerator) GenerateText(_ context.Context, prompt string, cfg GenConfig) (string, error) {
	f.prompt, f.cfg = prompt, cfg
	return f.reply, f.err
}

func (f *fakeGenerator) Ping(context.Context) error { return f.err }

func (f *fakeGenerator) Close() error {
	f.closed = true
	return nil
}

func tokyoCheck() model.AnswerCheck {
	return model.AnswerCheck{
		QuestionID:    2,
		Stem:          "Capital of Japan?",
		Type:          model.TypeShort,
		UserAnswer:    model.Text("Tokio"),
		CorrectAnswer: model.Text("Tokyo"),
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", `{"correct": true}`, `{"correct": true}`},
		{"fenced", "```json\n{\"correct\": false}\n```", `{"correct": false}`},
		{"prose around", `Sure! {"a": {"b": 1}} Hope this helps.`, `{"a": {"b": 1}}`},
		{"no object", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.in); got != tt.want {
				t.Errorf("extractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsSemanticallyCorrect(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		genErr  error
		want    bool
		wantErr bool
	}{
		{"accepted", `{"correct": true, "reason": "spelling"}`, nil, true, false},
		{"rejected", "```json\n{\"correct\": false}\n```", nil, false, false},
		{"no verdict", `{"reason": "unsure"}`, nil, false, true},
		{"garbage", `maybe`, nil, false, true},
		{"call fails", "", errors.New("rate limited"), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{reply: tt.reply, err: tt.genErr}
			o := NewOracle(gen, prompts.Standard)
			got, err := o.IsSemanticallyCorrect(context.Background(), tokyoCheck())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if !gen.cfg.JSON {
				t.Error("semantic check should request JSON output")
			}
			if !strings.Contains(gen.prompt, "Tokio") {
				t.Error("prompt does not contain the user answer")
			}
		})
	}
}

func TestExplainAnswer(t *testing.T) {
	gen := &fakeGenerator{reply: "  Tokyo is the capital.\n"}
	o := NewOracle(gen, prompts.Standard)
	text, err := o.ExplainAnswer(context.Background(), tokyoCheck())
	if err != nil {
		t.Fatalf("ExplainAnswer: %v", err)
	}
	if text != "Tokyo is the capital." {
		t.Errorf("text = %q", text)
	}
	if gen.cfg.MaxTokens != 200 || gen.cfg.Temperature != 0.7 {
		t.Errorf("unexpected config %+v", gen.cfg)
	}
	if err := o.Close(); err != nil || !gen.closed {
		t.Error("Close did not close the generator")
	}
}

func TestGenerateQuestions(t *testing.T) {
	gen := &fakeGenerator{reply: `{"questions": [
		{"question": "Pick primes", "answer": ["2", "3"], "type": "multi", "options": ["2", "3", "4"]},
		{"question": "Capital of Japan?", "answer": "Tokyo", "type": "short", "options": []}
	]}`}
	o := NewOracle(gen, prompts.Standard)
	qs, err := o.GenerateQuestions(context.Background(), GenerateRequest{
		Content: "notes", Count: 2, Difficulty: "easy",
		Types: []model.QuestionType{model.TypeMulti, model.TypeShort},
	})
	if err != nil {
		t.Fatalf("GenerateQuestions: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("got %d questions, want 2", len(qs))
	}
	if qs[0].Answer.Kind() != model.KindList || qs[1].Answer.String() != "Tokyo" {
		t.Errorf("answers not decoded: %+v", qs)
	}
	if !strings.Contains(gen.prompt, "multi, short") {
		t.Error("prompt does not list requested types")
	}

	gen.reply = `{"questions": []}`
	if _, err := o.GenerateQuestions(context.Background(), GenerateRequest{Count: 1}); err == nil {
		t.Error("expected error for empty question list")
	}
}

func TestNewGenerator(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		cfg     Config
		key     string
		wantErr error
	}{
		{"openai no key", Config{Provider: ProviderOpenAI}, "", ErrNoCredential},
		{"gemini no key", Config{Provider: ProviderGemini}, " ", ErrNoCredential},
		{"openai request key", Config{Provider: ProviderOpenAI}, "sk-test", nil},
		{"openai server key", Config{APIKey: "sk-server"}, "", nil},
		{"local endpoint without key", Config{Provider: ProviderOpenAI, BaseURL: "http://localhost:11434/v1"}, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := tt.cfg.NewGenerator(ctx, tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err == nil {
				gen.Close()
			}
		})
	}

	if _, err := (Config{Provider: "claude"}).NewGenerator(ctx, "k"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestDefaultModel(t *testing.T) {
	if got := (Config{Provider: ProviderGemini}).DefaultModel(); got != "gemini-1.5-flash" {
		t.Errorf("gemini default = %q", got)
	}
	if got := (Config{Model: "llama3"}).DefaultModel(); got != "llama3" {
		t.Errorf("explicit model = %q", got)
	}
}

func TestOpenAIClientGenerateText(t *testing.T) {
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"correct\": true}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/v1", "sk-test", "test-model")
	out, err := c.GenerateText(context.Background(), "hello", GenConfig{JSON: true, MaxTokens: 50})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if out != `{"correct": true}` {
		t.Errorf("out = %q", out)
	}
	if gotReq["model"] != "test-model" {
		t.Errorf("model = %v", gotReq["model"])
	}
	if rf, ok := gotReq["response_format"].(map[string]any); !ok || rf["type"] != "json_object" {
		t.Errorf("response_format = %v", gotReq["response_format"])
	}
}
