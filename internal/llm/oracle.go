package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/pavelanni/studytool/internal/llm/prompts"
	"github.com/pavelanni/studytool/internal/model"
)

// Oracle answers grading questions with an LLM: semantic equivalence of
// free-text answers, explanations of wrong answers and question generation.
type Oracle struct {
	gen     Generator
	variant prompts.Variant
}

func NewOracle(gen Generator, variant prompts.Variant) *Oracle {
	return &Oracle{gen: gen, variant: variant}
}

type checkResult struct {
	Correct *bool  `json:"correct"`
	Reason  string `json:"reason"`
}

// IsSemanticallyCorrect asks whether the user's answer means the same as the
// canonical one.
func (o *Oracle) IsSemanticallyCorrect(ctx context.Context, c model.AnswerCheck) (bool, error) {
	prompt, err := prompts.BuildCheckPrompt(o.variant, c)
	if err != nil {
		return false, err
	}
	raw, err := o.gen.GenerateText(ctx, prompt, GenConfig{Temperature: 0.1, MaxTokens: 200, JSON: true})
	if err != nil {
		return false, err
	}
	var res checkResult
	if err := json.Unmarshal([]byte(extractJSON(raw)), &res); err != nil {
		return false, fmt.Errorf("parse check response: %w (raw: %s)", err, raw)
	}
	if res.Correct == nil {
		return false, fmt.Errorf("check response has no verdict (raw: %s)", raw)
	}
	slog.Debug("semantic check", "question_id", c.QuestionID, "correct", *res.Correct, "reason", res.Reason)
	return *res.Correct, nil
}

// ExplainAnswer returns a short explanation of why the user's answer is
// wrong.
func (o *Oracle) ExplainAnswer(ctx context.Context, c model.AnswerCheck) (string, error) {
	prompt, err := prompts.BuildExplainPrompt(c)
	if err != nil {
		return "", err
	}
	text, err := o.gen.GenerateText(ctx, prompt, GenConfig{Temperature: 0.7, MaxTokens: 200})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// GenerateRequest describes a batch of questions to generate.
type GenerateRequest struct {
	Content    string
	Count      int
	Difficulty string
	Types      []model.QuestionType
	Mode       string
	AvoidStems []string
}

// GeneratedQuestion is one question as returned by the model.
type GeneratedQuestion struct {
	Question    string             `json:"question"`
	Answer      model.Value        `json:"answer"`
	Type        model.QuestionType `json:"type"`
	Options     []string           `json:"options"`
	Explanation string             `json:"explanation"`
}

type generateResponse struct {
	Questions []GeneratedQuestion `json:"questions"`
}

// GenerateQuestions asks the model for up to req.Count questions.
func (o *Oracle) GenerateQuestions(ctx context.Context, req GenerateRequest) ([]GeneratedQuestion, error) {
	types := make([]string, len(req.Types))
	for i, t := range req.Types {
		types[i] = string(t)
	}
	prompt, err := prompts.BuildGeneratePrompt(prompts.GenerateData{
		Content:    req.Content,
		Count:      req.Count,
		Difficulty: req.Difficulty,
		Types:      types,
		Mode:       req.Mode,
		AvoidStems: req.AvoidStems,
	})
	if err != nil {
		return nil, err
	}
	raw, err := o.gen.GenerateText(ctx, prompt, GenConfig{Temperature: 0.7, MaxTokens: 8192, JSON: true})
	if err != nil {
		return nil, err
	}
	var resp generateResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return nil, fmt.Errorf("parse generation response: %w", err)
	}
	if len(resp.Questions) == 0 {
		return nil, errors.New("model returned no questions")
	}
	return resp.Questions, nil
}

func (o *Oracle) Close() error {
	return o.gen.Close()
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// extractJSON strips markdown fences and surrounding prose from a model
// response, keeping the outermost JSON object.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
