package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/studytool/internal/model"
)

//go:embed templates/*.txt
var Templates embed.FS

var studentAnswerRegex = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)

// Variant selects how strictly the semantic check judges an answer.
type Variant string

const (
	// Strict accepts only spelling slips and exact synonyms.
	Strict Variant = "strict"
	// Standard is the default.
	Standard Variant = "standard"
	// Lenient accepts answers that capture the core idea.
	Lenient Variant = "lenient"
)

var validVariants = map[Variant]bool{
	Strict:   true,
	Standard: true,
	Lenient:  true,
}

const (
	maxAnswerRunes  = 10000
	maxContentRunes = 15000
	maxAvoidStems   = 50
)

var (
	loadOnce         sync.Once
	loadErr          error
	checkTemplates   map[Variant]*template.Template
	explainTemplate  *template.Template
	generateTemplate *template.Template
)

var funcs = template.FuncMap{"join": strings.Join}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[Variant(v)]
}

// CheckData holds template data for semantic-check and explanation prompts.
type CheckData struct {
	Stem          string
	Type          string
	Options       []string
	CorrectAnswer string
	UserAnswer    string
}

// GenerateData holds template data for question-generation prompts.
type GenerateData struct {
	Content    string
	Count      int
	Difficulty string
	Types      []string
	Mode       string
	AvoidStems []string
}

// Load parses the prompt templates from fsys. Only the first call has an
// effect.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		checkTemplates = make(map[Variant]*template.Template)
		for _, v := range []Variant{Strict, Standard, Lenient} {
			tmpl, err := parse(fsys, "check_"+string(v))
			if err != nil {
				loadErr = err
				return
			}
			checkTemplates[v] = tmpl
		}
		if explainTemplate, loadErr = parse(fsys, "explain"); loadErr != nil {
			return
		}
		generateTemplate, loadErr = parse(fsys, "generate")
	})
	return loadErr
}

func parse(fsys fs.FS, name string) (*template.Template, error) {
	file := "templates/" + name + ".txt"
	content, err := fs.ReadFile(fsys, file)
	if err != nil {
		return nil, fmt.Errorf("read prompt file %s: %w", file, err)
	}
	tmpl, err := template.New(name).Funcs(funcs).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", file, err)
	}
	return tmpl, nil
}

func loaded() error {
	if err := Load(Templates); err != nil {
		return fmt.Errorf("templates load failed: %w", err)
	}
	if checkTemplates == nil {
		return errors.New("templates not initialized")
	}
	return nil
}

// BuildCheckPrompt builds the semantic-equivalence prompt for one answer.
func BuildCheckPrompt(variant Variant, c model.AnswerCheck) (string, error) {
	if err := loaded(); err != nil {
		return "", err
	}
	tmpl, ok := checkTemplates[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}
	return execute(tmpl, checkData(c))
}

// BuildExplainPrompt builds the prompt explaining why an answer is wrong.
func BuildExplainPrompt(c model.AnswerCheck) (string, error) {
	if err := loaded(); err != nil {
		return "", err
	}
	return execute(explainTemplate, checkData(c))
}

// BuildGeneratePrompt builds the question-generation prompt.
func BuildGeneratePrompt(d GenerateData) (string, error) {
	if err := loaded(); err != nil {
		return "", err
	}
	d.Content = truncate(d.Content, maxContentRunes)
	if len(d.AvoidStems) > maxAvoidStems {
		d.AvoidStems = d.AvoidStems[:maxAvoidStems]
	}
	if d.Mode == "" {
		d.Mode = "strict"
	}
	return execute(generateTemplate, d)
}

func checkData(c model.AnswerCheck) CheckData {
	correct := c.CorrectAnswer.String()
	if correct == "" {
		correct = "N/A"
	}
	return CheckData{
		Stem:          c.Stem,
		Type:          string(c.Type),
		Options:       c.Options,
		CorrectAnswer: correct,
		UserAnswer:    sanitizeAnswer(c.UserAnswer.String()),
	}
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}
	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		answer = truncate(answer, maxAnswerRunes) + "\n\n[Answer truncated due to length]"
	}
	return answer
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
