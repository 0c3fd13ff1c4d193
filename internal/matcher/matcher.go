// Package matcher decides whether a response matches a question's
// canonical answer.
package matcher

import "github.com/pavelanni/studytool/internal/model"

// Verdict is the outcome of matching one response.
type Verdict int

const (
	Incorrect Verdict = iota
	Correct
	// Pending means the response is close enough to be plausible but
	// needs a semantic check.
	Pending
)

func (v Verdict) String() string {
	switch v {
	case Correct:
		return "correct"
	case Pending:
		return "pending"
	}
	return "incorrect"
}

// Similarity thresholds for short answers.
const (
	RejectBelow = 0.2
	AcceptAbove = 0.95
)

// Result is a verdict and the confidence that the response is correct.
type Result struct {
	Verdict    Verdict
	Confidence float64
}

// CorrectPtr returns the tri-state correctness: nil when pending.
func (r Result) CorrectPtr() *bool {
	if r.Verdict == Pending {
		return nil
	}
	return model.Bool(r.Verdict == Correct)
}

var (
	correct   = Result{Verdict: Correct, Confidence: 1}
	incorrect = Result{Verdict: Incorrect, Confidence: 0}
)

// Match grades response against canonical for the given question type.
// It never panics on odd shapes: malformed values are incorrect.
func Match(qtype model.QuestionType, response, canonical model.Value) Result {
	switch qtype {
	case model.TypeMCQ, model.TypeTrueFalse:
		return matchExact(response, canonical)
	case model.TypeMulti:
		return matchSet(response, canonical)
	case model.TypeShort:
		return matchShort(response, canonical)
	case model.TypeCloze:
		return matchBlanks(response, canonical)
	}
	return incorrect
}

func matchExact(response, canonical model.Value) Result {
	if response.Kind() == model.KindMalformed {
		return incorrect
	}
	want := Normalize(canonical.String())
	if want == "" {
		return incorrect
	}
	if Normalize(response.String()) == want {
		return correct
	}
	return incorrect
}

// matchSet compares as sets: order and duplicates are ignored.
func matchSet(response, canonical model.Value) Result {
	got, ok := response.SplitItems()
	if !ok {
		return incorrect
	}
	want, ok := canonical.SplitItems()
	if !ok || len(want) == 0 {
		return incorrect
	}
	gotSet, wantSet := normalizedSet(got), normalizedSet(want)
	if len(gotSet) != len(wantSet) {
		return incorrect
	}
	for k := range wantSet {
		if _, ok := gotSet[k]; !ok {
			return incorrect
		}
	}
	return correct
}

func normalizedSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[Normalize(it)] = struct{}{}
	}
	return set
}

func matchShort(response, canonical model.Value) Result {
	if response.Kind() == model.KindMalformed {
		return incorrect
	}
	want := Normalize(canonical.String())
	if want == "" {
		return incorrect
	}
	got := Normalize(response.String())
	if got == want {
		return correct
	}
	ratio := Similarity(got, want)
	switch {
	case ratio < RejectBelow:
		return incorrect
	case ratio > AcceptAbove:
		return Result{Verdict: Correct, Confidence: AcceptAbove}
	}
	return Result{Verdict: Pending, Confidence: ratio}
}

// matchBlanks grades cloze answers blank by blank with exact normalized
// equality. Text on either side is split on commas so a single string and
// its list form grade alike. Cloze never goes to the semantic check.
func matchBlanks(response, canonical model.Value) Result {
	got, ok := response.SplitItems()
	if !ok {
		return incorrect
	}
	want, ok := canonical.SplitItems()
	if !ok || len(want) == 0 || len(got) != len(want) {
		return incorrect
	}
	for i := range want {
		if Normalize(got[i]) != Normalize(want[i]) {
			return incorrect
		}
	}
	return correct
}
