package matcher

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/pavelanni/studytool/internal/model"
)

func val(t *testing.T, raw string) model.Value {
	t.Helper()
	var v model.Value
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return v
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Paris ", "paris"},
		{"Twenty-Seven", "27"},
		{"ninety nine", "99"},
		{"seventeen apples", "17 apples"},
		{"zero", "0"},
		{"someone", "someone"},
		{"one and two", "1 and 2"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"tokyo", "tokyo", 1},
		{"abc", "xyz", 0},
		{"tokio", "tokyo", 0.8},
		{"abcd", "bcde", 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name      string
		qtype     model.QuestionType
		response  string
		canonical string
		want      Verdict
		conf      float64
	}{
		{"mcq exact", model.TypeMCQ, `"Paris"`, `"paris"`, Correct, 1},
		{"mcq wrong", model.TypeMCQ, `"Lyon"`, `"Paris"`, Incorrect, 0},
		{"mcq null response", model.TypeMCQ, `null`, `"Paris"`, Incorrect, 0},
		{"truefalse bool", model.TypeTrueFalse, `true`, `"True"`, Correct, 1},
		{"multi order", model.TypeMulti, `["B","A"]`, `["A","B"]`, Correct, 1},
		{"multi duplicates", model.TypeMulti, `["a","A","b"]`, `["A","B"]`, Correct, 1},
		{"multi subset", model.TypeMulti, `["A"]`, `["A","B"]`, Incorrect, 0},
		{"multi comma canonical", model.TypeMulti, `["B","A"]`, `"A, B"`, Correct, 1},
		{"multi malformed", model.TypeMulti, `[["A"]]`, `["A"]`, Incorrect, 0},
		{"short exact", model.TypeShort, `" Tokyo "`, `"tokyo"`, Correct, 1},
		{"short number words", model.TypeShort, `"twenty-seven"`, `"27"`, Correct, 1},
		{"short pending", model.TypeShort, `"Tokio"`, `"Tokyo"`, Pending, 0.8},
		{"short far", model.TypeShort, `"banana"`, `"xyz"`, Incorrect, 0},
		{"short typo", model.TypeShort,
			`"the mitochondria is the powerhouse of the cel"`,
			`"the mitochondria is the powerhouse of the cell"`, Correct, 0.95},
		{"short missing", model.TypeShort, `null`, `"Tokyo"`, Incorrect, 0},
		{"short object response", model.TypeShort, `{"a":1}`, `"Tokyo"`, Incorrect, 0},
		{"cloze list", model.TypeCloze, `["Red","blue"]`, `["red","blue"]`, Correct, 1},
		{"cloze indexed map", model.TypeCloze, `{"1":"blue","0":"red"}`, `["red","blue"]`, Correct, 1},
		{"cloze single string", model.TypeCloze, `"red"`, `["red"]`, Correct, 1},
		{"cloze comma string matches itself", model.TypeCloze, `"red, blue"`, `"red, blue"`, Correct, 1},
		{"cloze comma string matches list", model.TypeCloze, `"red, blue"`, `["red","blue"]`, Correct, 1},
		{"cloze list matches comma string", model.TypeCloze, `["red","blue"]`, `"red,blue"`, Correct, 1},
		{"cloze length mismatch", model.TypeCloze, `["red"]`, `["red","blue"]`, Incorrect, 0},
		{"cloze close blank", model.TypeCloze, `["red","blu"]`, `["red","blue"]`, Incorrect, 0},
		{"cloze bad keys", model.TypeCloze, `{"x":"red"}`, `["red"]`, Incorrect, 0},
		{"unknown type", model.QuestionType("essay"), `"x"`, `"x"`, Incorrect, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(tt.qtype, val(t, tt.response), val(t, tt.canonical))
			if got.Verdict != tt.want {
				t.Errorf("verdict = %v, want %v", got.Verdict, tt.want)
			}
			if math.Abs(got.Confidence-tt.conf) > 1e-9 {
				t.Errorf("confidence = %v, want %v", got.Confidence, tt.conf)
			}
		})
	}
}

func TestDefinitiveTypesNeverPending(t *testing.T) {
	responses := []string{`"Paris"`, `"Pariss"`, `"Tokio"`, `["A","B"]`, `null`, `{"0":"a"}`, `[1, true]`, `"twenty"`}
	canonicals := []string{`"Paris"`, `"Tokyo"`, `["A","B"]`, `"true"`}
	for _, qtype := range []model.QuestionType{model.TypeMCQ, model.TypeMulti, model.TypeTrueFalse} {
		for _, r := range responses {
			for _, c := range canonicals {
				res := Match(qtype, val(t, r), val(t, c))
				if res.Verdict == Pending {
					t.Errorf("Match(%s, %s, %s) returned pending", qtype, r, c)
				}
				if res.CorrectPtr() == nil {
					t.Errorf("Match(%s, %s, %s) has no definitive correctness", qtype, r, c)
				}
			}
		}
	}
}

func TestPendingBand(t *testing.T) {
	// Every short-answer result strictly inside the band must be pending.
	pairs := [][2]string{
		{"Tokio", "Tokyo"},
		{"photosynthesis", "photosynthsis process"},
		{"abc", "abd"},
		{"newton", "isaac newton"},
	}
	for _, p := range pairs {
		ratio := Similarity(Normalize(p[0]), Normalize(p[1]))
		res := Match(model.TypeShort, model.Text(p[0]), model.Text(p[1]))
		if ratio > RejectBelow && ratio < AcceptAbove && res.Verdict != Pending {
			t.Errorf("%q vs %q: ratio %v gave %v, want pending", p[0], p[1], ratio, res.Verdict)
		}
	}
}
