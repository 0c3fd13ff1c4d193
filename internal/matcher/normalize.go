package matcher

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var units = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
}

var tens = map[string]int{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

var (
	compoundRe = regexp.MustCompile(`\b(` + alternation(tens) + `)[- ](` + alternation(digitWords()) + `)\b`)
	numberRe   = regexp.MustCompile(`\b(` + alternation(units) + `|` + alternation(tens) + `)\b`)
)

func digitWords() map[string]int {
	m := make(map[string]int, 9)
	for w, n := range units {
		if n >= 1 && n <= 9 {
			m[w] = n
		}
	}
	return m
}

// alternation joins map keys longest first so that "seventeen" is tried
// before "seven".
func alternation(m map[string]int) string {
	words := make([]string, 0, len(m))
	for w := range m {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	return strings.Join(words, "|")
}

// Normalize trims, case-folds and replaces spelled-out numbers with digits
// ("Twenty-Seven" becomes "27").
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.TrimSpace(cases.Lower(language.Und).String(s))
	if s == "" {
		return s
	}
	s = compoundRe.ReplaceAllStringFunc(s, func(m string) string {
		parts := compoundRe.FindStringSubmatch(m)
		return strconv.Itoa(tens[parts[1]] + units[parts[2]])
	})
	s = numberRe.ReplaceAllStringFunc(s, func(w string) string {
		if n, ok := units[w]; ok {
			return strconv.Itoa(n)
		}
		return strconv.Itoa(tens[w])
	})
	return s
}
