package matcher

// Similarity returns the Ratcliff/Obershelp ratio of a and b:
// twice the number of characters in matching blocks over the total length.
// Identical strings score 1, strings with nothing in common score 0.
// Unlike difflib there is no autojunk heuristic, so long answers may score
// higher than they would there.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingChars(ra, rb)) / float64(total)
}

func matchingChars(a, b []rune) int {
	i, j, k := longestMatch(a, b)
	if k == 0 {
		return 0
	}
	return k + matchingChars(a[:i], b[:j]) + matchingChars(a[i+k:], b[j+k:])
}

// longestMatch finds the longest common block, preferring the earliest
// start in a and then in b.
func longestMatch(a, b []rune) (int, int, int) {
	bestI, bestJ, bestK := 0, 0, 0
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > bestK {
					bestK = cur[j]
					bestI, bestJ = i-bestK, j-bestK
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return bestI, bestJ, bestK
}
