package matcher

import (
	"strings"
	"unicode"
)

// levenshtein computes the edit distance between two strings using two rows
// instead of the full matrix.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}

	prev := make([]int, len(ra)+1)
	curr := make([]int, len(ra)+1)
	for i := range prev {
		prev[i] = i
	}

	for j := 1; j <= len(rb); j++ {
		curr[0] = j
		for i := 1; i <= len(ra); i++ {
			cost := 0
			if ra[i-1] != rb[j-1] {
				cost = 1
			}
			curr[i] = min(prev[i]+1, curr[i-1]+1, prev[i-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(ra)]
}

// similarity is 1 - distance/maxLen over normalized strings; 1 means equal.
func similarity(a, b string) float64 {
	a, b = normalize(a), normalize(b)
	if a == "" && b == "" {
		return 1
	}
	maxLen := max(len([]rune(a)), len([]rune(b)))
	return 1 - float64(levenshtein(a, b))/float64(maxLen)
}

// normalize lowercases and drops everything but letters and digits.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
