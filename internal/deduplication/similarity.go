package deduplication

import "math"

// Ratio scores the similarity of two strings on a 0-100 scale.
//
// The score is 100 * (len(a)+len(b) - d) / (len(a)+len(b)), rounded half to even,
// where d is the insert/delete edit distance between a and b (a substitution counts
// as one delete plus one insert). Lengths are measured in runes. Identical strings,
// including two empty strings, score 100; an empty string against a non-empty one
// scores 0.
func Ratio(a, b string) int {
	if a == b {
		return 100
	}
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	// total - d == 2*LCS, so the ratio reduces to 200*LCS/total
	lcs := longestCommonSubsequence(ra, rb)
	return int(math.RoundToEven(float64(200*lcs) / float64(total)))
}

// longestCommonSubsequence returns the LCS length using two rolling rows
func longestCommonSubsequence(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
