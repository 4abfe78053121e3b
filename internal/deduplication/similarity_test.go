package deduplication

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"identical", "device recall", "device recall", 100},
		{"both empty", "", "", 100},
		{"one empty", "", "device recall", 0},
		{"disjoint", "abc", "xyz", 0},
		{"plural", "insulin pump battery fault", "insulin pump battery faults", 98},
		{"single substitution", "abcd", "abce", 75},
		{"exactly 85", strings.Repeat("a", 20), strings.Repeat("a", 17) + "bbb", 85},
		{"exactly 84", strings.Repeat("a", 25), strings.Repeat("a", 21) + "bbbb", 84},
		{"rounds to nearest", "ab", "abcdefg", 44},
		{"half rounds to even", "a", "abcdefghijklmno", 12},
		{"multibyte runes", "café recall", "cafe recall", 91},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Ratio(tt.a, tt.b))
			assert.Equal(t, tt.want, Ratio(tt.b, tt.a), "ratio must be symmetric")
		})
	}
}

func TestLongestCommonSubsequence(t *testing.T) {
	assert.Equal(t, 0, longestCommonSubsequence([]rune(""), []rune("abc")))
	assert.Equal(t, 3, longestCommonSubsequence([]rune("abc"), []rune("abc")))
	assert.Equal(t, 4, longestCommonSubsequence([]rune("ABCBDAB"), []rune("BDCABA")))
}
