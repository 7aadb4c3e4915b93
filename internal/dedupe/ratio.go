package dedupe

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
)

// Score is the normalized Indel similarity of a and b in [0, 100]: twice the
// longest common subsequence over the combined rune length. Comparison is
// case-insensitive and two empty strings are identical.
func Score(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	return 100 * float64(2*edlib.LCS(a, b)) / float64(total)
}

// Ratio is Score rounded to the nearest integer.
func Ratio(a, b string) int {
	return int(math.Round(Score(a, b)))
}
