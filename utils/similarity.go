package utils

import "strings"

// SequenceSimilarity returns a ratio in [0, 1] of how alike a and b are,
// computed like Python's difflib.SequenceMatcher.ratio(): twice the number of
// characters in matching blocks divided by the total length. Comparison is
// case-insensitive.
func SequenceSimilarity(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))

	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}

	matches := matchingCharacters(ra, rb)
	return 2.0 * float64(matches) / float64(len(ra)+len(rb))
}

// matchingCharacters sums the sizes of the Ratcliff/Obershelp matching blocks:
// the longest common substring, then recursively the parts left and right of it.
func matchingCharacters(a, b []rune) int {
	i, j, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}

	return size +
		matchingCharacters(a[:i], b[:j]) +
		matchingCharacters(a[i+size:], b[j+size:])
}

// longestCommonSubstring returns the start in a, start in b and length of the
// earliest longest common substring.
func longestCommonSubstring(a, b []rune) (int, int, int) {
	bestI, bestJ, bestSize := 0, 0, 0

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > bestSize {
					bestSize = curr[j]
					bestI = i - bestSize
					bestJ = j - bestSize
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}

	return bestI, bestJ, bestSize
}
