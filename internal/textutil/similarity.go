package textutil

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Similarity returns 1 - editDistance/maxLen over the normalized names.
// Empty names never match.
func Similarity(a, b string) float64 {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	longest := max(utf8.RuneCountInString(na), utf8.RuneCountInString(nb))
	dist := levenshtein.ComputeDistance(na, nb)
	if dist >= longest {
		return 0
	}
	return 1 - float64(dist)/float64(longest)
}

// BestMatch returns the index of the candidate most similar to name and its
// score. It returns -1 when candidates is empty.
func BestMatch(name string, candidates []string) (int, float64) {
	best, score := -1, 0.0
	for i, candidate := range candidates {
		if s := Similarity(name, candidate); best < 0 || s > score {
			best, score = i, s
		}
	}
	return best, score
}
