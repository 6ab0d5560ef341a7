// Package suggest implements component M: enriching a missing-asset
// diagnostic with a nearest-name suggestion drawn from the resolved
// asset-source file index. Pure enrichment — it never changes resolution
// outcomes.
package suggest

import (
	"github.com/hbollon/go-edlib"

	"github.com/Aciz/Pack3r/internal/resourcename"
)

// Threshold is the minimum Jaro-Winkler similarity score (0..1) a
// candidate must reach to be offered as a suggestion.
const Threshold = 0.82

// Nearest returns the candidate most similar to name by Jaro-Winkler
// similarity, and whether it cleared Threshold.
func Nearest(name resourcename.Name, candidates []resourcename.Name) (resourcename.Name, bool) {
	if len(candidates) == 0 {
		return resourcename.Name{}, false
	}

	target := name.Key()
	var best resourcename.Name
	var bestScore float32

	for _, c := range candidates {
		score, err := edlib.StringsSimilarity(target, c.Key(), edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = c
		}
	}

	if bestScore < Threshold {
		return resourcename.Name{}, false
	}
	return best, true
}

// Hint formats a suggestion as the trailing clause of a diagnostic
// message, or "" when none was found.
func Hint(name resourcename.Name, candidates []resourcename.Name) string {
	best, ok := Nearest(name, candidates)
	if !ok {
		return ""
	}
	return " (did you mean: " + best.String() + "?)"
}
