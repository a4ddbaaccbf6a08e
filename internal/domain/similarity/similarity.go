// Package similarity scores how alike two normalized program names are.
//
// TokenSetRatio returns a score in [0,1] that ignores token order and
// duplicated tokens, so "immunization outreach" and "immunization outreach
// program" score 1.0 on their shared token core. Scores are compared against
// the matcher thresholds with >=, so a candidate scoring exactly at the
// threshold is accepted.
package similarity

import (
	"sort"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Ratio returns the indel similarity of two strings in [0,1].
// Identical strings score 1.0; two empty strings score 0.
func Ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}
	// DefaultOptions costs substitutions at 2, which makes the distance a pure
	// insert/delete distance and the ratio symmetric in both lengths.
	return levenshtein.RatioForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
}

// TokenSetRatio compares the deduplicated, sorted token sets of a and b.
//
// The score is the best pairwise Ratio among the shared-token core, the core
// plus a's remainder, and the core plus b's remainder. When one name's tokens
// are a subset of the other's, the score is 1.0.
func TokenSetRatio(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	var inter, diffA, diffB []string
	for _, tok := range tokensA {
		if contains(tokensB, tok) {
			inter = append(inter, tok)
		} else {
			diffA = append(diffA, tok)
		}
	}
	for _, tok := range tokensB {
		if !contains(tokensA, tok) {
			diffB = append(diffB, tok)
		}
	}

	core := strings.Join(inter, " ")
	combinedA := joinParts(core, diffA)
	combinedB := joinParts(core, diffB)

	// A shared core that fully covers one side is a perfect set match.
	if core != "" && (core == combinedA || core == combinedB) {
		return 1.0
	}

	best := Ratio(core, combinedA)
	if s := Ratio(core, combinedB); s > best {
		best = s
	}
	if s := Ratio(combinedA, combinedB); s > best {
		best = s
	}
	return best
}

// tokenSet splits into unique sorted tokens.
func tokenSet(s string) []string {
	fields := strings.Fields(s)
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func joinParts(core string, rest []string) string {
	tail := strings.Join(rest, " ")
	if core == "" {
		return tail
	}
	if tail == "" {
		return core
	}
	return core + " " + tail
}

func contains(sorted []string, tok string) bool {
	i := sort.SearchStrings(sorted, tok)
	return i < len(sorted) && sorted[i] == tok
}
