// Package normalize canonicalizes free-text agency, program, and fund names
// so that the two ledgers produce comparable matching keys.
//
// Normalization lowercases, strips punctuation, collapses whitespace, drops a
// leading "the", and expands common government abbreviations token by token:
//
//	normalize.Normalize("Dept. of Behavioral Hlth Svcs")
//	// => "department of behavioral health services"
//
// The function is deterministic and idempotent: Normalize(Normalize(x)) ==
// Normalize(x). Abbreviations are expanded per whole token, never by substring,
// and no expansion output is itself a table key.
package normalize

import (
	"strings"
	"unicode"
)

// expansion is a single entry in the ordered abbreviation table.
type expansion struct {
	abbr string
	full string
}

// abbreviations is the ordered substitution table applied to whole tokens.
// Earlier entries win when two could apply to the same token.
var abbreviations = []expansion{
	{"dept", "department"},
	{"depts", "departments"},
	{"svcs", "services"},
	{"svc", "service"},
	{"asst", "assistance"},
	{"rehab", "rehabilitation"},
	{"med", "medical"},
	{"admin", "administration"},
	{"mgmt", "management"},
	{"coord", "coordination"},
	{"dev", "development"},
	{"progs", "programs"},
	{"prog", "program"},
	{"pgms", "programs"},
	{"pgm", "program"},
	{"educ", "education"},
	{"govt", "government"},
	{"hlth", "health"},
	{"maint", "maintenance"},
	{"hwy", "highway"},
	{"univ", "university"},
	{"inst", "institution"},
	{"comm", "commission"},
	{"auth", "authority"},
	{"fin", "finance"},
}

// Normalize returns the canonical matching form of a free-text name.
// Empty or whitespace-only input yields the empty string, never an error.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.ReplaceAll(s, "&", " and ")

	// Replace punctuation with spaces so "health/human" splits cleanly.
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	tokens := strings.Fields(b.String())
	if len(tokens) == 0 {
		return ""
	}

	// Drop a leading article.
	if tokens[0] == "the" {
		tokens = tokens[1:]
	}

	for i, tok := range tokens {
		tokens[i] = expandToken(tok)
	}

	return strings.Join(tokens, " ")
}

// expandToken applies the first matching abbreviation to a whole token.
func expandToken(tok string) string {
	for _, e := range abbreviations {
		if tok == e.abbr {
			return e.full
		}
	}
	return tok
}

// Tokens returns the normalized form split into its word set. Useful for
// token-overlap scoring on fund names.
func Tokens(text string) []string {
	norm := Normalize(text)
	if norm == "" {
		return nil
	}
	return strings.Fields(norm)
}
