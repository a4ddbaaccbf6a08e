// Package ingest reads the raw appropriation and expenditure CSV exports and
// produces clean ledger records: snake_case header handling, BOM stripping,
// lenient numeric parsing, and the normalized matching keys computed once.
package ingest

import (
	"strconv"
	"strings"
	"unicode"
)

// snakeCase converts an exported column header to snake_case: punctuation is
// dropped, whitespace runs become single underscores, letters are lowercased.
// "CH 725 FY 2025 TOTAL DOLLARS" becomes "ch_725_fy_2025_total_dollars".
func snakeCase(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r) || r == '_':
			pendingSep = true
		}
	}
	return b.String()
}

// stripBOM removes a UTF-8 byte order mark. Exports written on Windows often
// carry one glued to the first header cell.
func stripBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}

// parseFloat reads a dollar amount leniently: commas and dollar signs are
// stripped, parentheses mean negative, and garbage parses to zero so one bad
// cell never sinks a load. The bool reports whether the cell was parseable.
func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer(",", "", "$", "").Replace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// parseInt reads an integer leniently, zero on garbage.
func parseInt(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}

// headerIndex maps snake_cased column names to their positions.
type headerIndex map[string]int

func indexHeader(header []string) headerIndex {
	idx := make(headerIndex, len(header))
	for i, col := range header {
		name := snakeCase(stripBOM(col))
		if _, ok := idx[name]; !ok {
			idx[name] = i
		}
	}
	return idx
}

// field returns the trimmed cell for a named column, empty when the column is
// absent or the row is short.
func (h headerIndex) field(row []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (h headerIndex) has(name string) bool {
	_, ok := h[name]
	return ok
}
