// Package matcher links expenditures to program-grain appropriations across
// three sequential passes: a strict key join, a fuzzy name join with
// fund-assisted tie-breaking, and a category-restricted fuzzy join.
//
// Each pass receives an immutable ClaimSet snapshot of every expenditure ID
// consumed so far and returns the IDs it claimed itself; no expenditure is
// ever attributed to more than one program.
//
// Example:
//
//	cfg := matcher.DefaultConfig()
//	strict := matcher.Strict(grain, expenditures)
//	fuzzy := matcher.Fuzzy(grain, expenditures, strict.Claimed, cfg)
package matcher

import (
	"github.com/statebudgetx/budget-decoder/internal/domain/ledger"
)

// MatchType identifies which pass produced a match.
type MatchType string

const (
	MatchStrict            MatchType = "strict"
	MatchFuzzy             MatchType = "fuzzy"
	MatchFuzzyFundTiebreak MatchType = "fuzzy_fund_tiebreak"
	MatchCategoryFuzzy     MatchType = "category_assisted_fuzzy"
)

// Config holds matching thresholds and the category allow-list.
type Config struct {
	// FuzzyThreshold is the minimum token-set similarity for the general
	// fuzzy pass. Candidates scoring exactly at the threshold are accepted.
	FuzzyThreshold float64

	// CategoryThreshold is the stricter minimum for the category-assisted
	// pass, compensating for its narrower, higher-risk bucket.
	CategoryThreshold float64

	// CategoryAllowList restricts the category-assisted pass to expenditures
	// whose expense type contains one of these substrings.
	CategoryAllowList []string
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		FuzzyThreshold:    0.88,
		CategoryThreshold: 0.92,
		CategoryAllowList: []string{"Grnt-Nongovernmental", "Skilled Services"},
	}
}

// MatchRecord is an expenditure joined to the program it draws against.
type MatchRecord struct {
	Expenditure ledger.ExpenditureRecord
	Program     ledger.ProgramGrainRecord
	Type        MatchType
	Score       float64 // similarity in [0,1]; 1.0 for strict
}

// Result is the complete output of one matching pass. Claimed contains only
// the expenditure IDs consumed by this pass, never inherited ones.
type Result struct {
	Matched               []MatchRecord
	UnmatchedPrograms     []ledger.ProgramGrainRecord
	UnmatchedExpenditures []ledger.ExpenditureRecord
	Claimed               ClaimSet
}
