package matcher

import (
	"strings"

	"github.com/statebudgetx/budget-decoder/internal/domain/ledger"
)

// Category runs the narrower category-assisted fuzzy pass on whatever the
// general fuzzy pass left unmatched. Only expenditures whose expense type
// contains an allow-listed category (grant and skilled-service buckets prone
// to naming drift) are eligible, and the stricter CategoryThreshold applies.
// No fund tie-breaking: the single best candidate in deterministic similarity
// order wins. Matches are recorded as category_assisted_fuzzy.
func Category(programs []ledger.ProgramGrainRecord, expenditures []ledger.ExpenditureRecord, already ClaimSet, cfg Config) Result {
	eligible := make([]ledger.ExpenditureRecord, 0)
	for _, e := range expenditures {
		if inAllowList(e.ExpenseType, cfg.CategoryAllowList) {
			eligible = append(eligible, e)
		}
	}

	if len(eligible) == 0 {
		return Result{
			UnmatchedPrograms:     programs,
			UnmatchedExpenditures: expenditures,
			Claimed:               NewClaimSet(),
		}
	}

	return runFuzzyPass(programs, expenditures, eligible, already, passOptions{
		threshold:       cfg.CategoryThreshold,
		useFundTiebreak: false,
		baseType:        MatchCategoryFuzzy,
	})
}

func inAllowList(expenseType string, allowList []string) bool {
	for _, pattern := range allowList {
		if pattern != "" && strings.Contains(expenseType, pattern) {
			return true
		}
	}
	return false
}
