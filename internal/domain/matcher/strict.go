package matcher

import (
	"github.com/statebudgetx/budget-decoder/internal/domain/ledger"
)

// Strict performs the exact equi-join on (fiscal year, normalized agency,
// normalized program). Program-grain keys are unique, so the join cannot
// attribute an expenditure to two programs; every hit is recorded with
// match type strict and score 1.0.
//
// Programs with zero matching expenditures are returned in UnmatchedPrograms;
// expenditures whose key has no program are returned in
// UnmatchedExpenditures for the fuzzy passes.
func Strict(grain []ledger.ProgramGrainRecord, expenditures []ledger.ExpenditureRecord) Result {
	byKey := make(map[ledger.ProgramKey]int, len(grain))
	for i := range grain {
		byKey[grain[i].Key] = i
	}

	claimed := make(map[string]struct{})
	matchedPrograms := make(map[ledger.ProgramKey]struct{})

	res := Result{}
	for _, exp := range expenditures {
		idx, ok := byKey[exp.Key()]
		if !ok {
			res.UnmatchedExpenditures = append(res.UnmatchedExpenditures, exp)
			continue
		}

		res.Matched = append(res.Matched, MatchRecord{
			Expenditure: exp,
			Program:     grain[idx],
			Type:        MatchStrict,
			Score:       1.0,
		})
		claimed[exp.ExpID] = struct{}{}
		matchedPrograms[exp.Key()] = struct{}{}
	}

	for i := range grain {
		if _, ok := matchedPrograms[grain[i].Key]; !ok {
			res.UnmatchedPrograms = append(res.UnmatchedPrograms, grain[i])
		}
	}

	res.Claimed = ClaimSet{ids: claimed}
	return res
}
