package matcher

import (
	"strings"

	"github.com/statebudgetx/budget-decoder/internal/domain/ledger"
	"github.com/statebudgetx/budget-decoder/internal/domain/normalize"
)

// fundStopwords are too common in fund names to signal real overlap.
var fundStopwords = map[string]struct{}{
	"fund": {},
	"the":  {},
	"of":   {},
	"and":  {},
	"for":  {},
}

// fundOverlapScore scores how well an expenditure's fund fields line up with
// an appropriation's fund sets. Priority scoring:
//
//	+3 expenditure fund detail exactly equals one of the appropriation's
//	   normalized fund names (short-circuits: the strongest possible signal)
//	+2 an appropriation fund-group code appears inside the expenditure's
//	   fund name
//	+1 any token overlap between fund-name word sets after stopword removal
//
// A zero score means the fund fields say nothing either way.
func fundOverlapScore(exp ledger.ExpenditureRecord, prog ledger.ProgramGrainRecord) int {
	expFund := normalize.Normalize(exp.FundName)
	expDetail := normalize.Normalize(exp.FundDetailName)

	if expDetail != "" {
		for _, fn := range prog.NormFundNames {
			if fn != "" && fn == expDetail {
				return 3
			}
		}
	}

	score := 0

	if expFund != "" {
		for _, code := range prog.FundGroupCodes {
			norm := normalize.Normalize(code)
			if norm != "" && strings.Contains(expFund, norm) {
				score += 2
				break
			}
		}
	}

	if len(prog.NormFundNames) > 0 && (expFund != "" || expDetail != "") {
		expTokens := make(map[string]struct{})
		for _, tok := range strings.Fields(expFund) {
			if _, stop := fundStopwords[tok]; !stop {
				expTokens[tok] = struct{}{}
			}
		}
		for _, tok := range strings.Fields(expDetail) {
			if _, stop := fundStopwords[tok]; !stop {
				expTokens[tok] = struct{}{}
			}
		}

	overlap:
		for _, fn := range prog.NormFundNames {
			for _, tok := range strings.Fields(fn) {
				if _, stop := fundStopwords[tok]; stop {
					continue
				}
				if _, ok := expTokens[tok]; ok {
					score++
					break overlap
				}
			}
		}
	}

	return score
}
