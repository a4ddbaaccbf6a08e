// Package rollup merges the matching passes into one table, enforces the
// at-most-once claim invariant, and builds the aggregate decoder views.
package rollup

import (
	"fmt"
	"sort"

	"github.com/statebudgetx/budget-decoder/internal/domain/matcher"
)

// Combine concatenates the pass outputs and verifies the core correctness
// property: every expenditure ID appears in at most one match record, and the
// union of the per-pass claim sets equals the ID set of the combined table.
//
// A violation is returned as an error, never tolerated: a double-claimed
// expenditure would silently corrupt every downstream financial total.
func Combine(passes ...matcher.Result) ([]matcher.MatchRecord, matcher.ClaimSet, error) {
	var combined []matcher.MatchRecord
	claimed := matcher.NewClaimSet()

	seen := make(map[string]matcher.MatchType)
	for _, pass := range passes {
		for _, m := range pass.Matched {
			if prev, ok := seen[m.Expenditure.ExpID]; ok {
				return nil, matcher.ClaimSet{}, fmt.Errorf(
					"invariant violation: exp_id %s claimed by both %s and %s passes",
					m.Expenditure.ExpID, prev, m.Type)
			}
			seen[m.Expenditure.ExpID] = m.Type
			combined = append(combined, m)
		}
		claimed = claimed.Union(pass.Claimed)
	}

	if claimed.Len() != len(seen) {
		return nil, matcher.ClaimSet{}, fmt.Errorf(
			"invariant violation: %d claimed exp_ids but %d matched records",
			claimed.Len(), len(seen))
	}
	for _, id := range claimed.IDs() {
		if _, ok := seen[id]; !ok {
			return nil, matcher.ClaimSet{}, fmt.Errorf(
				"invariant violation: exp_id %s claimed but missing from combined matches", id)
		}
	}

	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].Expenditure.ExpID < combined[j].Expenditure.ExpID
	})

	return combined, claimed, nil
}
