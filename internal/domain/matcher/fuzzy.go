package matcher

import (
	"runtime"
	"sort"
	"sync"

	"github.com/statebudgetx/budget-decoder/internal/domain/ledger"
	"github.com/statebudgetx/budget-decoder/internal/domain/similarity"
)

// bucketKey scopes fuzzy comparison: program names are only ever compared
// within the same fiscal year and normalized agency, never cross-agency.
type bucketKey struct {
	fiscalYear int
	normAgency string
}

// passOptions parameterize the shared fuzzy core for the general and the
// category-assisted pass.
type passOptions struct {
	threshold       float64
	useFundTiebreak bool
	baseType        MatchType
}

// Fuzzy links appropriation programs to expenditure programs with similar
// normalized names within the same agency. Candidates must score at least
// cfg.FuzzyThreshold by token-set similarity; ties at the maximal score are
// resolved by fund overlap. A tie that fund scoring actually disambiguates is
// recorded as fuzzy_fund_tiebreak; otherwise the first candidate in
// deterministic similarity order is taken as an ordinary fuzzy match.
//
// Expenditure IDs in already, or claimed earlier within this pass, are never
// re-claimed.
func Fuzzy(programs []ledger.ProgramGrainRecord, expenditures []ledger.ExpenditureRecord, already ClaimSet, cfg Config) Result {
	return runFuzzyPass(programs, expenditures, expenditures, already, passOptions{
		threshold:       cfg.FuzzyThreshold,
		useFundTiebreak: true,
		baseType:        MatchFuzzy,
	})
}

// runFuzzyPass matches programs against the eligible expenditure subset.
// leftovers not claimed are computed against the full expenditure slice so
// the conservation property holds pass to pass.
func runFuzzyPass(programs []ledger.ProgramGrainRecord, all, eligible []ledger.ExpenditureRecord, already ClaimSet, opts passOptions) Result {
	progBuckets := make(map[bucketKey][]ledger.ProgramGrainRecord)
	expBuckets := make(map[bucketKey][]ledger.ExpenditureRecord)
	var keys []bucketKey

	for _, p := range programs {
		if p.Key.NormAgency == "" || p.Key.NormProgram == "" {
			continue
		}
		k := bucketKey{p.Key.FiscalYear, p.Key.NormAgency}
		if _, ok := progBuckets[k]; !ok {
			keys = append(keys, k)
		}
		progBuckets[k] = append(progBuckets[k], p)
	}
	for _, e := range eligible {
		k := bucketKey{e.FiscalYear, e.NormAgency}
		expBuckets[k] = append(expBuckets[k], e)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].fiscalYear != keys[j].fiscalYear {
			return keys[i].fiscalYear < keys[j].fiscalYear
		}
		return keys[i].normAgency < keys[j].normAgency
	})

	// Agency buckets partition the expenditures, so no two buckets can claim
	// the same exp_id; they are matched concurrently and merged in sorted
	// bucket order to keep runs reproducible.
	outcomes := make([]bucketOutcome, len(keys))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup
	for i, k := range keys {
		exps := expBuckets[k]
		if len(exps) == 0 {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, progs []ledger.ProgramGrainRecord, exps []ledger.ExpenditureRecord) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = matchBucket(progs, exps, already, opts)
		}(i, progBuckets[k], exps)
	}
	wg.Wait()

	res := Result{}
	claimed := make(map[string]struct{})
	matchedPrograms := make(map[ledger.ProgramKey]struct{})
	for _, out := range outcomes {
		res.Matched = append(res.Matched, out.matched...)
		for _, id := range out.claimedIDs {
			claimed[id] = struct{}{}
		}
		for _, pk := range out.matchedPrograms {
			matchedPrograms[pk] = struct{}{}
		}
	}

	for _, p := range programs {
		if _, ok := matchedPrograms[p.Key]; !ok {
			res.UnmatchedPrograms = append(res.UnmatchedPrograms, p)
		}
	}
	for _, e := range all {
		if _, ok := claimed[e.ExpID]; !ok {
			res.UnmatchedExpenditures = append(res.UnmatchedExpenditures, e)
		}
	}

	res.Claimed = ClaimSet{ids: claimed}
	return res
}

type bucketOutcome struct {
	matched         []MatchRecord
	claimedIDs      []string
	matchedPrograms []ledger.ProgramKey
}

type candidate struct {
	name      string
	score     float64
	fundScore int
}

// matchBucket links the bucket's programs to its expenditure program names.
// Sequential within a bucket: earlier programs claim first.
func matchBucket(progs []ledger.ProgramGrainRecord, exps []ledger.ExpenditureRecord, already ClaimSet, opts passOptions) bucketOutcome {
	// Distinct expenditure program names with a representative row for fund
	// fields (first occurrence in input order). Rows claimed by earlier passes
	// contribute no candidate names: a program whose spelling was fully
	// consumed by the strict pass must not attract fuzzy links to it.
	var names []string
	sample := make(map[string]ledger.ExpenditureRecord)
	for _, e := range exps {
		if e.NormProgram == "" || already.Has(e.ExpID) {
			continue
		}
		if _, ok := sample[e.NormProgram]; !ok {
			sample[e.NormProgram] = e
			names = append(names, e.NormProgram)
		}
	}
	sort.Strings(names)

	out := bucketOutcome{}
	claimedHere := make(map[string]struct{})

	for _, prog := range progs {
		cands := make([]candidate, 0, 4)
		for _, name := range names {
			score := similarity.TokenSetRatio(prog.Key.NormProgram, name)
			if score >= opts.threshold {
				cands = append(cands, candidate{name: name, score: score})
			}
		}
		if len(cands) == 0 {
			continue
		}

		// Deterministic similarity order: score descending, then name.
		sort.Slice(cands, func(i, j int) bool {
			if cands[i].score != cands[j].score {
				return cands[i].score > cands[j].score
			}
			return cands[i].name < cands[j].name
		})

		best := cands[0].score
		tied := cands[:1]
		for _, c := range cands[1:] {
			if c.score == best {
				tied = append(tied, c)
			} else {
				break
			}
		}

		chosen := tied[0]
		matchType := opts.baseType

		if opts.useFundTiebreak && len(tied) > 1 {
			for i := range tied {
				tied[i].fundScore = fundOverlapScore(sample[tied[i].name], prog)
			}
			sort.SliceStable(tied, func(i, j int) bool {
				return tied[i].fundScore > tied[j].fundScore
			})
			chosen = tied[0]
			// Only count the tie as fund-broken when fund scoring actually
			// separated the winner; an all-zero field stays an ordinary match.
			if tied[0].fundScore > 0 && tied[0].fundScore > tied[1].fundScore {
				matchType = MatchFuzzyFundTiebreak
			}
		}

		claimedAny := false
		for _, e := range exps {
			if e.NormProgram != chosen.name {
				continue
			}
			if already.Has(e.ExpID) {
				continue
			}
			if _, ok := claimedHere[e.ExpID]; ok {
				continue
			}
			out.matched = append(out.matched, MatchRecord{
				Expenditure: e,
				Program:     prog,
				Type:        matchType,
				Score:       best,
			})
			claimedHere[e.ExpID] = struct{}{}
			out.claimedIDs = append(out.claimedIDs, e.ExpID)
			claimedAny = true
		}
		if claimedAny {
			out.matchedPrograms = append(out.matchedPrograms, prog.Key)
		}
	}

	return out
}
