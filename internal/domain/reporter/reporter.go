// Package reporter builds the manual-review reports for everything the
// matching passes could not link. It performs no linkage itself and produces
// no match records; its output exists purely to aid human triage.
package reporter

import (
	"sort"

	"github.com/statebudgetx/budget-decoder/internal/domain/ledger"
	"github.com/statebudgetx/budget-decoder/internal/domain/similarity"
)

// UnmatchedProgram is a leftover appropriation program with the closest
// expenditure program name found anywhere under the same agency, as a hint
// for alias configuration or manual mapping.
type UnmatchedProgram struct {
	Program              ledger.ProgramGrainRecord
	BestCandidateProgram string
	BestCandidateScore   float64
}

// BestCandidates scores each unmatched program against every distinct
// expenditure program name sharing its normalized agency, across all fiscal
// years: a year-shifted near-match is still a useful review hint.
func BestCandidates(programs []ledger.ProgramGrainRecord, expenditures []ledger.ExpenditureRecord) []UnmatchedProgram {
	namesByAgency := make(map[string][]string)
	seen := make(map[string]map[string]struct{})
	for _, e := range expenditures {
		if e.NormAgency == "" || e.NormProgram == "" {
			continue
		}
		if seen[e.NormAgency] == nil {
			seen[e.NormAgency] = make(map[string]struct{})
		}
		if _, ok := seen[e.NormAgency][e.NormProgram]; ok {
			continue
		}
		seen[e.NormAgency][e.NormProgram] = struct{}{}
		namesByAgency[e.NormAgency] = append(namesByAgency[e.NormAgency], e.NormProgram)
	}
	for _, names := range namesByAgency {
		sort.Strings(names)
	}

	out := make([]UnmatchedProgram, 0, len(programs))
	for _, p := range programs {
		entry := UnmatchedProgram{Program: p}
		for _, name := range namesByAgency[p.Key.NormAgency] {
			score := similarity.TokenSetRatio(p.Key.NormProgram, name)
			if score > entry.BestCandidateScore {
				entry.BestCandidateScore = score
				entry.BestCandidateProgram = name
			}
		}
		out = append(out, entry)
	}
	return out
}
