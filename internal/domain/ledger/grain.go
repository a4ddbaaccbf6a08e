package ledger

import (
	"sort"

	"github.com/statebudgetx/budget-decoder/internal/domain/normalize"
)

// BuildProgramGrain reshapes wide appropriation rows into one record per
// fiscal year, then collapses them to one ProgramGrainRecord per ProgramKey.
//
// Amounts are summed across funds; fund codes, fund group codes, and fund
// names are collected as deduplicated ordered sets. Agency and program codes
// keep the first value seen. Programs whose total is zero or negative are
// retained: budget adjustments are a signal for the unmatched report, not
// rows to drop.
//
// Output is sorted by key so repeated runs produce identical ordering.
func BuildProgramGrain(rows []AppropriationRow, firstFY, secondFY int) []ProgramGrainRecord {
	byKey := make(map[ProgramKey]*ProgramGrainRecord)
	var order []ProgramKey

	add := func(row AppropriationRow, fiscalYear int, amount float64) {
		key := ProgramKey{
			FiscalYear:  fiscalYear,
			NormAgency:  normalize.Normalize(row.AgencyName),
			NormProgram: normalize.Normalize(row.ProgramName),
		}

		rec, ok := byKey[key]
		if !ok {
			rec = &ProgramGrainRecord{
				Key:         key,
				AgencyCode:  row.AgencyCode,
				AgencyName:  row.AgencyName,
				ProgramCode: row.ProgramCode,
				ProgramName: row.ProgramName,
			}
			byKey[key] = rec
			order = append(order, key)
		}

		rec.AppropriatedAmount += amount
		rec.FundCodes = appendUnique(rec.FundCodes, row.FundCode)
		rec.FundGroupCodes = appendUnique(rec.FundGroupCodes, row.FundGroupCode)
		rec.FundNames = appendUnique(rec.FundNames, row.FundName)
		rec.NormFundNames = appendUnique(rec.NormFundNames, normalize.Normalize(row.FundName))
	}

	for _, row := range rows {
		add(row, firstFY, row.FirstYearAmount)
		add(row, secondFY, row.SecondYearAmount)
	}

	sort.Slice(order, func(i, j int) bool { return lessKey(order[i], order[j]) })

	out := make([]ProgramGrainRecord, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out
}

// appendUnique appends value if non-empty and not already present,
// preserving first-seen order.
func appendUnique(set []string, value string) []string {
	if value == "" {
		return set
	}
	for _, v := range set {
		if v == value {
			return set
		}
	}
	return append(set, value)
}

func lessKey(a, b ProgramKey) bool {
	if a.FiscalYear != b.FiscalYear {
		return a.FiscalYear < b.FiscalYear
	}
	if a.NormAgency != b.NormAgency {
		return a.NormAgency < b.NormAgency
	}
	return a.NormProgram < b.NormProgram
}
