package rollup

import (
	"sort"

	"github.com/statebudgetx/budget-decoder/internal/domain/matcher"
)

// ProgramVendorRow is one row of the program-vendor decoder view: everything
// a specific vendor drew from a specific program in a fiscal year. Program
// identity comes from the linked appropriation (its canonical names), so rows
// never split across expenditure-side spelling variants.
type ProgramVendorRow struct {
	FiscalYear         int     `json:"fiscal_year"`
	Secretariat        string  `json:"secretariat"`
	Agency             string  `json:"agency"`
	Program            string  `json:"program"`
	ServiceArea        string  `json:"service_area"`
	VendorName         string  `json:"vendor_name"`
	RecipientType      string  `json:"recipient_type"`
	AppropriatedAmount float64 `json:"appropriated_amount"`
	SpentAmountYTD     float64 `json:"spent_amount_ytd"`
	RemainingBalance   float64 `json:"remaining_balance"`
	ExecutionRate      float64 `json:"execution_rate"`
	TopCategoryName    string  `json:"top_category_name"`
	MatchType          string  `json:"match_type"`
	MatchScore         float64 `json:"match_score"`
	IsPlaceholder      bool    `json:"is_placeholder"`
	IsExpectedUnmatch  bool    `json:"is_expected_unmatched"`
}

// VendorSpend is one entry of a rollup's top-vendor list.
type VendorSpend struct {
	VendorName string  `json:"vendor_name"`
	Spend      float64 `json:"spend"`
}

// ProgramRollupRow is one row of the program rollup view: a program's total
// execution for a fiscal year with its recipient profile.
type ProgramRollupRow struct {
	FiscalYear         int                `json:"fiscal_year"`
	Secretariat        string             `json:"secretariat"`
	Agency             string             `json:"agency"`
	Program            string             `json:"program"`
	ServiceArea        string             `json:"service_area"`
	AppropriatedAmount float64            `json:"appropriated_amount"`
	TotalSpentYTD      float64            `json:"total_spent_ytd"`
	RemainingBalance   float64            `json:"remaining_balance"`
	ExecutionRate      float64            `json:"execution_rate"`
	UniqueRecipients   int                `json:"number_of_unique_recipients"`
	TopVendors         []VendorSpend      `json:"top_vendors"`
	CategoryBreakdown  map[string]float64 `json:"category_breakdown"`
	MatchType          string             `json:"match_type"`
	MatchScore         float64            `json:"match_score"`
}

// executionRate is spent over appropriated, 0 by definition when the
// denominator is zero or negative. Never a divide-by-zero fault.
func executionRate(spent, appropriated float64) float64 {
	if appropriated <= 0 {
		return 0
	}
	return spent / appropriated
}

type vendorKey struct {
	fiscalYear    int
	secretariat   string
	agency        string
	program       string
	serviceArea   string
	vendor        string
	recipientType string
}

// BuildProgramVendor aggregates combined matches into the program-vendor
// decoder view, sorted by key for stable output.
func BuildProgramVendor(matches []matcher.MatchRecord) []ProgramVendorRow {
	rows := make(map[vendorKey]*ProgramVendorRow)
	categories := make(map[vendorKey]map[string]int)
	var order []vendorKey

	for _, m := range matches {
		k := vendorKey{
			fiscalYear:    m.Expenditure.FiscalYear,
			secretariat:   m.Expenditure.SecretariatName,
			agency:        m.Program.AgencyName,
			program:       m.Program.ProgramName,
			serviceArea:   m.Expenditure.ServiceAreaName,
			vendor:        m.Expenditure.VendorName,
			recipientType: m.Expenditure.RecipientType,
		}

		row, ok := rows[k]
		if !ok {
			row = &ProgramVendorRow{
				FiscalYear:         k.fiscalYear,
				Secretariat:        k.secretariat,
				Agency:             k.agency,
				Program:            k.program,
				ServiceArea:        k.serviceArea,
				VendorName:         k.vendor,
				RecipientType:      k.recipientType,
				AppropriatedAmount: m.Program.AppropriatedAmount,
				MatchType:          string(m.Type),
				MatchScore:         m.Score,
			}
			rows[k] = row
			categories[k] = make(map[string]int)
			order = append(order, k)
		}

		row.SpentAmountYTD += m.Expenditure.Amount
		categories[k][m.Expenditure.CategoryName]++
		row.IsPlaceholder = row.IsPlaceholder || m.Expenditure.IsPlaceholder
		row.IsExpectedUnmatch = row.IsExpectedUnmatch || m.Expenditure.IsExpectedUnmatched
	}

	out := make([]ProgramVendorRow, 0, len(order))
	for _, k := range order {
		row := rows[k]
		row.RemainingBalance = row.AppropriatedAmount - row.SpentAmountYTD
		row.ExecutionRate = executionRate(row.SpentAmountYTD, row.AppropriatedAmount)
		row.TopCategoryName = topCategory(categories[k])
		out = append(out, *row)
	}

	sort.Slice(out, func(i, j int) bool { return lessVendorRow(out[i], out[j]) })
	return out
}

type rollupKey struct {
	fiscalYear  int
	secretariat string
	agency      string
	program     string
	serviceArea string
}

// BuildProgramRollup aggregates combined matches into the program rollup
// view. topN bounds the per-program top-vendor list (ranked by summed spend).
func BuildProgramRollup(matches []matcher.MatchRecord, topN int) []ProgramRollupRow {
	if topN <= 0 {
		topN = 10
	}

	rows := make(map[rollupKey]*ProgramRollupRow)
	vendorSpend := make(map[rollupKey]map[string]float64)
	var order []rollupKey

	for _, m := range matches {
		k := rollupKey{
			fiscalYear:  m.Expenditure.FiscalYear,
			secretariat: m.Expenditure.SecretariatName,
			agency:      m.Program.AgencyName,
			program:     m.Program.ProgramName,
			serviceArea: m.Expenditure.ServiceAreaName,
		}

		row, ok := rows[k]
		if !ok {
			row = &ProgramRollupRow{
				FiscalYear:         k.fiscalYear,
				Secretariat:        k.secretariat,
				Agency:             k.agency,
				Program:            k.program,
				ServiceArea:        k.serviceArea,
				AppropriatedAmount: m.Program.AppropriatedAmount,
				CategoryBreakdown:  make(map[string]float64),
				MatchType:          string(m.Type),
				MatchScore:         m.Score,
			}
			rows[k] = row
			vendorSpend[k] = make(map[string]float64)
			order = append(order, k)
		}

		row.TotalSpentYTD += m.Expenditure.Amount
		row.CategoryBreakdown[m.Expenditure.CategoryName] += m.Expenditure.Amount
		vendorSpend[k][m.Expenditure.VendorName] += m.Expenditure.Amount
	}

	out := make([]ProgramRollupRow, 0, len(order))
	for _, k := range order {
		row := rows[k]
		row.RemainingBalance = row.AppropriatedAmount - row.TotalSpentYTD
		row.ExecutionRate = executionRate(row.TotalSpentYTD, row.AppropriatedAmount)
		row.UniqueRecipients = len(vendorSpend[k])
		row.TopVendors = topVendors(vendorSpend[k], topN)
		out = append(out, *row)
	}

	sort.Slice(out, func(i, j int) bool { return lessRollupRow(out[i], out[j]) })
	return out
}

// topCategory picks the most frequent category; ties resolve to the
// lexically smallest name so output is stable.
func topCategory(counts map[string]int) string {
	best := ""
	bestCount := -1
	for name, count := range counts {
		if count > bestCount || (count == bestCount && name < best) {
			best = name
			bestCount = count
		}
	}
	return best
}

// topVendors ranks vendors by summed spend descending, name ascending.
func topVendors(spend map[string]float64, n int) []VendorSpend {
	all := make([]VendorSpend, 0, len(spend))
	for name, amount := range spend {
		all = append(all, VendorSpend{VendorName: name, Spend: amount})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Spend != all[j].Spend {
			return all[i].Spend > all[j].Spend
		}
		return all[i].VendorName < all[j].VendorName
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func lessVendorRow(a, b ProgramVendorRow) bool {
	if a.FiscalYear != b.FiscalYear {
		return a.FiscalYear < b.FiscalYear
	}
	if a.Agency != b.Agency {
		return a.Agency < b.Agency
	}
	if a.Program != b.Program {
		return a.Program < b.Program
	}
	if a.ServiceArea != b.ServiceArea {
		return a.ServiceArea < b.ServiceArea
	}
	return a.VendorName < b.VendorName
}

func lessRollupRow(a, b ProgramRollupRow) bool {
	if a.FiscalYear != b.FiscalYear {
		return a.FiscalYear < b.FiscalYear
	}
	if a.Agency != b.Agency {
		return a.Agency < b.Agency
	}
	if a.Program != b.Program {
		return a.Program < b.Program
	}
	return a.ServiceArea < b.ServiceArea
}
