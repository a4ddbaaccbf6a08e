package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/statebudgetx/budget-decoder/internal/domain/ledger"
)

// appropriation column aliases: the export's headers vary between releases,
// so each logical field accepts a list of snake_cased names.
var appropriationAliases = map[string][]string{
	"secretariat_code": {"secretariat_code", "secretarial_area_code"},
	"agency_code":      {"agency_code"},
	"agency_name":      {"agency_name", "agency_title"},
	"program_code":     {"program_code"},
	"program_name":     {"program_name", "program_title"},
	"fund_code":        {"fund_code"},
	"fund_group_code":  {"fund_group_code"},
	"fund_group_name":  {"fund_group_name", "fund_group_title"},
	"fund_name":        {"fund_name", "fund_title"},
}

// LoadAppropriations reads the wide two-year appropriations export. firstFY
// and secondFY select which "fy_<year> ... total" dollar columns to read; a
// missing name or dollar column is fatal because nothing downstream can run
// without it.
func LoadAppropriations(path string, firstFY, secondFY int) ([]ledger.AppropriationRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open appropriations file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read appropriations header: %w", err)
	}
	idx := indexHeader(header)

	resolve := func(logical string) string {
		for _, alias := range appropriationAliases[logical] {
			if idx.has(alias) {
				return alias
			}
		}
		return ""
	}

	agencyCol := resolve("agency_name")
	programCol := resolve("program_name")
	if agencyCol == "" || programCol == "" {
		return nil, fmt.Errorf("appropriations file %s missing agency or program name column", path)
	}

	firstAmountCol := totalDollarColumn(idx, firstFY)
	secondAmountCol := totalDollarColumn(idx, secondFY)
	if firstAmountCol == "" {
		return nil, fmt.Errorf("appropriations file %s has no total dollar column for FY%d", path, firstFY)
	}
	if secondAmountCol == "" {
		return nil, fmt.Errorf("appropriations file %s has no total dollar column for FY%d", path, secondFY)
	}

	secretariatCol := resolve("secretariat_code")
	agencyCodeCol := resolve("agency_code")
	programCodeCol := resolve("program_code")
	fundCodeCol := resolve("fund_code")
	fundGroupCodeCol := resolve("fund_group_code")
	fundGroupNameCol := resolve("fund_group_name")
	fundNameCol := resolve("fund_name")

	var rows []ledger.AppropriationRow
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		first, _ := parseFloat(idx.field(rec, firstAmountCol))
		second, _ := parseFloat(idx.field(rec, secondAmountCol))
		rows = append(rows, ledger.AppropriationRow{
			SecretariatCode:  idx.field(rec, secretariatCol),
			AgencyCode:       idx.field(rec, agencyCodeCol),
			AgencyName:       idx.field(rec, agencyCol),
			ProgramCode:      idx.field(rec, programCodeCol),
			ProgramName:      idx.field(rec, programCol),
			FundCode:         idx.field(rec, fundCodeCol),
			FundGroupCode:    idx.field(rec, fundGroupCodeCol),
			FundGroupName:    idx.field(rec, fundGroupNameCol),
			FundName:         idx.field(rec, fundNameCol),
			FirstYearAmount:  first,
			SecondYearAmount: second,
		})
	}
	return rows, nil
}

// totalDollarColumn finds the snake_cased column carrying a fiscal year's
// total dollars, e.g. "ch_725_fy_2025_total_dollars".
func totalDollarColumn(idx headerIndex, fiscalYear int) string {
	marker := fmt.Sprintf("fy_%d", fiscalYear)
	for name := range idx {
		if strings.Contains(name, marker) && strings.Contains(name, "total") {
			return name
		}
	}
	return ""
}
