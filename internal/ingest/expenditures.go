package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/statebudgetx/budget-decoder/internal/domain/ledger"
	"github.com/statebudgetx/budget-decoder/internal/domain/normalize"
)

// transDateLayout matches the export's MM-DD-YY transaction dates.
const transDateLayout = "01-02-06"

// Warnings counts the row-level problems a load tolerated. Rows with
// unparseable amounts or dates still load (zero-valued); only structurally
// broken rows are skipped.
type Warnings struct {
	SkippedRows int
	BadAmounts  int
	BadDates    int
}

// Add accumulates another load's warnings.
func (w *Warnings) Add(other Warnings) {
	w.SkippedRows += other.SkippedRows
	w.BadAmounts += other.BadAmounts
	w.BadDates += other.BadDates
}

// Total is the number of rows any warning was recorded for.
func (w Warnings) Total() int {
	return w.SkippedRows + w.BadAmounts + w.BadDates
}

// LoadExpenditures reads every monthly CSV in dir (sorted by name) for one
// fiscal year. Each row gets a stable ExpID of "fy<year>/<file>:<row>" so
// reruns over the same files produce identical IDs and same-named monthly
// files under different fiscal-year directories never collide.
func LoadExpenditures(dir string, fiscalYear int) ([]ledger.ExpenditureRecord, Warnings, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, Warnings{}, fmt.Errorf("list expenditure files in %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, Warnings{}, fmt.Errorf("no expenditure CSV files in %s", dir)
	}
	sort.Strings(files)

	var all []ledger.ExpenditureRecord
	var warnings Warnings
	for _, file := range files {
		records, w, err := loadExpenditureFile(file, fiscalYear)
		if err != nil {
			return nil, Warnings{}, err
		}
		all = append(all, records...)
		warnings.Add(w)
	}
	return all, warnings, nil
}

func loadExpenditureFile(path string, fiscalYear int) ([]ledger.ExpenditureRecord, Warnings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Warnings{}, fmt.Errorf("open expenditure file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, Warnings{}, fmt.Errorf("read header of %s: %w", path, err)
	}
	idx := indexHeader(header)
	for _, required := range []string{"agency_name", "program_name", "vendor_name", "amount"} {
		if !idx.has(required) {
			return nil, Warnings{}, fmt.Errorf("expenditure file %s missing required column %q", path, required)
		}
	}

	idPrefix := fmt.Sprintf("fy%d/%s", fiscalYear, filepath.Base(path))
	var records []ledger.ExpenditureRecord
	var warnings Warnings
	row := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			warnings.SkippedRows++
			continue
		}

		amount, ok := parseFloat(idx.field(rec, "amount"))
		if !ok {
			warnings.BadAmounts++
		}

		var transDate time.Time
		if raw := idx.field(rec, "trans_date"); raw != "" {
			transDate, err = time.Parse(transDateLayout, raw)
			if err != nil {
				warnings.BadDates++
				transDate = time.Time{}
			}
		}

		fy := parseInt(idx.field(rec, "fiscal_year"))
		if fy == 0 {
			fy = fiscalYear
		}

		agency := idx.field(rec, "agency_name")
		program := idx.field(rec, "program_name")
		records = append(records, ledger.ExpenditureRecord{
			ExpID:           fmt.Sprintf("%s:%d", idPrefix, row),
			FiscalYear:      fy,
			BranchName:      idx.field(rec, "branch_name"),
			SecretariatName: idx.field(rec, "secretariat_name"),
			AgencyName:      agency,
			FunctionName:    idx.field(rec, "function_name"),
			ProgramName:     program,
			ServiceAreaName: idx.field(rec, "service_area_name"),
			FundName:        idx.field(rec, "fund_name"),
			FundDetailName:  idx.field(rec, "fund_detail_name"),
			CategoryName:    idx.field(rec, "category_name"),
			ExpenseType:     idx.field(rec, "expense_type"),
			VendorName:      idx.field(rec, "vendor_name"),
			Amount:          amount,
			TransDate:       transDate,
			NormAgency:      normalize.Normalize(agency),
			NormProgram:     normalize.Normalize(program),
		})
		row++
	}
	return records, warnings, nil
}
