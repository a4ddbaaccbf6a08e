// Package ledger defines the two input ledgers (appropriations and
// expenditures) and the program-grain view of appropriations that every
// matching pass joins against.
//
// All records are read-only inputs; the pipeline never mutates them after
// ingest. ProgramGrainRecord uniqueness per ProgramKey is what makes the
// downstream joins 1:1-safe on the appropriation side.
package ledger

import "time"

// AppropriationRow is one wide row from the appropriations export. The source
// stores two fiscal years of dollars per row; BuildProgramGrain reshapes it.
type AppropriationRow struct {
	SecretariatCode  string
	AgencyCode       string
	AgencyName       string
	ProgramCode      string
	ProgramName      string
	FundCode         string
	FundGroupCode    string
	FundGroupName    string
	FundName         string
	FirstYearAmount  float64
	SecondYearAmount float64
}

// ProgramKey is the unique join key for program-grain appropriations.
// Fund is deliberately not part of the key: one program may span funds.
type ProgramKey struct {
	FiscalYear  int
	NormAgency  string
	NormProgram string
}

// ProgramGrainRecord aggregates all appropriation rows sharing a ProgramKey.
// Fund fields are deduplicated ordered sets kept for tie-breaking only.
type ProgramGrainRecord struct {
	Key                ProgramKey
	AgencyCode         string
	AgencyName         string
	ProgramCode        string
	ProgramName        string
	AppropriatedAmount float64
	FundCodes          []string
	FundGroupCodes     []string
	FundNames          []string
	NormFundNames      []string

	// ExpectedUnmatched is set by the pipeline for programs configured as
	// pass-through or adjustment entries. Flagged programs still join every
	// pass; the flag only annotates the unmatched report and keeps the
	// program out of the unmatched-programs statistic.
	ExpectedUnmatched bool
}

// ExpenditureRecord is one recipient-level payment row. ExpID is assigned once
// at ingest and is the unit of claimed/unclaimed bookkeeping; it is never
// reused across rows.
type ExpenditureRecord struct {
	ExpID           string
	FiscalYear      int
	BranchName      string
	SecretariatName string
	AgencyName      string
	FunctionName    string
	ProgramName     string
	ServiceAreaName string
	FundName        string
	FundDetailName  string
	CategoryName    string
	ExpenseType     string
	VendorName      string
	Amount          float64
	TransDate       time.Time

	// Normalized matching keys, computed once at ingest.
	NormAgency  string
	NormProgram string

	// Enrichment flags set by the pipeline before matching. Flagged rows still
	// flow through every pass; the flags only adjust match-rate statistics and
	// output filtering.
	RecipientType       string
	IsPlaceholder       bool
	IsExpectedUnmatched bool
}

// Key returns the expenditure's program-grain join key.
func (e *ExpenditureRecord) Key() ProgramKey {
	return ProgramKey{FiscalYear: e.FiscalYear, NormAgency: e.NormAgency, NormProgram: e.NormProgram}
}
