package storage

import "time"

// RunTotals are the headline statistics of one pipeline run.
//
// AdjustedMatchRate excludes expenditure rows flagged as placeholders or
// expected-unmatched from the denominator, so it reflects only the spending
// that could plausibly have matched an appropriated program.
type RunTotals struct {
	AppropriationPrograms int     `json:"appropriation_programs"`
	ExpenditureRows       int     `json:"expenditure_rows"`
	StrictMatches         int     `json:"strict_matches"`
	FuzzyMatches          int     `json:"fuzzy_matches"`
	CategoryMatches       int     `json:"category_matches"`
	MatchedExpenditures   int     `json:"matched_expenditures"`
	UnmatchedPrograms     int     `json:"unmatched_programs"`
	RawMatchRate          float64 `json:"raw_match_rate"`
	AdjustedMatchRate     float64 `json:"adjusted_match_rate"`
	WarningCount          int     `json:"warning_count"`
}

// RunRecord is one row of the pipeline_runs table.
type RunRecord struct {
	RunID            string     `json:"run_id"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	Status           string     `json:"status"`
	FirstFiscalYear  int        `json:"first_fiscal_year"`
	SecondFiscalYear int        `json:"second_fiscal_year"`
	Totals           RunTotals  `json:"totals"`
}

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// UnmatchedProgramRow is one row of the unmatched_programs review table.
type UnmatchedProgramRow struct {
	FiscalYear           int     `json:"fiscal_year"`
	AgencyName           string  `json:"agency_name"`
	ProgramName          string  `json:"program_name"`
	NormAgency           string  `json:"norm_agency"`
	NormProgram          string  `json:"norm_program"`
	AppropriatedAmount   float64 `json:"appropriated_amount"`
	BestCandidateProgram string  `json:"best_candidate_program"`
	BestCandidateScore   float64 `json:"best_candidate_score"`
	IsExpectedUnmatched  bool    `json:"is_expected_unmatched"`
}
