// Package storage persists pipeline runs and their decoder views in SQLite.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/statebudgetx/budget-decoder/internal/domain/reporter"
	"github.com/statebudgetx/budget-decoder/internal/domain/rollup"
)

// Storage provides SQLite database access for decoder outputs.
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Storage{db: db}

	// Run all pending migrations
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// StartRun records the start of a pipeline run.
func (s *Storage) StartRun(runID string, firstFY, secondFY int) error {
	query := `
		INSERT INTO pipeline_runs (run_id, status, first_fiscal_year, second_fiscal_year)
		VALUES (?, 'running', ?, ?)
	`
	_, err := s.db.Exec(query, runID, firstFY, secondFY)
	return err
}

// CompleteRun records the completion of a pipeline run with its totals.
func (s *Storage) CompleteRun(runID string, totals RunTotals) error {
	query := `
		UPDATE pipeline_runs
		SET completed_at = CURRENT_TIMESTAMP,
		    status = 'completed',
		    appropriation_programs = ?,
		    expenditure_rows = ?,
		    strict_matches = ?,
		    fuzzy_matches = ?,
		    category_matches = ?,
		    matched_expenditures = ?,
		    unmatched_programs = ?,
		    raw_match_rate = ?,
		    adjusted_match_rate = ?,
		    warning_count = ?
		WHERE run_id = ?
	`
	_, err := s.db.Exec(query,
		totals.AppropriationPrograms,
		totals.ExpenditureRows,
		totals.StrictMatches,
		totals.FuzzyMatches,
		totals.CategoryMatches,
		totals.MatchedExpenditures,
		totals.UnmatchedPrograms,
		totals.RawMatchRate,
		totals.AdjustedMatchRate,
		totals.WarningCount,
		runID,
	)
	return err
}

// FailRun marks a run as failed.
func (s *Storage) FailRun(runID string) error {
	query := `
		UPDATE pipeline_runs
		SET completed_at = CURRENT_TIMESTAMP, status = 'failed'
		WHERE run_id = ?
	`
	_, err := s.db.Exec(query, runID)
	return err
}

// SaveProgramVendorRows replaces the program-vendor view for a run.
func (s *Storage) SaveProgramVendorRows(runID string, rows []rollup.ProgramVendorRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM program_vendor WHERE run_id = ?`, runID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO program_vendor
		(run_id, fiscal_year, secretariat, agency, program, service_area,
		 vendor_name, recipient_type, appropriated_amount, spent_amount_ytd,
		 remaining_balance, execution_rate, top_category_name,
		 match_type, match_score, is_placeholder, is_expected_unmatched)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		_, err := stmt.Exec(
			runID, r.FiscalYear, r.Secretariat, r.Agency, r.Program, r.ServiceArea,
			r.VendorName, r.RecipientType, r.AppropriatedAmount, r.SpentAmountYTD,
			r.RemainingBalance, r.ExecutionRate, r.TopCategoryName,
			r.MatchType, r.MatchScore, r.IsPlaceholder, r.IsExpectedUnmatch,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveProgramRollupRows replaces the program rollup view for a run.
func (s *Storage) SaveProgramRollupRows(runID string, rows []rollup.ProgramRollupRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM program_rollup WHERE run_id = ?`, runID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO program_rollup
		(run_id, fiscal_year, secretariat, agency, program, service_area,
		 appropriated_amount, total_spent_ytd, remaining_balance, execution_rate,
		 unique_recipients, top_vendors_json, category_breakdown_json,
		 match_type, match_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		vendorsJSON, _ := json.Marshal(r.TopVendors)
		categoriesJSON, _ := json.Marshal(r.CategoryBreakdown)
		_, err := stmt.Exec(
			runID, r.FiscalYear, r.Secretariat, r.Agency, r.Program, r.ServiceArea,
			r.AppropriatedAmount, r.TotalSpentYTD, r.RemainingBalance, r.ExecutionRate,
			r.UniqueRecipients, string(vendorsJSON), string(categoriesJSON),
			r.MatchType, r.MatchScore,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveUnmatchedPrograms replaces the unmatched-programs review table for a run.
func (s *Storage) SaveUnmatchedPrograms(runID string, hints []reporter.UnmatchedProgram) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM unmatched_programs WHERE run_id = ?`, runID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO unmatched_programs
		(run_id, fiscal_year, agency_name, program_name, norm_agency, norm_program,
		 appropriated_amount, best_candidate_program, best_candidate_score, is_expected_unmatched)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, h := range hints {
		p := h.Program
		_, err := stmt.Exec(
			runID, p.Key.FiscalYear, p.AgencyName, p.ProgramName,
			p.Key.NormAgency, p.Key.NormProgram, p.AppropriatedAmount,
			h.BestCandidateProgram, h.BestCandidateScore, p.ExpectedUnmatched,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LatestCompletedRun returns the most recently completed run, or nil when no
// run has completed yet.
func (s *Storage) LatestCompletedRun() (*RunRecord, error) {
	query := runSelect + `
		WHERE status = 'completed'
		ORDER BY completed_at DESC
		LIMIT 1
	`
	run, err := s.scanRun(s.db.QueryRow(query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns all runs, newest first.
func (s *Storage) ListRuns() ([]RunRecord, error) {
	rows, err := s.db.Query(runSelect + ` ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []RunRecord
	for rows.Next() {
		run, err := s.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

const runSelect = `
	SELECT run_id, started_at, completed_at, status,
	       first_fiscal_year, second_fiscal_year,
	       appropriation_programs, expenditure_rows,
	       strict_matches, fuzzy_matches, category_matches,
	       matched_expenditures, unmatched_programs,
	       raw_match_rate, adjusted_match_rate, warning_count
	FROM pipeline_runs
`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Storage) scanRun(row rowScanner) (*RunRecord, error) {
	var run RunRecord
	var startedAt string
	var completedAt sql.NullString
	err := row.Scan(
		&run.RunID, &startedAt, &completedAt, &run.Status,
		&run.FirstFiscalYear, &run.SecondFiscalYear,
		&run.Totals.AppropriationPrograms, &run.Totals.ExpenditureRows,
		&run.Totals.StrictMatches, &run.Totals.FuzzyMatches, &run.Totals.CategoryMatches,
		&run.Totals.MatchedExpenditures, &run.Totals.UnmatchedPrograms,
		&run.Totals.RawMatchRate, &run.Totals.AdjustedMatchRate, &run.Totals.WarningCount,
	)
	if err != nil {
		return nil, err
	}
	run.StartedAt, _ = parseTimestamp(startedAt)
	if completedAt.Valid {
		if t, ok := parseTimestamp(completedAt.String); ok {
			run.CompletedAt = &t
		}
	}
	return &run, nil
}

// parseTimestamp reads SQLite's CURRENT_TIMESTAMP format.
func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ProgramVendorRows returns the program-vendor view for a run, optionally
// filtered by fiscal year (0 means all years).
func (s *Storage) ProgramVendorRows(runID string, fiscalYear int) ([]rollup.ProgramVendorRow, error) {
	query := `
		SELECT fiscal_year, secretariat, agency, program, service_area,
		       vendor_name, recipient_type, appropriated_amount, spent_amount_ytd,
		       remaining_balance, execution_rate, top_category_name,
		       match_type, match_score, is_placeholder, is_expected_unmatched
		FROM program_vendor
		WHERE run_id = ? AND (? = 0 OR fiscal_year = ?)
		ORDER BY fiscal_year, agency, program, service_area, vendor_name
	`
	rows, err := s.db.Query(query, runID, fiscalYear, fiscalYear)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []rollup.ProgramVendorRow
	for rows.Next() {
		var r rollup.ProgramVendorRow
		err := rows.Scan(
			&r.FiscalYear, &r.Secretariat, &r.Agency, &r.Program, &r.ServiceArea,
			&r.VendorName, &r.RecipientType, &r.AppropriatedAmount, &r.SpentAmountYTD,
			&r.RemainingBalance, &r.ExecutionRate, &r.TopCategoryName,
			&r.MatchType, &r.MatchScore, &r.IsPlaceholder, &r.IsExpectedUnmatch,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ProgramRollupRows returns the program rollup view for a run, optionally
// filtered by fiscal year (0 means all years).
func (s *Storage) ProgramRollupRows(runID string, fiscalYear int) ([]rollup.ProgramRollupRow, error) {
	query := `
		SELECT fiscal_year, secretariat, agency, program, service_area,
		       appropriated_amount, total_spent_ytd, remaining_balance, execution_rate,
		       unique_recipients, top_vendors_json, category_breakdown_json,
		       match_type, match_score
		FROM program_rollup
		WHERE run_id = ? AND (? = 0 OR fiscal_year = ?)
		ORDER BY fiscal_year, agency, program, service_area
	`
	rows, err := s.db.Query(query, runID, fiscalYear, fiscalYear)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []rollup.ProgramRollupRow
	for rows.Next() {
		var r rollup.ProgramRollupRow
		var vendorsJSON, categoriesJSON sql.NullString
		err := rows.Scan(
			&r.FiscalYear, &r.Secretariat, &r.Agency, &r.Program, &r.ServiceArea,
			&r.AppropriatedAmount, &r.TotalSpentYTD, &r.RemainingBalance, &r.ExecutionRate,
			&r.UniqueRecipients, &vendorsJSON, &categoriesJSON,
			&r.MatchType, &r.MatchScore,
		)
		if err != nil {
			return nil, err
		}
		if vendorsJSON.Valid && vendorsJSON.String != "" {
			_ = json.Unmarshal([]byte(vendorsJSON.String), &r.TopVendors)
		}
		if categoriesJSON.Valid && categoriesJSON.String != "" {
			_ = json.Unmarshal([]byte(categoriesJSON.String), &r.CategoryBreakdown)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UnmatchedProgramRows returns the manual-review table for a run.
func (s *Storage) UnmatchedProgramRows(runID string) ([]UnmatchedProgramRow, error) {
	query := `
		SELECT fiscal_year, agency_name, program_name, norm_agency, norm_program,
		       appropriated_amount, best_candidate_program, best_candidate_score,
		       is_expected_unmatched
		FROM unmatched_programs
		WHERE run_id = ?
		ORDER BY fiscal_year, agency_name, program_name
	`
	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []UnmatchedProgramRow
	for rows.Next() {
		var r UnmatchedProgramRow
		var candidate sql.NullString
		err := rows.Scan(
			&r.FiscalYear, &r.AgencyName, &r.ProgramName, &r.NormAgency, &r.NormProgram,
			&r.AppropriatedAmount, &candidate, &r.BestCandidateScore, &r.IsExpectedUnmatched,
		)
		if err != nil {
			return nil, err
		}
		if candidate.Valid {
			r.BestCandidateProgram = candidate.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
