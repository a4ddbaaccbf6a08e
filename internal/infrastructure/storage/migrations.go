package storage

import (
	"database/sql"
	"fmt"
	"log"
)

// Migration represents a database schema migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// allMigrations defines all migrations in order
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up:      migration001InitialSchema,
	},
	{
		Version: 2,
		Name:    "add_program_rollup_table",
		Up:      migration002AddProgramRollupTable,
	},
	{
		Version: 3,
		Name:    "add_unmatched_programs_table",
		Up:      migration003AddUnmatchedProgramsTable,
	},
	{
		Version: 4,
		Name:    "add_adjusted_match_rate",
		Up:      migration004AddAdjustedMatchRate,
	},
	{
		Version: 5,
		Name:    "add_unmatched_program_flag",
		Up:      migration005AddUnmatchedProgramFlag,
	},
}

// runMigrations executes all pending migrations
func (s *Storage) runMigrations() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue // Already applied
		}

		log.Printf("Running migration %d: %s", migration.Version, migration.Name)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		_, err = tx.Exec(`
			INSERT INTO schema_migrations (version, name) VALUES (?, ?)
		`, migration.Version, migration.Name)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table
func (s *Storage) ensureMigrationsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	_, err := s.db.Exec(query)
	return err
}

// getAppliedMigrations returns a set of applied migration versions
func (s *Storage) getAppliedMigrations() (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

func migration001InitialSchema(tx *sql.Tx) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			run_id TEXT PRIMARY KEY,
			started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			completed_at TIMESTAMP,
			status TEXT NOT NULL DEFAULT 'running',
			first_fiscal_year INTEGER NOT NULL,
			second_fiscal_year INTEGER NOT NULL,
			appropriation_programs INTEGER DEFAULT 0,
			expenditure_rows INTEGER DEFAULT 0,
			strict_matches INTEGER DEFAULT 0,
			fuzzy_matches INTEGER DEFAULT 0,
			category_matches INTEGER DEFAULT 0,
			matched_expenditures INTEGER DEFAULT 0,
			unmatched_programs INTEGER DEFAULT 0,
			raw_match_rate REAL DEFAULT 0,
			warning_count INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS program_vendor (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES pipeline_runs(run_id) ON DELETE CASCADE,
			fiscal_year INTEGER NOT NULL,
			secretariat TEXT,
			agency TEXT NOT NULL,
			program TEXT NOT NULL,
			service_area TEXT,
			vendor_name TEXT NOT NULL,
			recipient_type TEXT,
			appropriated_amount REAL NOT NULL,
			spent_amount_ytd REAL NOT NULL,
			remaining_balance REAL NOT NULL,
			execution_rate REAL NOT NULL,
			top_category_name TEXT,
			match_type TEXT NOT NULL,
			match_score REAL NOT NULL,
			is_placeholder INTEGER NOT NULL DEFAULT 0,
			is_expected_unmatched INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_program_vendor_run
			ON program_vendor(run_id, fiscal_year)`,
	}
	for _, q := range queries {
		if _, err := tx.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func migration002AddProgramRollupTable(tx *sql.Tx) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS program_rollup (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES pipeline_runs(run_id) ON DELETE CASCADE,
			fiscal_year INTEGER NOT NULL,
			secretariat TEXT,
			agency TEXT NOT NULL,
			program TEXT NOT NULL,
			service_area TEXT,
			appropriated_amount REAL NOT NULL,
			total_spent_ytd REAL NOT NULL,
			remaining_balance REAL NOT NULL,
			execution_rate REAL NOT NULL,
			unique_recipients INTEGER NOT NULL,
			top_vendors_json TEXT,
			category_breakdown_json TEXT,
			match_type TEXT NOT NULL,
			match_score REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_program_rollup_run
			ON program_rollup(run_id, fiscal_year)`,
	}
	for _, q := range queries {
		if _, err := tx.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func migration003AddUnmatchedProgramsTable(tx *sql.Tx) error {
	query := `
	CREATE TABLE IF NOT EXISTS unmatched_programs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES pipeline_runs(run_id) ON DELETE CASCADE,
		fiscal_year INTEGER NOT NULL,
		agency_name TEXT NOT NULL,
		program_name TEXT NOT NULL,
		norm_agency TEXT NOT NULL,
		norm_program TEXT NOT NULL,
		appropriated_amount REAL NOT NULL,
		best_candidate_program TEXT,
		best_candidate_score REAL DEFAULT 0
	)`

	_, err := tx.Exec(query)
	return err
}

func migration004AddAdjustedMatchRate(tx *sql.Tx) error {
	_, err := tx.Exec(`ALTER TABLE pipeline_runs ADD COLUMN adjusted_match_rate REAL DEFAULT 0`)
	return err
}

func migration005AddUnmatchedProgramFlag(tx *sql.Tx) error {
	_, err := tx.Exec(`ALTER TABLE unmatched_programs ADD COLUMN is_expected_unmatched INTEGER NOT NULL DEFAULT 0`)
	return err
}
