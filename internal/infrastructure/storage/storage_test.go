package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statebudgetx/budget-decoder/internal/domain/ledger"
	"github.com/statebudgetx/budget-decoder/internal/domain/reporter"
	"github.com/statebudgetx/budget-decoder/internal/domain/rollup"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := NewStorage(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	// Reopening must not re-run applied migrations.
	s2, err := NewStorage(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.StartRun("run-1", 2025, 2026))
	require.NoError(t, s.CompleteRun("run-1", RunTotals{
		AppropriationPrograms: 100,
		ExpenditureRows:       5000,
		StrictMatches:         4000,
		FuzzyMatches:          500,
		CategoryMatches:       50,
		MatchedExpenditures:   4550,
		UnmatchedPrograms:     7,
		RawMatchRate:          0.91,
		AdjustedMatchRate:     0.95,
		WarningCount:          3,
	}))

	run, err := s.LatestCompletedRun()

	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "run-1", run.RunID)
	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.Equal(t, 2025, run.FirstFiscalYear)
	assert.Equal(t, 4550, run.Totals.MatchedExpenditures)
	assert.Equal(t, 0.95, run.Totals.AdjustedMatchRate)
	assert.NotNil(t, run.CompletedAt)
}

func TestLatestCompletedRun_IgnoresRunningAndFailed(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.StartRun("run-1", 2025, 2026))
	require.NoError(t, s.FailRun("run-1"))
	require.NoError(t, s.StartRun("run-2", 2025, 2026))

	run, err := s.LatestCompletedRun()

	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestSaveAndQueryProgramVendorRows(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.StartRun("run-1", 2025, 2026))

	rows := []rollup.ProgramVendorRow{
		{
			FiscalYear: 2025, Secretariat: "HEALTH AND HUMAN RESOURCES",
			Agency: "DEPT OF HEALTH", Program: "IMMUNIZATION OUTREACH",
			ServiceArea: "Community Health", VendorName: "ACME HEALTH PARTNERS",
			RecipientType: "external", AppropriatedAmount: 500000,
			SpentAmountYTD: 200000, RemainingBalance: 300000, ExecutionRate: 0.4,
			TopCategoryName: "Grants", MatchType: "strict", MatchScore: 1.0,
		},
		{
			FiscalYear: 2026, Agency: "DEPT OF HEALTH", Program: "VITAL RECORDS",
			VendorName: "STATE PRINTING", RecipientType: "internal",
			MatchType: "fuzzy", MatchScore: 0.93, IsPlaceholder: true,
		},
	}
	require.NoError(t, s.SaveProgramVendorRows("run-1", rows))

	all, err := s.ProgramVendorRows("run-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	fy25, err := s.ProgramVendorRows("run-1", 2025)
	require.NoError(t, err)
	require.Len(t, fy25, 1)
	assert.Equal(t, "ACME HEALTH PARTNERS", fy25[0].VendorName)
	assert.Equal(t, 0.4, fy25[0].ExecutionRate)
	assert.False(t, fy25[0].IsPlaceholder)

	fy26, err := s.ProgramVendorRows("run-1", 2026)
	require.NoError(t, err)
	require.Len(t, fy26, 1)
	assert.True(t, fy26[0].IsPlaceholder)
}

func TestSaveProgramVendorRows_ReplacesPriorRows(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.StartRun("run-1", 2025, 2026))

	first := []rollup.ProgramVendorRow{{FiscalYear: 2025, Agency: "A", Program: "P", VendorName: "V1", MatchType: "strict"}}
	second := []rollup.ProgramVendorRow{{FiscalYear: 2025, Agency: "A", Program: "P", VendorName: "V2", MatchType: "strict"}}
	require.NoError(t, s.SaveProgramVendorRows("run-1", first))
	require.NoError(t, s.SaveProgramVendorRows("run-1", second))

	rows, err := s.ProgramVendorRows("run-1", 0)

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "V2", rows[0].VendorName)
}

func TestSaveAndQueryProgramRollupRows_RoundTripsJSON(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.StartRun("run-1", 2025, 2026))

	rows := []rollup.ProgramRollupRow{{
		FiscalYear: 2025, Agency: "DEPT OF HEALTH", Program: "IMMUNIZATION OUTREACH",
		AppropriatedAmount: 500000, TotalSpentYTD: 200000,
		RemainingBalance: 300000, ExecutionRate: 0.4, UniqueRecipients: 2,
		TopVendors: []rollup.VendorSpend{
			{VendorName: "ACME HEALTH PARTNERS", Spend: 150000},
			{VendorName: "BRIGHT FUTURES FOUNDATION", Spend: 50000},
		},
		CategoryBreakdown: map[string]float64{"Grants": 200000},
		MatchType:         "strict", MatchScore: 1.0,
	}}
	require.NoError(t, s.SaveProgramRollupRows("run-1", rows))

	got, err := s.ProgramRollupRows("run-1", 2025)

	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].TopVendors, 2)
	assert.Equal(t, "ACME HEALTH PARTNERS", got[0].TopVendors[0].VendorName)
	assert.Equal(t, 200000.0, got[0].CategoryBreakdown["Grants"])
}

func TestSaveAndQueryUnmatchedPrograms(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.StartRun("run-1", 2025, 2026))

	hints := []reporter.UnmatchedProgram{{
		Program: ledger.ProgramGrainRecord{
			Key: ledger.ProgramKey{
				FiscalYear: 2025, NormAgency: "department of health",
				NormProgram: "immunization outreach",
			},
			AgencyName: "DEPT OF HEALTH", ProgramName: "IMMUNIZATION OUTREACH",
			AppropriatedAmount: 500000,
		},
		BestCandidateProgram: "immunization outreach program",
		BestCandidateScore:   0.97,
	}, {
		Program: ledger.ProgramGrainRecord{
			Key: ledger.ProgramKey{
				FiscalYear: 2025, NormAgency: "department of planning and budget",
				NormProgram: "pass through adjustment",
			},
			AgencyName: "DEPT OF PLANNING AND BUDGET", ProgramName: "PASS THROUGH ADJUSTMENT",
			AppropriatedAmount: -250000,
			ExpectedUnmatched:  true,
		},
	}}
	require.NoError(t, s.SaveUnmatchedPrograms("run-1", hints))

	got, err := s.UnmatchedProgramRows("run-1")

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "IMMUNIZATION OUTREACH", got[0].ProgramName)
	assert.Equal(t, "immunization outreach program", got[0].BestCandidateProgram)
	assert.Equal(t, 0.97, got[0].BestCandidateScore)
	assert.False(t, got[0].IsExpectedUnmatched)
	assert.Equal(t, "PASS THROUGH ADJUSTMENT", got[1].ProgramName)
	assert.True(t, got[1].IsExpectedUnmatched)
}
