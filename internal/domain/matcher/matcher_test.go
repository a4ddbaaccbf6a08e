package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statebudgetx/budget-decoder/internal/domain/ledger"
	"github.com/statebudgetx/budget-decoder/internal/domain/normalize"
)

// Helper to build a program-grain record with normalized key fields.
func makeProgram(fy int, agency, program string, appropriated float64) ledger.ProgramGrainRecord {
	return ledger.ProgramGrainRecord{
		Key: ledger.ProgramKey{
			FiscalYear:  fy,
			NormAgency:  normalize.Normalize(agency),
			NormProgram: normalize.Normalize(program),
		},
		AgencyCode:         "261",
		AgencyName:         agency,
		ProgramCode:        "40100",
		ProgramName:        program,
		AppropriatedAmount: appropriated,
	}
}

// Helper to build an expenditure with ingest-style normalized keys.
func makeExpenditure(id string, fy int, agency, program string, amount float64) ledger.ExpenditureRecord {
	return ledger.ExpenditureRecord{
		ExpID:       id,
		FiscalYear:  fy,
		AgencyName:  agency,
		ProgramName: program,
		VendorName:  "ACME HEALTH PARTNERS",
		Amount:      amount,
		NormAgency:  normalize.Normalize(agency),
		NormProgram: normalize.Normalize(program),
	}
}

func TestStrict_ExactKeyMatch(t *testing.T) {
	// Arrange
	grain := []ledger.ProgramGrainRecord{
		makeProgram(2025, "DEPT OF HEALTH", "IMMUNIZATION OUTREACH", 500000),
	}
	exps := []ledger.ExpenditureRecord{
		makeExpenditure("1", 2025, "Department of Health", "Immunization Outreach", 120000),
	}

	// Act
	res := Strict(grain, exps)

	// Assert
	require.Len(t, res.Matched, 1)
	assert.Equal(t, MatchStrict, res.Matched[0].Type)
	assert.Equal(t, 1.0, res.Matched[0].Score)
	assert.True(t, res.Claimed.Has("1"))
	assert.Empty(t, res.UnmatchedPrograms)
	assert.Empty(t, res.UnmatchedExpenditures)
}

func TestStrict_SplitsUnmatchedBothSides(t *testing.T) {
	grain := []ledger.ProgramGrainRecord{
		makeProgram(2025, "Department of Health", "Immunization Outreach", 500000),
		makeProgram(2025, "Department of Health", "Vital Records", 100000),
	}
	exps := []ledger.ExpenditureRecord{
		makeExpenditure("1", 2025, "Department of Health", "Immunization Outreach", 120000),
		makeExpenditure("2", 2025, "Department of Health", "Immunization Outreach Program", 80000),
	}

	res := Strict(grain, exps)

	require.Len(t, res.Matched, 1)
	assert.Equal(t, "1", res.Matched[0].Expenditure.ExpID)

	// Vital Records saw no expenditures; exp 2 has no exact key.
	require.Len(t, res.UnmatchedPrograms, 1)
	assert.Equal(t, "vital records", res.UnmatchedPrograms[0].Key.NormProgram)
	require.Len(t, res.UnmatchedExpenditures, 1)
	assert.Equal(t, "2", res.UnmatchedExpenditures[0].ExpID)
}

func TestStrict_FiscalYearIsPartOfKey(t *testing.T) {
	grain := []ledger.ProgramGrainRecord{
		makeProgram(2025, "Department of Health", "Immunization Outreach", 500000),
	}
	exps := []ledger.ExpenditureRecord{
		makeExpenditure("1", 2026, "Department of Health", "Immunization Outreach", 120000),
	}

	res := Strict(grain, exps)

	assert.Empty(t, res.Matched)
	assert.Len(t, res.UnmatchedExpenditures, 1)
	assert.Len(t, res.UnmatchedPrograms, 1)
}

func TestFuzzy_MatchesSimilarProgramName(t *testing.T) {
	programs := []ledger.ProgramGrainRecord{
		makeProgram(2025, "Department of Health", "Immunization Outreach", 500000),
	}
	exps := []ledger.ExpenditureRecord{
		makeExpenditure("2", 2025, "Department of Health", "Immunization Outreach Program", 80000),
	}

	res := Fuzzy(programs, exps, NewClaimSet(), DefaultConfig())

	require.Len(t, res.Matched, 1)
	assert.Equal(t, MatchFuzzy, res.Matched[0].Type)
	assert.GreaterOrEqual(t, res.Matched[0].Score, 0.88)
	assert.True(t, res.Claimed.Has("2"))
	assert.Empty(t, res.UnmatchedPrograms)
}

func TestFuzzy_NeverCrossesAgencies(t *testing.T) {
	programs := []ledger.ProgramGrainRecord{
		makeProgram(2025, "Department of Health", "Immunization Outreach", 500000),
	}
	// Same program name, different agency: must not match.
	exps := []ledger.ExpenditureRecord{
		makeExpenditure("2", 2025, "Department of Education", "Immunization Outreach Program", 80000),
	}

	res := Fuzzy(programs, exps, NewClaimSet(), DefaultConfig())

	assert.Empty(t, res.Matched)
	assert.Len(t, res.UnmatchedPrograms, 1)
	assert.Len(t, res.UnmatchedExpenditures, 1)
}

func TestFuzzy_ThresholdBoundary(t *testing.T) {
	programs := []ledger.ProgramGrainRecord{
		makeProgram(2025, "Department of Health", "Community Wellness Initiative North", 500000),
	}
	exps := []ledger.ExpenditureRecord{
		makeExpenditure("2", 2025, "Department of Health", "Community Wellness Initiative South", 80000),
	}

	// Measure the actual similarity, then pin the threshold exactly at it.
	score := scoreBetween(t, programs[0], exps[0])
	require.Greater(t, score, 0.0)
	require.Less(t, score, 1.0)

	cfg := DefaultConfig()
	cfg.FuzzyThreshold = score
	res := Fuzzy(programs, exps, NewClaimSet(), cfg)
	require.Len(t, res.Matched, 1, "candidate scoring exactly at threshold must be accepted")
	assert.Equal(t, score, res.Matched[0].Score)

	// One notch above the candidate's score rejects it.
	cfg.FuzzyThreshold = score + 0.001
	res = Fuzzy(programs, exps, NewClaimSet(), cfg)
	assert.Empty(t, res.Matched)
	assert.Len(t, res.UnmatchedExpenditures, 1)
}

func scoreBetween(t *testing.T, prog ledger.ProgramGrainRecord, exp ledger.ExpenditureRecord) float64 {
	t.Helper()
	cfg := DefaultConfig()
	cfg.FuzzyThreshold = 0.01
	res := Fuzzy([]ledger.ProgramGrainRecord{prog}, []ledger.ExpenditureRecord{exp}, NewClaimSet(), cfg)
	require.Len(t, res.Matched, 1)
	return res.Matched[0].Score
}

func TestFuzzy_FundTiebreakPicksHigherFundScore(t *testing.T) {
	prog := makeProgram(2025, "Department of Health", "Community Health Grants", 500000)
	prog.FundGroupCodes = []string{"GENERAL"}
	prog.FundNames = []string{"General Fund"}
	prog.NormFundNames = []string{"general fund"}

	// Both candidate program names contain every program token, so both score
	// 1.0 and tie on similarity.
	expA := makeExpenditure("a1", 2025, "Department of Health", "Community Health Grants Program", 10000)
	expA.FundDetailName = "General Fund"
	expB := makeExpenditure("b1", 2025, "Department of Health", "Grants Community Health", 20000)
	expB.FundDetailName = "Highway Trust"
	expB.FundName = "Trust and Agency"

	res := Fuzzy([]ledger.ProgramGrainRecord{prog}, []ledger.ExpenditureRecord{expA, expB}, NewClaimSet(), DefaultConfig())

	require.Len(t, res.Matched, 1)
	assert.Equal(t, "a1", res.Matched[0].Expenditure.ExpID)
	assert.Equal(t, MatchFuzzyFundTiebreak, res.Matched[0].Type)
}

func TestFuzzy_AllZeroFundScoresStaysOrdinaryFuzzy(t *testing.T) {
	prog := makeProgram(2025, "Department of Health", "Community Health Grants", 500000)
	prog.NormFundNames = []string{"general fund"}

	expA := makeExpenditure("a1", 2025, "Department of Health", "Community Health Grants Program", 10000)
	expB := makeExpenditure("b1", 2025, "Department of Health", "Grants Community Health", 20000)

	res := Fuzzy([]ledger.ProgramGrainRecord{prog}, []ledger.ExpenditureRecord{expA, expB}, NewClaimSet(), DefaultConfig())

	// Tie not disambiguated: ordinary fuzzy, first candidate in similarity
	// order (score desc, then name) taken deterministically.
	require.Len(t, res.Matched, 1)
	assert.Equal(t, MatchFuzzy, res.Matched[0].Type)
	assert.Equal(t, "a1", res.Matched[0].Expenditure.ExpID)
}

func TestFuzzy_SkipsAlreadyClaimed(t *testing.T) {
	programs := []ledger.ProgramGrainRecord{
		makeProgram(2025, "Department of Health", "Immunization Outreach", 500000),
	}
	exps := []ledger.ExpenditureRecord{
		makeExpenditure("2", 2025, "Department of Health", "Immunization Outreach Program", 80000),
	}

	res := Fuzzy(programs, exps, ClaimSetOf("2"), DefaultConfig())

	assert.Empty(t, res.Matched)
	assert.Equal(t, 0, res.Claimed.Len())
	assert.Len(t, res.UnmatchedExpenditures, 1)
}

func TestFuzzy_NoDoubleClaimWithinPass(t *testing.T) {
	// Two programs that both fuzz onto the same expenditure program name: the
	// first program in bucket order claims the rows, the second gets nothing.
	progA := makeProgram(2025, "Department of Health", "Immunization Outreach", 500000)
	progB := makeProgram(2025, "Department of Health", "Immunization Outreach Program Services", 300000)

	exps := []ledger.ExpenditureRecord{
		makeExpenditure("2", 2025, "Department of Health", "Immunization Outreach Program", 80000),
	}

	res := Fuzzy([]ledger.ProgramGrainRecord{progA, progB}, exps, NewClaimSet(), DefaultConfig())

	require.Len(t, res.Matched, 1)
	assert.Equal(t, "immunization outreach", res.Matched[0].Program.Key.NormProgram)
	assert.Equal(t, 1, res.Claimed.Len())

	// The losing program stays unmatched rather than stealing the rows.
	require.Len(t, res.UnmatchedPrograms, 1)
	assert.Equal(t, "immunization outreach program services", res.UnmatchedPrograms[0].Key.NormProgram)
}

func TestFuzzy_Deterministic(t *testing.T) {
	var programs []ledger.ProgramGrainRecord
	var exps []ledger.ExpenditureRecord
	agencies := []string{"Department of Health", "Department of Education", "Department of Transportation"}
	for i, agency := range agencies {
		programs = append(programs, makeProgram(2025, agency, "Community Outreach", float64(1000*i)))
		exps = append(exps,
			makeExpenditure(agency+":1", 2025, agency, "Community Outreach Program", 100),
			makeExpenditure(agency+":2", 2025, agency, "Community Outreach Services", 200),
		)
	}

	first := Fuzzy(programs, exps, NewClaimSet(), DefaultConfig())
	for i := 0; i < 10; i++ {
		again := Fuzzy(programs, exps, NewClaimSet(), DefaultConfig())
		assert.Equal(t, first.Matched, again.Matched)
		assert.Equal(t, first.Claimed.IDs(), again.Claimed.IDs())
	}
}

func TestCategory_OnlyAllowListedExpenseTypes(t *testing.T) {
	programs := []ledger.ProgramGrainRecord{
		makeProgram(2025, "Department of Health", "Immunization Outreach", 500000),
	}

	grant := makeExpenditure("g1", 2025, "Department of Health", "Immunization Outreach Program", 80000)
	grant.ExpenseType = "Grnt-Nongovernmental Organizations"
	payroll := makeExpenditure("p1", 2025, "Department of Health", "Immunization Outreach Program", 50000)
	payroll.ExpenseType = "Salaries and Wages"

	res := Category(programs, []ledger.ExpenditureRecord{grant, payroll}, NewClaimSet(), DefaultConfig())

	require.Len(t, res.Matched, 1)
	assert.Equal(t, "g1", res.Matched[0].Expenditure.ExpID)
	assert.Equal(t, MatchCategoryFuzzy, res.Matched[0].Type)

	// The payroll row flows through untouched for the unmatched report.
	require.Len(t, res.UnmatchedExpenditures, 1)
	assert.Equal(t, "p1", res.UnmatchedExpenditures[0].ExpID)
}

func TestCategory_UsesStricterThreshold(t *testing.T) {
	programs := []ledger.ProgramGrainRecord{
		makeProgram(2025, "Department of Health", "Community Wellness Initiative Alpha", 500000),
	}
	exp := makeExpenditure("g1", 2025, "Department of Health", "Community Wellness Initiative Omega", 80000)
	exp.ExpenseType = "Skilled Services"

	// This pair passes the general 0.88 bar but not the 0.92 category bar.
	score := scoreBetween(t, programs[0], makeExpenditure("x", 2025, "Department of Health", "Community Wellness Initiative Omega", 1))
	require.Greater(t, score, 0.88)
	require.Less(t, score, 0.92)

	res := Category(programs, []ledger.ExpenditureRecord{exp}, NewClaimSet(), DefaultConfig())

	assert.Empty(t, res.Matched)
	assert.Len(t, res.UnmatchedExpenditures, 1)
}

func TestCategory_EmptyEligibleSetPassesThrough(t *testing.T) {
	programs := []ledger.ProgramGrainRecord{
		makeProgram(2025, "Department of Health", "Immunization Outreach", 500000),
	}
	exp := makeExpenditure("p1", 2025, "Department of Health", "Immunization Outreach Program", 50000)
	exp.ExpenseType = "Salaries and Wages"

	res := Category(programs, []ledger.ExpenditureRecord{exp}, NewClaimSet(), DefaultConfig())

	assert.Empty(t, res.Matched)
	assert.Len(t, res.UnmatchedPrograms, 1)
	assert.Len(t, res.UnmatchedExpenditures, 1)
	assert.Equal(t, 0, res.Claimed.Len())
}

func TestClaimSet_UnionDoesNotMutate(t *testing.T) {
	a := ClaimSetOf("1", "2")
	b := ClaimSetOf("3")

	u := a.Union(b)

	assert.Equal(t, 3, u.Len())
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 1, b.Len())
	assert.False(t, a.Has("3"))
	assert.Equal(t, []string{"1", "2", "3"}, u.IDs())
}
