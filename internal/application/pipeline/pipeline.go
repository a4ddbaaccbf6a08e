// Package pipeline orchestrates a full reconciliation run: ingest, recipient
// annotation, the three matching passes, the combined invariant check, the
// decoder views, and persistence.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/statebudgetx/budget-decoder/internal/domain/classifier"
	"github.com/statebudgetx/budget-decoder/internal/domain/ledger"
	"github.com/statebudgetx/budget-decoder/internal/domain/matcher"
	"github.com/statebudgetx/budget-decoder/internal/domain/reporter"
	"github.com/statebudgetx/budget-decoder/internal/domain/rollup"
	"github.com/statebudgetx/budget-decoder/internal/infrastructure/config"
	"github.com/statebudgetx/budget-decoder/internal/infrastructure/storage"
	"github.com/statebudgetx/budget-decoder/internal/ingest"
)

// Pipeline wires the reconciliation stages together. Storage is optional;
// a nil store runs the pipeline without persistence.
type Pipeline struct {
	cfg        *config.Config
	store      *storage.Storage
	classifier classifier.Classifier
	logger     *slog.Logger
}

// New creates a pipeline from configuration.
func New(cfg *config.Config, store *storage.Storage, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:        cfg,
		store:      store,
		classifier: classifier.NewPatternClassifier(cfg.Matching.InternalVendorPatterns),
		logger:     logger,
	}
}

// Outputs is everything one run produces. UnmatchedExpenditures carries the
// raw rows no pass claimed, for manual triage.
type Outputs struct {
	RunID                 string
	Grain                 []ledger.ProgramGrainRecord
	Matches               []matcher.MatchRecord
	ProgramVendor         []rollup.ProgramVendorRow
	ProgramRollup         []rollup.ProgramRollupRow
	Unmatched             []reporter.UnmatchedProgram
	UnmatchedExpenditures []ledger.ExpenditureRecord
	Totals                storage.RunTotals
}

// Run loads the configured inputs, processes them, and persists the outputs.
func (p *Pipeline) Run(ctx context.Context) (*Outputs, error) {
	runID := uuid.New().String()
	ing := p.cfg.Ingest

	p.logger.Info("Starting reconciliation run",
		"run_id", runID,
		"first_fy", ing.FirstFiscalYear,
		"second_fy", ing.SecondFiscalYear,
	)

	if p.store != nil {
		if err := p.store.StartRun(runID, ing.FirstFiscalYear, ing.SecondFiscalYear); err != nil {
			return nil, fmt.Errorf("failed to record run start: %w", err)
		}
	}

	out, err := p.runInner(ctx, runID)
	if err != nil {
		if p.store != nil {
			if failErr := p.store.FailRun(runID); failErr != nil {
				p.logger.Error("Failed to mark run as failed", "run_id", runID, "error", failErr)
			}
		}
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) runInner(ctx context.Context, runID string) (*Outputs, error) {
	ing := p.cfg.Ingest

	appropriations, err := ingest.LoadAppropriations(ing.AppropriationsPath, ing.FirstFiscalYear, ing.SecondFiscalYear)
	if err != nil {
		return nil, err
	}
	p.logger.Info("Loaded appropriations", "rows", len(appropriations))

	var expenditures []ledger.ExpenditureRecord
	var warnings ingest.Warnings
	for _, fy := range []int{ing.FirstFiscalYear, ing.SecondFiscalYear} {
		dir, ok := ing.ExpenditureDirs[fy]
		if !ok {
			p.logger.Warn("No expenditure directory configured", "fiscal_year", fy)
			continue
		}
		records, w, err := ingest.LoadExpenditures(dir, fy)
		if err != nil {
			return nil, err
		}
		p.logger.Info("Loaded expenditures",
			"fiscal_year", fy, "rows", len(records), "warnings", w.Total())
		expenditures = append(expenditures, records...)
		warnings.Add(w)
	}

	out, err := p.Process(ctx, runID, appropriations, expenditures, warnings)
	if err != nil {
		return nil, err
	}

	if p.store != nil {
		if err := p.persist(out); err != nil {
			return nil, err
		}
	}

	p.logger.Info("Reconciliation run complete",
		"run_id", runID,
		"matched", out.Totals.MatchedExpenditures,
		"raw_match_rate", out.Totals.RawMatchRate,
		"adjusted_match_rate", out.Totals.AdjustedMatchRate,
		"unmatched_programs", out.Totals.UnmatchedPrograms,
	)
	return out, nil
}

// Process runs the matching stages over already-loaded records. Split out
// from Run so in-memory inputs can be processed without touching disk.
func (p *Pipeline) Process(ctx context.Context, runID string, appropriations []ledger.AppropriationRow, expenditures []ledger.ExpenditureRecord, warnings ingest.Warnings) (*Outputs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	annotated := p.annotate(expenditures)
	grain := p.annotateGrain(ledger.BuildProgramGrain(appropriations, p.cfg.Ingest.FirstFiscalYear, p.cfg.Ingest.SecondFiscalYear))
	p.logger.Info("Built program grain", "programs", len(grain))

	mcfg := matcher.Config{
		FuzzyThreshold:    p.cfg.Matching.FuzzyThreshold,
		CategoryThreshold: p.cfg.Matching.CategoryThreshold,
		CategoryAllowList: p.cfg.Matching.CategoryAllowList,
	}

	// Every pass sees the full program grain; the claim snapshots are what
	// keep expenditure rows single-owner. A program already linked strictly
	// can still gather fuzzy rows spelled differently on the expenditure side.
	strict := matcher.Strict(grain, annotated)
	p.logger.Info("Strict pass complete",
		"matched", len(strict.Matched), "unmatched_programs", len(strict.UnmatchedPrograms))

	fuzzy := matcher.Fuzzy(grain, annotated, strict.Claimed, mcfg)
	p.logger.Info("Fuzzy pass complete", "matched", len(fuzzy.Matched))

	category := matcher.Category(grain, annotated, strict.Claimed.Union(fuzzy.Claimed), mcfg)
	p.logger.Info("Category pass complete", "matched", len(category.Matched))

	combined, claimed, err := rollup.Combine(strict, fuzzy, category)
	if err != nil {
		return nil, err
	}

	if err := verifyConservation(annotated, combined, claimed); err != nil {
		return nil, err
	}

	unmatched := reporter.BestCandidates(leftoverPrograms(grain, combined), annotated)

	// Programs configured as expected-unmatched stay in the review report with
	// their flag but do not count as reconciliation gaps.
	unexpectedUnmatched := 0
	for _, u := range unmatched {
		if !u.Program.ExpectedUnmatched {
			unexpectedUnmatched++
		}
	}

	var leftoverExps []ledger.ExpenditureRecord
	for _, e := range annotated {
		if !claimed.Has(e.ExpID) {
			leftoverExps = append(leftoverExps, e)
		}
	}

	out := &Outputs{
		RunID:                 runID,
		Grain:                 grain,
		Matches:               combined,
		ProgramVendor:         rollup.BuildProgramVendor(combined),
		ProgramRollup:         rollup.BuildProgramRollup(combined, p.cfg.Rollup.TopVendors),
		Unmatched:             unmatched,
		UnmatchedExpenditures: leftoverExps,
		Totals: computeTotals(grain, annotated, claimed, warnings,
			len(strict.Matched), len(fuzzy.Matched), len(category.Matched), unexpectedUnmatched),
	}
	return out, nil
}

// leftoverPrograms returns grain records no pass produced a match for.
func leftoverPrograms(grain []ledger.ProgramGrainRecord, combined []matcher.MatchRecord) []ledger.ProgramGrainRecord {
	matched := make(map[ledger.ProgramKey]struct{})
	for _, m := range combined {
		matched[m.Program.Key] = struct{}{}
	}
	var leftover []ledger.ProgramGrainRecord
	for _, g := range grain {
		if _, ok := matched[g.Key]; !ok {
			leftover = append(leftover, g)
		}
	}
	return leftover
}

// annotateGrain flags grain records matching the expected-unmatched program
// rules (pass-through and adjustment appropriations).
func (p *Pipeline) annotateGrain(grain []ledger.ProgramGrainRecord) []ledger.ProgramGrainRecord {
	programRules := p.cfg.Exclusions.ExpectedUnmatchedPrograms
	flagged := 0
	for i := range grain {
		if programRules.Matches(grain[i]) {
			grain[i].ExpectedUnmatched = true
			flagged++
		}
	}
	if flagged > 0 {
		p.logger.Info("Flagged expected-unmatched programs", "programs", flagged)
	}
	return grain
}

// annotate fills the recipient type and exclusion flags on every row.
func (p *Pipeline) annotate(expenditures []ledger.ExpenditureRecord) []ledger.ExpenditureRecord {
	placeholders := p.cfg.Exclusions.Placeholders
	expected := p.cfg.Exclusions.ExpectedUnmatched

	annotated := make([]ledger.ExpenditureRecord, len(expenditures))
	placeholderCount, expectedCount := 0, 0
	for i, e := range expenditures {
		e.RecipientType = string(p.classifier.Classify(e.VendorName))
		e.IsPlaceholder = placeholders.Matches(e)
		e.IsExpectedUnmatched = expected.Matches(e)
		if e.IsPlaceholder {
			placeholderCount++
		}
		if e.IsExpectedUnmatched {
			expectedCount++
		}
		annotated[i] = e
	}
	p.logger.Info("Annotated expenditures",
		"rows", len(annotated),
		"placeholders", placeholderCount,
		"expected_unmatched", expectedCount,
	)
	return annotated
}

// verifyConservation checks that the matched and unclaimed amounts sum back
// to the input total for every fiscal year. Matching reassigns rows; it must
// never create or destroy dollars.
func verifyConservation(expenditures []ledger.ExpenditureRecord, combined []matcher.MatchRecord, claimed matcher.ClaimSet) error {
	totalByFY := make(map[int]float64)
	unclaimedByFY := make(map[int]float64)
	for _, e := range expenditures {
		totalByFY[e.FiscalYear] += e.Amount
		if !claimed.Has(e.ExpID) {
			unclaimedByFY[e.FiscalYear] += e.Amount
		}
	}
	matchedByFY := make(map[int]float64)
	for _, m := range combined {
		matchedByFY[m.Expenditure.FiscalYear] += m.Expenditure.Amount
	}

	const epsilon = 0.01
	for fy, total := range totalByFY {
		accounted := matchedByFY[fy] + unclaimedByFY[fy]
		if math.Abs(total-accounted) > epsilon {
			return fmt.Errorf(
				"invariant violation: FY%d totals diverge: input %.2f vs matched+unclaimed %.2f",
				fy, total, accounted)
		}
	}
	return nil
}

func computeTotals(grain []ledger.ProgramGrainRecord, expenditures []ledger.ExpenditureRecord, claimed matcher.ClaimSet, warnings ingest.Warnings, strictN, fuzzyN, categoryN, unmatchedN int) storage.RunTotals {
	totals := storage.RunTotals{
		AppropriationPrograms: len(grain),
		ExpenditureRows:       len(expenditures),
		StrictMatches:         strictN,
		FuzzyMatches:          fuzzyN,
		CategoryMatches:       categoryN,
		MatchedExpenditures:   claimed.Len(),
		UnmatchedPrograms:     unmatchedN,
		WarningCount:          warnings.Total(),
	}

	if len(expenditures) > 0 {
		totals.RawMatchRate = float64(claimed.Len()) / float64(len(expenditures))
	}

	// The adjusted rate removes rows flagged placeholder or expected-unmatched
	// from the denominator; the union avoids double-counting rows with both
	// flags.
	excluded := 0
	for _, e := range expenditures {
		if e.IsPlaceholder || e.IsExpectedUnmatched {
			excluded++
		}
	}
	if adjusted := len(expenditures) - excluded; adjusted > 0 {
		totals.AdjustedMatchRate = float64(claimed.Len()) / float64(adjusted)
	}
	return totals
}

func (p *Pipeline) persist(out *Outputs) error {
	if err := p.store.SaveProgramVendorRows(out.RunID, out.ProgramVendor); err != nil {
		return fmt.Errorf("failed to save program-vendor view: %w", err)
	}
	if err := p.store.SaveProgramRollupRows(out.RunID, out.ProgramRollup); err != nil {
		return fmt.Errorf("failed to save program rollup view: %w", err)
	}
	if err := p.store.SaveUnmatchedPrograms(out.RunID, out.Unmatched); err != nil {
		return fmt.Errorf("failed to save unmatched report: %w", err)
	}
	if err := p.store.CompleteRun(out.RunID, out.Totals); err != nil {
		return fmt.Errorf("failed to record run completion: %w", err)
	}
	return nil
}
