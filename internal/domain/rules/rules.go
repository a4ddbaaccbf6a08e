// Package rules flags records that should not count against the match rate:
// expenditure rows that are accounting placeholders (payroll clearing,
// inter-fund transfers) or categories of spending that never map to an
// appropriated program, and appropriation programs that are pass-through or
// adjustment entries no expenditure will ever be booked against.
package rules

import (
	"strings"

	"github.com/statebudgetx/budget-decoder/internal/domain/ledger"
)

// PatternRule matches an expenditure row by case-insensitive substring
// against its vendor, agency, or combined "category / expense type" text.
type PatternRule struct {
	VendorPatterns          []string `yaml:"vendor_patterns"`
	AgencyPatterns          []string `yaml:"agency_patterns"`
	CategoryExpensePatterns []string `yaml:"category_expense_patterns"`
}

// Matches reports whether any pattern of the rule occurs in the row.
func (r PatternRule) Matches(e ledger.ExpenditureRecord) bool {
	vendor := strings.ToUpper(strings.TrimSpace(e.VendorName))
	agency := strings.ToUpper(strings.TrimSpace(e.AgencyName))
	categoryExpense := strings.ToUpper(strings.TrimSpace(e.CategoryName) + " / " + strings.TrimSpace(e.ExpenseType))

	for _, p := range r.VendorPatterns {
		if p != "" && strings.Contains(vendor, strings.ToUpper(p)) {
			return true
		}
	}
	for _, p := range r.AgencyPatterns {
		if p != "" && strings.Contains(agency, strings.ToUpper(p)) {
			return true
		}
	}
	for _, p := range r.CategoryExpensePatterns {
		if p != "" && strings.Contains(categoryExpense, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}

// RuleSet groups named pattern rules. Any rule matching flags the row.
type RuleSet struct {
	Rules []PatternRule `yaml:"rules"`
}

// Matches reports whether any rule in the set matches the row. An empty set
// matches nothing.
func (s RuleSet) Matches(e ledger.ExpenditureRecord) bool {
	for _, r := range s.Rules {
		if r.Matches(e) {
			return true
		}
	}
	return false
}

// ProgramRule matches a program-grain appropriation by case-insensitive
// substring against its agency and program names. Unlike PatternRule, the
// pattern groups are conjunctive: every populated group must match, so a rule
// can pin a program name to one agency. NonPositiveOnly further restricts the
// rule to programs whose appropriated total is zero or negative, the usual
// shape of pass-through and adjustment entries.
type ProgramRule struct {
	AgencyPatterns  []string `yaml:"agency_patterns"`
	ProgramPatterns []string `yaml:"program_patterns"`
	NonPositiveOnly bool     `yaml:"non_positive_only"`
}

// Matches reports whether the program satisfies every populated pattern group.
// A rule with no patterns matches nothing.
func (r ProgramRule) Matches(g ledger.ProgramGrainRecord) bool {
	if len(r.AgencyPatterns) == 0 && len(r.ProgramPatterns) == 0 {
		return false
	}
	if r.NonPositiveOnly && g.AppropriatedAmount > 0 {
		return false
	}
	if len(r.AgencyPatterns) > 0 && !anyContains(g.AgencyName, r.AgencyPatterns) {
		return false
	}
	if len(r.ProgramPatterns) > 0 && !anyContains(g.ProgramName, r.ProgramPatterns) {
		return false
	}
	return true
}

func anyContains(text string, patterns []string) bool {
	upper := strings.ToUpper(strings.TrimSpace(text))
	for _, p := range patterns {
		if p != "" && strings.Contains(upper, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}

// ProgramRuleSet groups program rules. Any rule matching flags the program.
type ProgramRuleSet struct {
	Rules []ProgramRule `yaml:"rules"`
}

// Matches reports whether any rule in the set matches the program. An empty
// set matches nothing.
func (s ProgramRuleSet) Matches(g ledger.ProgramGrainRecord) bool {
	for _, r := range s.Rules {
		if r.Matches(g) {
			return true
		}
	}
	return false
}
