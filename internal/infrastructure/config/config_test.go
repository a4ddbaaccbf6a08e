package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
ingest:
  appropriations_path: data/appropriations.csv
  first_fiscal_year: 2025
  second_fiscal_year: 2026
  expenditure_dirs:
    2025: data/expenditures/fy2025
    2026: data/expenditures/fy2026
matching:
  fuzzy_threshold: 0.90
  category_allow_list:
    - Grnt-Nongovernmental
exclusions:
  placeholders:
    rules:
      - vendor_patterns: ["Payroll Clearing"]
storage:
  database_path: decoder.db
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 0.90, cfg.Matching.FuzzyThreshold)
	// Unset settings pick up defaults.
	assert.Equal(t, 0.92, cfg.Matching.CategoryThreshold)
	assert.Equal(t, 10, cfg.Rollup.TopVendors)
	assert.Equal(t, "decoder.db", cfg.Storage.DatabasePath)
	assert.Equal(t, "data/expenditures/fy2025", cfg.Ingest.ExpenditureDirs[2025])
	require.Len(t, cfg.Exclusions.Placeholders.Rules, 1)
	assert.Equal(t, []string{"Payroll Clearing"}, cfg.Exclusions.Placeholders.Rules[0].VendorPatterns)
}

func TestLoad_RejectsBadThresholds(t *testing.T) {
	path := writeConfig(t, `
matching:
  fuzzy_threshold: 1.5
`)

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "fuzzy_threshold")
}

func TestLoad_RejectsCategoryLooserThanFuzzy(t *testing.T) {
	path := writeConfig(t, `
matching:
  fuzzy_threshold: 0.88
  category_threshold: 0.80
`)

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "category_threshold")
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("DECODER_DB_PATH", "test.db")
	os.Setenv("DECODER_FUZZY_THRESHOLD", "0.91")
	defer func() {
		os.Unsetenv("DECODER_DB_PATH")
		os.Unsetenv("DECODER_FUZZY_THRESHOLD")
	}()

	cfg := LoadFromEnv()
	assert.NotNil(t, cfg)
	assert.Equal(t, "test.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 0.91, cfg.Matching.FuzzyThreshold)
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	os.Unsetenv("DECODER_DB_PATH")
	os.Unsetenv("DECODER_FUZZY_THRESHOLD")

	cfg := LoadFromEnv()
	assert.NotNil(t, cfg)
	assert.Equal(t, "budget_decoder.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 0.88, cfg.Matching.FuzzyThreshold)
	assert.Equal(t, 0.92, cfg.Matching.CategoryThreshold)
	assert.Equal(t, []string{"Grnt-Nongovernmental", "Skilled Services"}, cfg.Matching.CategoryAllowList)
}

func TestLoadOrEnv_FallbackToEnv(t *testing.T) {
	os.Setenv("DECODER_DB_PATH", "fallback.db")
	defer os.Unsetenv("DECODER_DB_PATH")

	cfg := LoadOrEnvWithPath("nonexistent.yaml")
	assert.NotNil(t, cfg)
	assert.Equal(t, "fallback.db", cfg.Storage.DatabasePath)
}

func TestEnvVarExpansion(t *testing.T) {
	os.Setenv("TEST_DECODER_DB", "expanded.db")
	defer os.Unsetenv("TEST_DECODER_DB")

	path := writeConfig(t, `
storage:
  database_path: "${TEST_DECODER_DB}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "expanded.db", cfg.Storage.DatabasePath)
}
