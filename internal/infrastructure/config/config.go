// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	threshold := cfg.Matching.FuzzyThreshold
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/statebudgetx/budget-decoder/internal/domain/rules"
)

// Config represents the entire application configuration
type Config struct {
	Ingest        IngestConfig        `yaml:"ingest"`
	Matching      MatchingConfig      `yaml:"matching"`
	Exclusions    ExclusionsConfig    `yaml:"exclusions"`
	Rollup        RollupConfig        `yaml:"rollup"`
	Storage       StorageConfig       `yaml:"storage"`
	API           APIConfig           `yaml:"api"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// IngestConfig holds the input data locations and the fiscal-year pair the
// appropriations export covers.
type IngestConfig struct {
	AppropriationsPath string `yaml:"appropriations_path"`
	FirstFiscalYear    int    `yaml:"first_fiscal_year"`
	SecondFiscalYear   int    `yaml:"second_fiscal_year"`
	// One expenditure directory of monthly CSVs per fiscal year.
	ExpenditureDirs map[int]string `yaml:"expenditure_dirs"`
}

// MatchingConfig holds the join thresholds and the category allow-list for
// the category-restricted pass.
type MatchingConfig struct {
	FuzzyThreshold    float64  `yaml:"fuzzy_threshold"`
	CategoryThreshold float64  `yaml:"category_threshold"`
	CategoryAllowList []string `yaml:"category_allow_list"`
	// Internal-vendor patterns for recipient classification; empty uses the
	// built-in set.
	InternalVendorPatterns []string `yaml:"internal_vendor_patterns"`
}

// ExclusionsConfig holds the pattern rules that mark expenditure rows as
// accounting placeholders or expected-unmatched spending, and appropriation
// programs as expected-unmatched pass-through entries.
type ExclusionsConfig struct {
	Placeholders              rules.RuleSet        `yaml:"placeholders"`
	ExpectedUnmatched         rules.RuleSet        `yaml:"expected_unmatched"`
	ExpectedUnmatchedPrograms rules.ProgramRuleSet `yaml:"expected_unmatched_programs"`
}

// RollupConfig holds output-shaping settings.
type RollupConfig struct {
	TopVendors int `yaml:"top_vendors"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// APIConfig holds the read-only HTTP API settings.
type APIConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${DECODER_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := &Config{
		Ingest: IngestConfig{
			AppropriationsPath: getEnv("DECODER_APPROPRIATIONS_PATH", "data/appropriations.csv"),
			FirstFiscalYear:    getEnvInt("DECODER_FIRST_FY", 2025),
			SecondFiscalYear:   getEnvInt("DECODER_SECOND_FY", 2026),
		},
		Matching: MatchingConfig{
			FuzzyThreshold:    getEnvFloat("DECODER_FUZZY_THRESHOLD", 0.88),
			CategoryThreshold: getEnvFloat("DECODER_CATEGORY_THRESHOLD", 0.92),
			CategoryAllowList: []string{"Grnt-Nongovernmental", "Skilled Services"},
		},
		Rollup: RollupConfig{
			TopVendors: getEnvInt("DECODER_TOP_VENDORS", 10),
		},
		Storage: StorageConfig{
			DatabasePath: getEnv("DECODER_DB_PATH", "budget_decoder.db"),
		},
		API: APIConfig{
			ListenAddr: getEnv("DECODER_API_ADDR", ":8080"),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
	if dir := os.Getenv("DECODER_EXPENDITURES_FY1_DIR"); dir != "" {
		cfg.Ingest.ExpenditureDirs = map[int]string{cfg.Ingest.FirstFiscalYear: dir}
		if dir2 := os.Getenv("DECODER_EXPENDITURES_FY2_DIR"); dir2 != "" {
			cfg.Ingest.ExpenditureDirs[cfg.Ingest.SecondFiscalYear] = dir2
		}
	}
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from specified path, falls back to environment variables
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// applyDefaults fills settings the file left unset.
func (c *Config) applyDefaults() {
	if c.Matching.FuzzyThreshold == 0 {
		c.Matching.FuzzyThreshold = 0.88
	}
	if c.Matching.CategoryThreshold == 0 {
		c.Matching.CategoryThreshold = 0.92
	}
	if len(c.Matching.CategoryAllowList) == 0 {
		c.Matching.CategoryAllowList = []string{"Grnt-Nongovernmental", "Skilled Services"}
	}
	if c.Rollup.TopVendors == 0 {
		c.Rollup.TopVendors = 10
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "budget_decoder.db"
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Matching.FuzzyThreshold <= 0 || c.Matching.FuzzyThreshold > 1 {
		return fmt.Errorf("matching.fuzzy_threshold must be in (0, 1], got %v", c.Matching.FuzzyThreshold)
	}
	if c.Matching.CategoryThreshold <= 0 || c.Matching.CategoryThreshold > 1 {
		return fmt.Errorf("matching.category_threshold must be in (0, 1], got %v", c.Matching.CategoryThreshold)
	}
	if c.Matching.CategoryThreshold < c.Matching.FuzzyThreshold {
		return fmt.Errorf("matching.category_threshold (%v) must not be looser than fuzzy_threshold (%v)",
			c.Matching.CategoryThreshold, c.Matching.FuzzyThreshold)
	}
	if c.Ingest.FirstFiscalYear != 0 && c.Ingest.SecondFiscalYear != 0 &&
		c.Ingest.SecondFiscalYear <= c.Ingest.FirstFiscalYear {
		return fmt.Errorf("ingest.second_fiscal_year (%d) must follow first_fiscal_year (%d)",
			c.Ingest.SecondFiscalYear, c.Ingest.FirstFiscalYear)
	}
	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

// getEnvFloat retrieves a float environment variable with a fallback default
func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if result, err := strconv.ParseFloat(val, 64); err == nil {
			return result
		}
	}
	return fallback
}
