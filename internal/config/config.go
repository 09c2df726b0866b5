// Package config handles configuration loading for holdings13f.
// It supports YAML config files with environment variable overrides and
// an optional .env file in the working directory.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// ErrNoUserAgent is returned by Validate when no SEC user agent is set.
var ErrNoUserAgent = errors.New("sec.user_agent is required (SEC fair-access policy)")

// Config represents the complete application configuration.
type Config struct {
	SEC     SECConfig     `mapstructure:"sec"      yaml:"sec"`
	Scan    ScanConfig    `mapstructure:"scan"     yaml:"scan"`
	Groups  []GroupConfig `mapstructure:"groups"   yaml:"groups"`
	AutoCIK AutoCIKConfig `mapstructure:"auto_cik" yaml:"auto_cik"`
	Tickers TickersConfig `mapstructure:"tickers"  yaml:"tickers"`
	Output  OutputConfig  `mapstructure:"output"   yaml:"output"`
	Logging LoggingConfig `mapstructure:"logging"  yaml:"logging"`
}

// SECConfig holds archive access settings.
type SECConfig struct {
	UserAgent   string      `mapstructure:"user_agent"   yaml:"user_agent"`
	ArchivesURL string      `mapstructure:"archives_url" yaml:"archives_url"`
	DataURL     string      `mapstructure:"data_url"     yaml:"data_url"`
	FilesURL    string      `mapstructure:"files_url"    yaml:"files_url"`
	BrowseURL   string      `mapstructure:"browse_url"   yaml:"browse_url"`
	SleepMillis int         `mapstructure:"sleep_ms"     yaml:"sleep_ms"` // courtesy delay between requests
	TimeoutSec  int         `mapstructure:"timeout_sec"  yaml:"timeout_sec"`
	Retry       RetryConfig `mapstructure:"retry"        yaml:"retry"`
}

// RetryConfig holds the fetcher retry policy.
type RetryConfig struct {
	MaxAttempts  int `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialMilli int `mapstructure:"initial_ms"   yaml:"initial_ms"`
	CapSec       int `mapstructure:"cap_sec"      yaml:"cap_sec"`
}

// ScanConfig controls which filings are discovered and kept.
type ScanConfig struct {
	StartFilingDate string   `mapstructure:"start_filing_date" yaml:"start_filing_date"` // YYYY-MM-DD
	MinReportDate   string   `mapstructure:"min_report_date"   yaml:"min_report_date"`   // YYYY-MM-DD
	Forms           []string `mapstructure:"forms"             yaml:"forms"`
}

// GroupConfig describes one manager complex.
type GroupConfig struct {
	Name     string   `mapstructure:"name"      yaml:"name"`
	SeedCIKs []string `mapstructure:"seed_ciks" yaml:"seed_ciks"`
	Keywords []string `mapstructure:"keywords"  yaml:"keywords"`
}

// AutoCIKConfig controls discovery of additional filer CIKs by name.
type AutoCIKConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Max     int  `mapstructure:"max"     yaml:"max"`
}

// TickersConfig points at the operator-supplied ticker→CUSIP list.
type TickersConfig struct {
	CSVPath string `mapstructure:"csv_path" yaml:"csv_path"`
}

// OutputConfig holds where results are written.
type OutputConfig struct {
	Dir    string `mapstructure:"dir"     yaml:"dir"`
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
	Mode   string `mapstructure:"mode"    yaml:"mode"` // "raw" or "panel"
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.holdings13f/config.yaml (home directory)
//  3. /etc/holdings13f/config.yaml (system)
//
// Environment variables override config file values.
// Format: HOLDINGS13F_<SECTION>_<KEY>, e.g., HOLDINGS13F_SEC_USER_AGENT
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".holdings13f"))
	v.AddConfigPath("/etc/holdings13f")

	v.SetEnvPrefix("HOLDINGS13F")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "error reading config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "error unmarshaling config")
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("HOLDINGS13F")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, eris.Wrapf(err, "error reading config file %s", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "error unmarshaling config")
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("sec.archives_url", "https://www.sec.gov/Archives/")
	v.SetDefault("sec.data_url", "https://data.sec.gov/")
	v.SetDefault("sec.files_url", "https://www.sec.gov/files/")
	v.SetDefault("sec.browse_url", "https://www.sec.gov/cgi-bin/browse-edgar")
	v.SetDefault("sec.sleep_ms", 250)
	v.SetDefault("sec.timeout_sec", 90)
	v.SetDefault("sec.retry.max_attempts", 12)
	v.SetDefault("sec.retry.initial_ms", 1000)
	v.SetDefault("sec.retry.cap_sec", 90)

	v.SetDefault("scan.start_filing_date", "2009-01-01")
	v.SetDefault("scan.min_report_date", "2010-03-31")
	v.SetDefault("scan.forms", []string{"13F-HR", "13F-HR/A"})

	groups := make([]map[string]any, 0, 3)
	for _, g := range DefaultGroups() {
		groups = append(groups, map[string]any{
			"name":      g.Name,
			"seed_ciks": g.SeedCIKs,
			"keywords":  g.Keywords,
		})
	}
	v.SetDefault("groups", groups)

	v.SetDefault("auto_cik.enabled", false)
	v.SetDefault("auto_cik.max", 350)

	v.SetDefault("tickers.csv_path", filepath.Join(homeDir(), "ticker_cusip.csv"))

	v.SetDefault("output.dir", homeDir())
	v.SetDefault("output.db_path", filepath.Join(homeDir(), "holdings13f.db"))
	v.SetDefault("output.mode", "panel")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// DefaultGroups returns the built-in manager complexes.
func DefaultGroups() []GroupConfig {
	return []GroupConfig{
		{
			Name:     "BlackRock",
			SeedCIKs: []string{"0001364742", "0000913414"},
			Keywords: []string{"blackrock"},
		},
		{
			Name:     "Vanguard",
			SeedCIKs: []string{"0000102909", "0000862084"},
			Keywords: []string{"vanguard"},
		},
		{
			Name:     "StateStreet",
			SeedCIKs: []string{"0000093751", "0001257442", "0001324601", "0001324602"},
			Keywords: []string{"state street", "ssga", "state street global advisors"},
		},
	}
}

// overrideFromEnv explicitly reads keys that are commonly kept out of files.
func overrideFromEnv(cfg *Config) {
	if ua := os.Getenv("HOLDINGS13F_SEC_USER_AGENT"); ua != "" {
		cfg.SEC.UserAgent = ua
	}
	if ua := os.Getenv("SEC_USER_AGENT"); ua != "" && cfg.SEC.UserAgent == "" {
		cfg.SEC.UserAgent = ua
	}
}

// Validate checks values that would make a run meaningless.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SEC.UserAgent) == "" {
		return ErrNoUserAgent
	}
	if len(c.Groups) == 0 {
		return eris.New("no manager groups configured")
	}
	seen := make(map[string]bool, len(c.Groups))
	for _, g := range c.Groups {
		if strings.TrimSpace(g.Name) == "" {
			return eris.New("manager group with empty name")
		}
		if seen[g.Name] {
			return eris.Errorf("duplicate manager group %q", g.Name)
		}
		seen[g.Name] = true
		if len(g.SeedCIKs) == 0 {
			return eris.Errorf("manager group %q has no seed CIKs", g.Name)
		}
	}
	if _, err := c.StartFilingDate(); err != nil {
		return err
	}
	if _, err := c.MinReportDate(); err != nil {
		return err
	}
	return nil
}

// StartFilingDate parses scan.start_filing_date.
func (c *Config) StartFilingDate() (time.Time, error) {
	return parseDay("scan.start_filing_date", c.Scan.StartFilingDate)
}

// MinReportDate parses scan.min_report_date.
func (c *Config) MinReportDate() (time.Time, error) {
	return parseDay("scan.min_report_date", c.Scan.MinReportDate)
}

// GroupNames returns configured group names in sorted order.
func (c *Config) GroupNames() []string {
	names := make([]string, 0, len(c.Groups))
	for _, g := range c.Groups {
		names = append(names, g.Name)
	}
	sort.Strings(names)
	return names
}

// Sleep returns the courtesy delay between requests.
func (c *Config) Sleep() time.Duration {
	return time.Duration(c.SEC.SleepMillis) * time.Millisecond
}

func parseDay(key, s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "%s: invalid date %q", key, s)
	}
	return t, nil
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
