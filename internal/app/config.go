package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/salesdash/salesdash/internal/goals/sheets"
	"github.com/salesdash/salesdash/internal/ledger"
	"github.com/salesdash/salesdash/internal/platform/cache"
	"github.com/salesdash/salesdash/internal/sales"
)

// Config holds runtime configuration for the application. Nothing is required:
// missing ledger credentials start the ledger offline and a missing sheet keeps
// goals in memory.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"60s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	OdooURL        string        `envconfig:"ODOO_URL"`
	OdooDB         string        `envconfig:"ODOO_DB"`
	OdooUser       string        `envconfig:"ODOO_USER"`
	OdooPassword   string        `envconfig:"ODOO_PASSWORD"`
	OdooRPCTimeout time.Duration `envconfig:"ODOO_RPC_TIMEOUT" default:"10s"`
	OdooLang       string        `envconfig:"ODOO_LANG" default:"es_PE"`

	GoogleSheetID     string `envconfig:"GOOGLE_SHEET_ID"`
	GoogleCredsFile   string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
	GoogleCredsInline string `envconfig:"GOOGLE_CREDENTIALS"`

	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"5m"`

	EligibilityPreset    string   `envconfig:"ELIGIBILITY_PRESET" default:"standard"`
	ExcludedCategoryIDs  []int64  `envconfig:"EXCLUDED_CATEGORY_IDS"`
	ExportJournalIDs     []int64  `envconfig:"EXPORT_JOURNAL_IDS"`
	AccountCodePrefix    string   `envconfig:"ACCOUNT_CODE_PREFIX"`
	ExcludedProductCodes []string `envconfig:"EXCLUDED_PRODUCT_CODES"`
	ExpiringRouteIDs     []int64  `envconfig:"EXPIRING_ROUTE_IDS" default:"18,19"`
	ExcludedLineNames    []string `envconfig:"EXCLUDED_LINE_NAMES" default:"LICITACION,NINGUNO,ECOMMERCE"`

	MaxLines         int    `envconfig:"MAX_LINES" default:"5000"`
	DefaultPerPage   int    `envconfig:"DEFAULT_PER_PAGE" default:"1000"`
	CurrencySymbol   string `envconfig:"CURRENCY_SYMBOL" default:"S/"`
	ExportsPerMinute int    `envconfig:"EXPORTS_PER_MINUTE" default:"10"`

	WarmupCron     string `envconfig:"WARMUP_CRON" default:"*/15 7-20 * * *"`
	WarmupTimezone string `envconfig:"WARMUP_TZ" default:"America/Lima"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if _, err := cfg.Eligibility(); err != nil {
		return nil, err
	}
	if cfg.MaxLines <= 0 || cfg.DefaultPerPage <= 0 {
		return nil, fmt.Errorf("app: MAX_LINES and DEFAULT_PER_PAGE must be positive")
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// Ledger returns the ERP connection settings.
func (c *Config) Ledger() ledger.Config {
	return ledger.Config{
		URL:      strings.TrimRight(strings.TrimSpace(c.OdooURL), "/"),
		Database: c.OdooDB,
		Username: c.OdooUser,
		Password: c.OdooPassword,
		Timeout:  c.OdooRPCTimeout,
		Lang:     c.OdooLang,
	}
}

// Eligibility resolves the configured sales predicate.
func (c *Config) Eligibility() (sales.Eligibility, error) {
	return sales.EligibilityPreset(c.EligibilityPreset, sales.EligibilityOptions{
		ExcludedCategoryIDs:  c.ExcludedCategoryIDs,
		ExportJournalIDs:     c.ExportJournalIDs,
		AccountCodePrefix:    c.AccountCodePrefix,
		ExcludedProductCodes: c.ExcludedProductCodes,
	})
}

// Redis returns the cache connection options. An empty address disables the cache.
func (c *Config) Redis() cache.Options {
	return cache.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// SheetsCredentials returns the service account used for the goal store.
func (c *Config) SheetsCredentials() sheets.Credentials {
	return sheets.Credentials{File: c.GoogleCredsFile, JSON: c.GoogleCredsInline}
}

// UseSheets reports whether goals are persisted to a spreadsheet.
func (c *Config) UseSheets() bool {
	return strings.TrimSpace(c.GoogleSheetID) != ""
}

// Location returns the warmup timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c.WarmupTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.WarmupTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
