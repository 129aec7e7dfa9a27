// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the ledger database and local backups (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	Ledger    LedgerConfig
	Copy      CopyConfig
	Schedules ScheduleConfig
	Backup    BackupConfig
}

// LedgerConfig controls the buy/sell primitives and portfolio defaults
type LedgerConfig struct {
	InitialCash     decimal.Decimal
	StrictCashCheck bool // Reject buys whose cost exceeds free cash, allocation or not
	ConflictRetries int  // Retries for a top-level operation that lost an optimistic-concurrency race
	DriftBand       decimal.Decimal
}

// CopyConfig holds copy-trading propagation parameters
type CopyConfig struct {
	BuyPercent decimal.Decimal // Fraction of relationship remaining cash per copied strategy
	MinCash    decimal.Decimal // Smallest slice worth copying
}

// ScheduleConfig holds cron expressions for the periodic jobs.
// An empty expression disables the job.
type ScheduleConfig struct {
	Rebalance   string
	Dividends   string
	Snapshots   string
	Backup      string
	Maintenance string
}

// BackupConfig holds the S3-compatible backup target
type BackupConfig struct {
	Endpoint      string
	Bucket        string
	AccessKey     string
	SecretKey     string
	Region        string
	RetentionDays int
}

// Enabled reports whether off-site backups are configured
func (b BackupConfig) Enabled() bool {
	return b.Bucket != "" && b.AccessKey != "" && b.SecretKey != ""
}

// DatabasePath returns the ledger database location
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "stonecrest.db")
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("STONECREST_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnvAsInt("PORT", 8080),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Ledger: LedgerConfig{
			InitialCash:     getEnvAsDecimal("INITIAL_CASH", decimal.NewFromInt(1_000_000)),
			StrictCashCheck: getEnvAsBool("LEDGER_STRICT_CASH_CHECK", false),
			ConflictRetries: getEnvAsInt("LEDGER_CONFLICT_RETRIES", 3),
			DriftBand:       getEnvAsDecimal("REBALANCE_DRIFT_BAND", decimal.NewFromInt(1)),
		},
		Copy: CopyConfig{
			BuyPercent: getEnvAsDecimal("COPY_BUY_PERCENT", decimal.RequireFromString("0.2")),
			MinCash:    getEnvAsDecimal("COPY_MIN_CASH", decimal.NewFromInt(200)),
		},
		Schedules: ScheduleConfig{
			Rebalance:   getEnv("SCHEDULE_REBALANCE", "0 2 * * *"),
			Dividends:   getEnv("SCHEDULE_DIVIDENDS", "0 6 1 * *"),
			Snapshots:   getEnv("SCHEDULE_SNAPSHOTS", "55 23 * * *"),
			Backup:      getEnv("SCHEDULE_BACKUP", "0 3 * * *"),
			Maintenance: getEnv("SCHEDULE_MAINTENANCE", "30 */6 * * *"),
		},
		Backup: BackupConfig{
			Endpoint:      getEnv("BACKUP_S3_ENDPOINT", ""),
			Bucket:        getEnv("BACKUP_S3_BUCKET", ""),
			AccessKey:     getEnv("BACKUP_S3_ACCESS_KEY", ""),
			SecretKey:     getEnv("BACKUP_S3_SECRET_KEY", ""),
			Region:        getEnv("BACKUP_S3_REGION", "auto"),
			RetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configured values are in range
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.Ledger.InitialCash.IsNegative() {
		return fmt.Errorf("INITIAL_CASH must not be negative")
	}
	if c.Ledger.ConflictRetries < 0 {
		return fmt.Errorf("LEDGER_CONFLICT_RETRIES must not be negative")
	}
	if c.Ledger.DriftBand.IsNegative() {
		return fmt.Errorf("REBALANCE_DRIFT_BAND must not be negative")
	}
	if !c.Copy.BuyPercent.IsPositive() || c.Copy.BuyPercent.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("COPY_BUY_PERCENT must be in (0, 1], got %s", c.Copy.BuyPercent)
	}
	if c.Copy.MinCash.IsNegative() {
		return fmt.Errorf("COPY_MIN_CASH must not be negative")
	}
	if c.Backup.RetentionDays < 0 {
		return fmt.Errorf("BACKUP_RETENTION_DAYS must not be negative")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if decVal, err := decimal.NewFromString(value); err == nil {
			return decVal
		}
	}
	return defaultValue
}
