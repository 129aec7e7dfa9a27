package config

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STONECREST_DATA_DIR", dir)
	for _, key := range []string{"PORT", "COPY_BUY_PERCENT", "COPY_MIN_CASH", "LEDGER_STRICT_CASH_CHECK", "BACKUP_S3_BUCKET"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "stonecrest.db"), cfg.DatabasePath())
	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.Ledger.InitialCash.Equal(decimal.NewFromInt(1_000_000)))
	assert.True(t, cfg.Copy.BuyPercent.Equal(decimal.RequireFromString("0.2")))
	assert.True(t, cfg.Copy.MinCash.Equal(decimal.NewFromInt(200)))
	assert.True(t, cfg.Ledger.DriftBand.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 3, cfg.Ledger.ConflictRetries)
	assert.False(t, cfg.Ledger.StrictCashCheck)
	assert.False(t, cfg.Backup.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STONECREST_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("COPY_BUY_PERCENT", "0.5")
	t.Setenv("LEDGER_STRICT_CASH_CHECK", "true")
	t.Setenv("BACKUP_S3_BUCKET", "ledger-backups")
	t.Setenv("BACKUP_S3_ACCESS_KEY", "key")
	t.Setenv("BACKUP_S3_SECRET_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.Copy.BuyPercent.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, cfg.Ledger.StrictCashCheck)
	assert.True(t, cfg.Backup.Enabled())
}

func TestLoad_RejectsInvalidBuyPercent(t *testing.T) {
	t.Setenv("STONECREST_DATA_DIR", t.TempDir())
	t.Setenv("COPY_BUY_PERCENT", "1.5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY_BUY_PERCENT")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port: 8080,
			Ledger: LedgerConfig{
				InitialCash: decimal.NewFromInt(1000),
				DriftBand:   decimal.NewFromInt(1),
			},
			Copy: CopyConfig{
				BuyPercent: decimal.RequireFromString("0.2"),
				MinCash:    decimal.NewFromInt(200),
			},
		}
	}

	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"port out of range", func(c *Config) { c.Port = 70000 }, true},
		{"negative min cash", func(c *Config) { c.Copy.MinCash = decimal.NewFromInt(-1) }, true},
		{"zero buy percent", func(c *Config) { c.Copy.BuyPercent = decimal.Zero }, true},
		{"negative retries", func(c *Config) { c.Ledger.ConflictRetries = -1 }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
