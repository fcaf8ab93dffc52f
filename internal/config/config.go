// Package config loads deployment configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config carries deployment settings plus the user-set audit defaults.
type Config struct {
	// GCSBucket is the bucket statements are archived to. Empty disables
	// archival.
	GCSBucket string
	// BigQuery publishing target. Empty project disables publishing.
	BQProject string
	BQDataset string

	// GeminiModel overrides the extraction model name.
	GeminiModel string

	// SessionDBPath is the sqlite file sessions persist to.
	SessionDBPath string

	// Audit defaults, overridable per session.
	InvoiceStart  int
	ExpenseStart  int
	InvoicePrefix string
	OpeningBank   decimal.Decimal
	OpeningCash   decimal.Decimal
}

// Load reads configuration from the environment. A missing .env file is
// fine; explicit env vars win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		GCSBucket:     os.Getenv("GCS_BUCKET"),
		BQProject:     os.Getenv("BQ_PROJECT"),
		BQDataset:     getenvDefault("BQ_DATASET", "audit"),
		GeminiModel:   os.Getenv("GEMINI_MODEL"),
		SessionDBPath: getenvDefault("SESSION_DB_PATH", "sessions.db"),
		InvoicePrefix: getenvDefault("INVOICE_PREFIX", "INV-"),
	}

	var err error
	if cfg.InvoiceStart, err = getenvInt("INVOICE_START", 1001); err != nil {
		return nil, err
	}
	if cfg.ExpenseStart, err = getenvInt("EXPENSE_START", 2001); err != nil {
		return nil, err
	}
	if cfg.OpeningBank, err = getenvDecimal("OPENING_BANK"); err != nil {
		return nil, err
	}
	if cfg.OpeningCash, err = getenvDecimal("OPENING_CASH"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer: %w", key, v, err)
	}
	return n, nil
}

// getenvDecimal defaults missing opening balances to zero rather than
// failing; an unparseable value is still an error.
func getenvDecimal(key string) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: %s=%q is not a number: %w", key, v, err)
	}
	return d, nil
}
