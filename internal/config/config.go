// Package config loads service configuration from a .env file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is everything tallyd needs to run.
type Config struct {
	// DBPath is where the sqlite mirror lives.
	DBPath string

	// ListenAddr is the operational HTTP listen address.
	ListenAddr string

	// TableBaseURL and TableToken reach the external record table.
	TableBaseURL string
	TableToken   string

	// PartnerBaseURL, PartnerToken and PartnerFriendID reach the
	// expense-sharing service.
	PartnerBaseURL  string
	PartnerToken    string
	PartnerFriendID int64

	// SyncInterval is the scheduler cadence; HTTPTimeout bounds every
	// source call; LeaseTTL is how long a pass may hold the lease.
	SyncInterval time.Duration
	HTTPTimeout  time.Duration
	LeaseTTL     time.Duration

	// Workers bounds concurrent record mutations within a pass.
	Workers int

	// MonthlyBudget feeds the dashboard snapshot.
	MonthlyBudget decimal.Decimal

	// DefaultVendor prefixes partner descriptions lacking a vendor.
	DefaultVendor string

	// ArtifactDir and SinkURL configure snapshot publication; empty
	// values disable the respective step.
	ArtifactDir string
	SinkURL     string

	// OpsTokenHash is the bcrypt hash of the operator token. JWTSecret
	// signs dashboard tokens valid for JWTDuration.
	OpsTokenHash string
	JWTSecret    string
	JWTDuration  time.Duration
}

// Load reads .env (if present) then the environment. Missing required
// values fail loading rather than surfacing later as broken source calls.
func Load() (*Config, error) {
	// A missing .env is fine; the environment may carry everything.
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:         getEnv("DB_PATH", "./data/tally.db"),
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
		TableBaseURL:   os.Getenv("TABLE_BASE_URL"),
		TableToken:     os.Getenv("TABLE_TOKEN"),
		PartnerBaseURL: os.Getenv("PARTNER_BASE_URL"),
		PartnerToken:   os.Getenv("PARTNER_TOKEN"),
		DefaultVendor:  getEnv("DEFAULT_VENDOR", "Splitwise"),
		ArtifactDir:    os.Getenv("ARTIFACT_DIR"),
		SinkURL:        os.Getenv("SINK_URL"),
		OpsTokenHash:   os.Getenv("OPS_TOKEN_HASH"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
	}

	var err error
	if cfg.PartnerFriendID, err = getInt64("PARTNER_FRIEND_ID", 0); err != nil {
		return nil, err
	}
	if cfg.SyncInterval, err = getDuration("SYNC_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getDuration("HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.LeaseTTL, err = getDuration("LEASE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getInt("SYNC_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.MonthlyBudget, err = getDecimal("MONTHLY_BUDGET", "3000"); err != nil {
		return nil, err
	}
	if cfg.JWTDuration, err = getDuration("JWT_DURATION", 24*time.Hour); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	for _, field := range []struct{ name, value string }{
		{"TABLE_BASE_URL", c.TableBaseURL},
		{"TABLE_TOKEN", c.TableToken},
		{"PARTNER_BASE_URL", c.PartnerBaseURL},
		{"PARTNER_TOKEN", c.PartnerToken},
		{"OPS_TOKEN_HASH", c.OpsTokenHash},
		{"JWT_SECRET", c.JWTSecret},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %v", missing)
	}
	if c.PartnerFriendID == 0 {
		return errors.New("missing required config: PARTNER_FRIEND_ID")
	}
	if c.SyncInterval < time.Second {
		return fmt.Errorf("SYNC_INTERVAL %s too short", c.SyncInterval)
	}
	if !c.MonthlyBudget.IsPositive() {
		return fmt.Errorf("MONTHLY_BUDGET %s must be positive", c.MonthlyBudget)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getDecimal(key, fallback string) (decimal.Decimal, error) {
	value := os.Getenv(key)
	if value == "" {
		value = fallback
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
