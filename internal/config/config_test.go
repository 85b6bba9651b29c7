package config

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TABLE_BASE_URL", "https://table.example.com")
	t.Setenv("TABLE_TOKEN", "table-token")
	t.Setenv("PARTNER_BASE_URL", "https://partner.example.com")
	t.Setenv("PARTNER_TOKEN", "partner-token")
	t.Setenv("PARTNER_FRIEND_ID", "42")
	t.Setenv("OPS_TOKEN_HASH", "$2a$10$abcdefghijklmnopqrstuv")
	t.Setenv("JWT_SECRET", "test-secret-key-32-bytes-long!!!")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SyncInterval != 5*time.Minute {
		t.Errorf("SyncInterval = %s, want 5m", cfg.SyncInterval)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if !cfg.MonthlyBudget.Equal(mustDec("3000")) {
		t.Errorf("MonthlyBudget = %s, want 3000", cfg.MonthlyBudget)
	}
	if cfg.PartnerFriendID != 42 {
		t.Errorf("PartnerFriendID = %d, want 42", cfg.PartnerFriendID)
	}
	if cfg.DefaultVendor != "Splitwise" {
		t.Errorf("DefaultVendor = %q", cfg.DefaultVendor)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SYNC_INTERVAL", "90s")
	t.Setenv("SYNC_WORKERS", "2")
	t.Setenv("MONTHLY_BUDGET", "2500.50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SyncInterval != 90*time.Second {
		t.Errorf("SyncInterval = %s, want 90s", cfg.SyncInterval)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Workers)
	}
	if !cfg.MonthlyBudget.Equal(mustDec("2500.50")) {
		t.Errorf("MonthlyBudget = %s, want 2500.50", cfg.MonthlyBudget)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("TABLE_TOKEN", "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "TABLE_TOKEN") {
		t.Errorf("err = %v, want missing TABLE_TOKEN", err)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	setRequired(t)
	t.Setenv("SYNC_INTERVAL", "sometimes")

	if _, err := Load(); err == nil {
		t.Error("expected error for bad duration")
	}
}
