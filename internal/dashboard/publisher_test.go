package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintally/tally/internal/ledger"
	"github.com/fintally/tally/internal/models"
	"github.com/fintally/tally/internal/parse"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testAccounts() []models.Account {
	return []models.Account{
		{Name: "Checking", Type: models.AccountTypeChecking, StartingBalance: dec("500")},
		{Name: "Miscellaneous", Type: models.AccountTypeSavings, Default: true, StartingBalance: dec("200")},
	}
}

// buildLedger applies a fixed August scenario: 120 of expenses, 1800 rent,
// -5000 income, 100 moved to savings.
func buildLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	accounts := testAccounts()
	parser, err := parse.New(accounts)
	if err != nil {
		t.Fatalf("Failed to build parser: %v", err)
	}
	led, err := ledger.New(accounts)
	if err != nil {
		t.Fatalf("Failed to build ledger: %v", err)
	}

	august := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	apply := func(id, text string, category models.Category, amount decimal.Decimal) {
		intent, err := parser.Parse(text, category, amount)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", text, err)
		}
		if _, err := led.Apply(id, august, category, intent, amount); err != nil {
			t.Fatalf("Apply(%s) failed: %v", id, err)
		}
	}
	apply("rec-1", "Safeway - Groceries", models.CategoryExpense, dec("120"))
	apply("rec-2", "Landlord - August", models.CategoryRent, dec("1800"))
	apply("rec-3", "Employer - Salary", models.CategoryIncome, dec("-5000"))
	apply("rec-4", "Ally - August Savings", models.CategorySavings, dec("100"))
	return led
}

func TestCompute(t *testing.T) {
	led := buildLedger(t)
	p := New(Config{Budget: dec("3000")})

	month := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	// August 16 00:00 is halfway through a 31-day month... not exactly; use
	// a point computed from the month length so the assertion is exact.
	now := month.Add(31 * 24 * time.Hour / 2)
	partnerBalance := dec("75.50")

	snap := p.Compute(led, month, partnerBalance, now)

	if !snap.TotalSpend.Equal(dec("1920")) {
		t.Errorf("TotalSpend = %s, want 1920", snap.TotalSpend)
	}
	if !snap.MonthlyIncome.Equal(dec("5000")) {
		t.Errorf("MonthlyIncome = %s, want 5000", snap.MonthlyIncome)
	}
	if !snap.MonthlyHousing.Equal(dec("1800")) {
		t.Errorf("MonthlyHousing = %s, want 1800", snap.MonthlyHousing)
	}
	if !snap.MonthlySavings.Equal(dec("100")) {
		t.Errorf("MonthlySavings = %s, want 100", snap.MonthlySavings)
	}
	if !snap.BudgetRemaining.Equal(dec("1080")) {
		t.Errorf("BudgetRemaining = %s, want 1080", snap.BudgetRemaining)
	}
	if !snap.ProjectedSavings.Equal(dec("200")) {
		t.Errorf("ProjectedSavings = %s, want 200 (5000 - 1800 - 3000)", snap.ProjectedSavings)
	}
	if snap.PercentThroughMonth != 0.5 {
		t.Errorf("PercentThroughMonth = %f, want 0.5", snap.PercentThroughMonth)
	}
	if !snap.PartnerBalance.Equal(partnerBalance) {
		t.Errorf("PartnerBalance = %s, want %s", snap.PartnerBalance, partnerBalance)
	}
	// Checking: 500 - 120 - 1800 + 5000 - 100 = 3480; savings: 200 + 100.
	if !snap.AccountBalances["Checking"].Equal(dec("3480")) {
		t.Errorf("Checking balance = %s, want 3480", snap.AccountBalances["Checking"])
	}
	if !snap.AccountBalances["Miscellaneous"].Equal(dec("300")) {
		t.Errorf("Miscellaneous balance = %s, want 300", snap.AccountBalances["Miscellaneous"])
	}
	if snap.ArtifactRef != "" {
		t.Errorf("ArtifactRef = %q, want empty without an artifact dir", snap.ArtifactRef)
	}

	again := p.Compute(led, month, partnerBalance, now)
	if !again.TotalSpend.Equal(snap.TotalSpend) || again.PercentThroughMonth != snap.PercentThroughMonth {
		t.Error("Compute is not deterministic")
	}
}

func TestPercentThroughMonth(t *testing.T) {
	month := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if got := percentThroughMonth(month, month.AddDate(0, 0, -3)); got != 0 {
		t.Errorf("before month start = %f, want 0", got)
	}
	if got := percentThroughMonth(month, month.AddDate(0, 2, 0)); got != 1 {
		t.Errorf("after month end = %f, want 1", got)
	}
}

func TestPublish(t *testing.T) {
	led := buildLedger(t)

	t.Run("posts snapshot and renders artifact", func(t *testing.T) {
		var payload sinkPayload
		var posts int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			posts++
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("Failed to decode payload: %v", err)
			}
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		dir := t.TempDir()
		p := New(Config{Budget: dec("3000"), ArtifactDir: dir, SinkURL: server.URL})

		month := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		snap := p.Compute(led, month, dec("75.50"), month.AddDate(0, 0, 15))
		p.Publish(context.Background(), snap)

		if posts != 1 {
			t.Fatalf("sink received %d posts, want 1", posts)
		}
		if payload.Month != "2026-08" {
			t.Errorf("payload month = %q, want 2026-08", payload.Month)
		}
		if !payload.TotalSpend.Equal(dec("1920")) {
			t.Errorf("payload spend = %s, want 1920", payload.TotalSpend)
		}

		want := filepath.Join(dir, "2026-08.svg")
		if snap.ArtifactRef != want {
			t.Errorf("ArtifactRef = %q, want %q", snap.ArtifactRef, want)
		}
		data, err := os.ReadFile(want)
		if err != nil {
			t.Fatalf("Failed to read artifact: %v", err)
		}
		svg := string(data)
		if !strings.HasPrefix(svg, "<svg") || !strings.Contains(svg, "Checking") {
			t.Errorf("artifact does not look like a balance chart: %.80s", svg)
		}
	})

	t.Run("sink failure does not propagate", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		p := New(Config{Budget: dec("3000"), SinkURL: server.URL})
		month := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		snap := p.Compute(led, month, decimal.Zero, month)
		p.Publish(context.Background(), snap) // must not panic or abort
	})
}
