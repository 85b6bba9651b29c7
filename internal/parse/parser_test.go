package parse

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fintally/tally/internal/models"
)

func testAccounts() []models.Account {
	return []models.Account{
		{Name: "Checking", Type: models.AccountTypeChecking},
		{Name: "Miscellaneous", Type: models.AccountTypeSavings, Default: true},
		{Name: "Home", Type: models.AccountTypeSavings},
		{Name: "Shared", Type: models.AccountTypeSavings},
	}
}

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := New(testAccounts())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestParse_CategoryRouting(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		name     string
		text     string
		category models.Category
		amount   string
		target   string
		effects  map[string]string // account -> delta
		spend    string
	}{
		{
			name:     "expense hits checking",
			text:     "Safeway - Groceries",
			category: models.CategoryExpense,
			amount:   "42.50",
			target:   "Checking",
			effects:  map[string]string{"Checking": "-42.50"},
			spend:    "42.50",
		},
		{
			name:     "rent hits checking",
			text:     "Landlord - March Rent",
			category: models.CategoryRent,
			amount:   "1800",
			target:   "Checking",
			effects:  map[string]string{"Checking": "-1800"},
			spend:    "1800",
		},
		{
			name:     "mortgage hits checking",
			text:     "Bank - Mortgage Payment",
			category: models.CategoryMortgage,
			amount:   "2100",
			target:   "Checking",
			effects:  map[string]string{"Checking": "-2100"},
			spend:    "2100",
		},
		{
			name:     "savings moves checking to named account",
			text:     "Ally - January Savings - Home",
			category: models.CategorySavings,
			amount:   "100.00",
			target:   "Home",
			effects:  map[string]string{"Checking": "-100.00", "Home": "100.00"},
			spend:    "0",
		},
		{
			name:     "savings house alias routes to home",
			text:     "Ally - Transfer - House",
			category: models.CategorySavings,
			amount:   "50",
			target:   "Home",
			effects:  map[string]string{"Checking": "-50", "Home": "50"},
			spend:    "0",
		},
		{
			name:     "savings share alias routes to shared",
			text:     "Ally - Transfer - Share",
			category: models.CategorySavings,
			amount:   "25",
			target:   "Shared",
			effects:  map[string]string{"Checking": "-25", "Shared": "25"},
			spend:    "0",
		},
		{
			name:     "savings without third component routes to default",
			text:     "Ally - January Savings",
			category: models.CategorySavings,
			amount:   "100.00",
			target:   "Miscellaneous",
			effects:  map[string]string{"Checking": "-100.00", "Miscellaneous": "100.00"},
			spend:    "0",
		},
		{
			name:     "negative savings reverses direction",
			text:     "Ally - Pulling Back - Home",
			category: models.CategorySavings,
			amount:   "-80",
			target:   "Home",
			effects:  map[string]string{"Checking": "80", "Home": "-80"},
			spend:    "0",
		},
		{
			name:     "savings spend leaves checking untouched",
			text:     "Contractor - Deck Repair - Home",
			category: models.CategorySavingsSpend,
			amount:   "300",
			target:   "Home",
			effects:  map[string]string{"Home": "-300"},
			spend:    "300",
		},
		{
			name:     "savings spend naming checking overridden to default",
			text:     "Contractor - Oops - Checking",
			category: models.CategorySavingsSpend,
			amount:   "60",
			target:   "Miscellaneous",
			effects:  map[string]string{"Miscellaneous": "-60"},
			spend:    "60",
		},
		{
			name:     "income defaults to checking",
			text:     "Uncle Joey - Gift",
			category: models.CategoryIncome,
			amount:   "-50.00",
			target:   "Checking",
			effects:  map[string]string{"Checking": "50.00"},
			spend:    "0",
		},
		{
			name:     "interest credits named account",
			text:     "Ally - Interest - Home",
			category: models.CategoryInterest,
			amount:   "-3.21",
			target:   "Home",
			effects:  map[string]string{"Home": "3.21"},
			spend:    "0",
		},
		{
			name:     "adjustment on named account excluded from spend",
			text:     "Audit - Correction - Shared",
			category: models.CategoryAdjustment,
			amount:   "12.00",
			target:   "Shared",
			effects:  map[string]string{"Shared": "-12.00"},
			spend:    "0",
		},
		{
			name:     "partner record behaves like expense",
			text:     "Splitwise - Dinner",
			category: models.CategorySplitwise,
			amount:   "17.25",
			target:   "Checking",
			effects:  map[string]string{"Checking": "-17.25"},
			spend:    "17.25",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, err := p.Parse(tt.text, tt.category, dec(tt.amount))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if intent.Target != tt.target {
				t.Errorf("target = %q, want %q", intent.Target, tt.target)
			}
			if len(intent.Effects) != len(tt.effects) {
				t.Fatalf("got %d effects, want %d", len(intent.Effects), len(tt.effects))
			}
			for _, eff := range intent.Effects {
				want, ok := tt.effects[eff.Account]
				if !ok {
					t.Errorf("unexpected effect on %q", eff.Account)
					continue
				}
				if !eff.Delta.Equal(dec(want)) {
					t.Errorf("delta on %q = %s, want %s", eff.Account, eff.Delta, want)
				}
			}
			if !intent.Spend.Equal(dec(tt.spend)) {
				t.Errorf("spend = %s, want %s", intent.Spend, tt.spend)
			}
		})
	}
}

func TestParse_FailsClosed(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		name     string
		text     string
		category models.Category
	}{
		{"unknown savings target", "Ally - Transfer - Yacht Fund", models.CategorySavings},
		{"savings targeting checking", "Ally - Transfer - Checking", models.CategorySavings},
		{"unknown income target", "Employer - Salary - Offshore", models.CategoryIncome},
		{"unknown adjustment target", "Audit - Fix - Nowhere", models.CategoryAdjustment},
		{"too many components", "A - B - C - D", models.CategoryExpense},
		{"empty vendor", " - Description", models.CategoryExpense},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.text, tt.category, dec("10"))
			if !errors.Is(err, ErrUnparseable) {
				t.Errorf("err = %v, want ErrUnparseable", err)
			}
		})
	}
}

func TestParse_VendorAndDescription(t *testing.T) {
	p := newTestParser(t)

	intent, err := p.Parse("Safeway - Groceries", models.CategoryExpense, dec("10"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if intent.Vendor != "Safeway" {
		t.Errorf("vendor = %q, want Safeway", intent.Vendor)
	}
	if intent.Description != "Groceries" {
		t.Errorf("description = %q, want Groceries", intent.Description)
	}
}

func TestNew_RequiresCheckingAndDefault(t *testing.T) {
	if _, err := New([]models.Account{{Name: "Home", Type: models.AccountTypeSavings}}); err == nil {
		t.Error("expected error without checking account")
	}
	if _, err := New([]models.Account{{Name: "Checking", Type: models.AccountTypeChecking}}); err == nil {
		t.Error("expected error without default savings account")
	}
}

func TestPartnerDescription(t *testing.T) {
	if got := PartnerDescription("Dinner", "Splitwise"); got != "Splitwise - Dinner" {
		t.Errorf("got %q", got)
	}
	if got := PartnerDescription("Alice - Dinner", "Splitwise"); got != "Alice - Dinner" {
		t.Errorf("got %q", got)
	}
}
