package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthlySnapshot is the derived dashboard aggregate for one calendar month.
// It is recomputed from the ledger at the end of every pass, never patched
// incrementally and never hand-edited.
type MonthlySnapshot struct {
	// Month identifies the calendar month, first day at midnight UTC.
	Month time.Time

	// TotalSpend is month-to-date spend across spend-counting categories.
	TotalSpend decimal.Decimal

	// MonthlyIncome is income received this month (positive).
	MonthlyIncome decimal.Decimal

	// MonthlyHousing is rent/mortgage paid this month.
	MonthlyHousing decimal.Decimal

	// MonthlySavings is the net amount moved into savings this month.
	MonthlySavings decimal.Decimal

	// MonthlyAdjustments is the net of adjustment records this month.
	MonthlyAdjustments decimal.Decimal

	// Budget is the configured monthly budget.
	Budget decimal.Decimal

	// BudgetRemaining is Budget minus TotalSpend.
	BudgetRemaining decimal.Decimal

	// PercentThroughMonth is how far the wall clock is through the month,
	// in [0, 1].
	PercentThroughMonth float64

	// ProjectedSavings estimates the amount left to move into savings at
	// month end, given remaining budget and expected income.
	ProjectedSavings decimal.Decimal

	// PartnerBalance is the running balance with the financial partner as
	// reported by the expense-sharing service.
	PartnerBalance decimal.Decimal

	// AccountBalances maps account name to current balance.
	AccountBalances map[string]decimal.Decimal

	// ArtifactRef points at the rendered visualization for this snapshot,
	// empty if rendering was skipped.
	ArtifactRef string

	// GeneratedAt is when the snapshot was computed.
	GeneratedAt time.Time
}
