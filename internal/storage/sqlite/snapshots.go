package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintally/tally/internal/models"
	"github.com/fintally/tally/internal/storage"
)

const monthLayout = "2006-01"

// SaveSnapshot persists one dashboard snapshot. Snapshots are append-only;
// LatestSnapshot reads the newest.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *models.MonthlySnapshot) error {
	balances, err := json.Marshal(balancesToStrings(snap.AccountBalances))
	if err != nil {
		return fmt.Errorf("failed to encode account balances: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots
		    (month, total_spend, monthly_income, monthly_housing, monthly_savings,
		     monthly_adjustments, budget, budget_remaining, percent_through_month,
		     projected_savings, partner_balance, account_balances, artifact_ref, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Month.Format(monthLayout), decToDB(snap.TotalSpend), decToDB(snap.MonthlyIncome),
		decToDB(snap.MonthlyHousing), decToDB(snap.MonthlySavings), decToDB(snap.MonthlyAdjustments),
		decToDB(snap.Budget), decToDB(snap.BudgetRemaining), snap.PercentThroughMonth,
		decToDB(snap.ProjectedSavings), decToDB(snap.PartnerBalance), string(balances),
		snap.ArtifactRef, timeToDB(snap.GeneratedAt))
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recently generated snapshot.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (*models.MonthlySnapshot, error) {
	var (
		snap        models.MonthlySnapshot
		month       string
		spend       string
		income      string
		housing     string
		savings     string
		adjustments string
		budget      string
		remaining   string
		projected   string
		partner     string
		balances    string
		generatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT month, total_spend, monthly_income, monthly_housing, monthly_savings,
		        monthly_adjustments, budget, budget_remaining, percent_through_month,
		        projected_savings, partner_balance, account_balances, artifact_ref, generated_at
		 FROM snapshots ORDER BY generated_at DESC, id DESC LIMIT 1`,
	).Scan(&month, &spend, &income, &housing, &savings, &adjustments, &budget,
		&remaining, &snap.PercentThroughMonth, &projected, &partner, &balances,
		&snap.ArtifactRef, &generatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	if snap.Month, err = time.Parse(monthLayout, month); err != nil {
		return nil, fmt.Errorf("bad stored month %q: %w", month, err)
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&snap.TotalSpend, spend}, {&snap.MonthlyIncome, income},
		{&snap.MonthlyHousing, housing}, {&snap.MonthlySavings, savings},
		{&snap.MonthlyAdjustments, adjustments}, {&snap.Budget, budget},
		{&snap.BudgetRemaining, remaining}, {&snap.ProjectedSavings, projected},
		{&snap.PartnerBalance, partner},
	} {
		if *f.dst, err = decFromDB(f.src); err != nil {
			return nil, err
		}
	}

	var raw map[string]string
	if err := json.Unmarshal([]byte(balances), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode account balances: %w", err)
	}
	snap.AccountBalances = make(map[string]decimal.Decimal, len(raw))
	for name, v := range raw {
		if snap.AccountBalances[name], err = decFromDB(v); err != nil {
			return nil, err
		}
	}
	snap.GeneratedAt = timeFromDB(generatedAt)
	return &snap, nil
}

func balancesToStrings(balances map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(balances))
	for name, d := range balances {
		out[name] = d.String()
	}
	return out
}
