package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fintally/tally/internal/models"
	"github.com/fintally/tally/internal/storage"
)

// UpsertPartnerExpense mirrors one partner-ledger entry.
func (s *SQLiteStore) UpsertPartnerExpense(ctx context.Context, exp *models.PartnerExpense) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO partner_expenses
		    (id, transaction_balance, cost, description, date, deleted, payment, record_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		    transaction_balance = excluded.transaction_balance,
		    cost = excluded.cost,
		    description = excluded.description,
		    date = excluded.date,
		    deleted = excluded.deleted,
		    payment = excluded.payment,
		    record_id = COALESCE(excluded.record_id, partner_expenses.record_id),
		    updated_at = excluded.updated_at`,
		exp.ID, decToDB(exp.TransactionBalance), decToDB(exp.Cost), exp.Description,
		timeToDB(exp.Date), exp.Deleted, exp.Payment, exp.RecordID, timeToDB(exp.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert partner expense %d: %w", exp.ID, err)
	}
	return nil
}

const partnerExpenseColumns = `id, transaction_balance, cost, description, date,
	deleted, payment, record_id, updated_at`

// GetPartnerExpense retrieves a mirrored partner expense.
func (s *SQLiteStore) GetPartnerExpense(ctx context.Context, id int64) (*models.PartnerExpense, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+partnerExpenseColumns+" FROM partner_expenses WHERE id = ?", id)
	exp, err := scanPartnerExpense(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return exp, err
}

// ListUnlinkedPartnerExpenses returns live, non-payment expenses not yet
// linked to a record, oldest modification first. These are materializations
// an earlier pass mirrored but did not finish; they sit past the watermark
// and would never be retried without this scan.
func (s *SQLiteStore) ListUnlinkedPartnerExpenses(ctx context.Context) ([]models.PartnerExpense, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+partnerExpenseColumns+` FROM partner_expenses
		 WHERE record_id IS NULL AND deleted = 0 AND payment = 0
		 ORDER BY updated_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unlinked partner expenses: %w", err)
	}
	defer rows.Close()

	var expenses []models.PartnerExpense
	for rows.Next() {
		exp, err := scanPartnerExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate partner expenses: %w", err)
	}
	return expenses, nil
}

func scanPartnerExpense(row rowScanner) (*models.PartnerExpense, error) {
	var (
		exp      models.PartnerExpense
		balance  string
		cost     string
		date     int64
		recordID sql.NullString
		updated  int64
	)
	err := row.Scan(&exp.ID, &balance, &cost, &exp.Description, &date, &exp.Deleted,
		&exp.Payment, &recordID, &updated)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan partner expense: %w", err)
	}

	if exp.TransactionBalance, err = decFromDB(balance); err != nil {
		return nil, err
	}
	if exp.Cost, err = decFromDB(cost); err != nil {
		return nil, err
	}
	exp.Date = timeFromDB(date)
	exp.UpdatedAt = timeFromDB(updated)
	if recordID.Valid {
		exp.RecordID = &recordID.String
	}
	return &exp, nil
}

// PartnerWatermark returns the newest partner-side modification time seen.
func (s *SQLiteStore) PartnerWatermark(ctx context.Context) (time.Time, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(updated_at) FROM partner_expenses").Scan(&max)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get partner watermark: %w", err)
	}
	if !max.Valid {
		return time.Time{}, nil
	}
	return timeFromDB(max.Int64), nil
}
