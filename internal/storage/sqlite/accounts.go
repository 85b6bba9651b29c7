package sqlite

import (
	"context"
	"fmt"

	"github.com/fintally/tally/internal/models"
)

// ListAccounts returns all accounts, checking first then savings by name.
func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, type, is_default, starting_balance, balance
		 FROM accounts ORDER BY type ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var (
			a        models.Account
			acctType string
			starting string
			balance  string
		)
		if err := rows.Scan(&a.Name, &acctType, &a.Default, &starting, &balance); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.Type = models.AccountType(acctType)
		if a.StartingBalance, err = decFromDB(starting); err != nil {
			return nil, err
		}
		if a.Balance, err = decFromDB(balance); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

// SaveAccounts upserts accounts with their current balances in one
// transaction.
func (s *SQLiteStore) SaveAccounts(ctx context.Context, accounts []models.Account) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range accounts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (name, type, is_default, starting_balance, balance)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(name) DO UPDATE SET
			    type = excluded.type,
			    is_default = excluded.is_default,
			    starting_balance = excluded.starting_balance,
			    balance = excluded.balance`,
			a.Name, string(a.Type), a.Default, decToDB(a.StartingBalance), decToDB(a.Balance))
		if err != nil {
			return fmt.Errorf("failed to upsert account %s: %w", a.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
