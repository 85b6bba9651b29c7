package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fintally/tally/internal/models"
	"github.com/fintally/tally/internal/storage"
)

// ImportRecord upserts the record with imported=1 in one transaction. The
// check and set share the transaction so a crash cannot split the mirror row
// from its idempotency marker.
//
// A row the source re-submits after a human edit arrives with the imported
// marker already set here; the stored content hash detects that and the
// mirrored content is refreshed so the next ledger rebuild replays the new
// values. Either way the record is hydrated with the mirror's imported
// timestamp and partner link, so callers resume from mirror state.
func (s *SQLiteStore) ImportRecord(ctx context.Context, rec *models.Record) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		imported    bool
		storedHash  sql.NullString
		storedAt    sql.NullInt64
		storedSplit sql.NullInt64
	)
	err = tx.QueryRowContext(ctx,
		"SELECT imported, hash, imported_at, splitwise_id FROM records WHERE id = ?", rec.ID).
		Scan(&imported, &storedHash, &storedAt, &storedSplit)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("failed to check imported flag: %w", err)
	}

	hash := rec.Hash
	if hash == "" {
		hash = rec.ContentHash()
	}

	if imported {
		if storedHash.String != hash {
			_, err = tx.ExecContext(ctx,
				`UPDATE records SET
				    date = ?, amount = ?, txn = ?, category = ?,
				    splitwise = ?, hash = ?, updated_at = ?
				 WHERE id = ?`,
				rec.Date.Format(dateLayout), decToDB(rec.Amount), rec.Transaction,
				string(rec.Category), rec.Splitwise, hash, timeToDB(rec.UpdatedAt),
				rec.ID,
			)
			if err != nil {
				return false, fmt.Errorf("failed to refresh edited record: %w", err)
			}
			if err := tx.Commit(); err != nil {
				return false, fmt.Errorf("failed to commit transaction: %w", err)
			}
		}
		rec.Imported = true
		rec.Hash = hash
		if storedAt.Valid {
			t := timeFromDB(storedAt.Int64)
			rec.ImportedAt = &t
		}
		if rec.SplitwiseID == nil && storedSplit.Valid {
			rec.SplitwiseID = &storedSplit.Int64
		}
		return true, nil
	}

	importedAt := time.Now().UTC()
	if rec.ImportedAt != nil {
		importedAt = *rec.ImportedAt
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO records
		    (id, date, amount, txn, category, imported, imported_at, deleted, reversed,
		     splitwise, splitwise_id, partner_origin, hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, 0, 0, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		    date = excluded.date,
		    amount = excluded.amount,
		    txn = excluded.txn,
		    category = excluded.category,
		    imported = 1,
		    imported_at = excluded.imported_at,
		    splitwise = excluded.splitwise,
		    splitwise_id = COALESCE(excluded.splitwise_id, records.splitwise_id),
		    partner_origin = excluded.partner_origin,
		    hash = excluded.hash,
		    updated_at = excluded.updated_at`,
		rec.ID, rec.Date.Format(dateLayout), decToDB(rec.Amount), rec.Transaction,
		string(rec.Category), timeToDB(importedAt), rec.Splitwise, rec.SplitwiseID,
		rec.PartnerOrigin, hash, timeToDB(rec.CreatedAt), timeToDB(rec.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	rec.Imported = true
	rec.ImportedAt = &importedAt
	rec.Hash = hash
	return false, nil
}

const recordColumns = `id, date, amount, txn, category, imported, imported_at,
	deleted, reversed, splitwise, splitwise_id, partner_origin, hash, created_at, updated_at`

// GetRecord retrieves a mirrored record by external id.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE id = ?", id)
	return scanRecord(row)
}

// GetRecordBySplitwiseID retrieves the record linked to a partner expense.
func (s *SQLiteStore) GetRecordBySplitwiseID(ctx context.Context, splitwiseID int64) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE splitwise_id = ?", splitwiseID)
	return scanRecord(row)
}

// ListActiveRecords returns imported, non-deleted records ordered by date
// then import time, the order the ledger rebuild applies them in.
func (s *SQLiteStore) ListActiveRecords(ctx context.Context) ([]models.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+` FROM records
		 WHERE imported = 1 AND deleted = 0
		 ORDER BY date ASC, imported_at ASC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active records: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		rec, err := scanRecordRows(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// SetRecordSplitwiseID stores the partner-expense link on a record.
func (s *SQLiteStore) SetRecordSplitwiseID(ctx context.Context, id string, splitwiseID int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE records SET splitwise_id = ? WHERE id = ?", splitwiseID, id)
	if err != nil {
		return fmt.Errorf("failed to set splitwise id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// RetireRecord marks a record deleted and reversed in one transaction.
func (s *SQLiteStore) RetireRecord(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var reversed bool
	err = tx.QueryRowContext(ctx, "SELECT reversed FROM records WHERE id = ?", id).Scan(&reversed)
	if err == sql.ErrNoRows {
		// Never mirrored (deleted before first import): nothing to reverse.
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check reversed flag: %w", err)
	}
	if reversed {
		return true, nil
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE records SET deleted = 1, reversed = 1 WHERE id = ?", id); err != nil {
		return false, fmt.Errorf("failed to retire record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return false, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row *sql.Row) (*models.Record, error) {
	rec, err := scanRecordRows(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return rec, err
}

func scanRecordRows(row rowScanner) (*models.Record, error) {
	var (
		rec         models.Record
		date        string
		amount      string
		category    string
		importedAt  sql.NullInt64
		splitwiseID sql.NullInt64
		hash        sql.NullString
		createdAt   int64
		updatedAt   int64
	)
	err := row.Scan(&rec.ID, &date, &amount, &rec.Transaction, &category,
		&rec.Imported, &importedAt, &rec.Deleted, &rec.Reversed, &rec.Splitwise,
		&splitwiseID, &rec.PartnerOrigin, &hash, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}

	rec.Date, err = time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("bad stored date %q: %w", date, err)
	}
	rec.Amount, err = decFromDB(amount)
	if err != nil {
		return nil, err
	}
	rec.Category, err = models.ParseCategory(category)
	if err != nil {
		return nil, fmt.Errorf("bad stored category: %w", err)
	}
	if importedAt.Valid {
		t := timeFromDB(importedAt.Int64)
		rec.ImportedAt = &t
	}
	if splitwiseID.Valid {
		rec.SplitwiseID = &splitwiseID.Int64
	}
	if hash.Valid {
		rec.Hash = hash.String
	}
	rec.CreatedAt = timeFromDB(createdAt)
	rec.UpdatedAt = timeFromDB(updatedAt)
	return &rec, nil
}
