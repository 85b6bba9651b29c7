// Package storage provides abstractions for the relational mirror.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/fintally/tally/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the relational mirror: a derived, rebuildable cache of the
// external record table plus the accounts, partner-expense mirror, dashboard
// snapshots and the pass lease. The abstraction allows swapping storage
// backends without changing the engine.
type Store interface {
	// ImportRecord upserts the record with its imported marker set, in one
	// transaction. The record id is the idempotency key: if the marker was
	// already set, alreadyImported is true and the mirrored content is
	// refreshed only when the record's content hash changed (a human edit
	// re-submitted at the source). On the already-imported path the record
	// is hydrated with the mirror's imported timestamp and partner link.
	ImportRecord(ctx context.Context, rec *models.Record) (alreadyImported bool, err error)

	// GetRecord retrieves a mirrored record by external id.
	GetRecord(ctx context.Context, id string) (*models.Record, error)

	// GetRecordBySplitwiseID retrieves the record linked to a partner expense.
	GetRecordBySplitwiseID(ctx context.Context, splitwiseID int64) (*models.Record, error)

	// ListActiveRecords returns imported, non-deleted records ordered by
	// date then import time. The ledger is rebuilt from these.
	ListActiveRecords(ctx context.Context) ([]models.Record, error)

	// SetRecordSplitwiseID stores the partner-expense link on a record.
	SetRecordSplitwiseID(ctx context.Context, id string, splitwiseID int64) error

	// RetireRecord marks a record deleted and reversed in one transaction,
	// excluding it from ledger rebuilds. The reversed marker makes delete
	// processing idempotent; rows are retired rather than removed so the
	// marker survives a crash between reversal and source acknowledgment.
	RetireRecord(ctx context.Context, id string) (alreadyRetired bool, err error)

	// ListAccounts returns all accounts.
	ListAccounts(ctx context.Context) ([]models.Account, error)

	// SaveAccounts upserts accounts with their current balances.
	SaveAccounts(ctx context.Context, accounts []models.Account) error

	// UpsertPartnerExpense mirrors one partner-ledger entry.
	UpsertPartnerExpense(ctx context.Context, exp *models.PartnerExpense) error

	// GetPartnerExpense retrieves a mirrored partner expense.
	GetPartnerExpense(ctx context.Context, id int64) (*models.PartnerExpense, error)

	// ListUnlinkedPartnerExpenses returns live, non-payment expenses not yet
	// linked to a record, oldest modification first. Mirrored expenses sit
	// past the change watermark, so interrupted materializations are only
	// reachable through this scan.
	ListUnlinkedPartnerExpenses(ctx context.Context) ([]models.PartnerExpense, error)

	// PartnerWatermark returns the newest partner-side modification time
	// seen, or the zero time when nothing is mirrored yet.
	PartnerWatermark(ctx context.Context) (time.Time, error)

	// SaveSnapshot persists a dashboard snapshot.
	SaveSnapshot(ctx context.Context, snap *models.MonthlySnapshot) error

	// LatestSnapshot returns the most recently generated snapshot.
	LatestSnapshot(ctx context.Context) (*models.MonthlySnapshot, error)

	// AcquireLease takes the named lease for the holder if it is free or
	// expired. Passes are serialized by leasing a fixed resource name for
	// the pass duration.
	AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)

	// ReleaseLease frees the lease if still held by the holder.
	ReleaseLease(ctx context.Context, name, holder string) error

	// Close releases any resources held by the store.
	Close() error
}
