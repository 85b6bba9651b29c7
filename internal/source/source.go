// Package source defines the contracts for the two external stores the
// engine reconciles against: the record table and the expense-sharing
// partner service. The concrete HTTP clients live in the table and partner
// subpackages; the engine and its tests depend only on these interfaces.
package source

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintally/tally/internal/models"
)

var (
	// ErrUnavailable is a network or timeout failure. Retryable: the
	// record is deferred to the next pass with no state change.
	ErrUnavailable = errors.New("source unavailable")

	// ErrRejected is a validation or conflict failure. Not retryable: the
	// record is annotated at the source and skipped.
	ErrRejected = errors.New("source rejected request")
)

// RecordTable is the external ledger table, the system of record for
// expense facts.
type RecordTable interface {
	// ListPending returns records awaiting processing: not yet imported
	// and not deleted, plus deleted records whose removal has not been
	// acknowledged. Ordered by last-modified ascending.
	ListPending(ctx context.Context) ([]models.Record, error)

	// Create inserts a fully-formed record and returns the table-assigned id.
	Create(ctx context.Context, rec *models.Record) (string, error)

	// Update rewrites a record's user-visible fields and flags.
	Update(ctx context.Context, rec *models.Record) error

	// MarkImported flips the imported flag after the mirror write commits.
	MarkImported(ctx context.Context, id string, importedAt time.Time) error

	// AcknowledgeDelete marks a deleted record as fully processed. The
	// table never physically removes rows; this stops the record from
	// appearing in ListPending again.
	AcknowledgeDelete(ctx context.Context, id string) error

	// Annotate attaches an operator-visible error note to a record, used
	// for poison records that would otherwise retry forever.
	Annotate(ctx context.Context, id string, note string) error
}

// Partner is the expense-sharing partner service.
type Partner interface {
	// ListChanged returns expenses modified after the watermark, ordered
	// by last-modified ascending.
	ListChanged(ctx context.Context, since time.Time) ([]models.PartnerExpense, error)

	// CreateExpense creates an equally-split expense for the given full
	// cost and returns the partner's view of it, including the assigned id
	// and our half-amount transaction balance.
	CreateExpense(ctx context.Context, cost decimal.Decimal, description string, date time.Time) (*models.PartnerExpense, error)

	// DeleteExpense removes an expense on the partner side.
	DeleteExpense(ctx context.Context, id int64) error

	// Balance resolves the running balance with the financial partner.
	Balance(ctx context.Context) (decimal.Decimal, error)
}
