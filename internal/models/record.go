package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one row of the external ledger table, mirrored locally.
//
// Humans create and edit records through the table's form UI; the engine
// only ever flips the bookkeeping flags (Imported, Reversed) and fills in
// SplitwiseID after pushing an expense to the partner service. Deletion is a
// flag at the source, never a physical removal there.
type Record struct {
	// ID is the source-assigned external record id.
	ID string

	// Date is the transaction date (not the entry timestamp).
	Date time.Time

	// Amount is the signed transaction amount. Sign conventions are
	// per-category: expenses positive, income negative.
	Amount decimal.Decimal

	// Transaction is the raw free-text field, "Vendor - Description" with
	// an optional third " - Account" component.
	Transaction string

	// Category decides sign and target-account rules for the amount.
	Category Category

	// Imported is set by the engine after the mirror write commits. It is
	// the apply-once idempotency marker for the ledger effect.
	Imported bool

	// ImportedAt is when the engine marked the record imported.
	ImportedAt *time.Time

	// Deleted is the human-set deletion flag, propagated by the engine.
	Deleted bool

	// Reversed is set once the ledger effect of a deleted record has been
	// backed out, so a delete cannot double-reverse.
	Reversed bool

	// Splitwise requests that the engine push half of this expense to the
	// partner service.
	Splitwise bool

	// SplitwiseID links to the partner-ledger expense, if any.
	SplitwiseID *int64

	// PartnerOrigin marks records materialized from the partner ledger, so
	// the engine never pushes them back there.
	PartnerOrigin bool

	// Hash is a digest of the user-editable content, stored on import for
	// change detection.
	Hash string

	// CreatedAt and UpdatedAt are source timestamps; UpdatedAt orders
	// processing within a pass (oldest change first).
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContentHash digests the user-editable fields of the record.
func (r *Record) ContentHash() string {
	sum := sha256.Sum256([]byte(r.Transaction + r.Amount.String() +
		r.Date.UTC().Format(time.RFC3339) + string(r.Category) +
		strconv.FormatBool(r.Splitwise)))
	return hex.EncodeToString(sum[:])
}
