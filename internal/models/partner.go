package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PartnerExpense mirrors one entry of the expense-sharing partner ledger.
//
// TransactionBalance is our share of the expense as the partner service
// reports it, not the full cost: for an expense the partner paid it is what
// we owe, for one we created it is half the original amount.
type PartnerExpense struct {
	// ID is the partner-service expense id.
	ID int64

	// TransactionBalance is the signed effect on our books.
	TransactionBalance decimal.Decimal

	// Cost is the full expense amount on the partner side.
	Cost decimal.Decimal

	// Description is the partner-side free text.
	Description string

	// Date is the expense date.
	Date time.Time

	// Deleted is set when the expense was removed on the partner side.
	Deleted bool

	// Payment marks settle-up entries. Payments are mirrored but never
	// materialized as expense records.
	Payment bool

	// RecordID links back to the originating record when this engine
	// created the expense; nil for partner-originated entries.
	RecordID *string

	// UpdatedAt is the partner-side modification time, used as the sync
	// watermark.
	UpdatedAt time.Time
}
