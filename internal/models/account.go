package models

import "github.com/shopspring/decimal"

// AccountType distinguishes the single checking account from savings buckets.
type AccountType string

const (
	AccountTypeChecking AccountType = "checking"
	AccountTypeSavings  AccountType = "savings"
)

// Account is a named balance bucket. Exactly one account has type checking;
// exactly one savings account is marked Default and receives savings
// transfers that name no target.
type Account struct {
	// Name is the canonical account name ("Checking", "Home", ...).
	Name string

	// Type is checking or savings.
	Type AccountType

	// Default marks the savings account used when a transaction names none.
	Default bool

	// StartingBalance anchors the running balance. The invariant is
	// Balance == StartingBalance + sum of all applied deltas.
	StartingBalance decimal.Decimal

	// Balance is the current running balance.
	Balance decimal.Decimal
}
