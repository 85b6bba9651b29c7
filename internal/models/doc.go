// Package models defines the core domain models for tally.
//
// # Ownership
//
// The external record table is the system of record for expense facts. The
// relational mirror (internal/storage) is a derived, rebuildable cache of it;
// the ledger is derived from the mirror plus starting balances; monthly
// snapshots are derived from the ledger. Nothing downstream is authoritative
// over the table that produced it.
//
// # Models
//
//   - Record: one row of the external ledger table, mirrored locally
//   - Category: closed enum of expense categories with distinct sign rules
//   - Account: a named balance bucket (one Checking, one or more Savings)
//   - PartnerExpense: mirror of an expense-sharing partner ledger entry
//   - MonthlySnapshot: derived dashboard aggregate, recomputed every pass
package models
