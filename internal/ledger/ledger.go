// Package ledger maintains running account balances and month-to-date spend.
//
// A Ledger is a derived value: the engine rebuilds one every pass from the
// mirror's accounts and imported records, so balances can never drift from
// the invariant balance == starting balance + sum of applied deltas. It is
// owned by whoever constructed it and is not safe for concurrent mutation;
// the pass-level lock serializes writers.
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fintally/tally/internal/models"
	"github.com/fintally/tally/internal/parse"
)

// Entry is one applied record's effect, retained for reversal and for the
// monthly aggregates.
type Entry struct {
	RecordID string
	Date     time.Time
	Category models.Category
	Amount   decimal.Decimal
	Spend    decimal.Decimal
	Effects  []parse.Effect
}

// Ledger holds per-account running balances plus the applied-entry log.
type Ledger struct {
	accounts map[string]*models.Account
	order    []string // account names in construction order

	entries  map[string]*Entry
	applied  []string // record ids in apply order
	reversed map[string]bool
}

// New builds a ledger over the given accounts with every balance reset to
// its starting balance.
func New(accounts []models.Account) (*Ledger, error) {
	l := &Ledger{
		accounts: make(map[string]*models.Account, len(accounts)),
		entries:  make(map[string]*Entry),
		reversed: make(map[string]bool),
	}
	for _, a := range accounts {
		if _, dup := l.accounts[a.Name]; dup {
			return nil, fmt.Errorf("duplicate account %q", a.Name)
		}
		acct := a
		acct.Balance = acct.StartingBalance
		l.accounts[a.Name] = &acct
		l.order = append(l.order, a.Name)
	}
	return l, nil
}

// Apply records one parsed intent against the ledger. Applying the same
// record id twice is a no-op; the returned bool reports whether the effects
// were applied by this call.
func (l *Ledger) Apply(recordID string, date time.Time, category models.Category, intent *parse.Intent, amount decimal.Decimal) (bool, error) {
	if recordID == "" {
		return false, fmt.Errorf("apply: empty record id")
	}
	if _, done := l.entries[recordID]; done {
		return false, nil
	}
	for _, eff := range intent.Effects {
		if _, ok := l.accounts[eff.Account]; !ok {
			return false, fmt.Errorf("apply %s: unknown account %q", recordID, eff.Account)
		}
	}
	for _, eff := range intent.Effects {
		acct := l.accounts[eff.Account]
		acct.Balance = acct.Balance.Add(eff.Delta)
	}
	l.entries[recordID] = &Entry{
		RecordID: recordID,
		Date:     date,
		Category: category,
		Amount:   amount,
		Spend:    intent.Spend,
		Effects:  intent.Effects,
	}
	l.applied = append(l.applied, recordID)
	return true, nil
}

// Reapply replaces a record's in-force effects with a new intent. It backs
// out the old entry (if any) and applies the new one, so a record whose
// content changed at the source converges without waiting for the next
// rebuild. Reapplying an unseen record behaves like Apply.
func (l *Ledger) Reapply(recordID string, date time.Time, category models.Category, intent *parse.Intent, amount decimal.Decimal) error {
	if recordID == "" {
		return fmt.Errorf("reapply: empty record id")
	}
	for _, eff := range intent.Effects {
		if _, ok := l.accounts[eff.Account]; !ok {
			return fmt.Errorf("reapply %s: unknown account %q", recordID, eff.Account)
		}
	}
	if _, seen := l.entries[recordID]; !seen {
		_, err := l.Apply(recordID, date, category, intent, amount)
		return err
	}
	l.Reverse(recordID)
	for _, eff := range intent.Effects {
		acct := l.accounts[eff.Account]
		acct.Balance = acct.Balance.Add(eff.Delta)
	}
	l.entries[recordID] = &Entry{
		RecordID: recordID,
		Date:     date,
		Category: category,
		Amount:   amount,
		Spend:    intent.Spend,
		Effects:  intent.Effects,
	}
	delete(l.reversed, recordID)
	return nil
}

// Reverse backs out a previously applied record by applying the inverse of
// each effect. Reversing an unapplied or already-reversed record is a no-op;
// the returned bool reports whether a reversal happened.
func (l *Ledger) Reverse(recordID string) bool {
	entry, ok := l.entries[recordID]
	if !ok || l.reversed[recordID] {
		return false
	}
	for _, eff := range entry.Effects {
		acct := l.accounts[eff.Account]
		acct.Balance = acct.Balance.Sub(eff.Delta)
	}
	l.reversed[recordID] = true
	return true
}

// Applied reports whether the record's effects are currently in force.
func (l *Ledger) Applied(recordID string) bool {
	_, ok := l.entries[recordID]
	return ok && !l.reversed[recordID]
}

// Balance returns the current balance of the named account.
func (l *Ledger) Balance(name string) (decimal.Decimal, bool) {
	acct, ok := l.accounts[name]
	if !ok {
		return decimal.Zero, false
	}
	return acct.Balance, true
}

// Balances returns a copy of every account's current balance.
func (l *Ledger) Balances() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(l.accounts))
	for name, acct := range l.accounts {
		out[name] = acct.Balance
	}
	return out
}

// Accounts returns the accounts with their current balances, in
// construction order.
func (l *Ledger) Accounts() []models.Account {
	out := make([]models.Account, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, *l.accounts[name])
	}
	return out
}

// MonthSpend sums spend contributions from in-force entries dated in the
// given calendar month.
func (l *Ledger) MonthSpend(month time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, id := range l.applied {
		if l.reversed[id] {
			continue
		}
		e := l.entries[id]
		if sameMonth(e.Date, month) {
			total = total.Add(e.Spend)
		}
	}
	return total
}

// MonthBreakdown nets a month's in-force entries into dashboard groups.
type MonthBreakdown struct {
	Spend       decimal.Decimal // spend-counting categories
	Housing     decimal.Decimal // rent and mortgage
	Savings     decimal.Decimal // net moved into savings (transfers minus savings spend)
	Income      decimal.Decimal // income and interest, as a positive number
	Adjustments decimal.Decimal // net of adjustments
}

// Breakdown computes the month's category groups from in-force entries.
func (l *Ledger) Breakdown(month time.Time) MonthBreakdown {
	var b MonthBreakdown
	b.Spend = decimal.Zero
	b.Housing = decimal.Zero
	b.Savings = decimal.Zero
	b.Income = decimal.Zero
	b.Adjustments = decimal.Zero
	for _, id := range l.applied {
		if l.reversed[id] {
			continue
		}
		e := l.entries[id]
		if !sameMonth(e.Date, month) {
			continue
		}
		b.Spend = b.Spend.Add(e.Spend)
		switch e.Category {
		case models.CategoryRent, models.CategoryMortgage:
			b.Housing = b.Housing.Add(e.Amount)
		case models.CategorySavings:
			b.Savings = b.Savings.Add(e.Amount)
		case models.CategorySavingsSpend:
			b.Savings = b.Savings.Sub(e.Amount)
		case models.CategoryIncome, models.CategoryInterest:
			// Negative by convention; flip to a positive income figure.
			b.Income = b.Income.Sub(e.Amount)
		case models.CategoryAdjustment:
			b.Adjustments = b.Adjustments.Add(e.Amount)
		}
	}
	return b
}

// CheckConservation verifies that every balance equals its starting balance
// plus the sum of in-force deltas routed to it.
func (l *Ledger) CheckConservation() error {
	sums := make(map[string]decimal.Decimal, len(l.accounts))
	for name := range l.accounts {
		sums[name] = decimal.Zero
	}
	for _, id := range l.applied {
		if l.reversed[id] {
			continue
		}
		for _, eff := range l.entries[id].Effects {
			sums[eff.Account] = sums[eff.Account].Add(eff.Delta)
		}
	}
	for name, acct := range l.accounts {
		want := acct.StartingBalance.Add(sums[name])
		if !acct.Balance.Equal(want) {
			return fmt.Errorf("account %q: balance %s, want %s", name, acct.Balance, want)
		}
	}
	return nil
}

func sameMonth(t, month time.Time) bool {
	return t.Year() == month.Year() && t.Month() == month.Month()
}
