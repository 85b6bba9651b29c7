package models

import "fmt"

// Category classifies a record and decides how its amount moves between
// accounts. The set is closed: anything else is rejected at the adapter
// boundary rather than defaulted.
type Category string

const (
	// CategoryExpense is the default day-to-day expense, paid from Checking.
	CategoryExpense Category = "Expense"

	// CategoryRent and CategoryMortgage are housing payments from Checking.
	CategoryRent     Category = "Rent"
	CategoryMortgage Category = "Mortgage"

	// CategorySavings moves money from Checking into a savings account.
	// A negative amount reverses the direction.
	CategorySavings Category = "Savings"

	// CategorySavingsSpend spends directly out of a savings account,
	// leaving Checking untouched.
	CategorySavingsSpend Category = "Savings Spend"

	// CategoryIncome adds money to an account. Amounts are negative by
	// convention on income rows.
	CategoryIncome Category = "Income"

	// CategoryInterest is earned interest, credited to the named account.
	// Negative by convention, like income.
	CategoryInterest Category = "Interest"

	// CategoryAdjustment is a manual balance correction on a named account,
	// excluded from monthly spend.
	CategoryAdjustment Category = "Adjustment"

	// CategorySplitwise marks records materialized from the partner ledger.
	// They behave like CategoryExpense for balance and spend purposes but
	// must never be pushed back to the partner service.
	CategorySplitwise Category = "Splitwise"
)

// ParseCategory validates a raw category string from an external source.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryExpense, CategoryRent, CategoryMortgage, CategorySavings,
		CategorySavingsSpend, CategoryIncome, CategoryInterest,
		CategoryAdjustment, CategorySplitwise:
		return Category(s), nil
	case "":
		// Blank category on the form means a plain expense.
		return CategoryExpense, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// CountsTowardSpend reports whether the category contributes to the
// month-to-date spend total. Savings transfers, income, interest and
// adjustments move money around without being consumption.
func (c Category) CountsTowardSpend() bool {
	switch c {
	case CategoryExpense, CategoryRent, CategoryMortgage, CategorySavingsSpend, CategorySplitwise:
		return true
	}
	return false
}

func (c Category) String() string {
	return string(c)
}
