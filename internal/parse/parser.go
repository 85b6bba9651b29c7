// Package parse turns a record's free-text transaction field and category
// into a structured intent: which accounts move, by how much, and what
// counts toward monthly spend.
//
// The transaction field is "Vendor - Description" with an optional third
// " - Account" component naming a target account. The tokenizer is strict:
// a third component that resolves to no known account alias rejects the
// record instead of defaulting, since a silent default would misattribute
// money.
package parse

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fintally/tally/internal/models"
)

// Delimiter separates the components of a transaction field.
const Delimiter = " - "

// ErrUnparseable rejects a transaction whose text cannot be resolved against
// the category's rules. Not retryable: the record is annotated at the source
// and skipped.
var ErrUnparseable = errors.New("unparseable transaction")

// Effect is one signed balance change on one account.
type Effect struct {
	Account string
	Delta   decimal.Decimal
}

// Intent is the parsed interpretation of a single record.
type Intent struct {
	Vendor      string
	Description string

	// Target is the canonical name of the account the category's rule
	// resolved to.
	Target string

	// Effects are the balance changes to apply, in order.
	Effects []Effect

	// Spend is the record's contribution to month-to-date spend; zero for
	// categories excluded from the spend total.
	Spend decimal.Decimal
}

// wellKnownAliases maps normalized alias tokens to normalized account names.
// Only applied when the aliased account actually exists.
var wellKnownAliases = map[string]string{
	"house": "home",
	"share": "shared",
	"misc":  "miscellaneous",
}

// Parser resolves account references in transaction text. Construct one per
// pass from the current account set; it is pure and safe for concurrent use.
type Parser struct {
	byAlias        map[string]string // normalized token -> canonical name
	checking       string
	defaultSavings string
}

// New builds a parser over the given accounts. The set must contain exactly
// one checking account and exactly one default savings account.
func New(accounts []models.Account) (*Parser, error) {
	p := &Parser{byAlias: make(map[string]string, len(accounts)+len(wellKnownAliases))}
	for _, a := range accounts {
		norm := normalize(a.Name)
		p.byAlias[norm] = a.Name
		switch {
		case a.Type == models.AccountTypeChecking:
			if p.checking != "" {
				return nil, fmt.Errorf("multiple checking accounts: %s and %s", p.checking, a.Name)
			}
			p.checking = a.Name
		case a.Default:
			if p.defaultSavings != "" {
				return nil, fmt.Errorf("multiple default savings accounts: %s and %s", p.defaultSavings, a.Name)
			}
			p.defaultSavings = a.Name
		}
	}
	if p.checking == "" {
		return nil, errors.New("no checking account configured")
	}
	if p.defaultSavings == "" {
		return nil, errors.New("no default savings account configured")
	}
	for alias, target := range wellKnownAliases {
		if canonical, ok := p.byAlias[target]; ok {
			p.byAlias[alias] = canonical
		}
	}
	// "misc"/"miscellaneous" route to the default savings account even when
	// no account carries that name.
	p.byAlias["misc"] = p.defaultSavings
	p.byAlias["miscellaneous"] = p.defaultSavings
	return p, nil
}

// Checking returns the canonical checking account name.
func (p *Parser) Checking() string { return p.checking }

// DefaultSavings returns the canonical default savings account name.
func (p *Parser) DefaultSavings() string { return p.defaultSavings }

// Parse resolves one transaction into an intent.
func (p *Parser) Parse(text string, category models.Category, amount decimal.Decimal) (*Intent, error) {
	parts := strings.Split(text, Delimiter)
	if len(parts) > 3 {
		return nil, fmt.Errorf("%w: %q has %d components, want at most 3", ErrUnparseable, text, len(parts))
	}
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	if parts[0] == "" {
		return nil, fmt.Errorf("%w: %q has no vendor component", ErrUnparseable, text)
	}

	intent := &Intent{Vendor: parts[0]}
	if len(parts) > 1 {
		intent.Description = parts[1]
	}
	var ref string
	if len(parts) == 3 {
		ref = parts[2]
	}

	switch category {
	case models.CategoryExpense, models.CategoryRent, models.CategoryMortgage, models.CategorySplitwise:
		// Always paid from checking; a third component carries no meaning.
		intent.Target = p.checking
		intent.Effects = []Effect{{Account: p.checking, Delta: amount.Neg()}}
		intent.Spend = amount

	case models.CategorySavings:
		target, err := p.resolveSavings(ref, category)
		if err != nil {
			return nil, err
		}
		intent.Target = target
		intent.Effects = []Effect{
			{Account: p.checking, Delta: amount.Neg()},
			{Account: target, Delta: amount},
		}

	case models.CategorySavingsSpend:
		target, err := p.resolveSavings(ref, category)
		if err != nil {
			return nil, err
		}
		intent.Target = target
		intent.Effects = []Effect{{Account: target, Delta: amount.Neg()}}
		intent.Spend = amount

	case models.CategoryIncome, models.CategoryInterest, models.CategoryAdjustment:
		target := p.checking
		if ref != "" {
			resolved, ok := p.byAlias[normalize(ref)]
			if !ok {
				return nil, fmt.Errorf("%w: %q names unknown account %q", ErrUnparseable, text, ref)
			}
			target = resolved
		}
		intent.Target = target
		// Income and interest amounts are negative by convention, so the
		// negated delta credits the account.
		intent.Effects = []Effect{{Account: target, Delta: amount.Neg()}}

	default:
		return nil, fmt.Errorf("%w: unhandled category %q", ErrUnparseable, category)
	}

	return intent, nil
}

// resolveSavings maps the optional third component onto a savings account.
// An absent reference routes to the default savings account. For Savings
// Spend a reference to checking is overridden to the default savings account,
// guarding against spending checking money through the wrong category; for
// Savings it is rejected outright.
func (p *Parser) resolveSavings(ref string, category models.Category) (string, error) {
	if ref == "" {
		return p.defaultSavings, nil
	}
	target, ok := p.byAlias[normalize(ref)]
	if !ok {
		return "", fmt.Errorf("%w: %q resolves to no known savings account", ErrUnparseable, ref)
	}
	if target == p.checking {
		if category == models.CategorySavingsSpend {
			return p.defaultSavings, nil
		}
		return "", fmt.Errorf("%w: %q targets the checking account", ErrUnparseable, ref)
	}
	return target, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// PartnerDescription prepares a partner-ledger description for materializing
// as a record: a description with no vendor component gets the default
// vendor prefixed so the tokenizer always sees "Vendor - Description".
func PartnerDescription(description, defaultVendor string) string {
	parts := strings.Split(description, Delimiter)
	if len(parts) == 1 {
		parts = append([]string{defaultVendor}, parts...)
	}
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return strings.Join(parts, Delimiter)
}
