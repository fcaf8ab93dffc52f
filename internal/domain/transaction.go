package domain

import (
	"fmt"
	"regexp"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Direction tells whether a transaction moves money into or out of the account.
type Direction string

const (
	Inflow  Direction = "Credit"
	Outflow Direction = "Debit"
)

// Classification is the category assigned to a transaction. It drives
// sequence numbering and inflow/outflow attribution.
type Classification string

const (
	Unclassified Classification = "Unclassified"
	Invoice      Classification = "Invoice"
	Expense      Classification = "Expense"
)

// NumberPrefix returns the three-letter uppercase prefix used when
// formatting sequence numbers for this classification.
func (c Classification) NumberPrefix() string {
	s := string(c)
	if len(s) < 3 {
		return s
	}
	return fmt.Sprintf("%c%c%c", upper(s[0]), upper(s[1]), upper(s[2]))
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

// Source is the originating ledger for a transaction. Opening balances and
// running totals are kept per source.
type Source string

const (
	SourceBank Source = "Bank"
	SourceCash Source = "Cash"
)

// Transaction represents one normalized ledger entry. It is produced by the
// normalizer, mutated in place by classification and sequencing, and treated
// as immutable once exported.
type Transaction struct {
	Date        civil.Date
	Particulars string
	Name        string
	RefNo       string

	// Amount is always non-negative; Direction tells which side of the
	// ledger it lands on. Exactly one of Inflow()/Outflow() is non-zero.
	Amount    decimal.Decimal
	Direction Direction

	// RunningBalance is the balance snapshot reported by the source
	// statement, recorded verbatim. It is advisory only and never used
	// in reconciliation arithmetic.
	RunningBalance string

	Classification Classification
	// Tag is the raw ID tag the classification was derived from
	// (e.g. "inv-deposit"), empty when the transaction was classified
	// directly.
	Tag string
	// SequenceNumber is empty until AssignNumbers runs for this
	// transaction's classification.
	SequenceNumber string

	Source Source

	// Selected is a transient UI-facing flag consumed by invoice
	// generation as a filter predicate. It is not part of ledger
	// equality.
	Selected bool
}

// Inflow returns the credited amount, zero for debits.
func (t *Transaction) Inflow() decimal.Decimal {
	if t.Direction == Inflow {
		return t.Amount
	}
	return decimal.Zero
}

// Outflow returns the debited amount, zero for credits.
func (t *Transaction) Outflow() decimal.Decimal {
	if t.Direction == Outflow {
		return t.Amount
	}
	return decimal.Zero
}

// Net returns the signed movement: positive for inflows, negative for outflows.
func (t *Transaction) Net() decimal.Decimal {
	if t.Direction == Outflow {
		return t.Amount.Neg()
	}
	return t.Amount
}

// MonthKey returns the calendar month the transaction falls in, formatted
// as "YYYY-MM". Dates carry no time component so there is no timezone
// ambiguity.
func (t *Transaction) MonthKey() string {
	return fmt.Sprintf("%04d-%02d", t.Date.Year, int(t.Date.Month))
}

// Equal reports field-for-field equality excluding the transient Selected flag.
func (t *Transaction) Equal(o *Transaction) bool {
	return t.Date == o.Date &&
		t.Particulars == o.Particulars &&
		t.Name == o.Name &&
		t.RefNo == o.RefNo &&
		t.Amount.Equal(o.Amount) &&
		t.Direction == o.Direction &&
		t.RunningBalance == o.RunningBalance &&
		t.Classification == o.Classification &&
		t.Tag == o.Tag &&
		t.SequenceNumber == o.SequenceNumber &&
		t.Source == o.Source
}

// DateLayout is the statement date format. Dates not matching it exactly
// are rejected, not coerced.
const DateLayout = "02-01-2006"

var datePattern = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)

// ParseDate parses a strict DD-MM-YYYY date. Invalid dates (wrong shape or
// impossible calendar values) return an error.
func ParseDate(s string) (civil.Date, error) {
	if !datePattern.MatchString(s) {
		return civil.Date{}, fmt.Errorf("date %q does not match DD-MM-YYYY", s)
	}
	d, err := civil.ParseDate(fmt.Sprintf("%s-%s-%s", s[6:10], s[3:5], s[0:2]))
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	if !d.IsValid() {
		return civil.Date{}, fmt.Errorf("invalid date %q", s)
	}
	return d, nil
}

// FormatDate renders a civil date back into statement form (DD-MM-YYYY).
func FormatDate(d civil.Date) string {
	return fmt.Sprintf("%02d-%02d-%04d", d.Day, int(d.Month), d.Year)
}
