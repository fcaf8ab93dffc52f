package classify

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-auditor/internal/domain"
)

func tx(date string, class domain.Classification) *domain.Transaction {
	d, err := domain.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return &domain.Transaction{
		Date:           d,
		Amount:         decimal.NewFromInt(100),
		Direction:      domain.Inflow,
		Classification: class,
		Source:         domain.SourceBank,
	}
}

func TestFromTag(t *testing.T) {
	tests := []struct {
		tag       string
		wantClass domain.Classification
		wantDir   domain.Direction
	}{
		{"inv-deposit", domain.Invoice, domain.Inflow},
		{"inv-loan", domain.Invoice, domain.Inflow},
		{"inv-fd", domain.Invoice, domain.Inflow},
		{"exp-withdrawal", domain.Expense, domain.Outflow},
		{"exp-fd", domain.Expense, domain.Outflow},
		{"exp-other", domain.Expense, domain.Outflow},
		{"  INV-DEPOSIT  ", domain.Invoice, domain.Inflow}, // table lookup is case/space tolerant
		// Legacy substring fallback, kept as documented behavior.
		{"INV-1001", domain.Invoice, domain.Inflow},
		{"something-exp-ish", domain.Expense, domain.Outflow},
		// Unknown tags are explicitly Unclassified, never guessed.
		{"donation", domain.Unclassified, ""},
		{"", domain.Unclassified, ""},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got := FromTag(tt.tag)
			if got.Classification != tt.wantClass || got.Direction != tt.wantDir {
				t.Errorf("FromTag(%q) = {%s %s}, want {%s %s}",
					tt.tag, got.Classification, got.Direction, tt.wantClass, tt.wantDir)
			}
		})
	}
}

func TestFromID(t *testing.T) {
	tests := []struct {
		id        string
		wantClass domain.Classification
		wantSeq   string
	}{
		{"INV-1001", domain.Invoice, "INV-1001"},
		{"EXP-2041", domain.Expense, "EXP-2041"},
		{"inv-deposit", domain.Invoice, ""},
		{"ABC-1234", domain.Unclassified, ""}, // unknown prefix is not a sequence number
		{"", domain.Unclassified, ""},
	}
	for _, tt := range tests {
		class, seq := FromID(tt.id)
		if class != tt.wantClass || seq != tt.wantSeq {
			t.Errorf("FromID(%q) = (%s, %q), want (%s, %q)", tt.id, class, seq, tt.wantClass, tt.wantSeq)
		}
	}
}

func TestAssignNumbers(t *testing.T) {
	l := domain.NewLedger()
	l.Append(
		tx("10-02-2024", domain.Invoice),
		tx("05-02-2024", domain.Expense),
		tx("01-02-2024", domain.Invoice),
		tx("10-02-2024", domain.Invoice), // same date: tie broken by ledger order
	)

	AssignNumbers(l, domain.Invoice, 1001)

	invoices := l.ByClassification(domain.Invoice)
	want := []string{"INV-1002", "INV-1001", "INV-1003"}
	for i, tx := range invoices {
		if tx.SequenceNumber != want[i] {
			t.Errorf("invoice %d number = %q, want %q", i, tx.SequenceNumber, want[i])
		}
	}
	// Other classifications untouched.
	if got := l.ByClassification(domain.Expense)[0].SequenceNumber; got != "" {
		t.Errorf("expense number = %q, want unassigned", got)
	}
}

func TestAssignNumbersStrictlyIncreasingByDate(t *testing.T) {
	l := domain.NewLedger()
	dates := []string{"20-01-2024", "05-01-2024", "12-01-2024", "01-01-2024"}
	for _, d := range dates {
		l.Append(tx(d, domain.Invoice))
	}
	AssignNumbers(l, domain.Invoice, 1)

	txns := l.ByClassification(domain.Invoice)
	for i, a := range txns {
		for j, b := range txns {
			if a.Date.Before(b.Date) && a.SequenceNumber >= b.SequenceNumber {
				t.Errorf("dates %s < %s but numbers %s >= %s (i=%d j=%d)",
					a.Date, b.Date, a.SequenceNumber, b.SequenceNumber, i, j)
			}
		}
	}
}

func TestAssignNumbersIdempotent(t *testing.T) {
	l := domain.NewLedger()
	for _, d := range []string{"03-03-2024", "01-03-2024", "02-03-2024"} {
		l.Append(tx(d, domain.Expense))
	}

	AssignNumbers(l, domain.Expense, 2001)
	first := numbersOf(l, domain.Expense)

	AssignNumbers(l, domain.Expense, 2001)
	second := numbersOf(l, domain.Expense)

	if fmt.Sprint(first) != fmt.Sprint(second) {
		t.Errorf("re-run changed numbers: %v vs %v", first, second)
	}
}

func TestAssignNumbersRecomputesRun(t *testing.T) {
	l := domain.NewLedger()
	l.Append(tx("01-03-2024", domain.Invoice), tx("02-03-2024", domain.Invoice))

	AssignNumbers(l, domain.Invoice, 1001)
	// Simulate a manual edit: the next run overwrites it.
	l.Transactions[0].SequenceNumber = "INV-9999"
	AssignNumbers(l, domain.Invoice, 5000)

	got := numbersOf(l, domain.Invoice)
	want := []string{"INV-5000", "INV-5001"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("numbers = %v, want %v", got, want)
	}
}

func TestAssignNumbersEmptySubsetIsNoop(t *testing.T) {
	l := domain.NewLedger()
	l.Append(tx("01-03-2024", domain.Expense))
	AssignNumbers(l, domain.Invoice, 1001) // nothing classified Invoice

	if got := l.Transactions[0].SequenceNumber; got != "" {
		t.Errorf("expense number = %q, want unassigned", got)
	}
}

func TestNextID(t *testing.T) {
	l := domain.NewLedger()
	if got := NextID(l, "INV-", 1001); got != "INV-1001" {
		t.Errorf("NextID on empty ledger = %q, want INV-1001", got)
	}
	a := tx("01-03-2024", domain.Invoice)
	a.SequenceNumber = "INV-1001"
	b := tx("02-03-2024", domain.Invoice)
	b.Tag = "INV-1002"
	l.Append(a, b)
	if got := NextID(l, "INV-", 1001); got != "INV-1003" {
		t.Errorf("NextID = %q, want INV-1003", got)
	}
}

func numbersOf(l *domain.Ledger, c domain.Classification) []string {
	var out []string
	for _, tx := range l.ByClassification(c) {
		out = append(out, tx.SequenceNumber)
	}
	return out
}
