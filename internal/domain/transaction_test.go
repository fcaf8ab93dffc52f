package domain

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		input   string
		want    civil.Date
		wantErr bool
	}{
		{"15-03-2024", civil.Date{Year: 2024, Month: 3, Day: 15}, false},
		{"01-01-2000", civil.Date{Year: 2000, Month: 1, Day: 1}, false},
		{"31-12-1999", civil.Date{Year: 1999, Month: 12, Day: 31}, false},
		{"2024-03-15", civil.Date{}, true}, // ISO order rejected
		{"15/03/2024", civil.Date{}, true},
		{"5-3-2024", civil.Date{}, true}, // no zero padding
		{"32-01-2024", civil.Date{}, true},
		{"15-13-2024", civil.Date{}, true},
		{"", civil.Date{}, true},
		{"Opening Balance", civil.Date{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatDateRoundTrip(t *testing.T) {
	for _, s := range []string{"01-01-2024", "29-02-2024", "31-12-2023"} {
		d, err := ParseDate(s)
		if err != nil {
			t.Fatalf("ParseDate(%q) failed: %v", s, err)
		}
		if got := FormatDate(d); got != s {
			t.Errorf("FormatDate(ParseDate(%q)) = %q", s, got)
		}
	}
}

func TestTransactionDirectionAmounts(t *testing.T) {
	amt := decimal.RequireFromString("150.25")

	in := &Transaction{Amount: amt, Direction: Inflow}
	if !in.Inflow().Equal(amt) || !in.Outflow().IsZero() {
		t.Errorf("inflow transaction: Inflow()=%s Outflow()=%s", in.Inflow(), in.Outflow())
	}
	if !in.Net().Equal(amt) {
		t.Errorf("inflow Net() = %s, want %s", in.Net(), amt)
	}

	out := &Transaction{Amount: amt, Direction: Outflow}
	if !out.Outflow().Equal(amt) || !out.Inflow().IsZero() {
		t.Errorf("outflow transaction: Inflow()=%s Outflow()=%s", out.Inflow(), out.Outflow())
	}
	if !out.Net().Equal(amt.Neg()) {
		t.Errorf("outflow Net() = %s, want %s", out.Net(), amt.Neg())
	}
}

func TestClassificationNumberPrefix(t *testing.T) {
	tests := []struct {
		c    Classification
		want string
	}{
		{Invoice, "INV"},
		{Expense, "EXP"},
		{Unclassified, "UNC"},
	}
	for _, tt := range tests {
		if got := tt.c.NumberPrefix(); got != tt.want {
			t.Errorf("%s.NumberPrefix() = %q, want %q", tt.c, got, tt.want)
		}
	}
}

func TestMonthKey(t *testing.T) {
	tx := &Transaction{Date: civil.Date{Year: 2024, Month: 3, Day: 15}}
	if got := tx.MonthKey(); got != "2024-03" {
		t.Errorf("MonthKey() = %q, want %q", got, "2024-03")
	}
}

func TestTransactionEqualIgnoresSelected(t *testing.T) {
	a := &Transaction{
		Date:      civil.Date{Year: 2024, Month: 1, Day: 2},
		Amount:    decimal.NewFromInt(10),
		Direction: Inflow,
		Source:    SourceBank,
		Selected:  true,
	}
	b := *a
	b.Selected = false
	if !a.Equal(&b) {
		t.Error("Equal should ignore the Selected flag")
	}
	b.Amount = decimal.NewFromInt(11)
	if a.Equal(&b) {
		t.Error("Equal should detect amount differences")
	}
}
