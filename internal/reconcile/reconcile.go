// Package reconcile proves, or disproves, that the ledger balances against
// its declared opening balances.
package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-auditor/internal/domain"
	"github.com/dvloznov/statement-auditor/internal/ledger"
)

// Verdict is the business outcome of a reconciliation run. A discrepancy is
// a reportable result, never an error.
type Verdict string

const (
	Reconciled Verdict = "Reconciled"
	Discrepant Verdict = "Discrepant"
)

// SourceClosing is one source's contribution to the actual closing balance,
// computed from that source's transactions rather than the advisory
// running-balance column.
type SourceClosing struct {
	Opening decimal.Decimal
	Inflow  decimal.Decimal
	Outflow decimal.Decimal
	Closing decimal.Decimal
}

// TransferCheck compares bank withdrawals tagged exp-withdrawal against
// cash deposits tagged inv-deposit. When cash pulled from the bank does not
// show up in the cash ledger, the two sides disagree.
type TransferCheck struct {
	BankWithdrawals decimal.Decimal
	CashDeposits    decimal.Decimal
	Matched         bool
}

// Report is the derived reconciliation result. It is computed, not stored.
type Report struct {
	OpeningBalance decimal.Decimal
	TotalInflow    decimal.Decimal
	TotalOutflow   decimal.Decimal

	ExpectedClosing decimal.Decimal
	ActualClosing   decimal.Decimal
	// Difference is actual minus expected, rounded to 2 decimals.
	// Financial amounts are compared at cent precision, never beyond.
	Difference decimal.Decimal
	Verdict    Verdict

	BySource map[domain.Source]SourceClosing
	Transfer TransferCheck

	// DerivedOpenings suggests an opening balance, backed out of the last
	// reported running balance, for each source whose declared opening is
	// zero. Advisory: the user may adopt it via settings, reconciliation
	// arithmetic never does.
	DerivedOpenings map[domain.Source]decimal.Decimal
}

// Run reconciles the ledger against its opening balances using the supplied
// aggregated totals. Missing opening balances default to zero; absent
// sources contribute nothing. Run never fails: a nonzero difference simply
// yields a Discrepant verdict.
func Run(l *domain.Ledger, summary *ledger.Summary) *Report {
	if summary == nil {
		summary = ledger.Aggregate(l)
	}

	r := &Report{
		OpeningBalance: l.TotalOpeningBalance(),
		TotalInflow:    summary.TotalInflow,
		TotalOutflow:   summary.TotalOutflow,
		BySource:       make(map[domain.Source]SourceClosing),
	}

	r.ExpectedClosing = r.OpeningBalance.Add(r.TotalInflow).Sub(r.TotalOutflow)

	// Actual closing comes from each source's own transactions, independent
	// of the aggregated totals above and of the advisory running-balance
	// column. When the two views were built from different snapshots, the
	// difference surfaces here.
	actual := decimal.Zero
	for _, src := range l.Sources() {
		opening := l.OpeningBalance(src)
		if opening.IsZero() {
			if derived, ok := DeriveOpeningBalance(l.BySource(src)); ok {
				if r.DerivedOpenings == nil {
					r.DerivedOpenings = make(map[domain.Source]decimal.Decimal)
				}
				r.DerivedOpenings[src] = derived
			}
		}
		inflow, outflow := decimal.Zero, decimal.Zero
		for _, tx := range l.BySource(src) {
			inflow = inflow.Add(tx.Inflow())
			outflow = outflow.Add(tx.Outflow())
		}
		closing := opening.Add(inflow).Sub(outflow)
		r.BySource[src] = SourceClosing{
			Opening: opening,
			Inflow:  inflow,
			Outflow: outflow,
			Closing: closing,
		}
		actual = actual.Add(closing)
	}
	r.ActualClosing = actual

	r.Difference = r.ActualClosing.Sub(r.ExpectedClosing).Round(2)
	if r.Difference.IsZero() {
		r.Verdict = Reconciled
	} else {
		r.Verdict = Discrepant
	}

	r.Transfer = transferCheck(l)
	return r
}

func transferCheck(l *domain.Ledger) TransferCheck {
	bankOut := decimal.Zero
	cashIn := decimal.Zero
	for _, tx := range l.Transactions {
		switch {
		case tx.Tag == "exp-withdrawal" && tx.Source == domain.SourceBank:
			bankOut = bankOut.Add(tx.Outflow())
		case tx.Tag == "inv-deposit" && tx.Source == domain.SourceCash:
			cashIn = cashIn.Add(tx.Inflow())
		}
	}
	return TransferCheck{
		BankWithdrawals: bankOut,
		CashDeposits:    cashIn,
		Matched:         bankOut.Round(2).Equal(cashIn.Round(2)),
	}
}

// DeriveOpeningBalance backs an opening balance out of the last reported
// running balance and the net movement, for statements where no opening
// balance was declared. Returns false when the last row carries no usable
// balance snapshot.
func DeriveOpeningBalance(txns []*domain.Transaction) (decimal.Decimal, bool) {
	if len(txns) == 0 {
		return decimal.Zero, false
	}
	last := txns[len(txns)-1]
	closing, err := decimal.NewFromString(last.RunningBalance)
	if err != nil {
		return decimal.Zero, false
	}
	net := decimal.Zero
	for _, tx := range txns {
		net = net.Add(tx.Net())
	}
	return closing.Sub(net), true
}
