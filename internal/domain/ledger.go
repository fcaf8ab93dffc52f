package domain

import "github.com/shopspring/decimal"

// Ledger is the full ordered collection of transactions from all imported
// sources, together with the declared opening balance per source. Imports
// append; re-importing the same file duplicates its rows (documented append
// semantics, no dedup).
type Ledger struct {
	Transactions    []*Transaction
	OpeningBalances map[Source]decimal.Decimal
}

// NewLedger returns an empty ledger with zero opening balances.
func NewLedger() *Ledger {
	return &Ledger{
		OpeningBalances: make(map[Source]decimal.Decimal),
	}
}

// Append adds transactions to the end of the ledger, preserving their order.
func (l *Ledger) Append(txns ...*Transaction) {
	l.Transactions = append(l.Transactions, txns...)
}

// OpeningBalance returns the declared opening balance for a source,
// defaulting to zero when none was declared.
func (l *Ledger) OpeningBalance(s Source) decimal.Decimal {
	if l.OpeningBalances == nil {
		return decimal.Zero
	}
	if b, ok := l.OpeningBalances[s]; ok {
		return b
	}
	return decimal.Zero
}

// TotalOpeningBalance sums the declared opening balances across all sources.
func (l *Ledger) TotalOpeningBalance() decimal.Decimal {
	total := decimal.Zero
	for _, b := range l.OpeningBalances {
		total = total.Add(b)
	}
	return total
}

// ByClassification returns the transactions currently tagged with the given
// classification, in ledger order.
func (l *Ledger) ByClassification(c Classification) []*Transaction {
	var out []*Transaction
	for _, t := range l.Transactions {
		if t.Classification == c {
			out = append(out, t)
		}
	}
	return out
}

// BySource returns the transactions belonging to the given source, in
// ledger order. An absent source yields an empty slice.
func (l *Ledger) BySource(s Source) []*Transaction {
	var out []*Transaction
	for _, t := range l.Transactions {
		if t.Source == s {
			out = append(out, t)
		}
	}
	return out
}

// Sources lists the sources that have either a declared opening balance or
// at least one transaction.
func (l *Ledger) Sources() []Source {
	seen := make(map[Source]bool)
	var out []Source
	add := func(s Source) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	// Bank before Cash when both present, for stable report ordering.
	for _, s := range []Source{SourceBank, SourceCash} {
		if _, ok := l.OpeningBalances[s]; ok {
			add(s)
		}
	}
	for _, t := range l.Transactions {
		add(t.Source)
	}
	return out
}
