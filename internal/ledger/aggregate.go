// Package ledger computes rollups over merged transaction collections.
// Everything here is pure aggregation with no side effects.
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-auditor/internal/domain"
)

// GroupKey identifies a (classification, direction) bucket.
type GroupKey struct {
	Classification domain.Classification
	Direction      domain.Direction
}

// GroupTotal is the sum and count for one bucket.
type GroupTotal struct {
	Sum   decimal.Decimal
	Count int
}

// MonthTotal is the per-direction sum for one calendar month.
type MonthTotal struct {
	Inflow  decimal.Decimal
	Outflow decimal.Decimal
}

// SourceTotal is the per-direction sum for one source, computed directly
// from that source's transactions.
type SourceTotal struct {
	Inflow  decimal.Decimal
	Outflow decimal.Decimal
}

// Net returns inflow minus outflow for the source.
func (s SourceTotal) Net() decimal.Decimal {
	return s.Inflow.Sub(s.Outflow)
}

// Summary is the aggregated view of a ledger. Absent sources and empty
// collections contribute zero to every total.
type Summary struct {
	TotalInflow  decimal.Decimal
	TotalOutflow decimal.Decimal

	ByGroup  map[GroupKey]GroupTotal
	ByMonth  map[string]MonthTotal
	BySource map[domain.Source]SourceTotal
}

// Net returns total inflow minus total outflow.
func (s *Summary) Net() decimal.Decimal {
	return s.TotalInflow.Sub(s.TotalOutflow)
}

// Months returns the month keys present in the summary in ascending order.
func (s *Summary) Months() []string {
	keys := make([]string, 0, len(s.ByMonth))
	for k := range s.ByMonth {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Aggregate merges the ledger's transactions across all sources into one
// summary: total inflow/outflow, per-(classification, direction) sum and
// count, per-month sums per direction, and per-source nets.
func Aggregate(l *domain.Ledger) *Summary {
	s := &Summary{
		TotalInflow:  decimal.Zero,
		TotalOutflow: decimal.Zero,
		ByGroup:      make(map[GroupKey]GroupTotal),
		ByMonth:      make(map[string]MonthTotal),
		BySource:     make(map[domain.Source]SourceTotal),
	}
	if l == nil {
		return s
	}

	for _, tx := range l.Transactions {
		s.TotalInflow = s.TotalInflow.Add(tx.Inflow())
		s.TotalOutflow = s.TotalOutflow.Add(tx.Outflow())

		gk := GroupKey{tx.Classification, tx.Direction}
		g := s.ByGroup[gk]
		g.Sum = g.Sum.Add(tx.Amount)
		g.Count++
		s.ByGroup[gk] = g

		mk := tx.MonthKey()
		m := s.ByMonth[mk]
		m.Inflow = m.Inflow.Add(tx.Inflow())
		m.Outflow = m.Outflow.Add(tx.Outflow())
		s.ByMonth[mk] = m

		st := s.BySource[tx.Source]
		st.Inflow = st.Inflow.Add(tx.Inflow())
		st.Outflow = st.Outflow.Add(tx.Outflow())
		s.BySource[tx.Source] = st
	}
	return s
}
