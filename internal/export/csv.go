// Package export renders the ledger into its outbound formats: CSV,
// multi-sheet workbooks and printable invoice documents.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/dvloznov/statement-auditor/internal/domain"
)

// csvHeader is the canonical export schema. It is a superset of the import
// schema so an exported ledger re-imports field-for-field.
var csvHeader = []string{
	"Date", "ID", "Name", "Items", "Ref_No", "Mode",
	"Inflow", "Outflow", "Net", "Balance", "Tag",
}

// WriteCSV writes one row per transaction with a header row, UTF-8,
// comma-separated. The ID column carries the sequence number when assigned,
// otherwise the raw tag.
func WriteCSV(w io.Writer, txns []*domain.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("WriteCSV: header: %w", err)
	}
	for i, tx := range txns {
		if err := cw.Write(csvRow(tx)); err != nil {
			return fmt.Errorf("WriteCSV: row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(tx *domain.Transaction) []string {
	id := tx.SequenceNumber
	if id == "" {
		id = tx.Tag
	}
	inflow, outflow := "", ""
	if tx.Direction == domain.Inflow {
		inflow = tx.Amount.String()
	} else {
		outflow = tx.Amount.String()
	}
	return []string{
		domain.FormatDate(tx.Date),
		id,
		tx.Name,
		tx.Particulars,
		tx.RefNo,
		string(tx.Source),
		inflow,
		outflow,
		tx.Net().String(),
		tx.RunningBalance,
		tx.Tag,
	}
}

// Filter returns the transactions satisfying the predicate, in order.
func Filter(txns []*domain.Transaction, keep func(*domain.Transaction) bool) []*domain.Transaction {
	var out []*domain.Transaction
	for _, tx := range txns {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// Classified returns a predicate matching one classification, for the
// invoices-only / expenses-only exports.
func Classified(c domain.Classification) func(*domain.Transaction) bool {
	return func(tx *domain.Transaction) bool { return tx.Classification == c }
}

// SelectedInvoices matches transactions flagged for invoice printing.
func SelectedInvoices(tx *domain.Transaction) bool {
	return tx.Selected && tx.Classification == domain.Invoice
}
