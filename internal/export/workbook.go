package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/statement-auditor/internal/domain"
	"github.com/dvloznov/statement-auditor/internal/ledger"
)

const (
	ledgerSheet  = "Ledger"
	summarySheet = "Receipts & Payments"
)

// WriteWorkbook writes a two-sheet workbook: the unified ledger and a
// receipts/payments summary built from the aggregated totals.
func WriteWorkbook(w io.Writer, l *domain.Ledger, summary *ledger.Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ledgerSheet); err != nil {
		return fmt.Errorf("WriteWorkbook: rename sheet: %w", err)
	}
	if err := writeLedgerSheet(f, l); err != nil {
		return err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("WriteWorkbook: create summary sheet: %w", err)
	}
	if err := writeSummarySheet(f, l, summary); err != nil {
		return err
	}

	return f.Write(w)
}

func writeLedgerSheet(f *excelize.File, l *domain.Ledger) error {
	if err := setRow(f, ledgerSheet, 1, toAny(csvHeader)); err != nil {
		return err
	}
	for i, tx := range l.Transactions {
		if err := setRow(f, ledgerSheet, i+2, toAny(csvRow(tx))); err != nil {
			return err
		}
	}
	return nil
}

func writeSummarySheet(f *excelize.File, l *domain.Ledger, summary *ledger.Summary) error {
	rows := [][]any{
		{"Receipts & Payments"},
		{},
		{"Opening Balance (Total)", l.TotalOpeningBalance().StringFixed(2)},
		{"Total Receipts", summary.TotalInflow.StringFixed(2)},
		{"Total Payments", summary.TotalOutflow.StringFixed(2)},
		{"Net Movement", summary.Net().StringFixed(2)},
		{},
		{"Classification", "Type", "Amount", "Count"},
	}

	for _, c := range []domain.Classification{domain.Invoice, domain.Expense, domain.Unclassified} {
		for _, d := range []domain.Direction{domain.Inflow, domain.Outflow} {
			g, ok := summary.ByGroup[ledger.GroupKey{Classification: c, Direction: d}]
			if !ok {
				continue
			}
			rows = append(rows, []any{string(c), string(d), g.Sum.StringFixed(2), g.Count})
		}
	}

	rows = append(rows, []any{}, []any{"Month", "Receipts", "Payments"})
	for _, m := range summary.Months() {
		mt := summary.ByMonth[m]
		rows = append(rows, []any{m, mt.Inflow.StringFixed(2), mt.Outflow.StringFixed(2)})
	}

	for i, row := range rows {
		if err := setRow(f, summarySheet, i+1, row); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("setRow: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("setRow: sheet %q row %d: %w", sheet, row, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
