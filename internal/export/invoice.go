package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/jung-kurt/gofpdf"

	"github.com/dvloznov/statement-auditor/internal/domain"
)

// Invoice page geometry: 20 records per A4 page in a 4x5 grid.
const (
	InvoicesPerPage = 20
	invoiceCols     = 4
	invoiceRows     = 5

	// particularsLimit is the display truncation for a cell; the stored
	// text stays unbounded.
	particularsLimit = 80
)

// InvoicePage is one page of invoices, at most InvoicesPerPage entries.
type InvoicePage []*domain.Transaction

// Paginate sorts the transactions by date ascending (stable) and splits
// them into pages of InvoicesPerPage.
func Paginate(txns []*domain.Transaction) []InvoicePage {
	sorted := make([]*domain.Transaction, len(txns))
	copy(sorted, txns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	var pages []InvoicePage
	for start := 0; start < len(sorted); start += InvoicesPerPage {
		end := start + InvoicesPerPage
		if end > len(sorted) {
			end = len(sorted)
		}
		pages = append(pages, InvoicePage(sorted[start:end]))
	}
	return pages
}

// WriteInvoicePDF renders the selected transactions as a paginated A4
// document, 20 mini invoices per page, each cell showing the invoice
// number, date, amount and truncated particulars.
func WriteInvoicePDF(w io.Writer, txns []*domain.Transaction) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(5, 5, 5)
	pdf.SetAutoPageBreak(false, 5)

	pageW, pageH := pdf.GetPageSize()
	cellW := (pageW - 10) / invoiceCols
	cellH := (pageH - 10) / invoiceRows

	for _, page := range Paginate(txns) {
		pdf.AddPage()
		for i, tx := range page {
			col := i % invoiceCols
			row := i / invoiceCols
			x := 5 + float64(col)*cellW
			y := 5 + float64(row)*cellH
			drawInvoiceCell(pdf, tx, x, y, cellW, cellH)
		}
	}

	return pdf.Output(w)
}

func drawInvoiceCell(pdf *gofpdf.Fpdf, tx *domain.Transaction, x, y, w, h float64) {
	pdf.Rect(x+0.5, y+0.5, w-1, h-1, "D")

	pdf.SetXY(x+1.5, y+2)
	pdf.SetFont("Helvetica", "B", 8)
	pdf.CellFormat(w-3, 4, "INVOICE", "", 2, "C", false, 0, "")
	pdf.CellFormat(w-3, 4, tx.SequenceNumber, "", 2, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 6)
	pdf.CellFormat(w-3, 3, "Date: "+domain.FormatDate(tx.Date), "", 2, "L", false, 0, "")

	pdf.SetFont("Helvetica", "B", 6)
	pdf.CellFormat(w-3, 4, fmt.Sprintf("Amount: %s", tx.Amount.StringFixed(2)), "", 2, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 6)
	pdf.MultiCell(w-3, 2.6, truncate(tx.Particulars, particularsLimit), "", "L", false)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
