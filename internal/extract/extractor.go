// Package extract turns source files into raw rows of cells. PDF table
// extraction is delegated to an external collaborator behind the Extractor
// interface; the rest of the system only ever sees rows of strings.
package extract

import "context"

// Table is one extracted table: ordered rows of string cells. Cells may be
// empty; nothing here is validated, that is the normalizer's job.
type Table [][]string

// Page is the extraction result for one statement page. A page can carry
// zero or more tables.
type Page struct {
	Tables []Table
}

// Extractor extracts tabular content from an opaque statement byte stream.
type Extractor interface {
	// ExtractTables returns the pages of the document with whatever
	// tables were found on each. An empty result is valid; the caller
	// treats zero usable rows as an empty-extraction condition.
	ExtractTables(ctx context.Context, data []byte) ([]Page, error)
}

// Rows flattens the extraction result into one row stream in page and
// table order.
func Rows(pages []Page) [][]string {
	var rows [][]string
	for _, p := range pages {
		for _, table := range p.Tables {
			rows = append(rows, table...)
		}
	}
	return rows
}
