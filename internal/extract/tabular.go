package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/statement-auditor/internal/normalize"
)

// ErrUnreadableFile marks a whole-file import failure. One bad file never
// aborts the rest of a batch.
var ErrUnreadableFile = errors.New("unreadable import file")

// ReadCSV reads a CSV export into header-keyed rows. The first record is
// the header; column order is irrelevant.
func ReadCSV(r io.Reader) ([]normalize.MappedRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrUnreadableFile, err)
	}

	var rows []normalize.MappedRow
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading record: %v", ErrUnreadableFile, err)
		}
		rows = append(rows, zipRow(header, record))
	}
	return rows, nil
}

// ReadXLSX reads the first sheet of a workbook into header-keyed rows.
func ReadXLSX(data []byte) ([]normalize.MappedRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: opening workbook: %v", ErrUnreadableFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrUnreadableFile)
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: reading sheet %q: %v", ErrUnreadableFile, sheets[0], err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rows := make([]normalize.MappedRow, 0, len(records)-1)
	for _, record := range records[1:] {
		rows = append(rows, zipRow(header, record))
	}
	return rows, nil
}

// ReadTabular dispatches on the file extension: .csv goes through the CSV
// reader, everything else is treated as a workbook.
func ReadTabular(filename string, data []byte) ([]normalize.MappedRow, error) {
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		return ReadCSV(bytes.NewReader(data))
	}
	return ReadXLSX(data)
}

func zipRow(header, record []string) normalize.MappedRow {
	row := make(normalize.MappedRow, len(header))
	for i, name := range header {
		if i < len(record) {
			row[strings.TrimSpace(name)] = record[i]
		} else {
			row[strings.TrimSpace(name)] = ""
		}
	}
	return row
}
