// Package normalize converts raw extracted table rows or imported
// spreadsheet rows into canonical transactions. Malformed rows are dropped,
// never fatal: bank statements contain boilerplate rows by design.
package normalize

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-auditor/internal/classify"
	"github.com/dvloznov/statement-auditor/internal/domain"
)

// ErrNoTransactions is returned when a source yields zero usable rows after
// normalization. The caller decides the messaging; it is not a crash.
var ErrNoTransactions = errors.New("no transactions extracted from source")

// Positional cell layout of statement tables: Date | Particulars |
// Withdrawals | Deposits | Balance.
const (
	cellDate = iota
	cellParticulars
	cellWithdrawals
	cellDeposits
	cellBalance
)

// Result carries the accepted transactions plus how many raw rows were
// dropped along the way.
type Result struct {
	Transactions []*domain.Transaction
	Dropped      int
}

// TableRows normalizes positional rows (as extracted from statement PDF
// tables) for the given source. Rows that fail validation are silently
// dropped. A zero-transaction result returns ErrNoTransactions.
func TableRows(rows [][]string, source domain.Source) (*Result, error) {
	res := &Result{}
	for _, row := range rows {
		tx, ok := tableRow(row, source)
		if !ok {
			res.Dropped++
			continue
		}
		res.Transactions = append(res.Transactions, tx)
	}
	if len(res.Transactions) == 0 {
		return res, ErrNoTransactions
	}
	return res, nil
}

func tableRow(row []string, source domain.Source) (*domain.Transaction, bool) {
	if len(row) < 4 {
		return nil, false
	}
	if isHeaderRow(row) {
		return nil, false
	}

	date, err := domain.ParseDate(strings.TrimSpace(row[cellDate]))
	if err != nil {
		return nil, false
	}

	withdrawals := cleanAmountCell(cell(row, cellWithdrawals))
	deposits := cleanAmountCell(cell(row, cellDeposits))

	amount, direction, ok := resolveAmount(withdrawals, deposits)
	if !ok {
		return nil, false
	}

	return &domain.Transaction{
		Date:           date,
		Particulars:    strings.TrimSpace(row[cellParticulars]),
		Amount:         amount,
		Direction:      direction,
		RunningBalance: cleanCell(cell(row, cellBalance)),
		Classification: domain.Unclassified,
		Source:         source,
	}, true
}

// MappedRow is one imported spreadsheet row keyed by header name.
type MappedRow map[string]string

// MappedRows normalizes header-keyed rows from the tabular import path
// (columns Date, ID, Name, Items, Ref_No, Mode, Inflow, Outflow, Net;
// order irrelevant). The same drop-silently policy applies.
func MappedRows(rows []MappedRow) (*Result, error) {
	res := &Result{}
	for _, row := range rows {
		tx, ok := mappedRow(row)
		if !ok {
			res.Dropped++
			continue
		}
		res.Transactions = append(res.Transactions, tx)
	}
	if len(res.Transactions) == 0 {
		return res, ErrNoTransactions
	}
	return res, nil
}

func mappedRow(row MappedRow) (*domain.Transaction, bool) {
	date, err := domain.ParseDate(strings.TrimSpace(row["Date"]))
	if err != nil {
		return nil, false
	}

	inflow := cleanAmountCell(row["Inflow"])
	outflow := cleanAmountCell(row["Outflow"])
	amount, direction, ok := resolveAmount(outflow, inflow)
	if !ok {
		return nil, false
	}

	tx := &domain.Transaction{
		Date:           date,
		Particulars:    strings.TrimSpace(row["Items"]),
		Name:           strings.TrimSpace(row["Name"]),
		RefNo:          strings.TrimSpace(row["Ref_No"]),
		Amount:         amount,
		Direction:      direction,
		RunningBalance: cleanCell(row["Balance"]),
		Classification: domain.Unclassified,
		Source:         parseMode(row["Mode"]),
	}

	id := strings.TrimSpace(row["ID"])
	tx.Classification, tx.SequenceNumber = classify.FromID(id)
	if tag := strings.TrimSpace(row["Tag"]); tag != "" {
		tx.Tag = tag
	} else if tx.SequenceNumber == "" && tx.Classification != domain.Unclassified {
		tx.Tag = id
	}
	return tx, true
}

// resolveAmount enforces the withdrawal XOR deposit rule: exactly one cell
// must parse as a valid non-negative number.
func resolveAmount(withdrawal, deposit string) (decimal.Decimal, domain.Direction, bool) {
	if (withdrawal == "") == (deposit == "") {
		return decimal.Zero, "", false
	}
	if withdrawal != "" {
		amt, ok := parseAmount(withdrawal)
		return amt, domain.Outflow, ok
	}
	amt, ok := parseAmount(deposit)
	return amt, domain.Inflow, ok
}

func parseAmount(s string) (decimal.Decimal, bool) {
	amt, err := decimal.NewFromString(s)
	if err != nil || amt.IsNegative() {
		return decimal.Zero, false
	}
	return amt, true
}

// cleanCell strips thousands separators and whitespace, and treats the
// literal absence marker "None" as empty.
func cleanCell(s string) string {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "None", "")
	return strings.TrimSpace(s)
}

// cleanAmountCell additionally collapses a plain zero to empty, so imported
// rows that fill the unused side with "0" still satisfy the withdrawal XOR
// deposit rule.
func cleanAmountCell(s string) string {
	s = cleanCell(s)
	if isZeroAmount(s) {
		return ""
	}
	return s
}

func isZeroAmount(s string) bool {
	if s == "" {
		return false
	}
	z, err := decimal.NewFromString(s)
	return err == nil && z.IsZero()
}

func isHeaderRow(row []string) bool {
	return strings.Contains(row[cellDate], "Date") ||
		strings.Contains(row[cellParticulars], "Particulars")
}

func parseMode(s string) domain.Source {
	if strings.EqualFold(strings.TrimSpace(s), string(domain.SourceCash)) {
		return domain.SourceCash
	}
	return domain.SourceBank
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
