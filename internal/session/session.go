// Package session holds the working state of one audit: the ledger built up
// by imports, the declared opening balances, and the numbering settings.
// The session is an explicit object passed to every operation; there is no
// implicit global state, and Reset starts a fresh one.
package session

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-auditor/internal/classify"
	"github.com/dvloznov/statement-auditor/internal/domain"
)

// Settings are the user-set configuration values: numbering starts, the
// invoice ID prefix, and per-source opening balances.
type Settings struct {
	InvoiceStart  int
	ExpenseStart  int
	InvoicePrefix string

	OpeningBank decimal.Decimal
	OpeningCash decimal.Decimal
}

// DefaultSettings mirrors the numbering defaults of the original audit
// workflow.
func DefaultSettings() Settings {
	return Settings{
		InvoiceStart:  1001,
		ExpenseStart:  2001,
		InvoicePrefix: "INV-",
	}
}

// Session is one audit in progress. Operations run to completion one at a
// time; the session is never mutated concurrently.
type Session struct {
	ID       string
	Settings Settings
	Ledger   *domain.Ledger
}

// New creates an empty session with the given settings.
func New(settings Settings) *Session {
	s := &Session{
		ID:       uuid.NewString(),
		Settings: settings,
		Ledger:   domain.NewLedger(),
	}
	s.applyOpeningBalances()
	return s
}

func (s *Session) applyOpeningBalances() {
	s.Ledger.OpeningBalances[domain.SourceBank] = s.Settings.OpeningBank
	s.Ledger.OpeningBalances[domain.SourceCash] = s.Settings.OpeningCash
}

// UpdateSettings replaces the session settings and reapplies the opening
// balances to the ledger.
func (s *Session) UpdateSettings(settings Settings) {
	s.Settings = settings
	s.applyOpeningBalances()
}

// Append adds normalized transactions to the ledger. Imports always append;
// re-importing a file duplicates its rows (documented behavior, no dedup).
func (s *Session) Append(txns ...*domain.Transaction) {
	s.Ledger.Append(txns...)
}

// Reset discards the ledger and starts a fresh session, keeping the
// settings.
func (s *Session) Reset() {
	s.ID = uuid.NewString()
	s.Ledger = domain.NewLedger()
	s.applyOpeningBalances()
}

// ManualEntry is one hand-keyed ledger record from the entry form.
type ManualEntry struct {
	Date   string // DD-MM-YYYY
	Tag    string // ID tag, or the invoice prefix to auto-number
	Name   string
	Items  string
	RefNo  string
	Mode   domain.Source
	Amount decimal.Decimal
}

// AddManualEntry creates a transaction from a manual form entry. When the
// tag is exactly the configured invoice prefix, the next prefixed ID is
// generated from the count of existing prefixed records.
func (s *Session) AddManualEntry(e ManualEntry) (*domain.Transaction, error) {
	date, err := domain.ParseDate(e.Date)
	if err != nil {
		return nil, err
	}
	if !e.Amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive, got %s", e.Amount)
	}

	tag := e.Tag
	if tag == s.Settings.InvoicePrefix {
		tag = classify.NextID(s.Ledger, s.Settings.InvoicePrefix, s.Settings.InvoiceStart)
	}
	info := classify.FromTag(tag)
	direction := info.Direction
	if direction == "" {
		// Unclassified manual entries default to inflow, matching the
		// entry form's Net computation.
		direction = domain.Inflow
	}

	tx := &domain.Transaction{
		Date:           date,
		Particulars:    e.Items,
		Name:           e.Name,
		RefNo:          e.RefNo,
		Amount:         e.Amount,
		Direction:      direction,
		Classification: info.Classification,
		Tag:            tag,
		Source:         e.Mode,
	}
	s.Append(tx)
	return tx, nil
}
