package session

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dvloznov/statement-auditor/internal/domain"
)

// sessionRecord is the persisted session header.
type sessionRecord struct {
	gorm.Model
	SessionID     string `gorm:"uniqueIndex"`
	InvoiceStart  int
	ExpenseStart  int
	InvoicePrefix string
	OpeningBank   string
	OpeningCash   string
}

// transactionRecord is one persisted ledger row. Amounts are stored as
// decimal strings so nothing is lost to float conversion.
type transactionRecord struct {
	gorm.Model
	SessionID      string `gorm:"index"`
	Position       int
	Date           string
	Particulars    string
	Name           string
	RefNo          string
	Amount         string
	Direction      string
	RunningBalance string
	Classification string
	Tag            string
	SequenceNumber string
	Source         string
	Selected       bool
}

// Store persists sessions between invocations so a CLI run can pick up
// where the previous one stopped.
type Store struct {
	db *gorm.DB
}

// NewStore opens (or creates) the session database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	if err := db.AutoMigrate(&sessionRecord{}, &transactionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate session schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Save replaces the persisted copy of the session. Deletes are unscoped:
// soft-deleted header rows would still occupy the session_id unique index
// and make every re-save collide.
func (st *Store) Save(s *Session) error {
	return st.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("session_id = ?", s.ID).Delete(&sessionRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("session_id = ?", s.ID).Delete(&transactionRecord{}).Error; err != nil {
			return err
		}

		rec := &sessionRecord{
			SessionID:     s.ID,
			InvoiceStart:  s.Settings.InvoiceStart,
			ExpenseStart:  s.Settings.ExpenseStart,
			InvoicePrefix: s.Settings.InvoicePrefix,
			OpeningBank:   s.Settings.OpeningBank.String(),
			OpeningCash:   s.Settings.OpeningCash.String(),
		}
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("save session: %w", err)
		}

		for i, t := range s.Ledger.Transactions {
			row := &transactionRecord{
				SessionID:      s.ID,
				Position:       i,
				Date:           domain.FormatDate(t.Date),
				Particulars:    t.Particulars,
				Name:           t.Name,
				RefNo:          t.RefNo,
				Amount:         t.Amount.String(),
				Direction:      string(t.Direction),
				RunningBalance: t.RunningBalance,
				Classification: string(t.Classification),
				Tag:            t.Tag,
				SequenceNumber: t.SequenceNumber,
				Source:         string(t.Source),
				Selected:       t.Selected,
			}
			if err := tx.Create(row).Error; err != nil {
				return fmt.Errorf("save transaction %d: %w", i, err)
			}
		}
		return nil
	})
}

// ErrNotFound is returned when no session with the requested ID exists.
var ErrNotFound = errors.New("session not found")

// Load restores a persisted session by ID.
func (st *Store) Load(sessionID string) (*Session, error) {
	var rec sessionRecord
	err := st.db.Where("session_id = ?", sessionID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	openingBank, err := decimal.NewFromString(rec.OpeningBank)
	if err != nil {
		return nil, fmt.Errorf("load session: opening bank balance: %w", err)
	}
	openingCash, err := decimal.NewFromString(rec.OpeningCash)
	if err != nil {
		return nil, fmt.Errorf("load session: opening cash balance: %w", err)
	}

	s := New(Settings{
		InvoiceStart:  rec.InvoiceStart,
		ExpenseStart:  rec.ExpenseStart,
		InvoicePrefix: rec.InvoicePrefix,
		OpeningBank:   openingBank,
		OpeningCash:   openingCash,
	})
	s.ID = sessionID

	var rows []transactionRecord
	if err := st.db.Where("session_id = ?", sessionID).Order("position").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	for _, row := range rows {
		t, err := recordToTransaction(row)
		if err != nil {
			return nil, fmt.Errorf("load transaction %d: %w", row.Position, err)
		}
		s.Ledger.Append(t)
	}
	return s, nil
}

// Latest loads the most recently saved session, or ErrNotFound when the
// store is empty.
func (st *Store) Latest() (*Session, error) {
	var rec sessionRecord
	err := st.db.Order("created_at desc").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load latest session: %w", err)
	}
	return st.Load(rec.SessionID)
}

// Delete removes a persisted session and its transactions.
func (st *Store) Delete(sessionID string) error {
	return st.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("session_id = ?", sessionID).Delete(&sessionRecord{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("session_id = ?", sessionID).Delete(&transactionRecord{}).Error
	})
}

func recordToTransaction(row transactionRecord) (*domain.Transaction, error) {
	date, err := domain.ParseDate(row.Date)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", row.Amount, err)
	}
	return &domain.Transaction{
		Date:           date,
		Particulars:    row.Particulars,
		Name:           row.Name,
		RefNo:          row.RefNo,
		Amount:         amount,
		Direction:      domain.Direction(row.Direction),
		RunningBalance: row.RunningBalance,
		Classification: domain.Classification(row.Classification),
		Tag:            row.Tag,
		SequenceNumber: row.SequenceNumber,
		Source:         domain.Source(row.Source),
		Selected:       row.Selected,
	}, nil
}
