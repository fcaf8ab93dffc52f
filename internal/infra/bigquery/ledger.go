// Package bigquery publishes finalized ledgers to a BigQuery dataset for
// long-term analysis.
package bigquery

import (
	"context"
	"fmt"
	"time"

	bq "cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/statement-auditor/internal/domain"
)

const ledgerTable = "ledger_entries"

// LedgerRow is one published ledger entry.
type LedgerRow struct {
	SessionID      string        `bigquery:"session_id"`
	EntryDate      civil.Date    `bigquery:"entry_date"`
	Particulars    string        `bigquery:"particulars"`
	Name           string        `bigquery:"name"`
	RefNo          string        `bigquery:"ref_no"`
	Amount         float64       `bigquery:"amount"`
	Direction      string        `bigquery:"direction"`
	RunningBalance bq.NullString `bigquery:"running_balance"`
	Classification string        `bigquery:"classification"`
	Tag            string        `bigquery:"tag"`
	SequenceNumber string        `bigquery:"sequence_number"`
	Source         string        `bigquery:"source"`
	PublishedTS    time.Time     `bigquery:"published_ts"`
}

// Publisher pushes ledger rows into <project>.<dataset>.ledger_entries.
type Publisher struct {
	client  *bq.Client
	project string
	dataset string
}

// NewPublisher creates a publisher for the given project and dataset.
func NewPublisher(ctx context.Context, project, dataset string) (*Publisher, error) {
	client, err := bq.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewPublisher: bigquery client: %w", err)
	}
	return &Publisher{client: client, project: project, dataset: dataset}, nil
}

// Close releases the underlying client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

// Publish inserts the session's transactions as ledger rows.
func (p *Publisher) Publish(ctx context.Context, sessionID string, txns []*domain.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]*LedgerRow, 0, len(txns))
	for _, tx := range txns {
		rows = append(rows, toRow(sessionID, tx, now))
	}

	table := p.client.DatasetInProject(p.project, p.dataset).Table(ledgerTable)
	if err := table.Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("Publish: inserting %d rows: %w", len(rows), err)
	}
	return nil
}

func toRow(sessionID string, tx *domain.Transaction, now time.Time) *LedgerRow {
	amount, _ := tx.Amount.Float64()
	return &LedgerRow{
		SessionID:      sessionID,
		EntryDate:      tx.Date,
		Particulars:    tx.Particulars,
		Name:           tx.Name,
		RefNo:          tx.RefNo,
		Amount:         amount,
		Direction:      string(tx.Direction),
		RunningBalance: bq.NullString{StringVal: tx.RunningBalance, Valid: tx.RunningBalance != ""},
		Classification: string(tx.Classification),
		Tag:            tx.Tag,
		SequenceNumber: tx.SequenceNumber,
		Source:         string(tx.Source),
		PublishedTS:    now,
	}
}

// QueryByDateRange returns published rows whose entry date falls within the
// given range, inclusive.
func (p *Publisher) QueryByDateRange(ctx context.Context, start, end civil.Date) ([]*LedgerRow, error) {
	q := p.client.Query(fmt.Sprintf(`
		SELECT
			session_id, entry_date, particulars, name, ref_no, amount,
			direction, running_balance, classification, tag,
			sequence_number, source, published_ts
		FROM %s.%s
		WHERE entry_date >= @start_date AND entry_date <= @end_date
		ORDER BY entry_date`, p.dataset, ledgerTable))
	q.Parameters = []bq.QueryParameter{
		{Name: "start_date", Value: start},
		{Name: "end_date", Value: end},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryByDateRange: run query: %w", err)
	}

	var rows []*LedgerRow
	for {
		var row LedgerRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryByDateRange: iterate: %w", err)
		}
		rows = append(rows, &row)
	}
	return rows, nil
}
