package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/statement-auditor/internal/domain"
	"github.com/dvloznov/statement-auditor/internal/extract"
	"github.com/dvloznov/statement-auditor/internal/normalize"
	"github.com/dvloznov/statement-auditor/internal/pipeline"
	"github.com/dvloznov/statement-auditor/internal/session"
)

// MockFetcher is a function-field mock for the statement fetcher.
type MockFetcher struct {
	FetchFunc func(ctx context.Context, location string) ([]byte, error)
}

func (m *MockFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, location)
	}
	return []byte("mock pdf data"), nil
}

// MockExtractor is a function-field mock for the table extractor.
type MockExtractor struct {
	ExtractTablesFunc func(ctx context.Context, data []byte) ([]extract.Page, error)
}

func (m *MockExtractor) ExtractTables(ctx context.Context, data []byte) ([]extract.Page, error) {
	if m.ExtractTablesFunc != nil {
		return m.ExtractTablesFunc(ctx, data)
	}
	return nil, nil
}

// MockPersister records save calls.
type MockPersister struct {
	Saved int
	Err   error
}

func (m *MockPersister) Save(*session.Session) error {
	m.Saved++
	return m.Err
}

func statementPages() []extract.Page {
	return []extract.Page{
		{Tables: []extract.Table{{
			{"Date", "Particulars", "Withdrawals", "Deposits", "Balance"},
			{"15-03-2024", "NEFT FROM ACME", "None", "12,500.00", "45,230.50"},
			{"16-03-2024", "CHEQUE 104223", "3,000.00", "None", "42,230.50"},
		}}},
		{}, // page without tables
	}
}

func TestStatementPipeline(t *testing.T) {
	sess := session.New(session.DefaultSettings())
	persister := &MockPersister{}
	extractor := &MockExtractor{
		ExtractTablesFunc: func(ctx context.Context, data []byte) ([]extract.Page, error) {
			return statementPages(), nil
		},
	}

	p := pipeline.NewStatementPipeline(&MockFetcher{}, extractor, persister)
	state := &pipeline.State{
		Location: "statement.pdf",
		Source:   domain.SourceBank,
		Session:  sess,
	}

	if err := p.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(sess.Ledger.Transactions) != 2 {
		t.Fatalf("ledger has %d transactions, want 2", len(sess.Ledger.Transactions))
	}
	if state.Dropped != 1 {
		t.Errorf("dropped = %d, want 1 (header row)", state.Dropped)
	}
	if persister.Saved != 1 {
		t.Errorf("session saved %d times, want 1", persister.Saved)
	}
	if state.ImportID == "" {
		t.Error("import ID not stamped")
	}
}

func TestStatementPipelineEmptyExtraction(t *testing.T) {
	sess := session.New(session.DefaultSettings())
	extractor := &MockExtractor{
		ExtractTablesFunc: func(ctx context.Context, data []byte) ([]extract.Page, error) {
			return []extract.Page{{Tables: []extract.Table{{
				{"Date", "Particulars", "Withdrawals", "Deposits", "Balance"},
			}}}}, nil
		},
	}

	p := pipeline.NewStatementPipeline(&MockFetcher{}, extractor, nil)
	state := &pipeline.State{Location: "empty.pdf", Source: domain.SourceBank, Session: sess}

	err := p.Execute(context.Background(), state)
	if !errors.Is(err, normalize.ErrNoTransactions) {
		t.Fatalf("error = %v, want ErrNoTransactions", err)
	}
	if len(sess.Ledger.Transactions) != 0 {
		t.Error("nothing should be appended on empty extraction")
	}
}

func TestStatementPipelineFetchFailure(t *testing.T) {
	fetcher := &MockFetcher{
		FetchFunc: func(ctx context.Context, location string) ([]byte, error) {
			return nil, errors.New("no such object")
		},
	}
	p := pipeline.NewStatementPipeline(fetcher, &MockExtractor{}, nil)
	state := &pipeline.State{
		Location: "gs://bucket/missing.pdf",
		Source:   domain.SourceBank,
		Session:  session.New(session.DefaultSettings()),
	}
	if err := p.Execute(context.Background(), state); err == nil {
		t.Fatal("expected fetch error to propagate")
	}
}

func TestImportTabularIsolatesFileFailures(t *testing.T) {
	sess := session.New(session.DefaultSettings())

	good := "Date,ID,Name,Items,Ref_No,Mode,Inflow,Outflow,Net\n" +
		"05-04-2024,inv-deposit,Ravi,Pooja Seve,Manual,Cash,1500.00,,1500.00\n"
	files := []pipeline.ImportFile{
		{Name: "broken.csv", Data: []byte("")},
		{Name: "good.csv", Data: []byte(good)},
	}

	results := pipeline.ImportTabular(context.Background(), sess, files)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Err == nil {
		t.Error("broken file should report an error")
	}
	if results[1].Err != nil {
		t.Errorf("good file failed: %v", results[1].Err)
	}
	if results[1].Accepted != 1 {
		t.Errorf("good file accepted %d rows, want 1", results[1].Accepted)
	}
	if len(sess.Ledger.Transactions) != 1 {
		t.Errorf("ledger has %d transactions, want 1", len(sess.Ledger.Transactions))
	}
}
