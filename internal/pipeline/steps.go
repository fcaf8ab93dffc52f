package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dvloznov/statement-auditor/internal/extract"
	"github.com/dvloznov/statement-auditor/internal/logger"
	"github.com/dvloznov/statement-auditor/internal/normalize"
)

// FetchStatementStep loads the statement bytes and stamps the import ID.
type FetchStatementStep struct {
	Fetcher Fetcher
}

func (s *FetchStatementStep) Execute(ctx context.Context, state *State) error {
	state.ImportID = uuid.NewString()
	data, err := s.Fetcher.Fetch(ctx, state.Location)
	if err != nil {
		return fmt.Errorf("fetch %q: %w", state.Location, err)
	}
	state.Data = data
	return nil
}

// ExtractTablesStep hands the statement to the table extraction collaborator.
type ExtractTablesStep struct {
	Extractor extract.Extractor
}

func (s *ExtractTablesStep) Execute(ctx context.Context, state *State) error {
	pages, err := s.Extractor.ExtractTables(ctx, state.Data)
	if err != nil {
		return fmt.Errorf("extract tables: %w", err)
	}
	state.Pages = pages
	return nil
}

// NormalizeRowsStep converts the extracted rows into canonical transactions.
// Malformed rows are dropped, not fatal; zero usable rows surfaces
// normalize.ErrNoTransactions so the caller can warn and stop.
type NormalizeRowsStep struct{}

func (s *NormalizeRowsStep) Execute(ctx context.Context, state *State) error {
	res, err := normalize.TableRows(extract.Rows(state.Pages), state.Source)
	if err != nil {
		return err
	}
	state.Accepted = res.Transactions
	state.Dropped = res.Dropped

	if res.Dropped > 0 {
		log := logger.FromContext(ctx)
		log.Debug().
			Str("import_id", state.ImportID).
			Int("dropped", res.Dropped).
			Msg("Dropped unparseable statement rows")
	}
	return nil
}

// AppendToSessionStep appends the accepted transactions to the session
// ledger. Appending is unconditional: re-importing a file duplicates rows.
type AppendToSessionStep struct{}

func (s *AppendToSessionStep) Execute(ctx context.Context, state *State) error {
	state.Session.Append(state.Accepted...)
	log := logger.FromContext(ctx)
	log.Info().
		Str("import_id", state.ImportID).
		Str("source", string(state.Source)).
		Int("accepted", len(state.Accepted)).
		Int("dropped", state.Dropped).
		Msg("Statement imported")
	return nil
}

// PersistSessionStep saves the session so the next invocation picks it up.
type PersistSessionStep struct {
	Persister Persister
}

func (s *PersistSessionStep) Execute(ctx context.Context, state *State) error {
	if err := s.Persister.Save(state.Session); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}
