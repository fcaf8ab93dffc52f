// Package pipeline wires statement ingestion end to end: fetch the file,
// extract its tables, normalize the rows and append the result to the
// session. Each user action runs to completion before the next starts;
// there is no background processing.
package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-auditor/internal/domain"
	"github.com/dvloznov/statement-auditor/internal/extract"
	"github.com/dvloznov/statement-auditor/internal/session"
)

// Step is a single stage of the ingestion pipeline.
type Step interface {
	Execute(ctx context.Context, state *State) error
}

// State is the shared state threaded through the pipeline steps.
type State struct {
	// Location is a local path or a gs:// URI of the statement file.
	Location string
	Source   domain.Source
	Session  *session.Session

	ImportID string
	Data     []byte
	Pages    []extract.Page
	Accepted []*domain.Transaction
	Dropped  int
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []Step
}

// New creates a pipeline with the given steps.
func New(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially, stopping at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// Fetcher loads statement bytes from a location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Persister saves the session after a successful import.
type Persister interface {
	Save(s *session.Session) error
}

// NewStatementPipeline builds the standard statement ingestion pipeline.
// persister may be nil for purely in-memory sessions.
func NewStatementPipeline(fetcher Fetcher, extractor extract.Extractor, persister Persister) *Pipeline {
	steps := []Step{
		&FetchStatementStep{Fetcher: fetcher},
		&ExtractTablesStep{Extractor: extractor},
		&NormalizeRowsStep{},
		&AppendToSessionStep{},
	}
	if persister != nil {
		steps = append(steps, &PersistSessionStep{Persister: persister})
	}
	return New(steps...)
}
