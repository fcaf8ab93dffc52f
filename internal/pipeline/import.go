package pipeline

import (
	"context"

	"github.com/dvloznov/statement-auditor/internal/extract"
	"github.com/dvloznov/statement-auditor/internal/logger"
	"github.com/dvloznov/statement-auditor/internal/normalize"
	"github.com/dvloznov/statement-auditor/internal/session"
)

// ImportFile is one file in a tabular import batch.
type ImportFile struct {
	Name string
	Data []byte
}

// ImportResult reports what happened to one file of a batch. Err is set for
// whole-file failures; Dropped counts rows rejected by normalization.
type ImportResult struct {
	Name     string
	Accepted int
	Dropped  int
	Err      error
}

// ImportTabular runs a batch of CSV/XLSX files into the session. Failures
// are isolated per file: a corrupt file is reported in its result and the
// rest of the batch still runs.
func ImportTabular(ctx context.Context, sess *session.Session, files []ImportFile) []ImportResult {
	log := logger.FromContext(ctx)
	results := make([]ImportResult, 0, len(files))

	for _, f := range files {
		res := ImportResult{Name: f.Name}

		rows, err := extract.ReadTabular(f.Name, f.Data)
		if err != nil {
			res.Err = err
			log.Error().Err(err).Str("file", f.Name).Msg("Import file failed")
			results = append(results, res)
			continue
		}

		norm, err := normalize.MappedRows(rows)
		if err != nil {
			// Zero usable rows: reportable, not fatal to the batch.
			res.Err = err
			res.Dropped = norm.Dropped
			results = append(results, res)
			continue
		}

		sess.Append(norm.Transactions...)
		res.Accepted = len(norm.Transactions)
		res.Dropped = norm.Dropped
		log.Info().Str("file", f.Name).
			Int("accepted", res.Accepted).
			Int("dropped", res.Dropped).
			Msg("File imported")
		results = append(results, res)
	}
	return results
}
