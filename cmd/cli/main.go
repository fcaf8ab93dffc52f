// Command cli drives an audit session from the terminal. Each invocation
// loads the most recent session from the sqlite store, runs one operation
// and persists the result, so a full audit can be scripted step by step.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-auditor/internal/archive"
	"github.com/dvloznov/statement-auditor/internal/classify"
	"github.com/dvloznov/statement-auditor/internal/config"
	"github.com/dvloznov/statement-auditor/internal/domain"
	"github.com/dvloznov/statement-auditor/internal/export"
	"github.com/dvloznov/statement-auditor/internal/extract"
	infraBQ "github.com/dvloznov/statement-auditor/internal/infra/bigquery"
	"github.com/dvloznov/statement-auditor/internal/ledger"
	"github.com/dvloznov/statement-auditor/internal/logger"
	"github.com/dvloznov/statement-auditor/internal/pipeline"
	"github.com/dvloznov/statement-auditor/internal/reconcile"
	"github.com/dvloznov/statement-auditor/internal/session"
)

const usage = `usage: cli <command> [flags]

commands:
  ingest      extract a statement PDF into the session ledger
  import      import CSV/XLSX files into the session ledger
  add         add one manual ledger entry
  assign      assign sequence numbers to a classification
  summary     print aggregated totals
  reconcile   print the reconciliation report
  export      write the ledger as CSV, XLSX or invoice PDF
  publish     push the ledger to BigQuery
  query       list published ledger rows for a date range
  reset       discard the ledger and start a fresh session
`

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	store, err := session.NewStore(cfg.SessionDBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.SessionDBPath).Msg("Failed to open session store")
	}

	sess, err := store.Latest()
	if errors.Is(err, session.ErrNotFound) {
		sess = session.New(session.Settings{
			InvoiceStart:  cfg.InvoiceStart,
			ExpenseStart:  cfg.ExpenseStart,
			InvoicePrefix: cfg.InvoicePrefix,
			OpeningBank:   cfg.OpeningBank,
			OpeningCash:   cfg.OpeningCash,
		})
		err = nil
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load session")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	switch os.Args[1] {
	case "ingest":
		err = runIngest(ctx, cfg, sess, store, os.Args[2:])
	case "import":
		err = runImport(ctx, sess, store, os.Args[2:])
	case "add":
		err = runAdd(sess, store, os.Args[2:])
	case "assign":
		err = runAssign(sess, store, os.Args[2:])
	case "summary":
		err = runSummary(sess)
	case "reconcile":
		err = runReconcile(sess)
	case "export":
		err = runExport(sess, os.Args[2:])
	case "publish":
		err = runPublish(ctx, cfg, sess)
	case "query":
		err = runQuery(ctx, cfg, os.Args[2:])
	case "reset":
		sess.Reset()
		if err = store.Save(sess); err == nil {
			fmt.Printf("New session %s\n", sess.ID)
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("Command failed")
	}
}

func runIngest(ctx context.Context, cfg *config.Config, sess *session.Session, store *session.Store, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	file := fs.String("file", "", "statement PDF path or gs:// URI")
	source := fs.String("source", string(domain.SourceBank), "statement source: Bank or Cash")
	fs.Parse(args)

	if *file == "" {
		return errors.New("-file is required")
	}
	src, err := parseSource(*source)
	if err != nil {
		return err
	}

	state := &pipeline.State{Location: *file, Source: src, Session: sess}
	p := pipeline.NewStatementPipeline(archive.Fetcher{}, extract.NewGeminiExtractor(cfg.GeminiModel), store)
	if err := p.Execute(ctx, state); err != nil {
		return err
	}

	fmt.Printf("Imported %d transactions (%d rows dropped) from %s\n", len(state.Accepted), state.Dropped, *file)
	return nil
}

func runImport(ctx context.Context, sess *session.Session, store *session.Store, args []string) error {
	if len(args) == 0 {
		return errors.New("at least one CSV/XLSX file is required")
	}

	files := make([]pipeline.ImportFile, 0, len(args))
	for _, name := range args {
		data, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		files = append(files, pipeline.ImportFile{Name: name, Data: data})
	}

	for _, res := range pipeline.ImportTabular(ctx, sess, files) {
		if res.Err != nil {
			fmt.Printf("%s: failed: %v\n", res.Name, res.Err)
			continue
		}
		fmt.Printf("%s: %d imported, %d dropped\n", res.Name, res.Accepted, res.Dropped)
	}
	return store.Save(sess)
}

func runAdd(sess *session.Session, store *session.Store, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	date := fs.String("date", "", "entry date, DD-MM-YYYY")
	tag := fs.String("tag", "", "ID tag, or the invoice prefix to auto-number")
	name := fs.String("name", "", "counterparty name")
	items := fs.String("items", "", "particulars")
	refNo := fs.String("ref", "", "reference number")
	mode := fs.String("mode", string(domain.SourceBank), "Bank or Cash")
	amount := fs.String("amount", "", "amount, non-negative")
	fs.Parse(args)

	src, err := parseSource(*mode)
	if err != nil {
		return err
	}
	amt, err := decimal.NewFromString(*amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", *amount, err)
	}

	tx, err := sess.AddManualEntry(session.ManualEntry{
		Date:   *date,
		Tag:    *tag,
		Name:   *name,
		Items:  *items,
		RefNo:  *refNo,
		Mode:   src,
		Amount: amt,
	})
	if err != nil {
		return err
	}
	if err := store.Save(sess); err != nil {
		return err
	}

	fmt.Printf("Added %s %s %s (%s)\n", domain.FormatDate(tx.Date), tx.Tag, tx.Amount, tx.Classification)
	return nil
}

func runAssign(sess *session.Session, store *session.Store, args []string) error {
	fs := flag.NewFlagSet("assign", flag.ExitOnError)
	class := fs.String("class", string(domain.Invoice), "classification: Invoice or Expense")
	start := fs.Int("start", 0, "starting number (defaults from settings)")
	fs.Parse(args)

	c, err := parseClassification(*class)
	if err != nil {
		return err
	}
	n := *start
	if n == 0 {
		n = sess.Settings.InvoiceStart
		if c == domain.Expense {
			n = sess.Settings.ExpenseStart
		}
	}

	classify.AssignNumbers(sess.Ledger, c, n)
	if err := store.Save(sess); err != nil {
		return err
	}

	fmt.Printf("Numbered %d %s transactions from %d\n", len(sess.Ledger.ByClassification(c)), c, n)
	return nil
}

func runSummary(sess *session.Session) error {
	s := ledger.Aggregate(sess.Ledger)

	fmt.Printf("Total inflow:  %s\n", s.TotalInflow)
	fmt.Printf("Total outflow: %s\n", s.TotalOutflow)
	fmt.Printf("Net:           %s\n", s.Net())
	for _, src := range sess.Ledger.Sources() {
		t := s.BySource[src]
		fmt.Printf("  %s: +%s -%s (net %s)\n", src, t.Inflow, t.Outflow, t.Net())
	}
	for _, m := range s.Months() {
		t := s.ByMonth[m]
		fmt.Printf("  %s: +%s -%s\n", m, t.Inflow, t.Outflow)
	}
	return nil
}

func runReconcile(sess *session.Session) error {
	report := reconcile.Run(sess.Ledger, nil)

	fmt.Printf("Opening balance:  %s\n", report.OpeningBalance)
	fmt.Printf("Expected closing: %s\n", report.ExpectedClosing)
	fmt.Printf("Actual closing:   %s\n", report.ActualClosing)
	fmt.Printf("Difference:       %s\n", report.Difference)
	fmt.Printf("Verdict:          %s\n", report.Verdict)
	if !report.Transfer.Matched {
		fmt.Printf("Transfer mismatch: bank withdrawals %s vs cash deposits %s\n",
			report.Transfer.BankWithdrawals, report.Transfer.CashDeposits)
	}
	for src, derived := range report.DerivedOpenings {
		fmt.Printf("No %s opening balance declared; last reported balance suggests %s\n", src, derived)
	}
	return nil
}

func runExport(sess *session.Session, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "csv", "csv, xlsx or pdf")
	out := fs.String("out", "", "output file path")
	class := fs.String("class", "", "optional classification filter (csv only)")
	fs.Parse(args)

	if *out == "" {
		return errors.New("-out is required")
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer f.Close()

	switch *format {
	case "csv":
		txns := sess.Ledger.Transactions
		if *class != "" {
			c, err := parseClassification(*class)
			if err != nil {
				return err
			}
			txns = export.Filter(txns, export.Classified(c))
		}
		err = export.WriteCSV(f, txns)
	case "xlsx":
		err = export.WriteWorkbook(f, sess.Ledger, ledger.Aggregate(sess.Ledger))
	case "pdf":
		txns := export.Filter(sess.Ledger.Transactions, export.SelectedInvoices)
		if len(txns) == 0 {
			txns = export.Filter(sess.Ledger.Transactions, export.Classified(domain.Invoice))
		}
		if len(txns) == 0 {
			err = errors.New("no invoices to print")
			break
		}
		err = export.WriteInvoicePDF(f, txns)
	default:
		err = fmt.Errorf("unknown format %q", *format)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", *out)
	return nil
}

func runPublish(ctx context.Context, cfg *config.Config, sess *session.Session) error {
	if cfg.BQProject == "" {
		return errors.New("BQ_PROJECT is not configured")
	}

	pub, err := infraBQ.NewPublisher(ctx, cfg.BQProject, cfg.BQDataset)
	if err != nil {
		return err
	}
	defer pub.Close()

	if err := pub.Publish(ctx, sess.ID, sess.Ledger.Transactions); err != nil {
		return err
	}
	fmt.Printf("Published %d transactions\n", len(sess.Ledger.Transactions))
	return nil
}

func runQuery(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	from := fs.String("from", "", "start date, DD-MM-YYYY")
	to := fs.String("to", "", "end date, DD-MM-YYYY (inclusive)")
	fs.Parse(args)

	if cfg.BQProject == "" {
		return errors.New("BQ_PROJECT is not configured")
	}
	start, err := domain.ParseDate(*from)
	if err != nil {
		return fmt.Errorf("invalid -from: %w", err)
	}
	end, err := domain.ParseDate(*to)
	if err != nil {
		return fmt.Errorf("invalid -to: %w", err)
	}

	pub, err := infraBQ.NewPublisher(ctx, cfg.BQProject, cfg.BQDataset)
	if err != nil {
		return err
	}
	defer pub.Close()

	rows, err := pub.QueryByDateRange(ctx, start, end)
	if err != nil {
		return err
	}
	for _, row := range rows {
		fmt.Printf("%s  %-10s %-12s %10.2f %-7s %s\n",
			domain.FormatDate(row.EntryDate), row.SequenceNumber, row.Classification,
			row.Amount, row.Direction, row.Particulars)
	}
	fmt.Printf("%d rows\n", len(rows))
	return nil
}

func parseSource(s string) (domain.Source, error) {
	switch strings.TrimSpace(s) {
	case string(domain.SourceBank):
		return domain.SourceBank, nil
	case string(domain.SourceCash):
		return domain.SourceCash, nil
	default:
		return "", fmt.Errorf("source must be %q or %q", domain.SourceBank, domain.SourceCash)
	}
}

func parseClassification(s string) (domain.Classification, error) {
	switch strings.TrimSpace(s) {
	case string(domain.Invoice):
		return domain.Invoice, nil
	case string(domain.Expense):
		return domain.Expense, nil
	default:
		return "", fmt.Errorf("unknown classification %q", s)
	}
}
