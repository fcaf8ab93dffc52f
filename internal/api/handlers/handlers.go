package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-auditor/internal/api/middleware"
	"github.com/dvloznov/statement-auditor/internal/archive"
	"github.com/dvloznov/statement-auditor/internal/classify"
	"github.com/dvloznov/statement-auditor/internal/domain"
	"github.com/dvloznov/statement-auditor/internal/export"
	"github.com/dvloznov/statement-auditor/internal/extract"
	"github.com/dvloznov/statement-auditor/internal/ledger"
	"github.com/dvloznov/statement-auditor/internal/normalize"
	"github.com/dvloznov/statement-auditor/internal/pipeline"
	"github.com/dvloznov/statement-auditor/internal/reconcile"
	"github.com/dvloznov/statement-auditor/internal/session"
)

// maxUploadBytes caps multipart statement uploads at 32 MiB.
const maxUploadBytes = 32 << 20

// LedgerPublisher pushes finalized ledger entries to the external warehouse.
type LedgerPublisher interface {
	Publish(ctx context.Context, sessionID string, txns []*domain.Transaction) error
}

// SessionHandler serves every endpoint that reads or mutates the working
// session. A mutex serializes the operations: the audit workflow is one
// logical action at a time, and the HTTP layer enforces that.
type SessionHandler struct {
	mu        sync.Mutex
	sess      *session.Session
	persister pipeline.Persister
	extractor extract.Extractor
	publisher LedgerPublisher
	bucket    string
	log       zerolog.Logger
}

// NewSessionHandler creates the handler. persister, publisher and bucket are
// all optional: nil persister keeps the session in memory, nil publisher
// disables warehouse publishing, empty bucket skips statement archiving.
func NewSessionHandler(sess *session.Session, persister pipeline.Persister, extractor extract.Extractor, publisher LedgerPublisher, bucket string, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sess:      sess,
		persister: persister,
		extractor: extractor,
		publisher: publisher,
		bucket:    bucket,
		log:       log,
	}
}

// transactionView is the JSON shape of one ledger entry. Index is the
// position in the ledger, used to address the entry in mutation calls.
type transactionView struct {
	Index          int    `json:"index"`
	Date           string `json:"date"`
	ID             string `json:"id"`
	Name           string `json:"name"`
	Items          string `json:"items"`
	RefNo          string `json:"ref_no"`
	Mode           string `json:"mode"`
	Inflow         string `json:"inflow"`
	Outflow        string `json:"outflow"`
	Net            string `json:"net"`
	Balance        string `json:"balance,omitempty"`
	Tag            string `json:"tag,omitempty"`
	Classification string `json:"classification"`
	Selected       bool   `json:"selected"`
}

func viewOf(i int, tx *domain.Transaction) transactionView {
	id := tx.SequenceNumber
	if id == "" {
		id = tx.Tag
	}
	return transactionView{
		Index:          i,
		Date:           domain.FormatDate(tx.Date),
		ID:             id,
		Name:           tx.Name,
		Items:          tx.Particulars,
		RefNo:          tx.RefNo,
		Mode:           string(tx.Source),
		Inflow:         tx.Inflow().String(),
		Outflow:        tx.Outflow().String(),
		Net:            tx.Net().String(),
		Balance:        tx.RunningBalance,
		Tag:            tx.Tag,
		Classification: string(tx.Classification),
		Selected:       tx.Selected,
	}
}

// ListLedger handles GET /api/ledger
func (h *SessionHandler) ListLedger(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	txns := h.sess.Ledger.Transactions
	views := make([]transactionView, 0, len(txns))
	for i, tx := range txns {
		views = append(views, viewOf(i, tx))
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":   h.sess.ID,
		"transactions": views,
		"count":        len(views),
	})
}

// ProcessStatement handles POST /api/statements. The multipart form carries
// the statement file and a "source" field naming the originating ledger.
func (h *SessionHandler) ProcessStatement(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	source, err := parseSource(r.FormValue("source"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Statement file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read statement file")
		return
	}

	ctx := r.Context()
	location := header.Filename
	if h.bucket != "" {
		uri, err := archive.Upload(ctx, h.bucket, header.Filename, data)
		if err != nil {
			// Archiving is best effort; the import still runs.
			h.log.Warn().Err(err).Str("file", header.Filename).Msg("Statement archive failed")
		} else {
			location = uri
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	state := &pipeline.State{
		Location: location,
		Source:   source,
		Session:  h.sess,
	}
	p := pipeline.NewStatementPipeline(bytesFetcher(data), h.extractor, h.persister)
	if err := p.Execute(ctx, state); err != nil {
		if errors.Is(err, normalize.ErrNoTransactions) {
			middleware.WriteError(w, http.StatusUnprocessableEntity, "No transactions found in statement")
			return
		}
		h.log.Error().Err(err).Str("file", header.Filename).Msg("Statement processing failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Statement processing failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"import_id": state.ImportID,
		"source":    string(source),
		"accepted":  len(state.Accepted),
		"dropped":   state.Dropped,
	})
}

// ImportTabular handles POST /api/imports. The multipart form carries one or
// more CSV/XLSX files under "files"; failures are reported per file.
func (h *SessionHandler) ImportTabular(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "At least one file is required")
		return
	}

	files := make([]pipeline.ImportFile, 0, len(r.MultipartForm.File["files"]))
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Failed to open %s", fh.Filename))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read %s", fh.Filename))
			return
		}
		files = append(files, pipeline.ImportFile{Name: fh.Filename, Data: data})
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	results := pipeline.ImportTabular(r.Context(), h.sess, files)
	h.persist()

	out := make([]map[string]interface{}, 0, len(results))
	for _, res := range results {
		entry := map[string]interface{}{
			"name":     res.Name,
			"accepted": res.Accepted,
			"dropped":  res.Dropped,
		}
		if res.Err != nil {
			entry["error"] = res.Err.Error()
		}
		out = append(out, entry)
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"results": out})
}

// AddEntry handles POST /api/ledger/entries
func (h *SessionHandler) AddEntry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date   string `json:"date"`
		Tag    string `json:"tag"`
		Name   string `json:"name"`
		Items  string `json:"items"`
		RefNo  string `json:"ref_no"`
		Mode   string `json:"mode"`
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	source, err := parseSource(req.Mode)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid amount")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	tx, err := h.sess.AddManualEntry(session.ManualEntry{
		Date:   req.Date,
		Tag:    req.Tag,
		Name:   req.Name,
		Items:  req.Items,
		RefNo:  req.RefNo,
		Mode:   source,
		Amount: amount,
	})
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.persist()

	middleware.WriteJSON(w, http.StatusCreated, viewOf(len(h.sess.Ledger.Transactions)-1, tx))
}

// Classify handles POST /api/ledger/classify
func (h *SessionHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index int    `json:"index"`
		Tag   string `json:"tag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	tx, ok := h.transactionAt(req.Index)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "No transaction at index")
		return
	}
	classify.Apply(tx, req.Tag)
	h.persist()

	middleware.WriteJSON(w, http.StatusOK, viewOf(req.Index, tx))
}

// Select handles POST /api/ledger/select
func (h *SessionHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index    int  `json:"index"`
		Selected bool `json:"selected"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	tx, ok := h.transactionAt(req.Index)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "No transaction at index")
		return
	}
	tx.Selected = req.Selected
	h.persist()

	middleware.WriteJSON(w, http.StatusOK, viewOf(req.Index, tx))
}

// AssignNumbers handles POST /api/ledger/assign-numbers. Numbering is a full
// recompute for the classification: every matching transaction is
// renumbered in date order, manual edits included.
func (h *SessionHandler) AssignNumbers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Classification string `json:"classification"`
		Start          *int   `json:"start"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	class, err := parseClassification(req.Classification)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	start := h.defaultStart(class)
	if req.Start != nil {
		start = *req.Start
	}
	classify.AssignNumbers(h.sess.Ledger, class, start)
	h.persist()

	count := len(h.sess.Ledger.ByClassification(class))
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"classification": string(class),
		"start":          start,
		"numbered":       count,
	})
}

// Summary handles GET /api/summary
func (h *SessionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	middleware.WriteJSON(w, http.StatusOK, summaryView(ledger.Aggregate(h.sess.Ledger)))
}

// Reconcile handles GET /api/reconciliation
func (h *SessionHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := reconcile.Run(h.sess.Ledger, nil)
	middleware.WriteJSON(w, http.StatusOK, report)
}

// Settings handles GET and POST /api/settings
func (h *SessionHandler) Settings(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r.Method == http.MethodGet {
		middleware.WriteJSON(w, http.StatusOK, settingsView(h.sess.Settings))
		return
	}

	var req struct {
		InvoiceStart  *int    `json:"invoice_start"`
		ExpenseStart  *int    `json:"expense_start"`
		InvoicePrefix *string `json:"invoice_prefix"`
		OpeningBank   *string `json:"opening_bank"`
		OpeningCash   *string `json:"opening_cash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	settings := h.sess.Settings
	if req.InvoiceStart != nil {
		settings.InvoiceStart = *req.InvoiceStart
	}
	if req.ExpenseStart != nil {
		settings.ExpenseStart = *req.ExpenseStart
	}
	if req.InvoicePrefix != nil {
		settings.InvoicePrefix = *req.InvoicePrefix
	}
	if req.OpeningBank != nil {
		v, err := decimal.NewFromString(*req.OpeningBank)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid opening_bank")
			return
		}
		settings.OpeningBank = v
	}
	if req.OpeningCash != nil {
		v, err := decimal.NewFromString(*req.OpeningCash)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid opening_cash")
			return
		}
		settings.OpeningCash = v
	}

	h.sess.UpdateSettings(settings)
	h.persist()

	middleware.WriteJSON(w, http.StatusOK, settingsView(h.sess.Settings))
}

// Publish handles POST /api/ledger/publish. The whole ledger is pushed to
// the warehouse under the current session ID.
func (h *SessionHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.publisher == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Ledger publishing is not configured")
		return
	}

	txns := h.sess.Ledger.Transactions
	if err := h.publisher.Publish(r.Context(), h.sess.ID, txns); err != nil {
		h.log.Error().Err(err).Str("session_id", h.sess.ID).Msg("Ledger publish failed")
		middleware.WriteError(w, http.StatusBadGateway, "Ledger publish failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": h.sess.ID,
		"published":  len(txns),
	})
}

// Reset handles POST /api/session/reset
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sess.Reset()
	h.persist()

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"session_id": h.sess.ID})
}

// ExportCSV handles GET /api/export/csv. The optional classification query
// parameter narrows the export to one classification.
func (h *SessionHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	txns := h.sess.Ledger.Transactions
	if c := r.URL.Query().Get("classification"); c != "" {
		class, err := parseClassification(c)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		txns = export.Filter(txns, export.Classified(class))
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="ledger.csv"`)
	if err := export.WriteCSV(w, txns); err != nil {
		h.log.Error().Err(err).Msg("CSV export failed")
	}
}

// ExportWorkbook handles GET /api/export/workbook
func (h *SessionHandler) ExportWorkbook(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="audit.xlsx"`)
	if err := export.WriteWorkbook(w, h.sess.Ledger, ledger.Aggregate(h.sess.Ledger)); err != nil {
		h.log.Error().Err(err).Msg("Workbook export failed")
	}
}

// ExportInvoices handles GET /api/export/invoices. Selected invoices are
// printed; when nothing is selected, every invoice-classified transaction
// goes in.
func (h *SessionHandler) ExportInvoices(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	txns := export.Filter(h.sess.Ledger.Transactions, export.SelectedInvoices)
	if len(txns) == 0 {
		txns = export.Filter(h.sess.Ledger.Transactions, export.Classified(domain.Invoice))
	}
	if len(txns) == 0 {
		middleware.WriteError(w, http.StatusNotFound, "No invoices to print")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="invoices.pdf"`)
	if err := export.WriteInvoicePDF(w, txns); err != nil {
		h.log.Error().Err(err).Msg("Invoice export failed")
	}
}

func (h *SessionHandler) transactionAt(i int) (*domain.Transaction, bool) {
	txns := h.sess.Ledger.Transactions
	if i < 0 || i >= len(txns) {
		return nil, false
	}
	return txns[i], true
}

func (h *SessionHandler) defaultStart(c domain.Classification) int {
	if c == domain.Expense {
		return h.sess.Settings.ExpenseStart
	}
	return h.sess.Settings.InvoiceStart
}

// persist saves the session, logging rather than failing the request.
// Mutations already applied in memory stay applied.
func (h *SessionHandler) persist() {
	if h.persister == nil {
		return
	}
	if err := h.persister.Save(h.sess); err != nil {
		h.log.Error().Err(err).Str("session_id", h.sess.ID).Msg("Session persist failed")
	}
}

// bytesFetcher serves statement bytes already read from the request body.
type bytesFetcher []byte

func (b bytesFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	return []byte(b), nil
}

func parseSource(s string) (domain.Source, error) {
	switch s {
	case string(domain.SourceBank):
		return domain.SourceBank, nil
	case string(domain.SourceCash):
		return domain.SourceCash, nil
	default:
		return "", fmt.Errorf("source must be %q or %q", domain.SourceBank, domain.SourceCash)
	}
}

func parseClassification(s string) (domain.Classification, error) {
	switch s {
	case string(domain.Invoice):
		return domain.Invoice, nil
	case string(domain.Expense):
		return domain.Expense, nil
	case string(domain.Unclassified):
		return domain.Unclassified, nil
	default:
		return "", fmt.Errorf("unknown classification %q", s)
	}
}

func settingsView(s session.Settings) map[string]interface{} {
	return map[string]interface{}{
		"invoice_start":  s.InvoiceStart,
		"expense_start":  s.ExpenseStart,
		"invoice_prefix": s.InvoicePrefix,
		"opening_bank":   s.OpeningBank.String(),
		"opening_cash":   s.OpeningCash.String(),
	}
}

// summaryView flattens the aggregated summary for JSON: map keys become
// explicit fields so group totals stay addressable.
func summaryView(s *ledger.Summary) map[string]interface{} {
	groups := make([]map[string]interface{}, 0, len(s.ByGroup))
	for key, total := range s.ByGroup {
		groups = append(groups, map[string]interface{}{
			"classification": string(key.Classification),
			"direction":      string(key.Direction),
			"sum":            total.Sum.String(),
			"count":          total.Count,
		})
	}

	months := make([]map[string]interface{}, 0, len(s.ByMonth))
	for _, m := range s.Months() {
		total := s.ByMonth[m]
		months = append(months, map[string]interface{}{
			"month":   m,
			"inflow":  total.Inflow.String(),
			"outflow": total.Outflow.String(),
		})
	}

	sources := make(map[string]interface{}, len(s.BySource))
	for src, total := range s.BySource {
		sources[string(src)] = map[string]interface{}{
			"inflow":  total.Inflow.String(),
			"outflow": total.Outflow.String(),
			"net":     total.Net().String(),
		}
	}

	return map[string]interface{}{
		"total_inflow":  s.TotalInflow.String(),
		"total_outflow": s.TotalOutflow.String(),
		"net":           s.Net().String(),
		"by_group":      groups,
		"by_month":      months,
		"by_source":     sources,
	}
}
