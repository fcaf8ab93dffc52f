package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-auditor/internal/api/handlers"
	"github.com/dvloznov/statement-auditor/internal/domain"
	"github.com/dvloznov/statement-auditor/internal/extract"
	"github.com/dvloznov/statement-auditor/internal/session"
)

type mockExtractor struct {
	ExtractTablesFunc func(ctx context.Context, data []byte) ([]extract.Page, error)
}

func (m *mockExtractor) ExtractTables(ctx context.Context, data []byte) ([]extract.Page, error) {
	return m.ExtractTablesFunc(ctx, data)
}

func newHandler(t *testing.T, extractor extract.Extractor) (*handlers.SessionHandler, *session.Session) {
	t.Helper()
	sess := session.New(session.DefaultSettings())
	return handlers.NewSessionHandler(sess, nil, extractor, nil, "", zerolog.Nop()), sess
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestAddEntryAndList(t *testing.T) {
	h, _ := newHandler(t, nil)

	rec := postJSON(t, h.AddEntry, `{
		"date": "05-01-2024",
		"tag": "inv-deposit",
		"name": "Acme Ltd",
		"items": "January retainer",
		"mode": "Bank",
		"amount": "1500.00"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	assert.Equal(t, "Invoice", created["classification"])
	assert.Equal(t, "1500", created["inflow"])

	req := httptest.NewRequest(http.MethodGet, "/api/ledger", nil)
	listRec := httptest.NewRecorder()
	h.ListLedger(listRec, req)
	require.Equal(t, http.StatusOK, listRec.Code)

	out := decodeBody(t, listRec)
	assert.Equal(t, float64(1), out["count"])
}

func TestAddEntryGeneratesInvoiceID(t *testing.T) {
	h, sess := newHandler(t, nil)

	for range [2]int{} {
		rec := postJSON(t, h.AddEntry, `{
			"date": "05-01-2024",
			"tag": "INV-",
			"name": "Acme Ltd",
			"mode": "Bank",
			"amount": "100"
		}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	assert.Equal(t, "INV-1001", sess.Ledger.Transactions[0].Tag)
	assert.Equal(t, "INV-1002", sess.Ledger.Transactions[1].Tag)
}

func TestAddEntryRejectsBadDate(t *testing.T) {
	h, _ := newHandler(t, nil)

	rec := postJSON(t, h.AddEntry, `{
		"date": "2024-01-05",
		"tag": "inv-deposit",
		"mode": "Bank",
		"amount": "100"
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClassifyAndAssignNumbers(t *testing.T) {
	h, sess := newHandler(t, nil)

	for _, body := range []string{
		`{"date": "03-01-2024", "tag": "inv-loan", "mode": "Bank", "amount": "500"}`,
		`{"date": "01-01-2024", "tag": "inv-deposit", "mode": "Cash", "amount": "200"}`,
	} {
		rec := postJSON(t, h.AddEntry, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := postJSON(t, h.AssignNumbers, `{"classification": "Invoice"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody(t, rec)
	assert.Equal(t, float64(2), out["numbered"])
	assert.Equal(t, float64(1001), out["start"])

	// Date order, not insertion order.
	assert.Equal(t, "INV-1002", sess.Ledger.Transactions[0].SequenceNumber)
	assert.Equal(t, "INV-1001", sess.Ledger.Transactions[1].SequenceNumber)

	// Reclassify the loan entry as an expense and renumber both sides.
	rec = postJSON(t, h.Classify, `{"index": 0, "tag": "exp-other"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, h.AssignNumbers, `{"classification": "Expense"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "EXP-2001", sess.Ledger.Transactions[0].SequenceNumber)
}

func TestAssignNumbersUnknownClassification(t *testing.T) {
	h, _ := newHandler(t, nil)

	rec := postJSON(t, h.AssignNumbers, `{"classification": "Receipt"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessStatement(t *testing.T) {
	extractor := &mockExtractor{
		ExtractTablesFunc: func(ctx context.Context, data []byte) ([]extract.Page, error) {
			return []extract.Page{{Tables: []extract.Table{{
				{"Date", "Particulars", "Withdrawals", "Deposits", "Balance"},
				{"02-01-2024", "CHEQUE DEPOSIT", "", "1,200.00", "5,200.00"},
				{"03-01-2024", "ATM CASH", "300.00", "0", "4,900.00"},
			}}}}, nil
		},
	}
	h, sess := newHandler(t, extractor)

	rec := httptest.NewRecorder()
	h.ProcessStatement(rec, multipartStatement(t, "january.pdf", "Bank"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decodeBody(t, rec)
	assert.Equal(t, float64(2), out["accepted"])
	assert.Equal(t, float64(1), out["dropped"])
	assert.NotEmpty(t, out["import_id"])
	assert.Len(t, sess.Ledger.Transactions, 2)
}

func TestProcessStatementNoTransactions(t *testing.T) {
	extractor := &mockExtractor{
		ExtractTablesFunc: func(ctx context.Context, data []byte) ([]extract.Page, error) {
			return nil, nil
		},
	}
	h, sess := newHandler(t, extractor)

	rec := httptest.NewRecorder()
	h.ProcessStatement(rec, multipartStatement(t, "empty.pdf", "Cash"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, sess.Ledger.Transactions)
}

func TestProcessStatementBadSource(t *testing.T) {
	h, _ := newHandler(t, nil)

	rec := httptest.NewRecorder()
	h.ProcessStatement(rec, multipartStatement(t, "january.pdf", "Wallet"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportTabular(t *testing.T) {
	h, sess := newHandler(t, nil)

	csv := "Date,Items,Inflow,Outflow\n02-01-2024,Sales,100,\nnot-a-date,Broken,5,\n"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", "rows.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ImportTabular(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Len(t, sess.Ledger.Transactions, 1)
}

func TestReconcileEndpoint(t *testing.T) {
	h, _ := newHandler(t, nil)

	rec := postJSON(t, h.AddEntry, `{"date": "02-01-2024", "tag": "inv-deposit", "mode": "Bank", "amount": "250"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/reconciliation", nil)
	recRec := httptest.NewRecorder()
	h.Reconcile(recRec, req)
	require.Equal(t, http.StatusOK, recRec.Code)

	out := decodeBody(t, recRec)
	assert.Equal(t, "Reconciled", out["Verdict"])
}

func TestSettingsRoundTrip(t *testing.T) {
	h, sess := newHandler(t, nil)

	rec := postJSON(t, h.Settings, `{"opening_bank": "1000.50", "expense_start": 3001}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "1000.5", sess.Settings.OpeningBank.String())
	assert.Equal(t, 3001, sess.Settings.ExpenseStart)
	// Untouched fields keep their defaults.
	assert.Equal(t, 1001, sess.Settings.InvoiceStart)
}

func TestExportCSVFiltered(t *testing.T) {
	h, _ := newHandler(t, nil)

	for _, body := range []string{
		`{"date": "02-01-2024", "tag": "inv-deposit", "mode": "Bank", "amount": "100"}`,
		`{"date": "03-01-2024", "tag": "exp-other", "mode": "Cash", "amount": "40"}`,
	} {
		rec := postJSON(t, h.AddEntry, body)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/export/csv?classification=Expense", nil)
	rec := httptest.NewRecorder()
	h.ExportCSV(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "exp-other")
	assert.NotContains(t, body, "inv-deposit")
}

func TestExportInvoicesEmpty(t *testing.T) {
	h, _ := newHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/export/invoices", nil)
	rec := httptest.NewRecorder()
	h.ExportInvoices(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResetKeepsSettings(t *testing.T) {
	h, sess := newHandler(t, nil)

	rec := postJSON(t, h.AddEntry, `{"date": "02-01-2024", "tag": "inv-deposit", "mode": "Bank", "amount": "100"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	oldID := sess.ID

	req := httptest.NewRequest(http.MethodPost, "/api/session/reset", nil)
	resetRec := httptest.NewRecorder()
	h.Reset(resetRec, req)
	require.Equal(t, http.StatusOK, resetRec.Code)

	assert.NotEqual(t, oldID, sess.ID)
	assert.Empty(t, sess.Ledger.Transactions)
	assert.Equal(t, 1001, sess.Settings.InvoiceStart)
}

type mockPersister struct {
	SaveFunc func(s *session.Session) error
}

func (m *mockPersister) Save(s *session.Session) error {
	return m.SaveFunc(s)
}

func TestSelectPersists(t *testing.T) {
	sess := session.New(session.DefaultSettings())
	var saves int
	persister := &mockPersister{
		SaveFunc: func(s *session.Session) error {
			saves++
			return nil
		},
	}
	h := handlers.NewSessionHandler(sess, persister, nil, nil, "", zerolog.Nop())

	rec := postJSON(t, h.AddEntry, `{"date": "02-01-2024", "tag": "inv-deposit", "mode": "Bank", "amount": "100"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	savesAfterAdd := saves

	// The selection flag decides which invoices print; it must survive a
	// restart like every other mutation.
	rec = postJSON(t, h.Select, `{"index": 0, "selected": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, savesAfterAdd+1, saves)
	assert.True(t, sess.Ledger.Transactions[0].Selected)
}

type mockPublisher struct {
	PublishFunc func(ctx context.Context, sessionID string, txns []*domain.Transaction) error
}

func (m *mockPublisher) Publish(ctx context.Context, sessionID string, txns []*domain.Transaction) error {
	return m.PublishFunc(ctx, sessionID, txns)
}

func TestPublishLedger(t *testing.T) {
	sess := session.New(session.DefaultSettings())
	var published int
	pub := &mockPublisher{
		PublishFunc: func(ctx context.Context, sessionID string, txns []*domain.Transaction) error {
			published = len(txns)
			return nil
		},
	}
	h := handlers.NewSessionHandler(sess, nil, nil, pub, "", zerolog.Nop())

	rec := postJSON(t, h.AddEntry, `{"date": "02-01-2024", "tag": "inv-deposit", "mode": "Bank", "amount": "100"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/ledger/publish", nil)
	pubRec := httptest.NewRecorder()
	h.Publish(pubRec, req)
	require.Equal(t, http.StatusOK, pubRec.Code)
	assert.Equal(t, 1, published)
}

func TestPublishUnconfigured(t *testing.T) {
	h, _ := newHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/ledger/publish", nil)
	rec := httptest.NewRecorder()
	h.Publish(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func multipartStatement(t *testing.T, filename, source string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("source", source))
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/statements", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
