package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	apihttp "fee-ledger/internal/api/http"
	"fee-ledger/internal/audit"
	"fee-ledger/internal/auth"
	catalog "fee-ledger/internal/catalog/domain"
	catalogmemory "fee-ledger/internal/catalog/infrastructure/memory"
	"fee-ledger/internal/ledger/application"
	ledgermemory "fee-ledger/internal/ledger/infrastructure/memory"
	students "fee-ledger/internal/students/domain"
	studentmemory "fee-ledger/internal/students/infrastructure/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type testServer struct {
	handler *Handler
	audit   *audit.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	fees := catalogmemory.NewRepository()
	if err := fees.SaveFeeEntry(ctx, &catalog.FeeEntry{
		ID: "fee-tuition", Name: "Tuition", Amount: decimal.RequireFromString("1000"), Active: true,
		Scope: catalog.Scope{AcademicYearID: "2026"},
	}); err != nil {
		t.Fatalf("save fee: %v", err)
	}
	directory := studentmemory.NewDirectory(students.Student{ID: "stu-001", FullName: "Ada Namutebi", Active: true})
	recorder := &audit.Recorder{}
	engine, err := application.NewEngine(ledgermemory.NewStore(), directory, fees,
		application.WithClock(fixedClock{now: time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)}),
		application.WithAuditLogger(recorder),
		application.WithLogger(log.New(io.Discard, "", 0)),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	handler, err := NewHandler(engine,
		WithStudentDirectory(directory),
		WithStatementHeader("Hillside Primary", "UGX"),
		WithAuditLogger(recorder),
		WithAuditReader(recorder),
		WithLogger(log.New(io.Discard, "", 0)),
	)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return &testServer{handler: handler, audit: recorder}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.RoleAdmin, "admin-01"))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func (s *testServer) createEntry(t *testing.T) entryResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/ledger/entries",
		`{"student_id":"stu-001","catalog_entry_id":"fee-tuition","discount_amount":"100","due_date":"2026-04-01"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rec.Code, rec.Body.String())
	}
	return decode[entryResponse](t, rec)
}

func TestCreateAndPay(t *testing.T) {
	s := newTestServer(t)
	entry := s.createEntry(t)
	if entry.FinalAmount != "900.00" || entry.Balance != "900.00" || entry.Status != "pending" || entry.CreatedBy != "admin-01" {
		t.Fatalf("created entry: %+v", entry)
	}

	paymentPath := "/api/v1/ledger/entries/" + entry.ID + "/payments"
	rec := s.do(t, http.MethodPost, paymentPath, `{"amount":"400","method":"mobile_money","external_ref":"MM-1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("payment status=%d body=%s", rec.Code, rec.Body.String())
	}
	first := decode[paymentResultResponse](t, rec)
	if first.Balance != "500.00" || first.Status != "partial" || first.AlreadyApplied {
		t.Fatalf("payment result: %+v", first)
	}

	rec = s.do(t, http.MethodPost, paymentPath, `{"amount":"400","method":"mobile_money","external_ref":"MM-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("retry status=%d body=%s", rec.Code, rec.Body.String())
	}
	retry := decode[paymentResultResponse](t, rec)
	if !retry.AlreadyApplied || retry.Payment.ID != first.Payment.ID {
		t.Fatalf("retry result: %+v", retry)
	}

	rec = s.do(t, http.MethodPost, paymentPath, `{"amount":"600","method":"cash"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("overpayment status=%d", rec.Code)
	}
	errBody := decode[apihttp.ErrorResponse](t, rec)
	if errBody.Error != "overpayment" || errBody.Message != "payment exceeds outstanding balance by 100.00 (balance 500.00, payment 600.00)" {
		t.Fatalf("overpayment body: %+v", errBody)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/ledger/entries/"+entry.ID, "")
	detail := decode[entryDetailResponse](t, rec)
	if len(detail.Payments) != 1 || detail.Paid != "400.00" {
		t.Fatalf("detail: %+v", detail)
	}
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)
	entry := s.createEntry(t)

	rec := s.do(t, http.MethodPost, "/api/v1/ledger/entries", `{"catalog_entry_id":"fee-tuition"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing student status=%d", rec.Code)
	}
	body := decode[apihttp.ErrorResponse](t, rec)
	if body.Fields["student_id"] != "required" {
		t.Fatalf("fields: %+v", body.Fields)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/ledger/entries/"+entry.ID+"/payments", `{"amount":"10","method":"barter"}`)
	if rec.Code != http.StatusBadRequest || decode[apihttp.ErrorResponse](t, rec).Fields["method"] != "oneof" {
		t.Fatalf("bad method status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/v1/ledger/entries/"+entry.ID+"/payments", `{"amount":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json status=%d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/ledger/entries?status=late", "")
	if rec.Code != http.StatusBadRequest || decode[apihttp.ErrorResponse](t, rec).Error != "invalid_status" {
		t.Fatalf("bad status filter status=%d body=%s", rec.Code, rec.Body.String())
	}

	oversized := `{"amount":"10","method":"cash","remarks":"` + strings.Repeat("x", 1<<20) + `"}`
	rec = s.do(t, http.MethodPost, "/api/v1/ledger/entries/"+entry.ID+"/payments", oversized)
	if rec.Code != http.StatusRequestEntityTooLarge || decode[apihttp.ErrorResponse](t, rec).Error != "request_too_large" {
		t.Fatalf("oversized body status=%d", rec.Code)
	}
}

func TestAmendDiscountRequiresExplicitValue(t *testing.T) {
	s := newTestServer(t)
	entry := s.createEntry(t)
	base := "/api/v1/ledger/entries/" + entry.ID

	for _, body := range []string{`{"reason":"typo in client"}`, `{"discount":null,"reason":"typo in client"}`} {
		rec := s.do(t, http.MethodPost, base+"/discount", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status=%d body=%s", body, rec.Code, rec.Body.String())
		}
		if got := decode[apihttp.ErrorResponse](t, rec).Fields["discount"]; got != "required" {
			t.Fatalf("body %s: discount field=%q", body, got)
		}
	}

	current := decode[entryDetailResponse](t, s.do(t, http.MethodGet, base, ""))
	if current.DiscountAmount != "100.00" || current.FinalAmount != "900.00" || current.Version != entry.Version {
		t.Fatalf("entry changed: %+v", current.entryResponse)
	}
	rec := s.do(t, http.MethodGet, base+"/amendments", "")
	if amendments := decode[[]amendmentResponse](t, rec); len(amendments) != 0 {
		t.Fatalf("expected no amendments, got %+v", amendments)
	}

	rec = s.do(t, http.MethodPost, base+"/discount", `{"discount":"0","reason":"bursary withdrawn"}`)
	if rec.Code != http.StatusOK || decode[amendResultResponse](t, rec).Entry.FinalAmount != "1000.00" {
		t.Fatalf("explicit zero discount status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestErrorStatusMapping(t *testing.T) {
	s := newTestServer(t)
	s.createEntry(t)

	rec := s.do(t, http.MethodGet, "/api/v1/ledger/entries/missing", "")
	if rec.Code != http.StatusNotFound || decode[apihttp.ErrorResponse](t, rec).Error != "entry_not_found" {
		t.Fatalf("missing entry status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/v1/ledger/entries",
		`{"student_id":"stu-001","catalog_entry_id":"fee-tuition","due_date":"2026-04-01"}`)
	if rec.Code != http.StatusConflict || decode[apihttp.ErrorResponse](t, rec).Error != "duplicate_assignment" {
		t.Fatalf("duplicate status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPut, "/api/v1/ledger/entries", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("put status=%d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/v1/ledger/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route status=%d", rec.Code)
	}
}

func TestDiscountWaiveAndDelete(t *testing.T) {
	s := newTestServer(t)
	entry := s.createEntry(t)
	base := "/api/v1/ledger/entries/" + entry.ID

	rec := s.do(t, http.MethodPost, base+"/discount", `{"discount":"250","reason":"scholarship"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("amend status=%d body=%s", rec.Code, rec.Body.String())
	}
	amended := decode[amendResultResponse](t, rec)
	if amended.Entry.FinalAmount != "750.00" || amended.Amendment.PreviousFinal != "900.00" {
		t.Fatalf("amend result: %+v", amended)
	}

	rec = s.do(t, http.MethodPost, base+"/waive", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("waive without reason status=%d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, base+"/waive", `{"reason":"bereavement"}`)
	if rec.Code != http.StatusOK || decode[entryResponse](t, rec).Status != "waived" {
		t.Fatalf("waive status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodDelete, base, "")
	if rec.Code != http.StatusBadRequest || decode[apihttp.ErrorResponse](t, rec).Error != "entry_has_dependents" {
		t.Fatalf("delete amended entry status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestStatementExports(t *testing.T) {
	s := newTestServer(t)
	entry := s.createEntry(t)
	s.do(t, http.MethodPost, "/api/v1/ledger/entries/"+entry.ID+"/payments", `{"amount":"100","method":"cash"}`)

	rec := s.do(t, http.MethodGet, "/api/v1/ledger/students/stu-001/statement?academic_year_id=2026", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("statement status=%d body=%s", rec.Code, rec.Body.String())
	}
	stmt := decode[statementResponse](t, rec)
	if len(stmt.Entries) != 1 || stmt.TotalBalance != "800.00" {
		t.Fatalf("statement: %+v", stmt)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/ledger/students/stu-001/statement.pdf?academic_year_id=2026", "")
	if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("pdf status=%d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="statement-stu-001-2026.pdf"` {
		t.Fatalf("content disposition: %s", got)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/ledger/students/stu-001/statement.xlsx", "")
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Fatalf("xlsx status=%d", rec.Code)
	}

	exports := 0
	for _, entry := range s.audit.Entries() {
		if entry.Action == audit.ActionStatementExport {
			exports++
		}
	}
	if exports != 2 {
		t.Fatalf("expected 2 export audit entries, got %d", exports)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/ledger/students/ghost/statement", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown student status=%d", rec.Code)
	}
}

func TestAmendmentsAndReceipt(t *testing.T) {
	s := newTestServer(t)
	entry := s.createEntry(t)
	base := "/api/v1/ledger/entries/" + entry.ID

	rec := s.do(t, http.MethodGet, base+"/amendments", "")
	if rec.Code != http.StatusOK || len(decode[[]amendmentResponse](t, rec)) != 0 {
		t.Fatalf("empty amendments status=%d body=%s", rec.Code, rec.Body.String())
	}
	s.do(t, http.MethodPost, base+"/discount", `{"discount":"150","reason":"bursary"}`)
	rec = s.do(t, http.MethodGet, base+"/amendments", "")
	amendments := decode[[]amendmentResponse](t, rec)
	if len(amendments) != 1 || amendments[0].NewFinal != "850.00" {
		t.Fatalf("amendments: %+v", amendments)
	}

	rec = s.do(t, http.MethodPost, base+"/payments", `{"amount":"50","method":"cash","external_ref":"CASH-9"}`)
	payment := decode[paymentResultResponse](t, rec)

	rec = s.do(t, http.MethodGet, base+"/payments/"+payment.Payment.ID+"/receipt.pdf", "")
	if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("receipt status=%d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, base+"/payments/missing/receipt.pdf", "")
	if rec.Code != http.StatusNotFound || decode[apihttp.ErrorResponse](t, rec).Error != "payment_not_found" {
		t.Fatalf("missing receipt status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodGet, "/api/v1/ledger/entries/ghost/amendments", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown entry amendments status=%d", rec.Code)
	}
}

func TestStudentAuditTrail(t *testing.T) {
	s := newTestServer(t)
	entry := s.createEntry(t)
	s.do(t, http.MethodPost, "/api/v1/ledger/entries/"+entry.ID+"/payments", `{"amount":"100","method":"cash"}`)

	rec := s.do(t, http.MethodGet, "/api/v1/ledger/students/stu-001/audit?limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("audit status=%d body=%s", rec.Code, rec.Body.String())
	}
	trail := decode[[]auditResponse](t, rec)
	if len(trail) != 1 || trail[0].Actor != "admin-01" {
		t.Fatalf("audit trail: %+v", trail)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/ledger/students/stu-001/audit", "")
	if got := len(decode[[]auditResponse](t, rec)); got != 2 {
		t.Fatalf("expected 2 audit entries, got %d", got)
	}
}
