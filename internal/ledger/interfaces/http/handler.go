package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	apihttp "fee-ledger/internal/api/http"
	"fee-ledger/internal/audit"
	"fee-ledger/internal/auth"
	"fee-ledger/internal/ledger/application"
	ledger "fee-ledger/internal/ledger/domain"
	"fee-ledger/internal/ledger/interfaces"
	"fee-ledger/internal/observability/metrics"
	students "fee-ledger/internal/students/domain"
)

const (
	pathPrefix   = "/api/v1/ledger/"
	dateLayout   = apihttp.DateLayout
	defaultLimit = 100
	maxLimit     = 1000
)

// Handler serves the ledger endpoints under /api/v1/ledger/.
type Handler struct {
	engine      *application.Engine
	decoder     *apihttp.Decoder
	directory   students.Directory
	auditLogger audit.Logger
	auditReader audit.Reader
	logger      *log.Logger
	schoolName  string
	currency    string
}

// Option customizes a Handler.
type Option func(*Handler)

// WithStudentDirectory lets statement exports show student names.
func WithStudentDirectory(directory students.Directory) Option {
	return func(h *Handler) { h.directory = directory }
}

// WithStatementHeader sets the school name and currency printed on exports.
func WithStatementHeader(schoolName, currency string) Option {
	return func(h *Handler) {
		h.schoolName = schoolName
		h.currency = currency
	}
}

// WithAuditLogger records statement exports.
func WithAuditLogger(logger audit.Logger) Option {
	return func(h *Handler) { h.auditLogger = logger }
}

// WithAuditReader exposes the student audit trail.
func WithAuditReader(reader audit.Reader) Option {
	return func(h *Handler) { h.auditReader = reader }
}

// WithLogger sets the handler logger.
func WithLogger(logger *log.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler constructs a ledger handler.
func NewHandler(engine *application.Engine, opts ...Option) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("ledger handler: nil engine")
	}
	h := &Handler{
		engine:  engine,
		decoder: apihttp.NewDecoder(),
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP routes /api/v1/ledger/ requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := apihttp.PathParts(r.URL.Path, pathPrefix)
	switch {
	case len(parts) == 1 && parts[0] == "entries":
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleCreate(w, r)
		default:
			apihttp.MethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case len(parts) == 2 && parts[0] == "entries":
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, parts[1])
		case http.MethodDelete:
			h.handleDelete(w, r, parts[1])
		default:
			apihttp.MethodNotAllowed(w, http.MethodGet, http.MethodDelete)
		}
	case len(parts) == 3 && parts[0] == "entries":
		h.handleEntryAction(w, r, parts[1], parts[2])
	case len(parts) == 5 && parts[0] == "entries" && parts[2] == "payments" && parts[4] == "receipt.pdf":
		if r.Method != http.MethodGet {
			apihttp.MethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleReceipt(w, r, parts[1], parts[3])
	case len(parts) == 3 && parts[0] == "students":
		if r.Method != http.MethodGet {
			apihttp.MethodNotAllowed(w, http.MethodGet)
			return
		}
		if parts[2] == "audit" {
			h.handleAuditTrail(w, r, parts[1])
			return
		}
		h.handleStatement(w, r, parts[1], parts[2])
	default:
		apihttp.NotFound(w)
	}
}

func (h *Handler) handleEntryAction(w http.ResponseWriter, r *http.Request, entryID, action string) {
	switch action {
	case "payments":
		switch r.Method {
		case http.MethodGet:
			h.handleListPayments(w, r, entryID)
		case http.MethodPost:
			h.handleRecordPayment(w, r, entryID)
		default:
			apihttp.MethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
		return
	case "amendments":
		if r.Method != http.MethodGet {
			apihttp.MethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListAmendments(w, r, entryID)
		return
	case "discount", "waive", "refresh":
	default:
		apihttp.NotFound(w)
		return
	}
	if r.Method != http.MethodPost {
		apihttp.MethodNotAllowed(w, http.MethodPost)
		return
	}
	switch action {
	case "discount":
		h.handleAmendDiscount(w, r, entryID)
	case "waive":
		h.handleWaive(w, r, entryID)
	case "refresh":
		h.handleRefresh(w, r, entryID)
	}
}

func actorFrom(r *http.Request) application.Actor {
	return application.Actor{
		ID:        auth.SubjectFromContext(r.Context()),
		Role:      string(auth.RoleFromContext(r.Context())),
		IP:        audit.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := h.decoder.Decode(r, &req); err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	dueDate, err := apihttp.ParseDate("due_date", req.DueDate)
	if err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	view, err := h.engine.CreateEntry(r.Context(), application.CreateEntryCommand{
		StudentID:      req.StudentID,
		CatalogEntryID: req.CatalogEntryID,
		AcademicYearID: req.AcademicYearID,
		DiscountAmount: req.DiscountAmount,
		DiscountRuleID: req.DiscountRuleID,
		DueDate:        dueDate,
		Actor:          actorFrom(r),
	})
	if err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	apihttp.WriteJSON(w, http.StatusCreated, toEntryResponse(*view))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := ledger.EntryFilter{
		StudentID:      query.Get("student_id"),
		AcademicYearID: query.Get("academic_year_id"),
	}
	if raw := query.Get("status"); raw != "" {
		for _, value := range strings.Split(raw, ",") {
			status, err := ledger.ParseStatus(strings.TrimSpace(value))
			if err != nil {
				apihttp.WriteError(w, err, h.logger)
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	dueBefore, err := apihttp.ParseDate("due_before", query.Get("due_before"))
	if err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	filter.DueBefore = dueBefore
	limit, err := apihttp.ParseLimit(r, defaultLimit, maxLimit)
	if err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	filter.Limit = limit

	views, err := h.engine.ListEntries(r.Context(), filter)
	if err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	out := make([]entryResponse, 0, len(views))
	for _, view := range views {
		out = append(out, toEntryResponse(view))
	}
	apihttp.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, entryID string) {
	detail, err := h.engine.GetEntry(r.Context(), entryID)
	if err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, toDetailResponse(*detail))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, entryID string) {
	err := h.engine.DeleteEntry(r.Context(), application.DeleteEntryCommand{EntryID: entryID, Actor: actorFrom(r)})
	if err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListPayments(w http.ResponseWriter, r *http.Request, entryID string) {
	payments, err := h.engine.ListPayments(r.Context(), entryID)
	if err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, toPaymentResponses(payments))
}

func (h *Handler) handleListAmendments(w http.ResponseWriter, r *http.Request, entryID string) {
	amendments, err := h.engine.ListDiscountAmendments(r.Context(), entryID)
	if err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	resp := make([]amendmentResponse, 0, len(amendments))
	for _, amendment := range amendments {
		resp = append(resp, toAmendmentResponse(amendment))
	}
	apihttp.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRecordPayment(w http.ResponseWriter, r *http.Request, entryID string) {
	var req recordPaymentRequest
	if err := h.decoder.Decode(r, &req); err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	paymentDate, err := apihttp.ParseDate("payment_date", req.PaymentDate)
	if err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	result, err := h.engine.RecordPayment(r.Context(), application.RecordPaymentCommand{
		EntryID:     entryID,
		Amount:      req.Amount,
		Method:      ledger.PaymentMethod(req.Method),
		ExternalRef: req.ExternalRef,
		PaymentDate: paymentDate,
		Remarks:     req.Remarks,
		Actor:       actorFrom(r),
	})
	if err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	status := http.StatusCreated
	if result.AlreadyApplied {
		status = http.StatusOK
	}
	apihttp.WriteJSON(w, status, paymentResultResponse{
		Payment:        toPaymentResponse(result.Payment),
		EntryID:        result.EntryID,
		Balance:        ledger.FormatMoney(result.Balance),
		Status:         string(result.Status),
		AlreadyApplied: result.AlreadyApplied,
	})
}

func (h *Handler) handleAmendDiscount(w http.ResponseWriter, r *http.Request, entryID string) {
	var req amendDiscountRequest
	if err := h.decoder.Decode(r, &req); err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	result, err := h.engine.AmendDiscount(r.Context(), application.AmendDiscountCommand{
		EntryID:     entryID,
		NewDiscount: *req.Discount,
		Reason:      req.Reason,
		Actor:       actorFrom(r),
	})
	if err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, amendResultResponse{
		Entry:     toEntryResponse(result.Entry),
		Amendment: toAmendmentResponse(result.Amendment),
	})
}

func (h *Handler) handleWaive(w http.ResponseWriter, r *http.Request, entryID string) {
	var req waiveRequest
	if err := h.decoder.Decode(r, &req); err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	view, err := h.engine.WaiveEntry(r.Context(), application.WaiveEntryCommand{
		EntryID: entryID,
		Reason:  req.Reason,
		Actor:   actorFrom(r),
	})
	if err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, toEntryResponse(*view))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request, entryID string) {
	view, _, err := h.engine.RefreshStatus(r.Context(), entryID)
	if err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, toEntryResponse(*view))
}

func (h *Handler) handleStatement(w http.ResponseWriter, r *http.Request, studentID, resource string) {
	format := ""
	switch resource {
	case "statement":
		format = "json"
	case "statement.pdf":
		format = "pdf"
	case "statement.xlsx":
		format = "xlsx"
	default:
		apihttp.NotFound(w)
		return
	}

	yearID := r.URL.Query().Get("academic_year_id")
	stmt, err := h.engine.StudentStatement(r.Context(), studentID, yearID)
	if err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	if format == "json" {
		apihttp.WriteJSON(w, http.StatusOK, toStatementResponse(stmt))
		return
	}

	start := time.Now()
	header := interfaces.StatementHeader{
		SchoolName:  h.schoolName,
		StudentName: h.studentName(r.Context(), studentID),
		Currency:    h.currency,
	}
	var (
		data        []byte
		contentType string
	)
	if format == "pdf" {
		data, err = interfaces.BuildStatementPDF(stmt, header)
		contentType = "application/pdf"
	} else {
		data, err = interfaces.BuildStatementXLSX(stmt, header)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		metrics.ObserveStatementExport(format, metrics.ResultError, time.Since(start))
		apihttp.WriteError(w, fmt.Errorf("statement export %s: %w", format, err), h.logger)
		return
	}
	metrics.ObserveStatementExport(format, metrics.ResultSuccess, time.Since(start))
	h.logExport(r, studentID, yearID, format)

	filename := fmt.Sprintf("statement-%s", studentID)
	if yearID != "" {
		filename += "-" + yearID
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename+"."+format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleReceipt(w http.ResponseWriter, r *http.Request, entryID, paymentID string) {
	detail, err := h.engine.GetEntry(r.Context(), entryID)
	if err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	var payment *ledger.Payment
	for i := range detail.Payments {
		if detail.Payments[i].ID == paymentID {
			payment = &detail.Payments[i]
			break
		}
	}
	if payment == nil {
		apihttp.WriteError(w, ledger.NotFound(ledger.CodePaymentNotFound, "payment %s not found on entry %s", paymentID, entryID), h.logger)
		return
	}

	start := time.Now()
	header := interfaces.StatementHeader{
		SchoolName:  h.schoolName,
		StudentName: h.studentName(r.Context(), detail.Entry.StudentID),
		Currency:    h.currency,
	}
	data, err := interfaces.BuildReceiptPDF(detail.EntryView, *payment, header)
	if err != nil {
		metrics.ObserveStatementExport("receipt", metrics.ResultError, time.Since(start))
		apihttp.WriteError(w, fmt.Errorf("receipt export: %w", err), h.logger)
		return
	}
	metrics.ObserveStatementExport("receipt", metrics.ResultSuccess, time.Since(start))

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "receipt-"+payment.ID+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request, studentID string) {
	if h.auditReader == nil {
		apihttp.NotFound(w)
		return
	}
	limit, err := apihttp.ParseLimit(r, defaultLimit, maxLimit)
	if err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	entries, err := h.auditReader.ListByStudent(r.Context(), studentID, limit)
	if err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, toAuditResponses(entries))
}

func (h *Handler) studentName(ctx context.Context, studentID string) string {
	if h.directory == nil {
		return ""
	}
	student, err := h.directory.Get(ctx, studentID)
	if err != nil || student == nil {
		return ""
	}
	return student.FullName
}

func (h *Handler) logExport(r *http.Request, studentID, yearID, format string) {
	if h.auditLogger == nil {
		return
	}
	actor := actorFrom(r)
	meta := audit.Metadata(map[string]string{"format": format, "academic_year_id": yearID})
	err := h.auditLogger.Log(r.Context(), audit.Entry{
		ID:            audit.NewID(),
		Actor:         actor.ID,
		Role:          actor.Role,
		Action:        audit.ActionStatementExport,
		ResourceType:  "student_statement",
		ResourceID:    studentID,
		StudentID:     studentID,
		Metadata:      meta,
		PayloadDigest: audit.DigestJSON(meta),
		IP:            actor.IP,
		UserAgent:     actor.UserAgent,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		h.logger.Printf("ledger handler: audit export student=%s err=%v", studentID, err)
	}
}
