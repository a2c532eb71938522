package http

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"fee-ledger/internal/audit"
	"fee-ledger/internal/ledger/application"
	ledger "fee-ledger/internal/ledger/domain"
)

type createEntryRequest struct {
	StudentID      string           `json:"student_id" validate:"required,max=64"`
	CatalogEntryID string           `json:"catalog_entry_id" validate:"required,max=64"`
	AcademicYearID string           `json:"academic_year_id" validate:"max=32"`
	DiscountAmount *decimal.Decimal `json:"discount_amount"`
	DiscountRuleID string           `json:"discount_rule_id" validate:"max=64"`
	DueDate        string           `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
}

type recordPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method" validate:"required,oneof=cash bank_transfer mobile_money card cheque other"`
	ExternalRef string          `json:"external_ref" validate:"max=128"`
	PaymentDate string          `json:"payment_date" validate:"omitempty,datetime=2006-01-02"`
	Remarks     string          `json:"remarks" validate:"max=500"`
}

type amendDiscountRequest struct {
	Discount *decimal.Decimal `json:"discount" validate:"required"`
	Reason   string           `json:"reason" validate:"required,max=500"`
}

type waiveRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type entryResponse struct {
	ID              string     `json:"id"`
	StudentID       string     `json:"student_id"`
	CatalogEntryID  string     `json:"catalog_entry_id"`
	AcademicYearID  string     `json:"academic_year_id"`
	PrincipalAmount string     `json:"principal_amount"`
	DiscountAmount  string     `json:"discount_amount"`
	FinalAmount     string     `json:"final_amount"`
	DiscountRuleID  string     `json:"discount_rule_id,omitempty"`
	Paid            string     `json:"paid"`
	Balance         string     `json:"balance"`
	Status          string     `json:"status"`
	DueDate         string     `json:"due_date"`
	WaiveReason     string     `json:"waive_reason,omitempty"`
	WaivedAt        *time.Time `json:"waived_at,omitempty"`
	Version         int64      `json:"version"`
	CreatedBy       string     `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type paymentResponse struct {
	ID          string    `json:"id"`
	EntryID     string    `json:"entry_id"`
	Amount      string    `json:"amount"`
	Method      string    `json:"method"`
	ExternalRef string    `json:"external_ref,omitempty"`
	PaymentDate string    `json:"payment_date"`
	RecordedBy  string    `json:"recorded_by"`
	Remarks     string    `json:"remarks,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type amendmentResponse struct {
	ID               string    `json:"id"`
	PreviousDiscount string    `json:"previous_discount"`
	NewDiscount      string    `json:"new_discount"`
	PreviousFinal    string    `json:"previous_final"`
	NewFinal         string    `json:"new_final"`
	Actor            string    `json:"actor"`
	Reason           string    `json:"reason"`
	CreatedAt        time.Time `json:"created_at"`
}

type entryDetailResponse struct {
	entryResponse
	Payments   []paymentResponse   `json:"payments"`
	Amendments []amendmentResponse `json:"amendments"`
}

type paymentResultResponse struct {
	Payment        paymentResponse `json:"payment"`
	EntryID        string          `json:"entry_id"`
	Balance        string          `json:"balance"`
	Status         string          `json:"status"`
	AlreadyApplied bool            `json:"already_applied"`
}

type amendResultResponse struct {
	Entry     entryResponse     `json:"entry"`
	Amendment amendmentResponse `json:"amendment"`
}

type statementResponse struct {
	StudentID      string                `json:"student_id"`
	AcademicYearID string                `json:"academic_year_id,omitempty"`
	Entries        []entryDetailResponse `json:"entries"`
	TotalFinal     string                `json:"total_final"`
	TotalPaid      string                `json:"total_paid"`
	TotalBalance   string                `json:"total_balance"`
	GeneratedAt    time.Time             `json:"generated_at"`
}

func toEntryResponse(view application.EntryView) entryResponse {
	entry := view.Entry
	resp := entryResponse{
		ID:              entry.ID,
		StudentID:       entry.StudentID,
		CatalogEntryID:  entry.CatalogEntryID,
		AcademicYearID:  entry.AcademicYearID,
		PrincipalAmount: ledger.FormatMoney(entry.PrincipalAmount),
		DiscountAmount:  ledger.FormatMoney(entry.DiscountAmount),
		FinalAmount:     ledger.FormatMoney(entry.FinalAmount),
		DiscountRuleID:  entry.DiscountRuleID,
		Paid:            ledger.FormatMoney(view.Paid),
		Balance:         ledger.FormatMoney(view.Balance),
		Status:          string(view.Status),
		DueDate:         entry.DueDate.Format(dateLayout),
		WaiveReason:     entry.WaiveReason,
		Version:         entry.Version,
		CreatedBy:       entry.CreatedBy,
		CreatedAt:       entry.CreatedAt,
		UpdatedAt:       entry.UpdatedAt,
	}
	if !entry.WaivedAt.IsZero() {
		waivedAt := entry.WaivedAt
		resp.WaivedAt = &waivedAt
	}
	return resp
}

func toPaymentResponse(payment ledger.Payment) paymentResponse {
	return paymentResponse{
		ID:          payment.ID,
		EntryID:     payment.EntryID,
		Amount:      ledger.FormatMoney(payment.Amount),
		Method:      string(payment.Method),
		ExternalRef: payment.ExternalRef,
		PaymentDate: payment.PaymentDate.Format(dateLayout),
		RecordedBy:  payment.RecordedBy,
		Remarks:     payment.Remarks,
		CreatedAt:   payment.CreatedAt,
	}
}

func toPaymentResponses(payments []ledger.Payment) []paymentResponse {
	out := make([]paymentResponse, 0, len(payments))
	for _, payment := range payments {
		out = append(out, toPaymentResponse(payment))
	}
	return out
}

func toAmendmentResponse(amendment ledger.DiscountAmendment) amendmentResponse {
	return amendmentResponse{
		ID:               amendment.ID,
		PreviousDiscount: ledger.FormatMoney(amendment.PreviousDiscount),
		NewDiscount:      ledger.FormatMoney(amendment.NewDiscount),
		PreviousFinal:    ledger.FormatMoney(amendment.PreviousFinal),
		NewFinal:         ledger.FormatMoney(amendment.NewFinal),
		Actor:            amendment.Actor,
		Reason:           amendment.Reason,
		CreatedAt:        amendment.CreatedAt,
	}
}

func toDetailResponse(detail application.EntryDetail) entryDetailResponse {
	amendments := make([]amendmentResponse, 0, len(detail.Amendments))
	for _, amendment := range detail.Amendments {
		amendments = append(amendments, toAmendmentResponse(amendment))
	}
	return entryDetailResponse{
		entryResponse: toEntryResponse(detail.EntryView),
		Payments:      toPaymentResponses(detail.Payments),
		Amendments:    amendments,
	}
}

func toStatementResponse(stmt *application.Statement) statementResponse {
	entries := make([]entryDetailResponse, 0, len(stmt.Entries))
	for _, detail := range stmt.Entries {
		entries = append(entries, toDetailResponse(detail))
	}
	return statementResponse{
		StudentID:      stmt.StudentID,
		AcademicYearID: stmt.AcademicYearID,
		Entries:        entries,
		TotalFinal:     ledger.FormatMoney(stmt.TotalFinal),
		TotalPaid:      ledger.FormatMoney(stmt.TotalPaid),
		TotalBalance:   ledger.FormatMoney(stmt.TotalBalance),
		GeneratedAt:    stmt.GeneratedAt,
	}
}

type auditResponse struct {
	ID           string          `json:"id"`
	Actor        string          `json:"actor"`
	Role         string          `json:"role,omitempty"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Reason       string          `json:"reason,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func toAuditResponses(entries []audit.Entry) []auditResponse {
	out := make([]auditResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, auditResponse{
			ID:           entry.ID,
			Actor:        entry.Actor,
			Role:         entry.Role,
			Action:       entry.Action,
			ResourceType: entry.ResourceType,
			ResourceID:   entry.ResourceID,
			Reason:       entry.Reason,
			Metadata:     entry.Metadata,
			CreatedAt:    entry.CreatedAt,
		})
	}
	return out
}
