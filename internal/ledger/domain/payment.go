package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is how a payment was tendered.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodMobileMoney  PaymentMethod = "mobile_money"
	MethodCard         PaymentMethod = "card"
	MethodCheque       PaymentMethod = "cheque"
	MethodOther        PaymentMethod = "other"
)

// Valid reports whether m is a known method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodMobileMoney, MethodCard, MethodCheque, MethodOther:
		return true
	default:
		return false
	}
}

// Payment is an immutable record of money received against an entry.
// ExternalRef, when set, is unique across all payments.
type Payment struct {
	ID          string
	EntryID     string
	Amount      decimal.Decimal
	Method      PaymentMethod
	ExternalRef string
	PaymentDate time.Time
	RecordedBy  string
	Remarks     string
	CreatedAt   time.Time
}

// NewPaymentParams holds the inputs for a payment.
type NewPaymentParams struct {
	ID          string
	EntryID     string
	Amount      decimal.Decimal
	Method      PaymentMethod
	ExternalRef string
	PaymentDate time.Time
	RecordedBy  string
	Remarks     string
}

// NewPayment validates params and builds a payment record.
func NewPayment(params NewPaymentParams, now time.Time) (*Payment, error) {
	if strings.TrimSpace(params.ID) == "" {
		return nil, Invalid(CodeMissingField, "payment id is required")
	}
	if strings.TrimSpace(params.EntryID) == "" {
		return nil, Invalid(CodeMissingField, "entry id is required")
	}
	if !params.Amount.IsPositive() {
		return nil, Invalid(CodeInvalidAmount, "payment amount %s must be greater than zero", FormatMoney(params.Amount))
	}
	if err := CheckAmountScale("payment amount", params.Amount); err != nil {
		return nil, err
	}
	if !params.Method.Valid() {
		return nil, Invalid(CodeInvalidMethod, "unknown payment method %q", params.Method)
	}
	if strings.TrimSpace(params.RecordedBy) == "" {
		return nil, Invalid(CodeMissingActor, "actor is required")
	}
	now = now.UTC()
	paymentDate := params.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = now
	}
	return &Payment{
		ID:          params.ID,
		EntryID:     params.EntryID,
		Amount:      params.Amount,
		Method:      params.Method,
		ExternalRef: strings.TrimSpace(params.ExternalRef),
		PaymentDate: paymentDate.UTC(),
		RecordedBy:  params.RecordedBy,
		Remarks:     params.Remarks,
		CreatedAt:   now,
	}, nil
}

// DiscountAmendment records one change of an entry's discount.
type DiscountAmendment struct {
	ID               string
	EntryID          string
	PreviousDiscount decimal.Decimal
	NewDiscount      decimal.Decimal
	PreviousFinal    decimal.Decimal
	NewFinal         decimal.Decimal
	Actor            string
	Reason           string
	CreatedAt        time.Time
}
