package http

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	apihttp "fee-ledger/internal/api/http"
	"fee-ledger/internal/audit"
	"fee-ledger/internal/auth"
	catalog "fee-ledger/internal/catalog/domain"
	ledger "fee-ledger/internal/ledger/domain"
)

const pathPrefix = "/api/v1/catalog/"

// Handler serves fee catalog and discount rule endpoints.
type Handler struct {
	repo        catalog.Repository
	decoder     *apihttp.Decoder
	auditLogger audit.Logger
	logger      *log.Logger
	now         func() time.Time
}

// NewHandler constructs a catalog handler.
func NewHandler(repo catalog.Repository, auditLogger audit.Logger, logger *log.Logger) (*Handler, error) {
	if repo == nil {
		return nil, errors.New("catalog handler: nil repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		repo:        repo,
		decoder:     apihttp.NewDecoder(),
		auditLogger: auditLogger,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

type duePolicyDTO struct {
	Kind      string `json:"kind" validate:"omitempty,oneof=fixed_date days_after_assignment"`
	FixedDate string `json:"fixed_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Days      int    `json:"days,omitempty" validate:"gte=0,lte=3650"`
}

type feeEntryDTO struct {
	ID             string          `json:"id" validate:"required,max=64"`
	Name           string          `json:"name" validate:"required,max=200"`
	Description    string          `json:"description,omitempty" validate:"max=1000"`
	Amount         decimal.Decimal `json:"amount"`
	Mandatory      bool            `json:"mandatory"`
	Active         bool            `json:"active"`
	GradeLevel     string          `json:"grade_level,omitempty" validate:"max=32"`
	AcademicYearID string          `json:"academic_year_id,omitempty" validate:"max=32"`
	DuePolicy      duePolicyDTO    `json:"due_policy"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type discountRuleDTO struct {
	ID          string          `json:"id" validate:"required,max=64"`
	Name        string          `json:"name" validate:"required,max=200"`
	Kind        string          `json:"kind" validate:"required,oneof=percentage fixed"`
	Value       decimal.Decimal `json:"value"`
	Description string          `json:"description,omitempty" validate:"max=1000"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type activeRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// ServeHTTP routes /api/v1/catalog/ requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := apihttp.PathParts(r.URL.Path, pathPrefix)
	switch {
	case len(parts) == 1 && parts[0] == "fees":
		switch r.Method {
		case http.MethodGet:
			h.handleListFees(w, r)
		case http.MethodPost:
			h.handleSaveFee(w, r)
		default:
			apihttp.MethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case len(parts) == 2 && parts[0] == "fees":
		if r.Method != http.MethodGet {
			apihttp.MethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleGetFee(w, r, parts[1])
	case len(parts) == 3 && parts[0] == "fees" && parts[2] == "active":
		if r.Method != http.MethodPost {
			apihttp.MethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleSetActive(w, r, parts[1])
	case len(parts) == 1 && parts[0] == "discounts":
		switch r.Method {
		case http.MethodGet:
			h.handleListRules(w, r)
		case http.MethodPost:
			h.handleSaveRule(w, r)
		default:
			apihttp.MethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case len(parts) == 2 && parts[0] == "discounts":
		if r.Method != http.MethodGet {
			apihttp.MethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleGetRule(w, r, parts[1])
	default:
		apihttp.NotFound(w)
	}
}

func activeOnly(r *http.Request) bool {
	return r.URL.Query().Get("active") == "true"
}

func (h *Handler) handleListFees(w http.ResponseWriter, r *http.Request) {
	fees, err := h.repo.ListFeeEntries(r.Context(), activeOnly(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]feeEntryDTO, 0, len(fees))
	for _, fee := range fees {
		out = append(out, toFeeDTO(fee))
	}
	apihttp.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetFee(w http.ResponseWriter, r *http.Request, id string) {
	fee, err := h.repo.GetFeeEntry(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if fee == nil {
		h.writeError(w, catalog.ErrNotFound)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, toFeeDTO(*fee))
}

func (h *Handler) handleSaveFee(w http.ResponseWriter, r *http.Request) {
	var req feeEntryDTO
	if err := h.decoder.Decode(r, &req); err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	if err := ledger.CheckAmountScale("fee amount", req.Amount); err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	fixedDate, err := apihttp.ParseDate("due_policy.fixed_date", req.DuePolicy.FixedDate)
	if err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}

	now := h.now()
	fee := &catalog.FeeEntry{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Amount:      req.Amount,
		Mandatory:   req.Mandatory,
		Active:      req.Active,
		Scope:       catalog.Scope{GradeLevel: req.GradeLevel, AcademicYearID: req.AcademicYearID},
		DuePolicy:   catalog.DuePolicy{Kind: req.DuePolicy.Kind, FixedDate: fixedDate, Days: req.DuePolicy.Days},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	existing, err := h.repo.GetFeeEntry(r.Context(), fee.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if existing != nil {
		fee.CreatedAt = existing.CreatedAt
		status = http.StatusOK
	}
	if err := h.repo.SaveFeeEntry(r.Context(), fee); err != nil {
		h.writeError(w, err)
		return
	}
	h.logAudit(r, audit.ActionCatalogSave, "fee_catalog_entry", fee.ID, map[string]any{
		"amount": fee.Amount.StringFixed(ledger.MoneyScale),
		"active": fee.Active,
	})
	apihttp.WriteJSON(w, status, toFeeDTO(*fee))
}

func (h *Handler) handleSetActive(w http.ResponseWriter, r *http.Request, id string) {
	var req activeRequest
	if err := h.decoder.Decode(r, &req); err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	if err := h.repo.SetFeeEntryActive(r.Context(), id, *req.Active); err != nil {
		h.writeError(w, err)
		return
	}
	h.logAudit(r, audit.ActionCatalogToggle, "fee_catalog_entry", id, map[string]any{"active": *req.Active})
	h.handleGetFee(w, r, id)
}

func (h *Handler) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.repo.ListDiscountRules(r.Context(), activeOnly(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]discountRuleDTO, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRuleDTO(rule))
	}
	apihttp.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetRule(w http.ResponseWriter, r *http.Request, id string) {
	rule, err := h.repo.GetDiscountRule(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if rule == nil {
		h.writeError(w, catalog.ErrNotFound)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, toRuleDTO(*rule))
}

func (h *Handler) handleSaveRule(w http.ResponseWriter, r *http.Request) {
	var req discountRuleDTO
	if err := h.decoder.Decode(r, &req); err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	if err := ledger.CheckAmountScale("discount value", req.Value); err != nil {
		apihttp.WriteError(w, err, h.logger)
		return
	}
	now := h.now()
	rule := &catalog.DiscountRule{
		ID:          req.ID,
		Name:        req.Name,
		Kind:        req.Kind,
		Value:       req.Value,
		Description: req.Description,
		Active:      req.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	existing, err := h.repo.GetDiscountRule(r.Context(), rule.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if existing != nil {
		rule.CreatedAt = existing.CreatedAt
		status = http.StatusOK
	}
	if err := h.repo.SaveDiscountRule(r.Context(), rule); err != nil {
		h.writeError(w, err)
		return
	}
	h.logAudit(r, audit.ActionDiscountSave, "discount_rule", rule.ID, map[string]any{
		"kind":  rule.Kind,
		"value": rule.Value.String(),
	})
	apihttp.WriteJSON(w, status, toRuleDTO(*rule))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		apihttp.WriteJSON(w, http.StatusNotFound, apihttp.ErrorResponse{Error: "catalog_not_found", Message: "catalog item not found"})
	case errors.Is(err, catalog.ErrEmptyID),
		errors.Is(err, catalog.ErrEmptyName),
		errors.Is(err, catalog.ErrInvalidAmount),
		errors.Is(err, catalog.ErrInvalidDuePolicy),
		errors.Is(err, catalog.ErrInvalidDiscountKind),
		errors.Is(err, catalog.ErrInvalidPercentage):
		apihttp.WriteBadRequest(w, "invalid_catalog_item", err.Error())
	default:
		apihttp.WriteError(w, err, h.logger)
	}
}

func (h *Handler) logAudit(r *http.Request, action, resourceType, resourceID string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	raw := audit.Metadata(meta)
	entry := audit.Entry{
		ID:            audit.NewID(),
		Actor:         auth.SubjectFromContext(r.Context()),
		Role:          string(auth.RoleFromContext(r.Context())),
		Action:        action,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		Metadata:      raw,
		PayloadDigest: audit.DigestJSON(raw),
		IP:            audit.ClientIP(r),
		UserAgent:     r.UserAgent(),
		CreatedAt:     h.now(),
	}
	if err := h.auditLogger.Log(context.WithoutCancel(r.Context()), entry); err != nil {
		h.logger.Printf("catalog handler: audit %s %s err=%v", action, resourceID, err)
	}
}

func toFeeDTO(fee catalog.FeeEntry) feeEntryDTO {
	dto := feeEntryDTO{
		ID:             fee.ID,
		Name:           fee.Name,
		Description:    fee.Description,
		Amount:         fee.Amount,
		Mandatory:      fee.Mandatory,
		Active:         fee.Active,
		GradeLevel:     fee.Scope.GradeLevel,
		AcademicYearID: fee.Scope.AcademicYearID,
		DuePolicy:      duePolicyDTO{Kind: fee.DuePolicy.Kind, Days: fee.DuePolicy.Days},
		CreatedAt:      fee.CreatedAt,
		UpdatedAt:      fee.UpdatedAt,
	}
	if !fee.DuePolicy.FixedDate.IsZero() {
		dto.DuePolicy.FixedDate = fee.DuePolicy.FixedDate.Format(apihttp.DateLayout)
	}
	return dto
}

func toRuleDTO(rule catalog.DiscountRule) discountRuleDTO {
	return discountRuleDTO{
		ID:          rule.ID,
		Name:        rule.Name,
		Kind:        rule.Kind,
		Value:       rule.Value,
		Description: rule.Description,
		Active:      rule.Active,
		CreatedAt:   rule.CreatedAt,
		UpdatedAt:   rule.UpdatedAt,
	}
}
