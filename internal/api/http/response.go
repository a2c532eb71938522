package apihttp

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	ledger "fee-ledger/internal/ledger/domain"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// WriteJSON encodes body with status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteBadRequest reports a malformed request.
func WriteBadRequest(w http.ResponseWriter, code, message string) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: code, Message: message})
}

// WriteError maps request errors to 400 or 413 and ledger violations to
// 404, 400 and 409. Anything else is logged and reported as an internal
// error without detail.
func WriteError(w http.ResponseWriter, err error, logger *log.Logger) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		status, code := http.StatusBadRequest, "invalid_request"
		if reqErr.Status == http.StatusRequestEntityTooLarge {
			status, code = reqErr.Status, "request_too_large"
		}
		WriteJSON(w, status, ErrorResponse{Error: code, Message: reqErr.Message, Fields: reqErr.Fields})
		return
	}
	var violation *ledger.ViolationError
	if errors.As(err, &violation) {
		status := http.StatusBadRequest
		switch {
		case errors.Is(violation, ledger.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(violation, ledger.ErrConflict):
			status = http.StatusConflict
		}
		WriteJSON(w, status, ErrorResponse{Error: violation.Code, Message: violation.Message})
		return
	}
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("http: internal error: %v", err)
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: "internal error"})
}

// MethodNotAllowed writes a 405 listing the allowed methods.
func MethodNotAllowed(w http.ResponseWriter, allowed ...string) {
	for _, method := range allowed {
		w.Header().Add("Allow", method)
	}
	WriteJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method_not_allowed", Message: "method not allowed"})
}

// NotFound writes a 404 for unknown routes.
func NotFound(w http.ResponseWriter) {
	WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "route not found"})
}
