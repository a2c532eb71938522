package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Middleware validates bearer tokens and enforces the role policy.
type Middleware struct {
	Secret []byte
	Policy Policy
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	return &Middleware{Secret: secret, Policy: policy}
}

type denial struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Wrap applies authentication and role checks to next. Rejections use the
// same JSON error shape as the API handlers.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		required, ok := m.Policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := ParseJWT(bearerToken(r), m.Secret)
		switch {
		case errors.Is(err, ErrTokenExpired):
			deny(w, http.StatusUnauthorized, "token_expired", "bearer token has expired")
			return
		case err != nil:
			deny(w, http.StatusUnauthorized, "unauthorized", "a valid bearer token is required")
			return
		}
		role, _ := NormalizeRole(claims.Role)
		if !RoleAtLeast(role, required) {
			deny(w, http.StatusForbidden, "forbidden", "role "+string(role)+" cannot perform this action; requires "+string(required))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), role, claims.Subject)))
	})
}

func deny(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="fee-ledger"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(denial{Error: code, Message: message})
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
