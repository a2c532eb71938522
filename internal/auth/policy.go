package auth

import (
	"net/http"
	"strings"
)

// Policy decides which role a request needs.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds the ledger policy with the given exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt reports whether the request skips authentication.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves the role needed for the request.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	path := strings.TrimRight(r.URL.Path, "/")
	readOnly := r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions

	switch {
	case readOnly && strings.HasPrefix(path, "/api/v1/ledger/students/") && strings.HasSuffix(path, "/audit"):
		return RoleAdmin, true
	case readOnly && strings.HasPrefix(path, "/api/"):
		return RoleViewer, true
	case strings.HasPrefix(path, "/api/v1/ledger/entries/") && strings.HasSuffix(path, "/payments"):
		return RoleBursar, true
	case strings.HasPrefix(path, "/api/v1/ledger/"):
		return RoleAdmin, true
	case strings.HasPrefix(path, "/api/v1/catalog/"):
		return RoleAdmin, true
	case strings.HasPrefix(path, "/api/"):
		return RoleAdmin, true
	}
	return "", false
}
