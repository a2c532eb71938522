package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Actions written by the ledger.
const (
	ActionEntryCreate     = "ledger.entry.create"
	ActionEntryDelete     = "ledger.entry.delete"
	ActionEntryWaive      = "ledger.entry.waive"
	ActionPaymentRecord   = "ledger.payment.record"
	ActionDiscountAmend   = "ledger.discount.amend"
	ActionCatalogSave     = "catalog.fee.save"
	ActionCatalogToggle   = "catalog.fee.toggle"
	ActionDiscountSave    = "catalog.discount.save"
	ActionStatementExport = "ledger.statement.export"
)

// Entry is one audit record.
type Entry struct {
	ID            string
	Actor         string
	Role          string
	Action        string
	ResourceType  string
	ResourceID    string
	StudentID     string
	Reason        string
	Metadata      json.RawMessage
	PayloadDigest string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// Reader reads the audit trail of a student.
type Reader interface {
	ListByStudent(ctx context.Context, studentID string, limit int) ([]Entry, error)
}

// NewID generates an audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA-256 hex digest of a metadata payload.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Metadata marshals value for Entry.Metadata, returning nil on failure.
func Metadata(value any) json.RawMessage {
	if value == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return data
}

// Recorder keeps entries in memory.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// Log appends entry.
func (r *Recorder) Log(_ context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// Entries returns a copy of the recorded entries.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// ListByStudent returns the entries about studentID, newest first.
func (r *Recorder) ListByStudent(_ context.Context, studentID string, limit int) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, entry := range r.entries {
		if entry.StudentID == studentID {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
