package audit

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Schema identity for the record line format. Bump the version when the
// record shape changes so retention and consumers can distinguish.
const (
	SchemaID      = "mxcp.audit"
	SchemaVersion = 1
)

// Status is the request outcome recorded in the log.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusDenied  Status = "denied"
)

// Record is one append-only audit entry, serialized as a single JSON
// line. Input and output values must be redacted before the record is
// built; the writer never sees raw sensitive data.
type Record struct {
	SchemaID      string `json:"schema_id"`
	SchemaVersion int    `json:"schema_version"`

	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`

	EndpointKind string `json:"endpoint_kind"`
	EndpointID   string `json:"endpoint_id"`

	UserID   string `json:"user_id,omitempty"`
	UserRole string `json:"user_role,omitempty"`
	Provider string `json:"provider,omitempty"`

	DurationMS int64  `json:"duration_ms"`
	Status     Status `json:"status"`

	PolicyDecision string `json:"policy_decision"`
	PolicyReason   string `json:"policy_reason,omitempty"`

	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	InputRedacted  map[string]interface{} `json:"input_redacted,omitempty"`
	OutputSummary  interface{}            `json:"output_redacted_summary,omitempty"`
	TraceID        string                 `json:"trace_id,omitempty"`
}

// NewRecordID returns a lexically sortable unique id for one record.
func NewRecordID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}
