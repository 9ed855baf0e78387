// Package reqcontext carries per-request values between the transport edge
// and the execution pipeline without threading extra parameters through
// every handler signature.
package reqcontext

import (
	"context"

	"github.com/google/uuid"

	"github.com/mxcp-labs/mxcp-go/internal/identity"
)

// contextKey keeps our keys collision-free against other packages.
type contextKey string

const (
	requestIDKey contextKey = "mxcp_request_id"
	userKey      contextKey = "mxcp_user"
)

// NewRequestID generates the identifier stamped on logs and audit records.
func NewRequestID() string {
	return uuid.NewString()
}

// WithRequestID attaches a request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request ID from ctx, minting one if the transport
// never attached it.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return id
	}
	return NewRequestID()
}

// WithUser attaches the authenticated subject to the context.
func WithUser(ctx context.Context, user *identity.UserContext) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// User returns the subject from ctx, falling back to the anonymous user so
// policy conditions always see a populated binding.
func User(ctx context.Context) *identity.UserContext {
	if u, ok := ctx.Value(userKey).(*identity.UserContext); ok && u != nil {
		return u
	}
	return identity.Anonymous()
}
