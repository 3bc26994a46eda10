// Package runtimectx carries the process-wide runtime handle shared by
// all unit records: the attribute store and the caller identity, plus
// context.Context helpers for correlating lifecycle operations.
package runtimectx

import (
	"context"

	"github.com/google/uuid"

	"github.com/marionette/marionette/pkg/metadata"
)

// Runtime is the process-wide handle attached to every unit record.
// It is created once per discovery session and never replaced.
type Runtime struct {
	sessionID string
	caller    string
	meta      *metadata.Store
}

// NewRuntime creates a runtime handle with a fresh session ID
func NewRuntime(caller string) *Runtime {
	return &Runtime{
		sessionID: "ses_" + uuid.New().String(),
		caller:    caller,
		meta:      metadata.NewStore(),
	}
}

// SessionID returns the discovery session identifier
func (r *Runtime) SessionID() string { return r.sessionID }

// Caller returns the identity that initiated the session
func (r *Runtime) Caller() string { return r.caller }

// Metadata returns the process-wide attribute store
func (r *Runtime) Metadata() *metadata.Store { return r.meta }

// Context keys for operation tracing and correlation.
// Unexported key types prevent collisions with other packages.
type (
	operationIDKeyType struct{}
	operationKeyType   struct{}
)

var (
	operationIDKey operationIDKeyType
	operationKey   operationKeyType
)

// WithOperationID adds an operation ID to the context
func WithOperationID(parent context.Context, id string) context.Context {
	if id == "" {
		id = GenerateOperationID()
	}
	return context.WithValue(parent, operationIDKey, id)
}

// GetOperationID retrieves the operation ID from context
func GetOperationID(ctx context.Context) string {
	if id, ok := ctx.Value(operationIDKey).(string); ok && id != "" {
		return id
	}
	return "unknown-operation"
}

// WithOperation adds an operation name to the context
func WithOperation(parent context.Context, operation string) context.Context {
	return context.WithValue(parent, operationKey, operation)
}

// GetOperation retrieves the operation name from context
func GetOperation(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey).(string); ok && op != "" {
		return op
	}
	return "unknown"
}

// GenerateOperationID creates a new unique operation ID
func GenerateOperationID() string {
	return "op_" + uuid.New().String()
}
