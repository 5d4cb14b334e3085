package messaging

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/lib/pq"
)

// ──────────────────────────────────────────────────────────────
// Error classification: transient vs permanent vs store-level conflict
// ──────────────────────────────────────────────────────────────

// ErrorKind categorises a processing failure so the Dispatcher can decide
// whether to retry, dead-letter, or treat the message as already-applied
// (spec.md §4.4 Persister outcomes, §7).
type ErrorKind int

const (
	ErrTransient       ErrorKind = iota // e.g. DB timeout, broker hiccup
	ErrPermanent                        // e.g. malformed JSON, check-constraint violation
	ErrDuplicate                        // event_id already recorded — idempotent no-op
	ErrVersionConflict                  // another event_id already claims this aggregate version
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTransient:
		return "transient"
	case ErrPermanent:
		return "permanent"
	case ErrDuplicate:
		return "duplicate"
	case ErrVersionConflict:
		return "version_conflict"
	default:
		return "unknown"
	}
}

// ProcessingError wraps an underlying error with classification metadata.
type ProcessingError struct {
	Kind    ErrorKind
	Cause   error
	Message string
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
}

func (e *ProcessingError) Unwrap() error { return e.Cause }

// NewTransient creates a retryable error.
func NewTransient(msg string, cause error) *ProcessingError {
	return &ProcessingError{Kind: ErrTransient, Cause: cause, Message: msg}
}

// NewPermanent creates a non-retryable error.
func NewPermanent(msg string, cause error) *ProcessingError {
	return &ProcessingError{Kind: ErrPermanent, Cause: cause, Message: msg}
}

// Classify inspects an error and returns whether it is transient, permanent,
// or a store-level conflict. Network errors, timeouts, connection resets →
// transient. Postgres SQLSTATEs are classified first and most precisely;
// everything else falls back to substring matching against the error text
// (for drivers/paths that don't surface a *pq.Error, e.g. in tests).
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrTransient // should not be called with nil, but safe default
	}

	// Explicit classification already present
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Kind
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPQ(pqErr)
	}

	// Network / IO errors are transient
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrTransient
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return ErrTransient
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return ErrTransient
	}

	// Postgres unique-violation / check-constraint → permanent
	msg := err.Error()
	if strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "violates check constraint") ||
		strings.Contains(msg, "invalid input syntax") {
		return ErrPermanent
	}

	// Connection-related postgres errors → transient
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "too many clients") {
		return ErrTransient
	}

	// Unknown errors default to transient so we retry rather than discard.
	return ErrTransient
}

// Postgres SQLSTATE classes relevant to the Persister (spec.md §4.4).
const (
	sqlStateUniqueViolation    = "23505"
	sqlStateCheckViolation     = "23514"
	sqlStateInvalidTextRep     = "22P02"
	sqlStateConnectionFailure  = "08006"
	sqlStateConnectionDoesNot  = "08003"
	sqlStateTooManyConnections = "53300"
	sqlStateAdminShutdown      = "57P01"
)

// eventIDConstraint is the unique constraint on the store's idempotency key.
// A unique violation on any other constraint is treated as a version conflict.
const eventIDConstraint = "events_event_id_key"

// classifyPQ maps a driver-level Postgres error to an ErrorKind using its
// SQLSTATE code, which is stable across locale and message wording — unlike
// the substring matching Classify falls back to for non-pq errors.
func classifyPQ(pqErr *pq.Error) ErrorKind {
	switch string(pqErr.Code) {
	case sqlStateUniqueViolation:
		if pqErr.Constraint == eventIDConstraint {
			return ErrDuplicate
		}
		return ErrVersionConflict
	case sqlStateCheckViolation, sqlStateInvalidTextRep:
		return ErrPermanent
	case sqlStateConnectionFailure, sqlStateConnectionDoesNot,
		sqlStateTooManyConnections, sqlStateAdminShutdown:
		return ErrTransient
	default:
		// Class 08 (connection exception) and 53 (insufficient resources)
		// cover broker/pool exhaustion the pipeline should retry.
		if len(pqErr.Code) >= 2 && (pqErr.Code[:2] == "08" || pqErr.Code[:2] == "53") {
			return ErrTransient
		}
		return ErrPermanent
	}
}
