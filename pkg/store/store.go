// Package store persists call records, conversation turns, and audit events.
package store

import (
	"context"
	"errors"
	"time"
)

// Call outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeError     = "error"
	OutcomeHungUp    = "hung_up"
)

// Audit severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Audit event types. Action events use "action_" + the action name.
const (
	EventCallStarted  = "call_started"
	EventTurnError    = "error_processing_turn"
	EventCallError    = "call_error"
	EventActionPrefix = "action_"
)

// ErrNotFound is returned when a referenced call does not exist.
var ErrNotFound = errors.New("store: not found")

// Call is one phone call session.
type Call struct {
	ID          string // uuid, assigned by CreateCall
	CallSID     string // provider call identifier
	TenantID    string
	CallerPhone string
	StartedAt   time.Time
	EndedAt     time.Time
	DurationS   float64
	Outcome     string
	Summary     string
}

// Turn is one conversation row. User rows and assistant rows are written as
// pairs; TurnNo is unique per call.
type Turn struct {
	CallID     string
	TurnNo     int
	Role       string // user | assistant
	Text       string
	Action     string
	ActionArgs map[string]any
	LatencyMS  int64
	CreatedAt  time.Time
}

// AuditEntry is one row of the per-call audit trail.
type AuditEntry struct {
	CallID    string
	EventType string
	Data      map[string]any
	Severity  string
	CreatedAt time.Time
}

// Store is the persistence surface used by the session and conversation
// layers. Implementations must be safe for concurrent use.
type Store interface {
	// CreateCall inserts a new call row, assigning ID and StartedAt when
	// unset.
	CreateCall(ctx context.Context, call *Call) error

	// EndCall stamps EndedAt, DurationS, outcome, and summary on a call.
	EndCall(ctx context.Context, callID, outcome, summary string) error

	// AppendTurn inserts one conversation row.
	AppendTurn(ctx context.Context, turn *Turn) error

	// RecentTurns returns up to limit most recent turns for a call, in
	// chronological order.
	RecentTurns(ctx context.Context, callID string, limit int) ([]Turn, error)

	// TurnsByCall returns every turn for a call ordered by turn number.
	TurnsByCall(ctx context.Context, callID string) ([]Turn, error)

	// AppendAudit inserts one audit row.
	AppendAudit(ctx context.Context, entry *AuditEntry) error

	// AuditByCall returns the audit trail for a call in insertion order.
	AuditByCall(ctx context.Context, callID string) ([]AuditEntry, error)

	// Close releases the backing resources.
	Close()
}
