// Package convo implements the conversation turn lifecycle for a call.
package convo

import "time"

// ConversationContext is the per-call mutable state handed to the engine for
// the life of a session. TurnNumber counts logical turns and only ever grows.
type ConversationContext struct {
	CallID      string
	CallSID     string
	CallerPhone string
	TenantID    string
	TurnNumber  int
	StartedAt   time.Time
	FailedASR   int
	LastAction  string
	State       map[string]any
}

func NewContext(callID, callSID, callerPhone string) *ConversationContext {
	return &ConversationContext{
		CallID:      callID,
		CallSID:     callSID,
		CallerPhone: callerPhone,
		TenantID:    "default",
		StartedAt:   time.Now().UTC(),
		State:       map[string]any{},
	}
}

// ConversationTurn is one processed logical turn: the user utterance and the
// assistant's reply with its action. Immutable once returned.
type ConversationTurn struct {
	TurnNo        int
	UserText      string
	AssistantText string
	Action        string
	ActionArgs    map[string]any
	LatencyMS     int64
	Timestamp     time.Time
}

// CallSummary is computed once at teardown from the persisted turn and audit
// rows of the call.
type CallSummary struct {
	CallID                string
	DurationS             float64
	TurnCount             int
	ActionsTaken          []string
	Outcome               string
	AppointmentsScheduled int
	MessagesTaken         int
	ErrorsEncountered     []string
	SummaryText           string
}
