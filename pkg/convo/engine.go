package convo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/callwise/callwise/pkg/llm"
	"github.com/callwise/callwise/pkg/store"
)

// EngineConfig carries everything the engine needs at construction. The
// engine never reads ambient settings.
type EngineConfig struct {
	BusinessName  string
	Hours         Hours
	HistoryWindow int // logical turns of context, default 10

	// FAQ is appended to the system prompt on every turn. Nil means no
	// knowledge base.
	FAQ FAQ
}

// Engine drives one conversation turn at a time: bounded history, business
// hours policy, response generation, durable paired turn rows, and the
// end-of-call summary.
type Engine struct {
	responses llm.ResponseEngine
	store     store.Store
	cfg       EngineConfig
	log       *slog.Logger

	// now is swapped in tests.
	now func() time.Time
}

func NewEngine(responses llm.ResponseEngine, st store.Store, cfg EngineConfig, log *slog.Logger) *Engine {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 10
	}
	if cfg.BusinessName == "" {
		cfg.BusinessName = "Our Office"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		responses: responses,
		store:     st,
		cfg:       cfg,
		log:       log,
		now:       func() time.Time { return time.Now() },
	}
}

// ProcessTurn handles one final user utterance. It always returns a turn: on
// a response-engine failure the caller gets a fixed apology tagged
// take_message, the turn counter still advances, and an error-severity audit
// row is written. Persistence failures only degrade the record. A bad turn
// must never end the call.
func (e *Engine) ProcessTurn(ctx context.Context, cc *ConversationContext, utterance string) *ConversationTurn {
	start := e.now()

	turn, err := e.processTurn(ctx, cc, utterance, start)
	if err == nil {
		return turn
	}

	e.log.Error("turn processing failed",
		"call_sid", cc.CallSID, "turn", cc.TurnNumber+1, "error", err)
	if auditErr := e.store.AppendAudit(ctx, &store.AuditEntry{
		CallID:    cc.CallID,
		EventType: store.EventTurnError,
		Data:      map[string]any{"error": err.Error(), "user_utterance": utterance},
		Severity:  store.SeverityError,
	}); auditErr != nil {
		e.log.Error("audit write failed", "call_sid", cc.CallSID, "error", auditErr)
	}

	cc.TurnNumber++
	return &ConversationTurn{
		TurnNo:        cc.TurnNumber,
		UserText:      utterance,
		AssistantText: processingApology,
		Action:        llm.ActionTakeMessage,
		ActionArgs: map[string]any{
			"response": "I apologize for the difficulty. Let me take your information for a callback.",
		},
		Timestamp: e.now().UTC(),
	}
}

func (e *Engine) processTurn(ctx context.Context, cc *ConversationContext, utterance string, start time.Time) (*ConversationTurn, error) {
	// A history read failure degrades context but does not fail the turn.
	history, err := e.buildHistory(ctx, cc)
	if err != nil {
		e.log.Error("history load failed", "call_sid", cc.CallSID, "error", err)
		history = nil
	}
	history = append(history, llm.Message{Role: llm.RoleUser, Content: utterance})

	now := e.now()
	prompt := SystemPrompt(e.cfg.BusinessName, e.cfg.Hours.String(), now)
	if !e.cfg.Hours.Open(now) {
		prompt += OffHoursAddendum
	}
	prompt += e.cfg.FAQ.Context()

	resp, err := e.responses.Generate(ctx, history, prompt)
	if err != nil {
		return nil, err
	}
	latency := e.now().Sub(start).Milliseconds()

	cc.TurnNumber++
	cc.LastAction = resp.Action

	// A failed write degrades the record but the caller still hears the
	// real response.
	if err := e.saveTurnPair(ctx, cc, utterance, resp, latency); err != nil {
		e.log.Error("turn persistence failed", "call_sid", cc.CallSID, "turn", cc.TurnNumber, "error", err)
	}

	if err := e.store.AppendAudit(ctx, &store.AuditEntry{
		CallID:    cc.CallID,
		EventType: store.EventActionPrefix + resp.Action,
		Data: map[string]any{
			"turn":   cc.TurnNumber,
			"action": resp.Action,
			"args":   resp.ActionArgs,
		},
	}); err != nil {
		e.log.Error("audit write failed", "call_sid", cc.CallSID, "error", err)
	}

	return &ConversationTurn{
		TurnNo:        cc.TurnNumber,
		UserText:      utterance,
		AssistantText: resp.Text,
		Action:        resp.Action,
		ActionArgs:    resp.ActionArgs,
		LatencyMS:     latency,
		Timestamp:     e.now().UTC(),
	}, nil
}

// buildHistory loads the most recent persisted rows inside the window and
// converts them to model messages in chronological order.
func (e *Engine) buildHistory(ctx context.Context, cc *ConversationContext) ([]llm.Message, error) {
	rows, err := e.store.RecentTurns(ctx, cc.CallID, e.cfg.HistoryWindow*2)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	msgs := make([]llm.Message, 0, len(rows)+1)
	for _, row := range rows {
		role := llm.RoleUser
		if row.Role == "assistant" {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: row.Text})
	}
	return msgs, nil
}

// saveTurnPair writes the user row with an odd number (2n-1) and the
// assistant row with the matching even number (2n).
func (e *Engine) saveTurnPair(ctx context.Context, cc *ConversationContext, userText string, resp *llm.Response, latency int64) error {
	if err := e.store.AppendTurn(ctx, &store.Turn{
		CallID: cc.CallID,
		TurnNo: cc.TurnNumber*2 - 1,
		Role:   "user",
		Text:   userText,
	}); err != nil {
		return fmt.Errorf("save user turn: %w", err)
	}
	if err := e.store.AppendTurn(ctx, &store.Turn{
		CallID:     cc.CallID,
		TurnNo:     cc.TurnNumber * 2,
		Role:       "assistant",
		Text:       resp.Text,
		Action:     resp.Action,
		ActionArgs: resp.ActionArgs,
		LatencyMS:  latency,
	}); err != nil {
		return fmt.Errorf("save assistant turn: %w", err)
	}
	return nil
}

// GenerateSummary tallies the persisted record of the call at teardown.
func (e *Engine) GenerateSummary(ctx context.Context, cc *ConversationContext) (*CallSummary, error) {
	rows, err := e.store.TurnsByCall(ctx, cc.CallID)
	if err != nil {
		return nil, fmt.Errorf("convo: load turns: %w", err)
	}

	var actions []string
	seen := map[string]struct{}{}
	appointments, messages := 0, 0
	for _, row := range rows {
		if row.Action == "" {
			continue
		}
		if _, ok := seen[row.Action]; !ok {
			seen[row.Action] = struct{}{}
			actions = append(actions, row.Action)
		}
		switch row.Action {
		case llm.ActionScheduleAppointment:
			appointments++
		case llm.ActionTakeMessage:
			messages++
		}
	}

	audit, err := e.store.AuditByCall(ctx, cc.CallID)
	if err != nil {
		return nil, fmt.Errorf("convo: load audit: %w", err)
	}
	var errs []string
	for _, entry := range audit {
		if entry.Severity == store.SeverityError {
			errs = append(errs, entry.EventType)
		}
	}

	text := fmt.Sprintf("Call completed with %d turns. ", len(rows))
	if appointments > 0 {
		text += fmt.Sprintf("Scheduled %d appointment(s). ", appointments)
	}
	if messages > 0 {
		text += fmt.Sprintf("Took %d message(s). ", messages)
	}

	return &CallSummary{
		CallID:                cc.CallID,
		DurationS:             e.now().UTC().Sub(cc.StartedAt).Seconds(),
		TurnCount:             len(rows),
		ActionsTaken:          actions,
		Outcome:               store.OutcomeCompleted,
		AppointmentsScheduled: appointments,
		MessagesTaken:         messages,
		ErrorsEncountered:     errs,
		SummaryText:           text,
	}, nil
}
