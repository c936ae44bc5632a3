package convo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/callwise/callwise/pkg/llm"
	"github.com/callwise/callwise/pkg/store"
)

type fakeResponses struct {
	resp       *llm.Response
	err        error
	gotHistory []llm.Message
	gotPrompt  string
}

func (f *fakeResponses) Generate(_ context.Context, messages []llm.Message, systemPrompt string) (*llm.Response, error) {
	f.gotHistory = messages
	f.gotPrompt = systemPrompt
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func newTestEngine(t *testing.T, responses llm.ResponseEngine, at time.Time) (*Engine, *store.Memory, *ConversationContext) {
	t.Helper()
	mem := store.NewMemory()
	eng := NewEngine(responses, mem, EngineConfig{Hours: weekdayHours()}, nil)
	eng.now = func() time.Time { return at }

	call := &store.Call{CallSID: "CA123", CallerPhone: "+15551234567"}
	if err := mem.CreateCall(context.Background(), call); err != nil {
		t.Fatalf("CreateCall: %v", err)
	}
	cc := NewContext(call.ID, call.CallSID, call.CallerPhone)
	cc.StartedAt = at
	return eng, mem, cc
}

// Tuesday 10:00, inside business hours.
var openTime = time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)

func TestProcessTurnPersistsPairedRows(t *testing.T) {
	f := &fakeResponses{resp: &llm.Response{
		Text:       "We are open eight to five.",
		Action:     llm.ActionAnswerFAQ,
		ActionArgs: map[string]any{"response": "We are open eight to five.", "category": "hours"},
	}}
	eng, mem, cc := newTestEngine(t, f, openTime)

	turn := eng.ProcessTurn(context.Background(), cc, "what are your hours")
	if turn.TurnNo != 1 {
		t.Fatalf("TurnNo = %d, want 1", turn.TurnNo)
	}
	if cc.TurnNumber != 1 {
		t.Fatalf("context turn number = %d, want 1", cc.TurnNumber)
	}
	if cc.LastAction != llm.ActionAnswerFAQ {
		t.Fatalf("LastAction = %q", cc.LastAction)
	}

	rows, err := mem.TurnsByCall(context.Background(), cc.CallID)
	if err != nil {
		t.Fatalf("TurnsByCall: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want paired user/assistant", len(rows))
	}
	if rows[0].TurnNo != 1 || rows[0].Role != "user" || rows[0].Text != "what are your hours" {
		t.Fatalf("user row = %+v", rows[0])
	}
	if rows[1].TurnNo != 2 || rows[1].Role != "assistant" || rows[1].Action != llm.ActionAnswerFAQ {
		t.Fatalf("assistant row = %+v", rows[1])
	}

	audit, err := mem.AuditByCall(context.Background(), cc.CallID)
	if err != nil {
		t.Fatalf("AuditByCall: %v", err)
	}
	if len(audit) != 1 || audit[0].EventType != "action_answer_faq" {
		t.Fatalf("audit = %+v, want one action_answer_faq event", audit)
	}
}

func TestProcessTurnRowNumbersStayPaired(t *testing.T) {
	f := &fakeResponses{resp: &llm.Response{Text: "ok", Action: llm.ActionAnswerFAQ}}
	eng, mem, cc := newTestEngine(t, f, openTime)

	for i := 0; i < 3; i++ {
		eng.ProcessTurn(context.Background(), cc, "hello")
	}
	rows, _ := mem.TurnsByCall(context.Background(), cc.CallID)
	if len(rows) != 6 {
		t.Fatalf("rows = %d, want 6", len(rows))
	}
	for i, row := range rows {
		if row.TurnNo != i+1 {
			t.Fatalf("row %d numbered %d", i, row.TurnNo)
		}
		wantRole := "user"
		if row.TurnNo%2 == 0 {
			wantRole = "assistant"
		}
		if row.Role != wantRole {
			t.Fatalf("row %d role = %q, want %q", i, row.Role, wantRole)
		}
	}
}

func TestProcessTurnFallbackOnGenerationFailure(t *testing.T) {
	f := &fakeResponses{err: llm.ErrTimeout}
	eng, mem, cc := newTestEngine(t, f, openTime)

	turn := eng.ProcessTurn(context.Background(), cc, "mumble")
	if turn.TurnNo != 1 || cc.TurnNumber != 1 {
		t.Fatalf("turn counter not advanced: turn=%d ctx=%d", turn.TurnNo, cc.TurnNumber)
	}
	if turn.Action != llm.ActionTakeMessage {
		t.Fatalf("Action = %q, want take_message", turn.Action)
	}
	if !strings.Contains(turn.AssistantText, "trouble processing") {
		t.Fatalf("AssistantText = %q", turn.AssistantText)
	}

	audit, _ := mem.AuditByCall(context.Background(), cc.CallID)
	if len(audit) != 1 || audit[0].EventType != store.EventTurnError {
		t.Fatalf("audit = %+v, want error_processing_turn", audit)
	}
	if audit[0].Severity != store.SeverityError {
		t.Fatalf("severity = %q, want error", audit[0].Severity)
	}

	// No partial rows from the failed turn.
	rows, _ := mem.TurnsByCall(context.Background(), cc.CallID)
	if len(rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(rows))
	}

	// A later successful turn keeps numbering monotonic.
	f.err = nil
	f.resp = &llm.Response{Text: "ok", Action: llm.ActionAnswerFAQ}
	turn = eng.ProcessTurn(context.Background(), cc, "what are your hours")
	if turn.TurnNo != 2 {
		t.Fatalf("TurnNo after recovery = %d, want 2", turn.TurnNo)
	}
}

func TestProcessTurnBoundsHistory(t *testing.T) {
	f := &fakeResponses{resp: &llm.Response{Text: "ok", Action: llm.ActionAnswerFAQ}}
	mem := store.NewMemory()
	eng := NewEngine(f, mem, EngineConfig{Hours: weekdayHours(), HistoryWindow: 2}, nil)
	eng.now = func() time.Time { return openTime }

	call := &store.Call{CallSID: "CA9", CallerPhone: "+15550000000"}
	if err := mem.CreateCall(context.Background(), call); err != nil {
		t.Fatalf("CreateCall: %v", err)
	}
	cc := NewContext(call.ID, call.CallSID, call.CallerPhone)

	for i := 0; i < 5; i++ {
		eng.ProcessTurn(context.Background(), cc, "again")
	}
	// Window of 2 logical turns = 4 rows, plus the new utterance.
	if len(f.gotHistory) != 5 {
		t.Fatalf("history len = %d, want 5", len(f.gotHistory))
	}
	if f.gotHistory[len(f.gotHistory)-1].Content != "again" {
		t.Fatalf("last message = %+v, want current utterance", f.gotHistory[len(f.gotHistory)-1])
	}
}

func TestProcessTurnAppendsOffHoursAddendum(t *testing.T) {
	f := &fakeResponses{resp: &llm.Response{Text: "ok", Action: llm.ActionAnswerFAQ}}
	saturday := time.Date(2025, 6, 7, 10, 0, 0, 0, time.UTC)
	eng, _, cc := newTestEngine(t, f, saturday)

	eng.ProcessTurn(context.Background(), cc, "hello")
	if !strings.Contains(f.gotPrompt, "outside of business hours") {
		t.Fatal("off-hours addendum missing from system prompt")
	}

	f2 := &fakeResponses{resp: &llm.Response{Text: "ok", Action: llm.ActionAnswerFAQ}}
	eng2, _, cc2 := newTestEngine(t, f2, openTime)
	eng2.ProcessTurn(context.Background(), cc2, "hello")
	if strings.Contains(f2.gotPrompt, "outside of business hours") {
		t.Fatal("off-hours addendum present during business hours")
	}
}

func TestProcessTurnAppendsKnowledgeBase(t *testing.T) {
	f := &fakeResponses{resp: &llm.Response{Text: "ok", Action: llm.ActionAnswerFAQ}}
	mem := store.NewMemory()
	faq := FAQ{{Category: "hours", Question: "What are your hours?", Answer: "Weekdays 8 to 5."}}
	eng := NewEngine(f, mem, EngineConfig{Hours: weekdayHours(), FAQ: faq}, nil)
	eng.now = func() time.Time { return openTime }

	call := &store.Call{CallSID: "CA7", CallerPhone: "+15550000000"}
	if err := mem.CreateCall(context.Background(), call); err != nil {
		t.Fatalf("CreateCall: %v", err)
	}
	cc := NewContext(call.ID, call.CallSID, call.CallerPhone)

	eng.ProcessTurn(context.Background(), cc, "hello")
	if !strings.Contains(f.gotPrompt, "Knowledge Base (use this to answer common questions):") {
		t.Fatal("knowledge base header missing from system prompt")
	}
	if !strings.Contains(f.gotPrompt, "A: Weekdays 8 to 5.") {
		t.Fatal("knowledge base answer missing from system prompt")
	}

	// Without a knowledge base the prompt stays clean.
	f2 := &fakeResponses{resp: &llm.Response{Text: "ok", Action: llm.ActionAnswerFAQ}}
	eng2, _, cc2 := newTestEngine(t, f2, openTime)
	eng2.ProcessTurn(context.Background(), cc2, "hello")
	if strings.Contains(f2.gotPrompt, "Knowledge Base") {
		t.Fatal("knowledge base present without configured entries")
	}
}

func TestGenerateSummary(t *testing.T) {
	responses := []*llm.Response{
		{Text: "a", Action: llm.ActionScheduleAppointment},
		{Text: "b", Action: llm.ActionTakeMessage},
		{Text: "c", Action: llm.ActionTakeMessage},
	}
	f := &fakeResponses{}
	eng, mem, cc := newTestEngine(t, f, openTime)

	for _, r := range responses {
		f.resp = r
		eng.ProcessTurn(context.Background(), cc, "hi")
	}
	// One failed turn contributes an error audit row.
	f.err = llm.ErrRateLimit
	eng.ProcessTurn(context.Background(), cc, "hi")
	f.err = nil

	sum, err := eng.GenerateSummary(context.Background(), cc)
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if sum.TurnCount != 6 {
		t.Fatalf("TurnCount = %d, want 6 persisted rows", sum.TurnCount)
	}
	if sum.AppointmentsScheduled != 1 || sum.MessagesTaken != 2 {
		t.Fatalf("tallies = %d/%d, want 1/2", sum.AppointmentsScheduled, sum.MessagesTaken)
	}
	if len(sum.ActionsTaken) != 2 {
		t.Fatalf("ActionsTaken = %v, want two distinct actions", sum.ActionsTaken)
	}
	if len(sum.ErrorsEncountered) != 1 || sum.ErrorsEncountered[0] != store.EventTurnError {
		t.Fatalf("ErrorsEncountered = %v", sum.ErrorsEncountered)
	}
	if !strings.Contains(sum.SummaryText, "Scheduled 1 appointment(s)") ||
		!strings.Contains(sum.SummaryText, "Took 2 message(s)") {
		t.Fatalf("SummaryText = %q", sum.SummaryText)
	}
	if _, ok := mem.CallByID(cc.CallID); !ok {
		t.Fatal("call record missing")
	}
}
