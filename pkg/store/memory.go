package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store for tests and single-node runs.
type Memory struct {
	mu    sync.RWMutex
	calls map[string]*Call
	turns map[string][]Turn
	audit map[string][]AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		calls: make(map[string]*Call),
		turns: make(map[string][]Turn),
		audit: make(map[string][]AuditEntry),
	}
}

func (m *Memory) CreateCall(_ context.Context, call *Call) error {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.StartedAt.IsZero() {
		call.StartedAt = time.Now().UTC()
	}
	if call.TenantID == "" {
		call.TenantID = "default"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *call
	m.calls[call.ID] = &c
	return nil
}

func (m *Memory) EndCall(_ context.Context, callID, outcome, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return ErrNotFound
	}
	c.EndedAt = time.Now().UTC()
	c.DurationS = c.EndedAt.Sub(c.StartedAt).Seconds()
	c.Outcome = outcome
	c.Summary = summary
	return nil
}

// CallByID returns a copy of the stored call, used by tests.
func (m *Memory) CallByID(callID string) (Call, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.calls[callID]
	if !ok {
		return Call{}, false
	}
	return *c, true
}

func (m *Memory) AppendTurn(_ context.Context, turn *Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.calls[turn.CallID]; !ok {
		return ErrNotFound
	}
	m.turns[turn.CallID] = append(m.turns[turn.CallID], *turn)
	return nil
}

func (m *Memory) RecentTurns(_ context.Context, callID string, limit int) ([]Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.turns[callID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]Turn, len(all))
	copy(out, all)
	return out, nil
}

func (m *Memory) TurnsByCall(ctx context.Context, callID string) ([]Turn, error) {
	return m.RecentTurns(ctx, callID, 0)
}

func (m *Memory) AppendAudit(_ context.Context, entry *AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Severity == "" {
		entry.Severity = SeverityInfo
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit[entry.CallID] = append(m.audit[entry.CallID], *entry)
	return nil
}

func (m *Memory) AuditByCall(_ context.Context, callID string) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AuditEntry, len(m.audit[callID]))
	copy(out, m.audit[callID])
	return out, nil
}

func (m *Memory) Close() {}
