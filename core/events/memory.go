package events

import "sync"

// MemoryEmitter retains the most recent events in a bounded ring so callers
// (the RPC event feed, tests) can inspect what a sale emitted.
type MemoryEmitter struct {
	mu     sync.Mutex
	limit  int
	events []Event
}

// NewMemoryEmitter creates an emitter that keeps at most limit events. A
// non-positive limit falls back to 256.
func NewMemoryEmitter(limit int) *MemoryEmitter {
	if limit <= 0 {
		limit = 256
	}
	return &MemoryEmitter{limit: limit}
}

// Emit implements the Emitter interface.
func (m *MemoryEmitter) Emit(evt Event) {
	if m == nil || evt == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	if len(m.events) > m.limit {
		m.events = m.events[len(m.events)-m.limit:]
	}
}

// Events returns a snapshot of the retained events, oldest first.
func (m *MemoryEmitter) Events() []Event {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
