package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Manager owns the live flow sessions of the process.
type Manager struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Context
}

func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:   logger.With("module", "session_manager"),
		sessions: make(map[string]*Context),
	}
}

// Start creates an empty context for id, seeding the reserved trigger key when
// a trigger payload is given. Starting an existing session returns it unchanged.
func (m *Manager) Start(id string, triggerPayload any) (*Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[id]; ok {
		return existing, nil
	}

	ctx := NewContext(id)

	if triggerPayload != nil {
		if err := ctx.Set(TriggerKey, triggerPayload); err != nil {
			return nil, err
		}
	}

	m.sessions[id] = ctx

	m.logger.Debug("Flow session started", "flow_session_id", id)

	return ctx, nil
}

// Get returns the context of a live session.
func (m *Manager) Get(id string) (*Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ctx, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	ctx.touch(time.Now())

	return ctx, nil
}

// GetOrStart returns the live session or starts an empty one.
func (m *Manager) GetOrStart(id string) *Context {
	if ctx, err := m.Get(id); err == nil {
		return ctx
	}

	ctx, _ := m.Start(id, nil)

	return ctx
}

// End discards the session context.
func (m *Manager) End(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)

	m.logger.Debug("Flow session ended", "flow_session_id", id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}

// Sweep ends sessions that were neither read nor written during the idle
// period before now and returns how many were ended.
func (m *Manager) Sweep(now time.Time, idle time.Duration) int {
	if idle <= 0 {
		return 0
	}

	cutoff := now.Add(-idle)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0

	for id, ctx := range m.sessions {
		if ctx.idleSince(cutoff) {
			delete(m.sessions, id)

			removed++
		}
	}

	return removed
}

// Run sweeps idle sessions until ctx is done. A non-positive idle keeps
// sessions until they are ended explicitly.
func (m *Manager) Run(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}

	ticker := time.NewTicker(idle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := m.Sweep(now, idle); removed > 0 {
				m.logger.InfoContext(ctx, "Idle flow sessions ended", "count", removed)
			}
		}
	}
}
