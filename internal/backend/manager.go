package backend

import (
	"context"
	"sync"

	groveerrors "github.com/zafnz/grove/internal/errors"
	"github.com/zafnz/grove/internal/logger"
)

// AgentState is the connection lifecycle state for one agent.
type AgentState string

const (
	StateIdle     AgentState = "idle"
	StateStarting AgentState = "starting"
	StateReady    AgentState = "ready"
	StateError    AgentState = "error"
)

type agentEntry struct {
	backend   Backend
	agentType Type
	state     AgentState
	err       error
	// done is non-nil while a start attempt is in flight; it closes when
	// the attempt finishes so concurrent callers can wait instead of
	// issuing a second start.
	done chan struct{}
}

// Manager tracks one connection per agent id and enforces the
// idle→starting→ready|error lifecycle. Start attempts are
// single-flight: a second Start while one is in flight waits on it.
// Failed agents stay in error until the user explicitly re-starts them.
type Manager struct {
	mu     sync.Mutex
	agents map[string]*agentEntry
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{agents: make(map[string]*agentEntry)}
}

// Register binds a backend implementation to an agent id. Registering
// over an existing id resets it to idle.
func (m *Manager) Register(agentID string, agentType Type, b Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[agentID] = &agentEntry{backend: b, agentType: agentType, state: StateIdle}
}

// StateFor returns the lifecycle state for an agent id.
func (m *Manager) StateFor(agentID string) AgentState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.agents[agentID]; ok {
		return e.state
	}
	return StateIdle
}

// TypeFor returns the backend type registered for an agent id.
func (m *Manager) TypeFor(agentID string) (Type, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.agents[agentID]; ok {
		return e.agentType, true
	}
	return "", false
}

// CapabilitiesForAgent returns the capability descriptor for the
// backend registered under an agent id. Unknown agents get the zero
// capability set.
func (m *Manager) CapabilitiesForAgent(agentID string) Capabilities {
	t, ok := m.TypeFor(agentID)
	if !ok {
		return Capabilities{}
	}
	return CapabilitiesFor(t)
}

// Start brings an agent to ready. If a start is already in flight the
// call waits for it rather than issuing a second handshake. A ready
// agent returns immediately; an errored agent is retried (retry is
// always user-initiated, the manager never retries on its own).
func (m *Manager) Start(ctx context.Context, agentID string, config Config) error {
	const op groveerrors.Op = "backend.Start"

	m.mu.Lock()
	entry, ok := m.agents[agentID]
	if !ok {
		m.mu.Unlock()
		return groveerrors.E(op, groveerrors.KindNotFound, "no backend registered for agent "+agentID)
	}

	switch entry.state {
	case StateReady:
		m.mu.Unlock()
		return nil
	case StateStarting:
		done := entry.done
		m.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		m.mu.Lock()
		err := entry.err
		m.mu.Unlock()
		return err
	}

	// idle or error: begin a fresh attempt
	entry.state = StateStarting
	entry.err = nil
	entry.done = make(chan struct{})
	done := entry.done
	backend := entry.backend
	m.mu.Unlock()

	logger.Info("Backend: starting agent %s", agentID)
	err := backend.Start(ctx, config)

	m.mu.Lock()
	if err != nil {
		entry.state = StateError
		entry.err = groveerrors.E(op, groveerrors.KindBackend, err)
		logger.Error("Backend: agent %s failed to start: %v", agentID, err)
	} else {
		entry.state = StateReady
		logger.Info("Backend: agent %s ready", agentID)
	}
	result := entry.err
	entry.done = nil
	close(done)
	m.mu.Unlock()

	return result
}

// CreateSession creates a session on a ready agent. Any other state is
// a synchronous error: callers are expected to Start first and react to
// its outcome.
func (m *Manager) CreateSession(ctx context.Context, agentID string, opts SessionOptions) (Session, error) {
	const op groveerrors.Op = "backend.CreateSession"

	m.mu.Lock()
	entry, ok := m.agents[agentID]
	if !ok {
		m.mu.Unlock()
		return nil, groveerrors.E(op, groveerrors.KindNotFound, "no backend registered for agent "+agentID)
	}
	state := entry.state
	backend := entry.backend
	m.mu.Unlock()

	if state != StateReady {
		return nil, groveerrors.E(op, groveerrors.KindBackend,
			"agent "+agentID+" is not ready (state: "+string(state)+")")
	}
	return backend.NewSession(ctx, opts)
}

// ErrorForAgent returns the recorded start failure for an agent id, or
// nil if the agent has not failed.
func (m *Manager) ErrorForAgent(agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.agents[agentID]; ok {
		return e.err
	}
	return nil
}

// IsAgentError reports whether an agent is in the error state.
func (m *Manager) IsAgentError(agentID string) bool {
	return m.StateFor(agentID) == StateError
}
