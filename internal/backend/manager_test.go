package backend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	groveerrors "github.com/zafnz/grove/internal/errors"
)

func TestCapabilitiesFor(t *testing.T) {
	claude := CapabilitiesFor(TypeClaude)
	if !claude.SupportsModelListing {
		t.Error("claude should support model listing")
	}
	if claude.SupportsReasoningEffort {
		t.Error("claude should not support reasoning effort")
	}
	if claude.SecurityConfigShape != ShapePermissionMode {
		t.Errorf("claude shape = %q, want %q", claude.SecurityConfigShape, ShapePermissionMode)
	}

	codex := CapabilitiesFor(TypeCodex)
	if !codex.SupportsReasoningEffort {
		t.Error("codex should support reasoning effort")
	}
	if codex.SecurityConfigShape != ShapeSandboxApproval {
		t.Errorf("codex shape = %q, want %q", codex.SecurityConfigShape, ShapeSandboxApproval)
	}

	unknown := CapabilitiesFor(Type("other"))
	if unknown != (Capabilities{}) {
		t.Errorf("unknown type should have zero capabilities, got %+v", unknown)
	}
}

func TestManager_StartLifecycle(t *testing.T) {
	m := NewManager()
	mock := NewMockBackend()
	m.Register("agent-1", TypeClaude, mock)

	if got := m.StateFor("agent-1"); got != StateIdle {
		t.Fatalf("initial state = %q, want idle", got)
	}

	if err := m.Start(context.Background(), "agent-1", Config{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := m.StateFor("agent-1"); got != StateReady {
		t.Errorf("state after start = %q, want ready", got)
	}

	// A second start of a ready agent is a no-op.
	if err := m.Start(context.Background(), "agent-1", Config{}); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if mock.StartCalls() != 1 {
		t.Errorf("Start ran %d handshakes, want 1", mock.StartCalls())
	}
}

func TestManager_StartFailure(t *testing.T) {
	m := NewManager()
	mock := NewMockBackend()
	mock.StartErr = errors.New("handshake refused")
	m.Register("agent-1", TypeClaude, mock)

	err := m.Start(context.Background(), "agent-1", Config{})
	if err == nil {
		t.Fatal("Start() error = nil, want error")
	}
	if !groveerrors.Is(err, groveerrors.KindBackend) {
		t.Errorf("Start() error kind = %v, want KindBackend", groveerrors.GetKind(err))
	}

	if !m.IsAgentError("agent-1") {
		t.Error("IsAgentError() = false after failed start")
	}
	if m.ErrorForAgent("agent-1") == nil {
		t.Error("ErrorForAgent() = nil after failed start")
	}

	// No automatic retry: state stays error until an explicit re-start.
	if got := m.StateFor("agent-1"); got != StateError {
		t.Errorf("state = %q, want error", got)
	}

	// An explicit re-start after clearing the fault succeeds.
	mock.StartErr = nil
	if err := m.Start(context.Background(), "agent-1", Config{}); err != nil {
		t.Fatalf("retry Start() error = %v", err)
	}
	if got := m.StateFor("agent-1"); got != StateReady {
		t.Errorf("state after retry = %q, want ready", got)
	}
	if m.ErrorForAgent("agent-1") != nil {
		t.Error("ErrorForAgent() should clear on successful re-start")
	}
}

func TestManager_SingleFlightStart(t *testing.T) {
	m := NewManager()
	mock := NewMockBackend()
	mock.StartDelay = make(chan struct{})
	m.Register("agent-1", TypeClaude, mock)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Start(context.Background(), "agent-1", Config{})
		}(i)
	}

	// Wait for the first call to enter starting, then release.
	deadline := time.After(2 * time.Second)
	for m.StateFor("agent-1") != StateStarting {
		select {
		case <-deadline:
			t.Fatal("agent never entered starting state")
		case <-time.After(time.Millisecond):
		}
	}
	close(mock.StartDelay)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Start[%d] error = %v", i, err)
		}
	}
	if mock.StartCalls() != 1 {
		t.Errorf("Start ran %d handshakes, want 1 (single-flight)", mock.StartCalls())
	}
}

func TestManager_CreateSessionRequiresReady(t *testing.T) {
	m := NewManager()
	mock := NewMockBackend()
	m.Register("agent-1", TypeClaude, mock)

	_, err := m.CreateSession(context.Background(), "agent-1", SessionOptions{})
	if err == nil {
		t.Fatal("CreateSession() on idle agent should fail")
	}
	if !groveerrors.Is(err, groveerrors.KindBackend) {
		t.Errorf("error kind = %v, want KindBackend", groveerrors.GetKind(err))
	}

	if err := m.Start(context.Background(), "agent-1", Config{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	sess, err := m.CreateSession(context.Background(), "agent-1", SessionOptions{Prompt: "hello"})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if sess == nil {
		t.Fatal("CreateSession() returned nil session")
	}
}

func TestManager_UnregisteredAgent(t *testing.T) {
	m := NewManager()

	if err := m.Start(context.Background(), "ghost", Config{}); !groveerrors.Is(err, groveerrors.KindNotFound) {
		t.Errorf("Start(ghost) kind = %v, want KindNotFound", groveerrors.GetKind(err))
	}
	if _, err := m.CreateSession(context.Background(), "ghost", SessionOptions{}); !groveerrors.Is(err, groveerrors.KindNotFound) {
		t.Errorf("CreateSession(ghost) kind = %v, want KindNotFound", groveerrors.GetKind(err))
	}
}

func TestManager_CapabilitiesForAgent(t *testing.T) {
	m := NewManager()
	m.Register("codex-main", TypeCodex, NewMockBackend())

	caps := m.CapabilitiesForAgent("codex-main")
	if !caps.SupportsReasoningEffort {
		t.Error("codex agent should support reasoning effort")
	}
	if got := m.CapabilitiesForAgent("ghost"); got != (Capabilities{}) {
		t.Errorf("unknown agent capabilities = %+v, want zero", got)
	}
}

func TestUsage_Add(t *testing.T) {
	var total Usage
	total.Add(Usage{InputTokens: 100, OutputTokens: 50, CostUSD: 0.01})
	total.Add(Usage{InputTokens: 200, OutputTokens: 80, CostUSD: 0.02})

	if total.InputTokens != 300 || total.OutputTokens != 130 {
		t.Errorf("tokens = %d/%d, want 300/130", total.InputTokens, total.OutputTokens)
	}
	if total.CostUSD < 0.029 || total.CostUSD > 0.031 {
		t.Errorf("cost = %f, want ~0.03", total.CostUSD)
	}
}
