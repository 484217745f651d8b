package exec

import (
	"context"
	"strings"
	"sync"
)

// MockResponse is the scripted result for one command pattern.
type MockResponse struct {
	Stdout string
	Stderr string
	Err    error
}

// MockExecutor is a scripted CommandExecutor for tests and demos.
// Responses are keyed by a space-joined "name args..." prefix; the most
// specific (longest) matching prefix wins. Unscripted commands succeed
// with empty output, so tests only script the commands they care about.
type MockExecutor struct {
	mu        sync.Mutex
	responses map[string]MockResponse
	calls     []string
}

// NewMockExecutor returns an empty MockExecutor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{responses: make(map[string]MockResponse)}
}

// Stub registers a response for commands starting with the given prefix,
// e.g. "git worktree add" or "git rev-parse --abbrev-ref HEAD".
func (m *MockExecutor) Stub(prefix string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prefix] = resp
}

// Calls returns the commands executed so far, space-joined.
func (m *MockExecutor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]string, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallCount returns how many executed commands start with prefix.
func (m *MockExecutor) CallCount(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if strings.HasPrefix(c, prefix) {
			count++
		}
	}
	return count
}

func (m *MockExecutor) lookup(name string, args []string) MockResponse {
	cmdLine := name
	if len(args) > 0 {
		cmdLine += " " + strings.Join(args, " ")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, cmdLine)

	var best string
	var resp MockResponse
	for prefix, r := range m.responses {
		if strings.HasPrefix(cmdLine, prefix) && len(prefix) > len(best) {
			best = prefix
			resp = r
		}
	}
	return resp
}

func (m *MockExecutor) Run(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	resp := m.lookup(name, args)
	return []byte(resp.Stdout), []byte(resp.Stderr), resp.Err
}

func (m *MockExecutor) Output(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	resp := m.lookup(name, args)
	if resp.Err != nil {
		return nil, resp.Err
	}
	return []byte(resp.Stdout), nil
}

func (m *MockExecutor) CombinedOutput(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	resp := m.lookup(name, args)
	return []byte(resp.Stdout + resp.Stderr), resp.Err
}
