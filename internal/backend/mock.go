package backend

import (
	"context"
	"sync"
)

// MockBackend is a scripted Backend for tests and demos. StartErr makes
// Start fail; StartDelay gates Start on a channel so tests can hold an
// attempt in flight.
type MockBackend struct {
	mu         sync.Mutex
	StartErr   error
	StartDelay chan struct{}
	started    bool
	startCalls int
	sessions   []*MockSession
	// Script is replayed into each new session's message channel.
	Script []Message
	// SessionErr makes NewSession fail.
	SessionErr error
}

// NewMockBackend returns a MockBackend with no script.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

func (b *MockBackend) Start(ctx context.Context, config Config) error {
	b.mu.Lock()
	delay := b.StartDelay
	b.startCalls++
	b.mu.Unlock()

	if delay != nil {
		select {
		case <-delay:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.StartErr != nil {
		return b.StartErr
	}
	b.started = true
	return nil
}

// StartCalls returns how many times Start ran its handshake.
func (b *MockBackend) StartCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startCalls
}

func (b *MockBackend) NewSession(ctx context.Context, opts SessionOptions) (Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SessionErr != nil {
		return nil, b.SessionErr
	}

	s := newMockSession(opts)
	for _, msg := range b.Script {
		s.Emit(msg)
	}
	b.sessions = append(b.sessions, s)
	return s, nil
}

// Sessions returns the sessions created so far.
func (b *MockBackend) Sessions() []*MockSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*MockSession, len(b.sessions))
	copy(out, b.sessions)
	return out
}

// MockSession is a scriptable Session. Tests push messages with Emit
// and end the stream with End; sends and permission responses are
// recorded for assertions.
type MockSession struct {
	mu        sync.Mutex
	opts      SessionOptions
	messages  chan Message
	ended     bool
	sent      []string
	responses []PermissionResponse
	SendErr   error
}

// PermissionResponse records one RespondToPermission call.
type PermissionResponse struct {
	RequestID string
	Allow     bool
	Message   string
}

func newMockSession(opts SessionOptions) *MockSession {
	return &MockSession{
		opts:     opts,
		messages: make(chan Message, 64),
	}
}

// Options returns the SessionOptions the session was created with.
func (s *MockSession) Options() SessionOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

// Emit pushes a message into the session's stream.
func (s *MockSession) Emit(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.messages <- msg
}

// End closes the message stream.
func (s *MockSession) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.ended = true
		close(s.messages)
	}
}

func (s *MockSession) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.sent = append(s.sent, text)
	return nil
}

// Sent returns the texts delivered via Send.
func (s *MockSession) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *MockSession) Messages() <-chan Message {
	return s.messages
}

func (s *MockSession) RespondToPermission(ctx context.Context, requestID string, allow bool, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, PermissionResponse{requestID, allow, message})
	return nil
}

// Responses returns the permission responses delivered so far.
func (s *MockSession) Responses() []PermissionResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PermissionResponse, len(s.responses))
	copy(out, s.responses)
	return out
}

func (s *MockSession) Close() error {
	s.End()
	return nil
}
