package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/zafnz/grove/internal/backend"
	groveerrors "github.com/zafnz/grove/internal/errors"
	"github.com/zafnz/grove/internal/events"
	"github.com/zafnz/grove/internal/logger"
)

// Phase is the session lifecycle state for one chat.
type Phase string

const (
	PhaseNotStarted Phase = "notStarted"
	PhaseActive     Phase = "active"
	PhaseEnded      Phase = "ended"
	PhaseError      Phase = "error"
)

// Persister is the slice of the store the orchestrator needs. Append
// failures are logged and skipped so a full disk never stalls message
// ingestion.
type Persister interface {
	AppendChatEntry(projectID, chatID string, entry Entry) error
}

// Notifier delivers desktop notices for session milestones.
type Notifier interface {
	SessionCompleted(chatName, summary string) error
	PermissionRequested(chatName, tool string) error
}

// Orchestrator drives one chat's agent session: it starts the backend
// session, consumes its message stream, routes entries to the primary
// or subagent conversations, manages the permission round-trip, and
// accumulates usage totals.
type Orchestrator struct {
	chat      *Chat
	projectID string
	workdir   string
	backends  *backend.Manager
	store     Persister
	bus       *events.Bus
	notifier  Notifier

	mu         sync.Mutex
	phase      Phase
	session    backend.Session
	pending    map[string]*backend.PermissionRequest
	responded  map[string]bool
	usage      backend.Usage
	resultSeen bool
	done       chan struct{}
}

// OrchestratorConfig carries the collaborators an orchestrator needs.
// Bus and Notifier may be nil when no observer cares.
type OrchestratorConfig struct {
	ProjectID string
	// Workdir is the worktree root agent sessions run in.
	Workdir  string
	Backends *backend.Manager
	Store    Persister
	Bus      *events.Bus
	Notifier Notifier
}

// NewOrchestrator wires an orchestrator for one chat.
func NewOrchestrator(c *Chat, cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		chat:      c,
		projectID: cfg.ProjectID,
		workdir:   cfg.Workdir,
		backends:  cfg.Backends,
		store:     cfg.Store,
		bus:       cfg.Bus,
		notifier:  cfg.Notifier,
		phase:     PhaseNotStarted,
		pending:   make(map[string]*backend.PermissionRequest),
		responded: make(map[string]bool),
	}
}

// Chat returns the chat this orchestrator drives.
func (o *Orchestrator) Chat() *Chat {
	return o.chat
}

// Phase returns the current session phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Usage returns the accumulated usage totals.
func (o *Orchestrator) Usage() backend.Usage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.usage
}

// SetBackend selects the agent for this chat. Only permitted before the
// session starts; afterwards the prior selection is left unchanged.
func (o *Orchestrator) SetBackend(agentID string, t backend.Type) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != PhaseNotStarted {
		return groveerrors.BackendLocked(o.chat.ID())
	}
	o.chat.setBackend(agentID, t)
	return nil
}

// SetModel selects the model. Only permitted before the session starts.
func (o *Orchestrator) SetModel(model string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != PhaseNotStarted {
		return groveerrors.StateConflict("chat.SetModel",
			fmt.Sprintf("cannot change model for chat %s after its session has started", o.chat.ID()))
	}
	o.chat.setModel(model)
	return nil
}

// StartSession creates the backend session with the chat's settings,
// records the prompt as a user entry, and begins consuming the message
// stream. Requires the notStarted phase.
func (o *Orchestrator) StartSession(ctx context.Context, prompt, resumeToken string) error {
	o.mu.Lock()
	if o.phase != PhaseNotStarted {
		o.mu.Unlock()
		return groveerrors.SessionAlreadyStarted(o.chat.ID())
	}
	o.mu.Unlock()

	opts := o.sessionOptions(prompt, resumeToken)
	session, err := o.backends.CreateSession(ctx, o.chat.AgentID(), opts)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.phase != PhaseNotStarted {
		o.mu.Unlock()
		session.Close()
		return groveerrors.SessionAlreadyStarted(o.chat.ID())
	}
	o.session = session
	o.phase = PhaseActive
	o.done = make(chan struct{})
	o.mu.Unlock()

	if prompt != "" {
		entry := NewEntry(EntryUserInput)
		entry.Text = prompt
		o.appendEntry(o.chat.Primary(), entry)
	}

	o.publishPhase()
	go o.consume(session)
	return nil
}

// sessionOptions assembles SessionOptions from the chat's settings,
// forwarding only what the selected backend's capabilities admit. The
// full settings stay on the chat regardless.
func (o *Orchestrator) sessionOptions(prompt, resumeToken string) backend.SessionOptions {
	caps := o.backends.CapabilitiesForAgent(o.chat.AgentID())

	opts := backend.SessionOptions{
		Prompt:      prompt,
		Cwd:         o.workdir,
		ResumeToken: resumeToken,
		Model:       o.chat.Model(),
	}
	if caps.SupportsReasoningEffort {
		opts.ReasoningEffort = o.chat.ReasoningEffort()
	}

	sec := o.chat.Security()
	switch caps.SecurityConfigShape {
	case backend.ShapePermissionMode:
		opts.Security = backend.SecurityConfig{
			PermissionMode: o.chat.PermissionMode(),
			AllowedTools:   sec.AllowedTools,
		}
	case backend.ShapeSandboxApproval:
		opts.Security = backend.SecurityConfig{
			Sandbox:  sec.Sandbox,
			Approval: sec.Approval,
		}
	}
	return opts
}

// Send delivers follow-up user input to the active session.
func (o *Orchestrator) Send(ctx context.Context, text string) error {
	o.mu.Lock()
	session := o.session
	phase := o.phase
	o.mu.Unlock()

	if phase != PhaseActive {
		return groveerrors.StateConflict("chat.Send",
			fmt.Sprintf("chat %s has no active session (phase: %s)", o.chat.ID(), phase))
	}
	if err := session.Send(ctx, text); err != nil {
		return err
	}

	entry := NewEntry(EntryUserInput)
	entry.Text = text
	o.appendEntry(o.chat.Primary(), entry)
	return nil
}

// Done returns a channel that closes when the message stream finishes.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// consume drains the session's message stream. It runs until the
// channel closes; a close without a terminal result means the backend
// died mid-session, which ends the chat in the error phase and
// abandons any pending permissions as implicit denies.
func (o *Orchestrator) consume(session backend.Session) {
	for msg := range session.Messages() {
		o.handleMessage(msg)
	}

	o.mu.Lock()
	abandoned := make([]*backend.PermissionRequest, 0, len(o.pending))
	for id, req := range o.pending {
		abandoned = append(abandoned, req)
		o.responded[id] = true
		delete(o.pending, id)
	}
	streamDied := !o.resultSeen
	if streamDied {
		o.phase = PhaseError
	}
	done := o.done
	o.mu.Unlock()

	for _, req := range abandoned {
		entry := NewEntry(EntrySystem)
		entry.IsError = true
		entry.Text = fmt.Sprintf("Permission request for %s was abandoned when the session ended (denied)", req.Tool)
		o.appendEntry(o.chat.Primary(), entry)
	}

	if streamDied {
		logger.Error("Chat %s: session stream closed without a result", o.chat.ID())
		entry := NewEntry(EntrySystem)
		entry.IsError = true
		entry.Text = "Session ended unexpectedly"
		o.appendEntry(o.chat.Primary(), entry)
		o.publishPhase()
	}

	close(done)
}

// handleMessage classifies one backend message and routes it to the
// right conversation. Entries for the same conversation are appended in
// arrival order.
func (o *Orchestrator) handleMessage(msg backend.Message) {
	conv := o.chat.ConversationFor(msg.SubagentID)

	switch msg.Kind {
	case backend.MessageSystemInit:
		entry := NewEntry(EntrySystem)
		entry.SubagentID = msg.SubagentID
		entry.Text = fmt.Sprintf("Session started (model: %s)", msg.Model)
		o.appendEntry(conv, entry)

	case backend.MessageAssistantText:
		entry := NewEntry(EntryTextOutput)
		entry.SubagentID = msg.SubagentID
		entry.Text = msg.Text
		o.appendEntry(conv, entry)

	case backend.MessageToolUse:
		entry := NewEntry(EntryToolUse)
		entry.SubagentID = msg.SubagentID
		entry.ToolID = msg.ToolID
		entry.ToolName = msg.ToolName
		entry.ToolInput = msg.ToolInput
		o.appendEntry(conv, entry)

	case backend.MessageToolResult:
		entry := NewEntry(EntryToolResult)
		entry.SubagentID = msg.SubagentID
		entry.ToolID = msg.ToolID
		entry.Text = msg.ToolResult
		entry.IsError = msg.IsError
		o.appendEntry(conv, entry)

	case backend.MessagePermissionRequest:
		if msg.Permission == nil {
			logger.Warn("Chat %s: permission request message without payload", o.chat.ID())
			return
		}
		o.mu.Lock()
		o.pending[msg.Permission.ID] = msg.Permission
		o.mu.Unlock()
		if o.bus != nil {
			o.bus.Publish(events.Event{
				Kind:   events.PermissionPending,
				ChatID: o.chat.ID(),
				Detail: msg.Permission.ID,
			})
		}
		if o.notifier != nil {
			if err := o.notifier.PermissionRequested(o.chat.Name(), msg.Permission.Tool); err != nil {
				logger.Warn("Chat %s: permission notification failed: %v", o.chat.ID(), err)
			}
		}

	case backend.MessageResult:
		o.handleResult(msg)
	}
}

func (o *Orchestrator) handleResult(msg backend.Message) {
	result := msg.Result
	if result == nil {
		result = &backend.ResultInfo{}
	}

	o.mu.Lock()
	o.usage.Add(result.Usage)
	o.resultSeen = true
	if result.IsError {
		o.phase = PhaseError
	} else {
		o.phase = PhaseEnded
	}
	o.mu.Unlock()

	entry := NewEntry(EntryResult)
	entry.SubagentID = msg.SubagentID
	entry.Text = result.Text
	entry.IsError = result.IsError
	entry.Usage = &result.Usage
	o.appendEntry(o.chat.ConversationFor(msg.SubagentID), entry)

	o.publishPhase()
	if o.notifier != nil {
		if err := o.notifier.SessionCompleted(o.chat.Name(), result.Text); err != nil {
			logger.Warn("Chat %s: completion notification failed: %v", o.chat.ID(), err)
		}
	}
}

// PendingPermissions returns the unanswered permission requests.
func (o *Orchestrator) PendingPermissions() []*backend.PermissionRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*backend.PermissionRequest, 0, len(o.pending))
	for _, req := range o.pending {
		out = append(out, req)
	}
	return out
}

// RespondToPermission answers a pending request exactly once. A second
// response for the same id is a state-conflict error; unknown ids are
// not-found errors. Deny messages are echoed into the conversation.
func (o *Orchestrator) RespondToPermission(ctx context.Context, requestID string, allow bool, message string) error {
	o.mu.Lock()
	if o.responded[requestID] {
		o.mu.Unlock()
		return groveerrors.PermissionAlreadyResolved(requestID)
	}
	req, ok := o.pending[requestID]
	if !ok {
		o.mu.Unlock()
		return groveerrors.PermissionUnknown(requestID)
	}
	delete(o.pending, requestID)
	o.responded[requestID] = true
	session := o.session
	o.mu.Unlock()

	if err := session.RespondToPermission(ctx, requestID, allow, message); err != nil {
		return err
	}

	if !allow && message != "" {
		entry := NewEntry(EntrySystem)
		entry.Text = fmt.Sprintf("Denied %s: %s", req.Tool, message)
		o.appendEntry(o.chat.Primary(), entry)
	}
	return nil
}

// Close terminates the session if one is active.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	session := o.session
	o.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.Close()
}

// appendEntry appends to the conversation, persists, and announces the
// change. Persistence failures are logged, never fatal.
func (o *Orchestrator) appendEntry(conv *Conversation, entry Entry) {
	conv.Append(entry)
	if o.store != nil {
		if err := o.store.AppendChatEntry(o.projectID, o.chat.ID(), entry); err != nil {
			logger.Error("Chat %s: failed to persist entry %s: %v", o.chat.ID(), entry.ID, err)
		}
	}
	if o.bus != nil {
		o.bus.Publish(events.Event{Kind: events.ChatUpdated, ChatID: o.chat.ID()})
	}
}

func (o *Orchestrator) publishPhase() {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.Event{
		Kind:   events.SessionPhaseChanged,
		ChatID: o.chat.ID(),
		Detail: string(o.Phase()),
	})
}
