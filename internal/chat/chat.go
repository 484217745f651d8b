package chat

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zafnz/grove/internal/backend"
)

// Chat is one conversation thread bound to a worktree. The id is
// assigned once at creation and never changes; everything else is
// mutable through the accessors. Subagent conversations are created
// lazily the first time a message references their id.
type Chat struct {
	id string

	mu              sync.RWMutex
	name            string
	autoNamed       bool
	draft           string
	agentID         string
	backendType     backend.Type
	model           string
	permissionMode  string
	reasoningEffort string
	security        backend.SecurityConfig
	primary         *Conversation
	subagents       map[string]*Conversation
}

// New creates a chat with a fresh id and an auto-generated name.
func New(name string, autoNamed bool) *Chat {
	return &Chat{
		id:        uuid.NewString(),
		name:      name,
		autoNamed: autoNamed,
		primary:   NewConversation(true),
		subagents: make(map[string]*Conversation),
	}
}

// Restore reconstructs a chat with a known id, as read from the index.
// Transcript and meta are loaded separately.
func Restore(id, name string) *Chat {
	return &Chat{
		id:        id,
		name:      name,
		primary:   NewConversation(true),
		subagents: make(map[string]*Conversation),
	}
}

// ID returns the immutable chat id.
func (c *Chat) ID() string {
	return c.id
}

// Name returns the display name.
func (c *Chat) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// AutoNamed reports whether the name was auto-generated, meaning a
// later rename (user or AI title) may overwrite it.
func (c *Chat) AutoNamed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.autoNamed
}

// SetName sets a user-chosen name and clears the auto-named flag.
func (c *Chat) SetName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
	c.autoNamed = false
}

// SetAutoName overwrites the name only if it is still auto-generated.
func (c *Chat) SetAutoName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.autoNamed {
		c.name = name
	}
}

// Draft returns the unsent composer text.
func (c *Chat) Draft() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.draft
}

// SetDraft stores the unsent composer text.
func (c *Chat) SetDraft(draft string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = draft
}

// AgentID returns the selected agent id.
func (c *Chat) AgentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.agentID
}

// BackendType returns the selected backend family.
func (c *Chat) BackendType() backend.Type {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backendType
}

// Model returns the selected model.
func (c *Chat) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// PermissionMode returns the permission mode setting.
func (c *Chat) PermissionMode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.permissionMode
}

// SetPermissionMode stores the permission mode.
func (c *Chat) SetPermissionMode(mode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.permissionMode = mode
}

// ReasoningEffort returns the reasoning-effort setting. The value is
// always stored even when the current backend ignores it; it applies if
// the backend is switched before the session starts.
func (c *Chat) ReasoningEffort() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reasoningEffort
}

// SetReasoningEffort stores the reasoning-effort setting.
func (c *Chat) SetReasoningEffort(effort string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reasoningEffort = effort
}

// Security returns the backend security configuration.
func (c *Chat) Security() backend.SecurityConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.security
}

// SetSecurity stores the backend security configuration.
func (c *Chat) SetSecurity(cfg backend.SecurityConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.security = cfg
}

// Primary returns the primary conversation.
func (c *Chat) Primary() *Conversation {
	return c.primary
}

// Subagent returns the conversation for a subagent id, creating it on
// first reference.
func (c *Chat) Subagent(id string) *Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conv, ok := c.subagents[id]; ok {
		return conv
	}
	conv := NewConversation(false)
	conv.SetLabel(fmt.Sprintf("Subagent %d", len(c.subagents)+1))
	c.subagents[id] = conv
	return conv
}

// SubagentIDs returns the known subagent ids, sorted.
func (c *Chat) SubagentIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.subagents))
	for id := range c.subagents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ConversationFor routes a subagent id to its conversation; an empty id
// means the primary conversation.
func (c *Chat) ConversationFor(subagentID string) *Conversation {
	if subagentID == "" {
		return c.primary
	}
	return c.Subagent(subagentID)
}

// Settings bundles a chat's persisted configuration.
type Settings struct {
	AgentID         string
	Backend         backend.Type
	Model           string
	PermissionMode  string
	ReasoningEffort string
	Security        backend.SecurityConfig
}

// ApplySettings loads a settings bundle wholesale, as when restoring a
// chat from disk or configuring a fresh one. Once a session has
// started, backend and model changes must go through the orchestrator,
// which rejects them.
func (c *Chat) ApplySettings(s Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentID = s.AgentID
	c.backendType = s.Backend
	c.model = s.Model
	c.permissionMode = s.PermissionMode
	c.reasoningEffort = s.ReasoningEffort
	c.security = s.Security
}

// Settings returns the chat's current settings bundle.
func (c *Chat) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Settings{
		AgentID:         c.agentID,
		Backend:         c.backendType,
		Model:           c.model,
		PermissionMode:  c.permissionMode,
		ReasoningEffort: c.reasoningEffort,
		Security:        c.security,
	}
}

// setBackend is called by the orchestrator, which enforces that the
// session has not started.
func (c *Chat) setBackend(agentID string, t backend.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentID = agentID
	c.backendType = t
}

// setModel is called by the orchestrator, which enforces that the
// session has not started.
func (c *Chat) setModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = model
}
