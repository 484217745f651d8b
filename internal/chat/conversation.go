package chat

import "sync"

// Conversation is an ordered append-only entry sequence for the primary
// agent or one subagent. Entries are only ever appended; Replace exists
// solely for bulk restore from disk.
type Conversation struct {
	mu        sync.RWMutex
	label     string
	task      string
	isPrimary bool
	entries   []Entry
}

// NewConversation returns an empty conversation.
func NewConversation(isPrimary bool) *Conversation {
	return &Conversation{isPrimary: isPrimary}
}

// IsPrimary reports whether this is the chat's primary conversation.
func (c *Conversation) IsPrimary() bool {
	return c.isPrimary
}

// Label returns the human label, set for subagent conversations.
func (c *Conversation) Label() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.label
}

// SetLabel sets the human label.
func (c *Conversation) SetLabel(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.label = label
}

// Task returns the delegated task description, if any.
func (c *Conversation) Task() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.task
}

// SetTask sets the delegated task description.
func (c *Conversation) SetTask(task string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.task = task
}

// Append adds one entry at the end.
func (c *Conversation) Append(entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

// Replace swaps in a full entry list. Used only when restoring a
// persisted transcript, so observers see one change instead of one per
// entry.
func (c *Conversation) Replace(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make([]Entry, len(entries))
	copy(c.entries, entries)
}

// Entries returns a copy of the entry list.
func (c *Conversation) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
