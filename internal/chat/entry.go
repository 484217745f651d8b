// Package chat owns the conversation state for one chat thread: its
// entries, subagent conversations, settings, and the session
// orchestrator that drives an agent backend.
package chat

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/zafnz/grove/internal/backend"
)

// EntryKind discriminates transcript entry types.
type EntryKind string

const (
	EntryUserInput  EntryKind = "userInput"
	EntryTextOutput EntryKind = "textOutput"
	EntryToolUse    EntryKind = "toolUse"
	EntryToolResult EntryKind = "toolResult"
	EntrySystem     EntryKind = "system"
	EntryResult     EntryKind = "result"
)

// Entry is one transcript record. Entries are immutable once appended;
// ids are ULIDs so ids generated by one process sort in creation order.
type Entry struct {
	ID         string          `json:"id"`
	Kind       EntryKind       `json:"kind"`
	Timestamp  time.Time       `json:"timestamp"`
	SubagentID string          `json:"subagentId,omitempty"`
	Text       string          `json:"text,omitempty"`
	ToolID     string          `json:"toolId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	ToolInput  json.RawMessage `json:"toolInput,omitempty"`
	IsError    bool            `json:"isError,omitempty"`
	Usage      *backend.Usage  `json:"usage,omitempty"`
}

// NewEntry creates an entry with a fresh ULID and the current time.
func NewEntry(kind EntryKind) Entry {
	return Entry{
		ID:        ulid.Make().String(),
		Kind:      kind,
		Timestamp: time.Now(),
	}
}
