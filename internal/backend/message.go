package backend

import "encoding/json"

// MessageKind discriminates the event types a session can emit.
type MessageKind string

const (
	MessageSystemInit        MessageKind = "systemInit"
	MessageAssistantText     MessageKind = "assistantText"
	MessageToolUse           MessageKind = "toolUse"
	MessageToolResult        MessageKind = "toolResult"
	MessagePermissionRequest MessageKind = "permissionRequest"
	MessageResult            MessageKind = "result"
)

// Message is one event from an agent session. Exactly the fields for
// its Kind are populated; the rest are zero. SubagentID is set when the
// event belongs to a delegated subagent thread (it is the parent
// tool-use id that spawned the subagent) and empty for the primary
// conversation.
type Message struct {
	Kind       MessageKind
	SubagentID string

	// systemInit
	SessionID string
	Model     string

	// assistantText
	Text string

	// toolUse
	ToolID    string
	ToolName  string
	ToolInput json.RawMessage

	// toolResult
	ToolResult string
	IsError    bool

	// permissionRequest
	Permission *PermissionRequest

	// result
	Result *ResultInfo
}

// PermissionRequest is a backend-originated approval gate for one tool
// invocation.
type PermissionRequest struct {
	ID             string
	Tool           string
	Input          json.RawMessage
	Reason         string
	CommandActions []string
	BlockedPath    string
}

// ResultInfo is the terminal payload of a session turn.
type ResultInfo struct {
	IsError bool
	Subtype string
	Text    string
	Usage   Usage
}

// Usage holds token and cost figures from a result message. Values
// accumulate monotonically across a conversation.
type Usage struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	CostUSD      float64 `json:"costUSD"`
}

// Add accumulates another usage sample into this one.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CostUSD += other.CostUSD
}
