// Package backend defines the boundary to external AI coding agents and
// manages their connection lifecycle. Grove treats each agent family as
// a black box that can be started, asked for sessions, and streamed
// messages from. The concrete protocol adapters live behind the Backend
// and Session interfaces.
package backend

import "context"

// Type identifies an agent backend family.
type Type string

const (
	TypeClaude Type = "claude"
	TypeCodex  Type = "codex"
)

// String returns the backend type as a display string.
func (t Type) String() string {
	return string(t)
}

// Capabilities describes what a backend family supports, so callers can
// gate which settings are worth forwarding. Lookups are pure and never
// fail: an unknown type gets the zero capability set.
type Capabilities struct {
	SupportsModelListing    bool
	SupportsReasoningEffort bool
	SecurityConfigShape     SecurityShape
}

// SecurityShape selects which SecurityConfig fields a backend reads.
type SecurityShape string

const (
	// ShapeNone means the backend takes no security configuration.
	ShapeNone SecurityShape = "none"
	// ShapePermissionMode is the claude family: a single permission mode
	// plus an allowed-tools list.
	ShapePermissionMode SecurityShape = "permissionMode"
	// ShapeSandboxApproval is the codex family: sandbox mode plus an
	// approval policy.
	ShapeSandboxApproval SecurityShape = "sandboxApproval"
)

var capabilities = map[Type]Capabilities{
	TypeClaude: {
		SupportsModelListing:    true,
		SupportsReasoningEffort: false,
		SecurityConfigShape:     ShapePermissionMode,
	},
	TypeCodex: {
		SupportsModelListing:    false,
		SupportsReasoningEffort: true,
		SecurityConfigShape:     ShapeSandboxApproval,
	},
}

// CapabilitiesFor returns the capability descriptor for a backend type.
func CapabilitiesFor(t Type) Capabilities {
	return capabilities[t]
}

// SecurityConfig carries backend-specific security settings. Only the
// fields matching the backend's SecurityShape are forwarded; the rest
// are stored but ignored.
type SecurityConfig struct {
	// PermissionMode applies to ShapePermissionMode backends
	// (e.g. "default", "acceptEdits", "plan").
	PermissionMode string `json:"permissionMode,omitempty"`
	// AllowedTools applies to ShapePermissionMode backends.
	AllowedTools []string `json:"allowedTools,omitempty"`
	// Sandbox applies to ShapeSandboxApproval backends
	// (e.g. "read-only", "workspace-write").
	Sandbox string `json:"sandbox,omitempty"`
	// Approval applies to ShapeSandboxApproval backends
	// (e.g. "untrusted", "on-failure", "never").
	Approval string `json:"approval,omitempty"`
}

// Config holds what a backend needs to start its connection.
type Config struct {
	// Command overrides the agent binary path. Empty means the default.
	Command string
	// Env is extra environment for the agent process.
	Env []string
}

// SessionOptions configures one agent session.
type SessionOptions struct {
	Prompt          string
	Cwd             string
	ResumeToken     string
	Model           string
	ReasoningEffort string
	Security        SecurityConfig
}

// Backend is one agent family's connection. Implementations handle the
// process/protocol details; Grove only drives the lifecycle.
type Backend interface {
	// Start establishes the connection and performs any handshake.
	Start(ctx context.Context, config Config) error
	// NewSession creates a session. The backend must be started first.
	NewSession(ctx context.Context, opts SessionOptions) (Session, error)
}

// Session is one live conversation with an agent.
type Session interface {
	// Send delivers user input to the agent.
	Send(ctx context.Context, text string) error
	// Messages returns the ordered stream of agent events. The channel
	// closes when the session terminates.
	Messages() <-chan Message
	// RespondToPermission answers a pending permission request.
	RespondToPermission(ctx context.Context, requestID string, allow bool, message string) error
	// Close terminates the session.
	Close() error
}
