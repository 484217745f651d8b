// Package errors provides structured error types for the Grove application.
// These errors provide context about what operation failed and where.
package errors

import (
	"errors"
	"fmt"
)

// Op describes an operation, usually as "package.function".
type Op string

// Kind categorizes the type of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalid
	KindPermission
	KindIO
	KindStore
	KindGit
	KindBackend
	KindState
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindInvalid:
		return "invalid"
	case KindPermission:
		return "permission denied"
	case KindIO:
		return "I/O error"
	case KindStore:
		return "store error"
	case KindGit:
		return "git error"
	case KindBackend:
		return "backend error"
	case KindState:
		return "state conflict"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown error"
	}
}

// Error is the structured error type for Grove.
type Error struct {
	Op      Op     // Operation that failed
	Kind    Kind   // Category of error
	Err     error  // Underlying error
	Context string // Additional context
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Context, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// E creates a new Error. Arguments can be:
// - Op: the operation name
// - Kind: the error kind
// - string: context message
// - error: the underlying error
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case string:
			e.Context = a
		case error:
			e.Err = a
		}
	}
	if e.Err == nil {
		e.Err = errors.New(e.Context)
		e.Context = ""
	}
	return e
}

// Is reports whether err is of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// GetKind returns the Kind of an error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// State-conflict errors
func StateConflict(op Op, reason string) error {
	return E(op, KindState, reason)
}

func SessionAlreadyStarted(chatID string) error {
	return E(Op("chat.StartSession"), KindState, fmt.Sprintf("chat %s already has an active session", chatID))
}

func BackendLocked(chatID string) error {
	return E(Op("chat.SetBackend"), KindState, fmt.Sprintf("cannot switch backend for chat %s after its session has started", chatID))
}

// Store errors
func IndexSaveFailed(path string, err error) error {
	return E(Op("store.SaveIndex"), KindStore, fmt.Sprintf("failed to save index to %s", path), err)
}

func WorktreeRemovalFailed(root string, err error) error {
	return E(Op("store.RemoveWorktree"), KindStore, fmt.Sprintf("failed to remove worktree record for %s", root), err)
}

func ChatNotFound(id string) error {
	return E(Op("store.Chat"), KindNotFound, fmt.Sprintf("chat %s not found", id))
}

// Git errors
func GitNotRepo(path string) error {
	return E(Op("git.ValidateRepo"), KindInvalid, fmt.Sprintf("%s is not a git repository", path))
}

// Backend errors
func BackendNotReady(agentID string) error {
	return E(Op("backend.CreateSession"), KindState, fmt.Sprintf("backend for agent %s is not ready", agentID))
}

func BackendStartFailed(agentID string, err error) error {
	return E(Op("backend.Start"), KindBackend, fmt.Sprintf("failed to start backend for agent %s", agentID), err)
}

// Permission errors
func PermissionAlreadyResolved(requestID string) error {
	return E(Op("chat.RespondToPermission"), KindState, fmt.Sprintf("permission request %s has already been resolved", requestID))
}

func PermissionUnknown(requestID string) error {
	return E(Op("chat.RespondToPermission"), KindNotFound, fmt.Sprintf("no pending permission request %s", requestID))
}
