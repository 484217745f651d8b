package errors

import "strings"

// WorktreeCreationError is raised when creating a git worktree fails.
// Unlike the generic Error type it carries remediation suggestions that
// the UI renders verbatim next to the failed action, so the message and
// suggestion list are part of the contract, not just debugging output.
type WorktreeCreationError struct {
	Message     string   // Human-readable description of what failed
	Suggestions []string // Zero or more actionable remediation steps
	Err         error    // Underlying error, if any
}

// Error returns the message, with suggestions appended for contexts
// (logs, CLI) that render the error as a single string.
func (e *WorktreeCreationError) Error() string {
	if len(e.Suggestions) == 0 {
		return e.Message
	}
	return e.Message + " (" + strings.Join(e.Suggestions, "; ") + ")"
}

// Unwrap returns the underlying error.
func (e *WorktreeCreationError) Unwrap() error {
	return e.Err
}

// NewWorktreeCreationError builds a WorktreeCreationError.
func NewWorktreeCreationError(message string, err error, suggestions ...string) *WorktreeCreationError {
	return &WorktreeCreationError{
		Message:     message,
		Suggestions: suggestions,
		Err:         err,
	}
}
