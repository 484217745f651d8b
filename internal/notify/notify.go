// Package notify sends desktop notifications for session events.
package notify

import (
	"fmt"
	"strings"

	"github.com/gen2brain/beeep"

	"github.com/zafnz/grove/internal/logger"
)

const appName = "Grove"

// maxSummaryLength keeps notification bodies readable; most desktop
// environments truncate them anyway.
const maxSummaryLength = 120

// Notifier sends desktop notices. Enabled can be toggled at runtime;
// a disabled notifier is silent and never errors.
type Notifier struct {
	Enabled bool
}

// New returns an enabled Notifier.
func New() *Notifier {
	return &Notifier{Enabled: true}
}

// SessionCompleted announces that a chat's agent session finished.
func (n *Notifier) SessionCompleted(chatName, summary string) error {
	if !n.Enabled {
		return nil
	}

	title := fmt.Sprintf("%s: %s finished", appName, chatName)
	body := truncate(strings.TrimSpace(summary))
	if body == "" {
		body = "The agent session completed."
	}

	if err := beeep.Notify(title, body, ""); err != nil {
		logger.Warn("Notify: failed to send notification: %v", err)
		return err
	}
	return nil
}

// PermissionRequested announces that an agent is waiting for approval.
func (n *Notifier) PermissionRequested(chatName, tool string) error {
	if !n.Enabled {
		return nil
	}

	title := fmt.Sprintf("%s: %s needs approval", appName, chatName)
	body := fmt.Sprintf("The agent wants to run %s.", tool)
	if err := beeep.Notify(title, body, ""); err != nil {
		logger.Warn("Notify: failed to send notification: %v", err)
		return err
	}
	return nil
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxSummaryLength {
		return s
	}
	return string(runes[:maxSummaryLength]) + "..."
}
