package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/zafnz/grove/internal/backend"
	"github.com/zafnz/grove/internal/dispatch"
	groveerrors "github.com/zafnz/grove/internal/errors"
	"github.com/zafnz/grove/internal/git"
	"github.com/zafnz/grove/internal/notify"
	"github.com/zafnz/grove/internal/project"
	"github.com/zafnz/grove/internal/worktree"
)

var (
	dispatchPrompt   string
	dispatchAgent    string
	dispatchBackend  string
	dispatchModel    string
	dispatchWorktree string
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <ticket-id> [title...]",
	Short: "Stage a branch, worktree, and agent chat for a ticket",
	Long: `Dispatch derives a branch name from the ticket, creates or reuses a
worktree for it, and stages a chat with the prompt saved as a draft.
The chat is ready to start the next time the project opens.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDispatch,
}

func init() {
	dispatchCmd.Flags().StringVarP(&dispatchPrompt, "prompt", "p", "", "Initial prompt for the agent (defaults to the title)")
	dispatchCmd.Flags().StringVar(&dispatchAgent, "agent", "claude", "Agent to dispatch to")
	dispatchCmd.Flags().StringVar(&dispatchBackend, "backend", string(backend.TypeClaude), "Backend type (claude or codex)")
	dispatchCmd.Flags().StringVar(&dispatchModel, "model", "", "Model override for the session")
	dispatchCmd.Flags().StringVar(&dispatchWorktree, "worktree", "", "Dispatch into an existing worktree instead of creating one")
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ticketID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("ticket id %q is not a number", args[0])
	}
	title := strings.Join(args[1:], " ")

	backendType, err := parseBackendType(dispatchBackend)
	if err != nil {
		return err
	}

	cwd, err := projectRoot()
	if err != nil {
		return err
	}
	repoRoot := git.RepoRoot(ctx, cwd)
	if repoRoot == "" {
		return fmt.Errorf("%s is not inside a git repository", cwd)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	restore := project.NewRestoreService(s, nil, project.RestoreOptions{ValidateFilesystem: true})
	p, _, err := restore.RestoreOrCreate(ctx, repoRoot)
	if err != nil {
		return err
	}

	d := &dispatch.Dispatcher{
		Store:     s,
		Restore:   restore,
		Worktrees: worktree.NewService(loadActions(repoRoot), nil),
		Backends:  backend.NewManager(),
		Notifier:  notify.New(),
	}

	prompt := dispatchPrompt
	if prompt == "" {
		prompt = title
	}
	res, err := d.Prepare(ctx, p, dispatch.Request{
		TicketID:     ticketID,
		Title:        title,
		Prompt:       prompt,
		WorktreeRoot: dispatchWorktree,
		AgentID:      dispatchAgent,
		Backend:      backendType,
		Model:        dispatchModel,
	})
	if err != nil {
		var wErr *groveerrors.WorktreeCreationError
		if errors.As(err, &wErr) {
			printCreationError(cmd, wErr)
			return fmt.Errorf("could not create worktree")
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Branch:   %s\n", branchColor.Sprint(res.Branch))
	if res.WorktreeNew {
		fmt.Fprintf(out, "Worktree: %s (created)\n", res.Worktree.Root)
	} else {
		fmt.Fprintf(out, "Worktree: %s (reused)\n", res.Worktree.Root)
	}
	fmt.Fprintf(out, "Chat:     %s\n", chatColor.Sprint(res.Chat.Name()))
	return nil
}

// printCreationError renders the failure message and its suggestions
// verbatim, one suggestion per line.
func printCreationError(cmd *cobra.Command, wErr *groveerrors.WorktreeCreationError) {
	errOut := cmd.ErrOrStderr()
	fmt.Fprintln(errOut, color.New(color.FgRed, color.Bold).Sprint(wErr.Message))
	for _, s := range wErr.Suggestions {
		fmt.Fprintf(errOut, "  - %s\n", s)
	}
}

func parseBackendType(s string) (backend.Type, error) {
	switch backend.Type(s) {
	case backend.TypeClaude:
		return backend.TypeClaude, nil
	case backend.TypeCodex:
		return backend.TypeCodex, nil
	default:
		return "", fmt.Errorf("unknown backend %q (want claude or codex)", s)
	}
}
