package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zafnz/grove/internal/git"
	"github.com/zafnz/grove/internal/project"
	"github.com/zafnz/grove/internal/worktree"
)

var removeYes bool

var removeCmd = &cobra.Command{
	Use:   "remove <worktree-root>",
	Short: "Remove a linked worktree, its branch, and its chats",
	Long: `Removes a linked worktree's checkout and branch, deletes the
transcripts of its chats, and drops it from the index. The primary
worktree cannot be removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	removeCmd.Flags().BoolVarP(&removeYes, "yes", "y", false, "Skip confirmation prompt")
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	cwd, err := projectRoot()
	if err != nil {
		return err
	}
	if err := git.ValidateRepo(ctx, cwd); err != nil {
		return err
	}
	repoRoot := git.RepoRoot(ctx, cwd)

	target, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	restore := project.NewRestoreService(s, nil, project.RestoreOptions{})
	p, _, err := restore.RestoreOrCreate(ctx, repoRoot)
	if err != nil {
		return err
	}

	wt := p.WorktreeAt(target)
	if wt == nil {
		return fmt.Errorf("no worktree at %s", target)
	}

	fmt.Fprintf(out, "This will remove worktree %s (branch %s)", wt.Root, wt.Branch)
	if n := len(wt.Chats); n > 0 {
		fmt.Fprintf(out, " and %d chat(s)", n)
	}
	fmt.Fprintln(out, ".")
	if !removeYes {
		if !confirm(out, os.Stdin, "Continue?") {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	svc := worktree.NewService(loadActions(repoRoot), nil)
	if err := svc.Remove(ctx, p, target); err != nil {
		return err
	}
	if err := restore.UnregisterWorktree(p, target); err != nil {
		return err
	}

	fmt.Fprintf(out, "Removed %s.\n", target)
	return nil
}
