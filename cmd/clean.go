package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zafnz/grove/internal/git"
	"github.com/zafnz/grove/internal/logger"
	"github.com/zafnz/grove/internal/project"
)

var skipConfirm bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Prune worktrees that are gone from disk and remove log files",
	Long: `Removes index entries for worktrees whose directories no longer exist,
deletes the transcripts of chats that belonged to them, and clears log
files.

It will prompt for confirmation before proceeding unless the --yes flag
is used.`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "Skip confirmation prompt")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	return runCleanWithReader(cmd, os.Stdin)
}

// runCleanWithReader allows injecting a reader for testing
func runCleanWithReader(cmd *cobra.Command, input io.Reader) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

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

	// A validate-only restore tells us what would be pruned without
	// touching the index yet.
	preview := project.NewRestoreService(s, nil, project.RestoreOptions{})
	p, isNew, err := preview.RestoreOrCreate(ctx, repoRoot)
	if err != nil {
		return err
	}

	var stale []string
	if !isNew {
		for _, wt := range p.Worktrees() {
			if wt.Primary {
				continue
			}
			if _, err := os.Stat(wt.Root); os.IsNotExist(err) {
				stale = append(stale, wt.Root)
			}
		}
	}

	if len(stale) == 0 {
		fmt.Fprintln(out, "No stale worktrees.")
	} else {
		fmt.Fprintln(out, "This will clean:")
		fmt.Fprintf(out, "  - %d stale worktree(s)\n", len(stale))
		for _, root := range stale {
			fmt.Fprintf(out, "      %s\n", root)
		}
	}
	fmt.Fprintf(out, "  - Log files at %s\n", logger.DefaultLogPath)

	if !skipConfirm {
		if !confirm(out, input, "Continue?") {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	pruned := 0
	if len(stale) > 0 {
		restore := project.NewRestoreService(s, nil, project.RestoreOptions{
			ValidateFilesystem: true,
			PruneIndex:         true,
		})
		if _, _, err := restore.RestoreOrCreate(ctx, repoRoot); err != nil {
			return fmt.Errorf("error pruning worktrees: %w", err)
		}
		pruned = len(stale)
	}

	logsCleared, err := logger.ClearLogs()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: error clearing logs: %v\n", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Cleaned:")
	if pruned > 0 {
		fmt.Fprintf(out, "  - %d stale worktree(s) pruned\n", pruned)
	}
	if logsCleared > 0 {
		fmt.Fprintf(out, "  - %d log file(s) removed\n", logsCleared)
	}
	if pruned == 0 && logsCleared == 0 {
		fmt.Fprintln(out, "  - nothing")
	}

	return nil
}

// confirm prompts the user for y/n confirmation
func confirm(out io.Writer, input io.Reader, prompt string) bool {
	reader := bufio.NewReader(input)
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
