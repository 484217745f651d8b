package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/zafnz/grove/internal/git"
	"github.com/zafnz/grove/internal/project"
	"github.com/zafnz/grove/internal/worktree"
)

var (
	branchColor   = color.New(color.FgCyan, color.Bold)
	primaryColor  = color.New(color.FgGreen, color.Bold)
	markerColor   = color.New(color.FgWhite, color.Faint)
	ghostColor    = color.New(color.FgWhite, color.Faint)
	dirtyColor    = color.New(color.FgYellow)
	conflictColor = color.New(color.FgRed, color.Bold)
	aheadColor    = color.New(color.FgGreen)
	behindColor   = color.New(color.FgMagenta)
	chatColor     = color.New(color.FgBlue)
)

func runTree(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
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
	p, isNew, err := restore.RestoreOrCreate(ctx, repoRoot)
	if err != nil {
		return err
	}
	if isNew {
		fmt.Fprintf(cmd.OutOrStdout(), "Initialized project %s\n\n", p.Name())
	}

	svc := worktree.NewService(loadActions(repoRoot), nil)
	svc.RefreshStatus(ctx, p)

	rows := worktree.BuildTree(p.Worktrees())
	for _, row := range rows {
		fmt.Fprintln(cmd.OutOrStdout(), renderRow(row))
	}
	return nil
}

// renderRow draws one tree row with connector lines and status counters.
func renderRow(row worktree.TreeRow) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", row.Depth))
	if row.Depth > 0 {
		if row.IsLast {
			b.WriteString("└─ ")
		} else {
			b.WriteString("├─ ")
		}
	}

	switch row.Kind {
	case worktree.RowGhost:
		b.WriteString(ghostColor.Sprint("+ new worktree"))
	case worktree.RowBaseMarker:
		b.WriteString(markerColor.Sprintf("(%s)", row.BaseRef))
	case worktree.RowWorktree:
		wt := row.Worktree
		if wt.Primary {
			b.WriteString(primaryColor.Sprint(wt.Branch))
			b.WriteString(markerColor.Sprint(" [primary]"))
		} else {
			b.WriteString(branchColor.Sprint(wt.Branch))
		}
		if s := renderStatus(wt.Status); s != "" {
			b.WriteString(" ")
			b.WriteString(s)
		}
		if n := len(wt.Chats); n == 1 {
			b.WriteString(chatColor.Sprint(" (1 chat)"))
		} else if n > 1 {
			b.WriteString(chatColor.Sprintf(" (%d chats)", n))
		}
	}
	return b.String()
}

func renderStatus(st git.Status) string {
	var parts []string
	if st.Operation == git.OpRebase {
		parts = append(parts, conflictColor.Sprint("REBASING"))
	} else if st.Operation == git.OpMerge {
		parts = append(parts, conflictColor.Sprint("MERGING"))
	}
	if st.Conflicted > 0 {
		parts = append(parts, conflictColor.Sprintf("%d conflicted", st.Conflicted))
	}
	if st.Staged > 0 {
		parts = append(parts, dirtyColor.Sprintf("%d staged", st.Staged))
	}
	if st.Uncommitted > 0 {
		parts = append(parts, dirtyColor.Sprintf("%d uncommitted", st.Uncommitted))
	}
	if st.AheadOfBase > 0 {
		parts = append(parts, aheadColor.Sprintf("↑%d", st.AheadOfBase))
	}
	if st.BehindBase > 0 {
		parts = append(parts, behindColor.Sprintf("↓%d", st.BehindBase))
	}
	if len(parts) == 0 {
		return ""
	}
	return "[" + strings.Join(parts, " ") + "]"
}
