package cmd

import (
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/zafnz/grove/internal/git"
	"github.com/zafnz/grove/internal/project"
	"github.com/zafnz/grove/internal/worktree"
)

func withoutColor(t *testing.T) {
	t.Helper()
	orig := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = orig })
}

func TestRenderRow(t *testing.T) {
	withoutColor(t)

	primary := &project.Worktree{Root: "/repo", Branch: "main", Primary: true}
	linked := &project.Worktree{
		Root:   "/wt1",
		Branch: "tkt-1-fix",
		Status: git.Status{Uncommitted: 2, AheadOfBase: 3},
	}

	got := renderRow(worktree.TreeRow{Kind: worktree.RowWorktree, Worktree: primary})
	if got != "main [primary]" {
		t.Errorf("primary row = %q", got)
	}

	got = renderRow(worktree.TreeRow{Kind: worktree.RowWorktree, Worktree: linked, Depth: 1, IsLast: true})
	if !strings.HasPrefix(got, "  └─ tkt-1-fix") {
		t.Errorf("linked row = %q, want connector prefix", got)
	}
	if !strings.Contains(got, "2 uncommitted") || !strings.Contains(got, "↑3") {
		t.Errorf("linked row = %q, want status counters", got)
	}

	got = renderRow(worktree.TreeRow{Kind: worktree.RowBaseMarker, BaseRef: "release/2.0"})
	if got != "(release/2.0)" {
		t.Errorf("marker row = %q", got)
	}

	got = renderRow(worktree.TreeRow{Kind: worktree.RowGhost, IsLast: true})
	if got != "+ new worktree" {
		t.Errorf("ghost row = %q", got)
	}
}

func TestRenderRow_NonLastConnector(t *testing.T) {
	withoutColor(t)

	wt := &project.Worktree{Root: "/wt1", Branch: "tkt-1-fix"}
	got := renderRow(worktree.TreeRow{Kind: worktree.RowWorktree, Worktree: wt, Depth: 1})
	if !strings.HasPrefix(got, "  ├─ ") {
		t.Errorf("non-last row = %q, want tee connector", got)
	}
}

func TestRenderRow_ChatCount(t *testing.T) {
	withoutColor(t)

	wt := &project.Worktree{Root: "/wt1", Branch: "tkt-1-fix"}
	wt.Chats = append(wt.Chats, nil, nil)
	got := renderRow(worktree.TreeRow{Kind: worktree.RowWorktree, Worktree: wt})
	if !strings.Contains(got, "(2 chats)") {
		t.Errorf("row = %q, want chat count", got)
	}
}

func TestRenderStatus(t *testing.T) {
	withoutColor(t)

	if got := renderStatus(git.Status{}); got != "" {
		t.Errorf("clean status = %q, want empty", got)
	}

	got := renderStatus(git.Status{
		Operation:  git.OpRebase,
		Conflicted: 1,
		Staged:     2,
		BehindBase: 4,
	})
	want := "[REBASING 1 conflicted 2 staged ↓4]"
	if got != want {
		t.Errorf("renderStatus() = %q, want %q", got, want)
	}
}
