// Package git wraps the git CLI operations Grove needs: branch listing,
// worktree discovery and creation, and per-worktree status counters.
// All commands go through a swappable executor so tests can script git
// without a real repository.
package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	groveerrors "github.com/zafnz/grove/internal/errors"
	pexec "github.com/zafnz/grove/internal/exec"
	"github.com/zafnz/grove/internal/logger"
)

// executor is the command executor used by this package.
// It can be swapped for testing/demos via SetExecutor.
var executor pexec.CommandExecutor = pexec.NewRealExecutor()

// SetExecutor sets the command executor used by this package.
// This is primarily used for testing and demo generation.
func SetExecutor(e pexec.CommandExecutor) {
	executor = e
}

// GetExecutor returns the current command executor.
func GetExecutor() pexec.CommandExecutor {
	return executor
}

// ValidateRepo checks if a path is a valid git repository.
func ValidateRepo(ctx context.Context, path string) error {
	if _, err := executor.CombinedOutput(ctx, path, "git", "rev-parse", "--git-dir"); err != nil {
		return groveerrors.GitNotRepo(path)
	}
	return nil
}

// RepoRoot returns the git top-level directory for a path, or empty
// string if the path is not inside a git repository.
func RepoRoot(ctx context.Context, path string) string {
	output, err := executor.Output(ctx, path, "git", "rev-parse", "--show-toplevel")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

// ListBranches returns the local branch names of a repository.
func ListBranches(ctx context.Context, repoRoot string) ([]string, error) {
	output, err := executor.Output(ctx, repoRoot, "git", "for-each-ref", "refs/heads", "--format", "%(refname:short)")
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}

	var branches []string
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			branches = append(branches, name)
		}
	}
	return branches, nil
}

// WorktreeListing is one entry from `git worktree list`.
type WorktreeListing struct {
	Path   string // Absolute path to the checked-out directory
	Branch string // Branch name, empty for a detached HEAD
}

// DiscoverWorktrees returns all worktrees registered for a repository,
// the primary one first, parsed from the porcelain listing.
func DiscoverWorktrees(ctx context.Context, repoRoot string) ([]WorktreeListing, error) {
	output, err := executor.Output(ctx, repoRoot, "git", "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("failed to list worktrees: %w", err)
	}
	return parseWorktreeList(output)
}

// parseWorktreeList parses `git worktree list --porcelain` output.
// Format:
//
//	worktree /path/to/worktree
//	HEAD <commit>
//	branch refs/heads/<branch>
//	<blank line>
func parseWorktreeList(output []byte) ([]WorktreeListing, error) {
	var listings []WorktreeListing
	var current *WorktreeListing

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "worktree "):
			if current != nil {
				listings = append(listings, *current)
			}
			current = &WorktreeListing{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "branch ") && current != nil:
			current.Branch = strings.TrimPrefix(line, "branch refs/heads/")
		case line == "":
			if current != nil {
				listings = append(listings, *current)
				current = nil
			}
		}
	}
	if current != nil {
		listings = append(listings, *current)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse worktree list: %w", err)
	}
	return listings, nil
}

// BranchExists checks if a branch already exists in the repo.
func BranchExists(ctx context.Context, repoRoot, branch string) bool {
	_, _, err := executor.Run(ctx, repoRoot, "git", "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// BranchCheckout returns the worktree path where a branch is currently
// checked out, or empty string if it is not checked out anywhere.
func BranchCheckout(ctx context.Context, repoRoot, branch string) string {
	listings, err := DiscoverWorktrees(ctx, repoRoot)
	if err != nil {
		return ""
	}
	for _, l := range listings {
		if l.Branch == branch {
			return l.Path
		}
	}
	return ""
}

// CurrentBranch returns the current branch name for the repo.
// Returns "HEAD" as fallback if it cannot be determined (detached HEAD).
func CurrentBranch(ctx context.Context, repoRoot string) string {
	output, err := executor.Output(ctx, repoRoot, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if err == nil {
		branch := strings.TrimSpace(string(output))
		if branch != "" && branch != "HEAD" {
			return branch
		}
	}
	return "HEAD"
}

// DefaultBranch returns the default branch name for the remote (e.g.
// "main" or "master"). Returns "main" as fallback.
func DefaultBranch(ctx context.Context, repoRoot string) string {
	output, err := executor.Output(ctx, repoRoot, "git", "symbolic-ref", "refs/remotes/origin/HEAD")
	if err == nil {
		ref := strings.TrimSpace(string(output))
		if strings.HasPrefix(ref, "refs/remotes/origin/") {
			return strings.TrimPrefix(ref, "refs/remotes/origin/")
		}
	}

	if _, _, err := executor.Run(ctx, repoRoot, "git", "rev-parse", "--verify", "origin/main"); err == nil {
		return "main"
	}
	if _, _, err := executor.Run(ctx, repoRoot, "git", "rev-parse", "--verify", "origin/master"); err == nil {
		return "master"
	}
	return "main"
}

// CreateWorktree runs `git worktree add -b <branch> <path> <fromRef>`.
// The combined output is returned on failure so callers can classify it.
func CreateWorktree(ctx context.Context, repoRoot, branch, path, fromRef string) (string, error) {
	args := []string{"worktree", "add", "-b", branch, path}
	if fromRef != "" {
		args = append(args, fromRef)
	}
	logger.Log("Git: Creating worktree: branch=%s, path=%s, from=%s", branch, path, fromRef)
	output, err := executor.CombinedOutput(ctx, repoRoot, "git", args...)
	if err != nil {
		return string(output), fmt.Errorf("git worktree add failed: %w", err)
	}
	return string(output), nil
}

// RemoveWorktree runs `git worktree remove --force` followed by a
// best-effort prune of stale worktree references.
func RemoveWorktree(ctx context.Context, repoRoot, path string) error {
	output, err := executor.CombinedOutput(ctx, repoRoot, "git", "worktree", "remove", path, "--force")
	if err != nil {
		logger.Error("Git: Failed to remove worktree: %s", string(output))
		return fmt.Errorf("failed to remove worktree: %s: %w", strings.TrimSpace(string(output)), err)
	}

	if output, err := executor.CombinedOutput(ctx, repoRoot, "git", "worktree", "prune"); err != nil {
		logger.Warn("Git: Worktree prune failed (best-effort): %s - %v", string(output), err)
	}
	return nil
}

// DeleteBranch deletes a local branch. Best-effort: failures are logged
// but not returned since the branch may already be gone.
func DeleteBranch(ctx context.Context, repoRoot, branch string) {
	output, err := executor.CombinedOutput(ctx, repoRoot, "git", "branch", "-D", branch)
	if err != nil {
		logger.Warn("Git: Failed to delete branch %s (may already be deleted): %s", branch, string(output))
	}
}

// Operation identifies an in-progress repository operation.
type Operation string

const (
	OpNone   Operation = "none"
	OpRebase Operation = "rebase"
	OpMerge  Operation = "merge"
)

// Status holds the working-tree counters shown beside each worktree.
type Status struct {
	Uncommitted     int // Modified/deleted/untracked files not staged
	Staged          int // Files staged for commit
	Conflicted      int // Files with unresolved merge conflicts
	AheadOfBase     int // Commits on this branch not on the base ref
	BehindBase      int // Commits on the base ref not on this branch
	Upstream        string
	AheadOfUpstream int
	BehindUpstream  int
	Operation       Operation
}

// ReadStatus collects working-tree and divergence counters for one
// worktree. Each counter degrades independently: a failing sub-command
// leaves its counters at zero rather than failing the whole read, since
// a worktree with no upstream or a missing base ref is normal.
func ReadStatus(ctx context.Context, worktreeRoot, baseRef string) Status {
	var st Status
	st.Operation = OpNone

	if output, err := executor.Output(ctx, worktreeRoot, "git", "status", "--porcelain"); err == nil {
		st.Uncommitted, st.Staged, st.Conflicted = countPorcelain(output)
	}

	if baseRef != "" {
		st.AheadOfBase, st.BehindBase = revListCounts(ctx, worktreeRoot, baseRef+"...HEAD")
	}

	if output, err := executor.Output(ctx, worktreeRoot, "git", "rev-parse", "--abbrev-ref", "@{upstream}"); err == nil {
		st.Upstream = strings.TrimSpace(string(output))
		if st.Upstream != "" {
			st.AheadOfUpstream, st.BehindUpstream = revListCounts(ctx, worktreeRoot, st.Upstream+"...HEAD")
		}
	}

	if gitDir, err := executor.Output(ctx, worktreeRoot, "git", "rev-parse", "--git-dir"); err == nil {
		dir := strings.TrimSpace(string(gitDir))
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(worktreeRoot, dir)
		}
		switch {
		case dirExists(filepath.Join(dir, "rebase-merge")), dirExists(filepath.Join(dir, "rebase-apply")):
			st.Operation = OpRebase
		case fileExists(filepath.Join(dir, "MERGE_HEAD")):
			st.Operation = OpMerge
		}
	}

	return st
}

// countPorcelain tallies `git status --porcelain` lines into staged,
// unstaged and conflicted counts. Conflict markers (both sides changed,
// or any U) count only as conflicts.
func countPorcelain(output []byte) (uncommitted, staged, conflicted int) {
	for _, line := range strings.Split(strings.TrimRight(string(output), "\n"), "\n") {
		if len(line) < 2 {
			continue
		}
		x, y := line[0], line[1]

		if x == 'U' || y == 'U' || (x == 'A' && y == 'A') || (x == 'D' && y == 'D') {
			conflicted++
			continue
		}
		if x == '?' && y == '?' {
			uncommitted++
			continue
		}
		if x != ' ' {
			staged++
		}
		if y != ' ' {
			uncommitted++
		}
	}
	return uncommitted, staged, conflicted
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// revListCounts runs `git rev-list --left-right --count <range>` and
// returns (ahead, behind). The left side of a "base...HEAD" range is the
// base, so left=behind and right=ahead.
func revListCounts(ctx context.Context, dir, revRange string) (ahead, behind int) {
	output, err := executor.Output(ctx, dir, "git", "rev-list", "--left-right", "--count", revRange)
	if err != nil {
		return 0, 0
	}
	fields := strings.Fields(strings.TrimSpace(string(output)))
	if len(fields) != 2 {
		return 0, 0
	}
	behind, _ = strconv.Atoi(fields[0])
	ahead, _ = strconv.Atoi(fields[1])
	return ahead, behind
}
