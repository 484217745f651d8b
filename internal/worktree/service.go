package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zafnz/grove/internal/actions"
	"github.com/zafnz/grove/internal/branch"
	groveerrors "github.com/zafnz/grove/internal/errors"
	"github.com/zafnz/grove/internal/events"
	"github.com/zafnz/grove/internal/git"
	"github.com/zafnz/grove/internal/logger"
	"github.com/zafnz/grove/internal/project"
)

// Service creates and removes git worktrees for a project, running the
// configured lifecycle hooks around each operation. Creation failures
// come back as WorktreeCreationError so callers can render the message
// and suggestions verbatim.
type Service struct {
	cfg actions.Config
	bus *events.Bus
}

// NewService wires a worktree service. The bus may be nil.
func NewService(cfg actions.Config, bus *events.Bus) *Service {
	return &Service{cfg: cfg, bus: bus}
}

// Create makes a new worktree at root on a new branch cut from fromRef
// (empty means git's default, the current HEAD). The returned worktree
// is fully populated but not yet attached to the project; registering
// it is the caller's responsibility. When the post-create hook fails
// the worktree still exists on disk and is returned alongside the
// error.
func (s *Service) Create(ctx context.Context, p *project.Project, branchName, root, fromRef string) (*project.Worktree, error) {
	if err := branch.Validate(branchName); err != nil {
		return nil, groveerrors.NewWorktreeCreationError(
			fmt.Sprintf("Invalid branch name %q: %v", branchName, err),
			err,
			"use only letters, numbers, /, _, ., and -",
		)
	}

	if _, err := os.Stat(root); err == nil {
		suggestions := []string{"choose a different directory"}
		if git.BranchCheckout(ctx, p.Root(), branchName) == root {
			suggestions = append(suggestions, "delete the stale worktree first")
		}
		return nil, groveerrors.NewWorktreeCreationError(
			fmt.Sprintf("Directory %s already exists", root),
			nil,
			suggestions...,
		)
	}

	if existing := git.BranchCheckout(ctx, p.Root(), branchName); existing != "" {
		return nil, groveerrors.NewWorktreeCreationError(
			fmt.Sprintf("Branch %q is already checked out at %s", branchName, existing),
			nil,
			"open the existing worktree instead",
			"choose a different branch name",
		)
	}

	if err := s.cfg.RunHook(ctx, actions.HookPreCreate, p.Root()); err != nil {
		return nil, err
	}

	output, err := git.CreateWorktree(ctx, p.Root(), branchName, root, fromRef)
	if err != nil {
		return nil, classifyCreateFailure(branchName, root, output, err)
	}

	baseRef := fromRef
	if baseRef == "" {
		baseRef = p.Primary().Branch
	}
	wt := &project.Worktree{
		Root:    root,
		Branch:  branchName,
		BaseRef: baseRef,
		Status:  git.ReadStatus(ctx, root, baseRef),
	}

	if err := s.cfg.RunHook(ctx, actions.HookPostCreate, root); err != nil {
		return wt, err
	}
	return wt, nil
}

// classifyCreateFailure turns raw git output into a creation error
// with remediation suggestions.
func classifyCreateFailure(branchName, root, output string, err error) error {
	out := strings.ToLower(output)

	switch {
	case strings.Contains(out, "already checked out"):
		return groveerrors.NewWorktreeCreationError(
			fmt.Sprintf("Branch %q is already checked out in another worktree", branchName),
			err,
			"open the existing worktree instead",
			"choose a different branch name",
		)
	case strings.Contains(out, "already exists") && strings.Contains(out, "branch"):
		return groveerrors.NewWorktreeCreationError(
			fmt.Sprintf("Branch %q already exists", branchName),
			err,
			"choose a different branch name",
			"delete the old branch if it is no longer needed",
		)
	case strings.Contains(out, "already exists"):
		return groveerrors.NewWorktreeCreationError(
			fmt.Sprintf("Directory %s already exists", root),
			err,
			"choose a different directory",
			"delete the stale worktree first",
		)
	case strings.Contains(out, "not a git repository"):
		return groveerrors.NewWorktreeCreationError(
			"The project directory is not a git repository",
			err,
			"run git init or open a different project",
		)
	case strings.Contains(out, "executable file not found"), strings.Contains(strings.ToLower(err.Error()), "executable file not found"):
		return groveerrors.NewWorktreeCreationError(
			"git is not installed or not on PATH",
			err,
			"install git and try again",
		)
	default:
		return groveerrors.NewWorktreeCreationError(
			fmt.Sprintf("Failed to create worktree: %s", strings.TrimSpace(output)),
			err,
		)
	}
}

// Remove deletes a worktree's checkout and branch, running the remove
// hooks around it. Index and in-memory cleanup belong to the caller.
func (s *Service) Remove(ctx context.Context, p *project.Project, root string) error {
	wt := p.WorktreeAt(root)
	if wt == nil {
		return groveerrors.E(groveerrors.Op("worktree.Remove"), groveerrors.KindNotFound,
			"no worktree at "+root)
	}
	if wt.Primary {
		return groveerrors.E(groveerrors.Op("worktree.Remove"), groveerrors.KindInvalid,
			"cannot remove the primary worktree")
	}

	if err := s.cfg.RunHook(ctx, actions.HookPreRemove, root); err != nil {
		return err
	}

	if err := git.RemoveWorktree(ctx, p.Root(), root); err != nil {
		return err
	}
	if wt.Branch != "" {
		git.DeleteBranch(ctx, p.Root(), wt.Branch)
	}

	if err := s.cfg.RunHook(ctx, actions.HookPostRemove, p.Root()); err != nil {
		logger.Warn("Worktree: post-remove hook failed: %v", err)
	}

	if s.bus != nil {
		s.bus.Publish(events.Event{Kind: events.WorktreesChanged})
	}
	return nil
}

// RefreshStatus re-reads git status counters for every worktree in the
// project. Worktrees compare against their base ref, defaulting to the
// primary branch; the primary compares against its upstream only.
func (s *Service) RefreshStatus(ctx context.Context, p *project.Project) {
	primaryBranch := p.Primary().Branch
	for _, wt := range p.Worktrees() {
		baseRef := wt.BaseRef
		if baseRef == "" && !wt.Primary {
			baseRef = primaryBranch
		}
		wt.Status = git.ReadStatus(ctx, wt.Root, baseRef)
	}
	if s.bus != nil {
		s.bus.Publish(events.Event{Kind: events.WorktreesChanged})
	}
}

// DefaultRoot returns the conventional location for a new worktree:
// a .grove-worktrees directory beside the repository, named after the
// branch with path separators flattened.
func DefaultRoot(projectRoot, branchName string) string {
	dirName := strings.ReplaceAll(branchName, "/", "-")
	return filepath.Join(filepath.Dir(projectRoot), ".grove-worktrees", dirName)
}
