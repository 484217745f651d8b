// Package dispatch begins agent work on a ticket: it derives a branch,
// creates or reuses a worktree, creates and persists a chat, and starts
// the agent session with the ticket prompt.
package dispatch

import (
	"context"
	"fmt"

	"github.com/zafnz/grove/internal/backend"
	"github.com/zafnz/grove/internal/branch"
	"github.com/zafnz/grove/internal/chat"
	groveerrors "github.com/zafnz/grove/internal/errors"
	"github.com/zafnz/grove/internal/events"
	"github.com/zafnz/grove/internal/logger"
	"github.com/zafnz/grove/internal/project"
	"github.com/zafnz/grove/internal/store"
	"github.com/zafnz/grove/internal/worktree"
)

// Request describes one ticket to dispatch.
type Request struct {
	TicketID int
	Title    string
	Prompt   string
	// WorktreeRoot pins the work to an existing worktree. Empty means
	// reuse the ticket's worktree if one exists, else create one.
	WorktreeRoot string
	AgentID      string
	Backend      backend.Type
	Model        string
}

// Result is what a successful dispatch produced.
type Result struct {
	Branch       string
	Worktree     *project.Worktree
	WorktreeNew  bool
	Chat         *chat.Chat
	Orchestrator *chat.Orchestrator
}

// Dispatcher composes the orchestration services. Each dispatch step
// persists as it goes; a failure returns the typed error and leaves
// everything already created in place.
type Dispatcher struct {
	Store     *store.Store
	Restore   *project.RestoreService
	Worktrees *worktree.Service
	Backends  *backend.Manager
	Bus       *events.Bus
	Notifier  chat.Notifier
}

// Prepare sets up everything short of the agent session: branch,
// worktree, and a persisted chat wired to an orchestrator in the
// notStarted phase. Callers that only stage work (the CLI) stop here;
// Dispatch goes on to start the session.
func (d *Dispatcher) Prepare(ctx context.Context, p *project.Project, req Request) (*Result, error) {
	branchName := branch.Derive(req.TicketID, req.Title)
	logger.Info("Dispatch: ticket %d -> branch %s", req.TicketID, branchName)

	wt, isNew, err := d.resolveWorktree(ctx, p, req, branchName)
	if err != nil {
		return nil, err
	}

	c := chat.New(chatName(req), true)
	c.ApplySettings(chat.Settings{
		AgentID: req.AgentID,
		Backend: req.Backend,
		Model:   req.Model,
	})
	c.SetDraft(req.Prompt)
	if err := d.Restore.AddChatToWorktree(p, wt.Root, c); err != nil {
		return nil, err
	}

	orch := chat.NewOrchestrator(c, chat.OrchestratorConfig{
		ProjectID: p.ID(),
		Workdir:   wt.Root,
		Backends:  d.Backends,
		Store:     d.Store,
		Bus:       d.Bus,
		Notifier:  d.Notifier,
	})
	if err := orch.SetBackend(req.AgentID, req.Backend); err != nil {
		return nil, err
	}
	if req.Model != "" {
		if err := orch.SetModel(req.Model); err != nil {
			return nil, err
		}
	}

	return &Result{
		Branch:       branchName,
		Worktree:     wt,
		WorktreeNew:  isNew,
		Chat:         c,
		Orchestrator: orch,
	}, nil
}

// Dispatch begins agent work on a ticket against the given project:
// Prepare plus backend start and session kickoff with the ticket
// prompt.
func (d *Dispatcher) Dispatch(ctx context.Context, p *project.Project, req Request) (*Result, error) {
	res, err := d.Prepare(ctx, p, req)
	if err != nil {
		return nil, err
	}

	if err := d.Backends.Start(ctx, req.AgentID, backend.Config{}); err != nil {
		return nil, err
	}
	if err := res.Orchestrator.StartSession(ctx, req.Prompt, ""); err != nil {
		return nil, err
	}

	res.Chat.SetDraft("")
	return res, nil
}

// resolveWorktree finds or creates the worktree to dispatch into.
func (d *Dispatcher) resolveWorktree(ctx context.Context, p *project.Project, req Request, branchName string) (*project.Worktree, bool, error) {
	if req.WorktreeRoot != "" {
		wt := p.WorktreeAt(req.WorktreeRoot)
		if wt == nil {
			return nil, false, groveerrors.E(groveerrors.Op("dispatch.Dispatch"),
				groveerrors.KindNotFound, "no worktree at "+req.WorktreeRoot)
		}
		return wt, false, nil
	}

	if wt := p.WorktreeForBranch(branchName); wt != nil {
		logger.Debug("Dispatch: reusing worktree %s for branch %s", wt.Root, branchName)
		return wt, false, nil
	}

	root := worktree.DefaultRoot(p.Root(), branchName)
	wt, err := d.Worktrees.Create(ctx, p, branchName, root, p.Primary().Branch)
	if err != nil {
		return nil, false, err
	}
	if err := d.Restore.RegisterWorktree(p, wt); err != nil {
		return nil, false, err
	}
	return wt, true, nil
}

func chatName(req Request) string {
	if req.Title != "" {
		return fmt.Sprintf("#%d %s", req.TicketID, req.Title)
	}
	return fmt.Sprintf("Ticket #%d", req.TicketID)
}
