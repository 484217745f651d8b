// Package project holds the in-memory model of one open repository:
// the Project, its worktrees, and the restore service that rebuilds
// them from the persistence store at startup.
package project

import (
	"sync"

	"github.com/zafnz/grove/internal/chat"
	"github.com/zafnz/grove/internal/git"
)

// Worktree is one checked-out working directory bound to a branch.
// Fields other than Root are refreshed from git or mutated by the
// orchestration services; presentation code only reads.
type Worktree struct {
	Root     string
	Branch   string
	Primary  bool
	BaseRef  string
	Upstream string
	Status   git.Status
	Tags     []string
	Chats    []*chat.Chat
}

// AddChat appends a chat to the worktree's ordered list.
func (w *Worktree) AddChat(c *chat.Chat) {
	w.Chats = append(w.Chats, c)
}

// ChatByID returns the chat with the given id, or nil.
func (w *Worktree) ChatByID(id string) *chat.Chat {
	for _, c := range w.Chats {
		if c.ID() == id {
			return c
		}
	}
	return nil
}

// RemoveChat drops a chat from the worktree's list by id.
func (w *Worktree) RemoveChat(id string) {
	kept := w.Chats[:0]
	for _, c := range w.Chats {
		if c.ID() != id {
			kept = append(kept, c)
		}
	}
	w.Chats = kept
}

// Project is the root entity for one git repository. Exactly one
// worktree is primary and its root equals the project root. The
// worktree list is guarded because services mutate it while
// presentation reads.
type Project struct {
	id   string
	root string
	name string

	mu        sync.RWMutex
	worktrees []*Worktree // primary first
}

// NewProject creates a project around an existing primary worktree.
func NewProject(id, root, name string, primary *Worktree) *Project {
	primary.Primary = true
	primary.Root = root
	return &Project{
		id:        id,
		root:      root,
		name:      name,
		worktrees: []*Worktree{primary},
	}
}

// ID returns the project's persistent id.
func (p *Project) ID() string {
	return p.id
}

// Root returns the repository root path, the project's unique key.
func (p *Project) Root() string {
	return p.root
}

// Name returns the display name.
func (p *Project) Name() string {
	return p.name
}

// Primary returns the primary worktree.
func (p *Project) Primary() *Worktree {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.worktrees[0]
}

// Worktrees returns the worktree list, primary first.
func (p *Project) Worktrees() []*Worktree {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Worktree, len(p.worktrees))
	copy(out, p.worktrees)
	return out
}

// WorktreeAt returns the worktree with the given root, or nil.
func (p *Project) WorktreeAt(root string) *Worktree {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, w := range p.worktrees {
		if w.Root == root {
			return w
		}
	}
	return nil
}

// WorktreeForBranch returns the worktree checked out on a branch, or
// nil.
func (p *Project) WorktreeForBranch(branch string) *Worktree {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, w := range p.worktrees {
		if w.Branch == branch {
			return w
		}
	}
	return nil
}

// AddWorktree appends a linked worktree.
func (p *Project) AddWorktree(w *Worktree) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w.Primary = false
	p.worktrees = append(p.worktrees, w)
}

// RemoveWorktree detaches a linked worktree by root. The primary
// worktree cannot be removed.
func (p *Project) RemoveWorktree(root string) *Worktree {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, w := range p.worktrees {
		if i == 0 {
			continue
		}
		if w.Root == root {
			p.worktrees = append(p.worktrees[:i], p.worktrees[i+1:]...)
			return w
		}
	}
	return nil
}
