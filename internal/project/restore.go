package project

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/zafnz/grove/internal/chat"
	groveerrors "github.com/zafnz/grove/internal/errors"
	"github.com/zafnz/grove/internal/events"
	"github.com/zafnz/grove/internal/git"
	"github.com/zafnz/grove/internal/logger"
	"github.com/zafnz/grove/internal/store"
)

// RestoreOptions controls filesystem validation during restore.
type RestoreOptions struct {
	// ValidateFilesystem prunes linked worktrees whose roots no longer
	// exist on disk from the reconstructed project.
	ValidateFilesystem bool
	// PruneIndex also removes those worktrees from the persisted index
	// and deletes their chats' files. Requires ValidateFilesystem.
	PruneIndex bool
}

// RestoreService rebuilds a Project from the store at startup and
// persists new chats and worktrees incrementally as they appear.
type RestoreService struct {
	store *store.Store
	bus   *events.Bus
	opts  RestoreOptions
}

// NewRestoreService wires a restore service. The bus may be nil.
func NewRestoreService(s *store.Store, bus *events.Bus, opts RestoreOptions) *RestoreService {
	return &RestoreService{store: s, bus: bus, opts: opts}
}

// RestoreOrCreate loads the project at repoRoot from the index, or
// creates a fresh one with a single primary worktree when the index
// has no record of it (isNew=true). Restoring never mutates the index
// except to prune worktrees that are provably gone from disk.
func (r *RestoreService) RestoreOrCreate(ctx context.Context, repoRoot string) (*Project, bool, error) {
	index := r.store.LoadIndex()

	info, ok := index.Projects[repoRoot]
	if !ok {
		p, err := r.createFresh(ctx, repoRoot)
		return p, true, err
	}

	primaryInfo, ok := info.Worktrees[repoRoot]
	if !ok {
		// Index entry without its primary worktree record: treat the
		// project as fresh rather than construct an invalid one.
		logger.Warn("Restore: project %s has no primary worktree record, recreating", repoRoot)
		p, err := r.createFresh(ctx, repoRoot)
		return p, true, err
	}

	primary := &Worktree{
		Root:    repoRoot,
		Branch:  primaryInfo.Name,
		Primary: true,
		Chats:   restoreChats(primaryInfo.Chats),
	}
	p := NewProject(info.ID, repoRoot, info.Name, primary)

	// Map iteration order is not the display order; sort linked
	// worktrees by root for a stable list.
	roots := make([]string, 0, len(info.Worktrees))
	for root := range info.Worktrees {
		if root != repoRoot {
			roots = append(roots, root)
		}
	}
	sort.Strings(roots)

	for _, root := range roots {
		wi := info.Worktrees[root]
		if r.opts.ValidateFilesystem {
			if _, err := os.Stat(root); os.IsNotExist(err) {
				logger.Info("Restore: worktree %s is gone from disk, pruning", root)
				if r.opts.PruneIndex {
					if err := r.pruneWorktree(repoRoot, root); err != nil {
						return nil, false, err
					}
				}
				continue
			}
		}
		p.AddWorktree(&Worktree{
			Root:    root,
			Branch:  wi.Name,
			BaseRef: wi.BaseRef,
			Chats:   restoreChats(wi.Chats),
		})
	}

	return p, false, nil
}

func (r *RestoreService) createFresh(ctx context.Context, repoRoot string) (*Project, error) {
	branch := git.CurrentBranch(ctx, repoRoot)
	primary := &Worktree{Root: repoRoot, Branch: branch, Primary: true}
	p := NewProject(uuid.NewString(), repoRoot, filepath.Base(repoRoot), primary)

	index := r.store.LoadIndex()
	index.Projects[repoRoot] = store.ProjectInfo{
		ID:   p.ID(),
		Name: p.Name(),
		Worktrees: map[string]store.WorktreeInfo{
			repoRoot: {Kind: store.KindPrimary, Name: branch},
		},
	}
	if err := r.store.SaveIndex(index); err != nil {
		return nil, err
	}
	return p, nil
}

func restoreChats(refs []store.ChatReference) []*chat.Chat {
	chats := make([]*chat.Chat, 0, len(refs))
	for _, ref := range refs {
		chats = append(chats, chat.Restore(ref.ChatID, ref.Name))
	}
	return chats
}

// pruneWorktree removes a vanished worktree from the index along with
// its chats' files.
func (r *RestoreService) pruneWorktree(projectRoot, worktreeRoot string) error {
	index := r.store.LoadIndex()
	projectID := index.Projects[projectRoot].ID

	chatIDs, err := r.store.RemoveWorktreeFromIndex(projectRoot, worktreeRoot)
	if err != nil {
		return err
	}
	for _, id := range chatIDs {
		if err := r.store.DeleteChat(projectID, id); err != nil {
			logger.Warn("Restore: failed to delete files for chat %s: %v", id, err)
		}
	}
	return nil
}

// LoadChatHistory bulk-loads a chat's persisted transcript into its
// conversations, one Replace per conversation rather than one change
// per entry, and returns the number of entries loaded.
func (r *RestoreService) LoadChatHistory(c *chat.Chat, projectID string) (int, error) {
	entries := r.store.LoadChatHistory(projectID, c.ID())
	if len(entries) == 0 {
		return 0, nil
	}

	var primary []chat.Entry
	bySubagent := make(map[string][]chat.Entry)
	for _, e := range entries {
		if e.SubagentID == "" {
			primary = append(primary, e)
		} else {
			bySubagent[e.SubagentID] = append(bySubagent[e.SubagentID], e)
		}
	}

	c.Primary().Replace(primary)
	for id, subEntries := range bySubagent {
		c.Subagent(id).Replace(subEntries)
	}

	if r.bus != nil {
		r.bus.Publish(events.Event{Kind: events.ChatUpdated, ChatID: c.ID()})
	}
	return len(entries), nil
}

// ApplyChatMeta loads a chat's persisted settings and draft onto it.
func (r *RestoreService) ApplyChatMeta(c *chat.Chat, projectID string) {
	meta := r.store.LoadChatMeta(projectID, c.ID())

	settings := chat.Settings{
		AgentID:         meta.AgentID,
		Backend:         meta.Backend,
		Model:           meta.Model,
		PermissionMode:  meta.PermissionMode,
		ReasoningEffort: meta.ReasoningEffort,
	}
	if meta.Security != nil {
		settings.Security = *meta.Security
	}
	c.ApplySettings(settings)
	c.SetDraft(meta.Draft)
}

func metaFor(c *chat.Chat) store.ChatMeta {
	s := c.Settings()
	meta := store.ChatMeta{
		AgentID:         s.AgentID,
		Backend:         s.Backend,
		Model:           s.Model,
		PermissionMode:  s.PermissionMode,
		ReasoningEffort: s.ReasoningEffort,
		Draft:           c.Draft(),
	}
	if sec := s.Security; sec.PermissionMode != "" || sec.Sandbox != "" ||
		sec.Approval != "" || len(sec.AllowedTools) > 0 {
		meta.Security = &sec
	}
	return meta
}

// PersistChatMeta writes a chat's current settings and draft.
func (r *RestoreService) PersistChatMeta(c *chat.Chat, projectID string) error {
	return r.store.SaveChatMeta(projectID, c.ID(), metaFor(c))
}

// AddChatToWorktree registers a new chat under a worktree: initializes
// its files, records it in the index, and attaches it in memory.
func (r *RestoreService) AddChatToWorktree(p *Project, worktreeRoot string, c *chat.Chat) error {
	const op groveerrors.Op = "project.AddChatToWorktree"

	wt := p.WorktreeAt(worktreeRoot)
	if wt == nil {
		return groveerrors.E(op, groveerrors.KindNotFound, "no worktree at "+worktreeRoot)
	}

	if err := r.store.InitChat(p.ID(), c.ID(), metaFor(c)); err != nil {
		return err
	}
	if err := r.store.AddChatToIndex(p.Root(), worktreeRoot, c.ID(), c.Name()); err != nil {
		return err
	}

	wt.AddChat(c)
	if r.bus != nil {
		r.bus.Publish(events.Event{Kind: events.ChatUpdated, ChatID: c.ID()})
	}
	return nil
}

// RegisterWorktree records a newly created linked worktree in the
// index and attaches it to the project.
func (r *RestoreService) RegisterWorktree(p *Project, w *Worktree) error {
	index := r.store.LoadIndex()
	info, ok := index.Projects[p.Root()]
	if !ok {
		return groveerrors.E(groveerrors.Op("project.RegisterWorktree"),
			groveerrors.KindNotFound, "project "+p.Root()+" not in index")
	}

	info.Worktrees[w.Root] = store.WorktreeInfo{
		Kind:    store.KindLinked,
		Name:    w.Branch,
		BaseRef: w.BaseRef,
	}
	index.Projects[p.Root()] = info
	if err := r.store.SaveIndex(index); err != nil {
		return err
	}

	p.AddWorktree(w)
	if r.bus != nil {
		r.bus.Publish(events.Event{Kind: events.WorktreesChanged})
	}
	return nil
}

// UnregisterWorktree removes a worktree from the index and project and
// deletes its chats' files. Index failure propagates before any
// in-memory mutation.
func (r *RestoreService) UnregisterWorktree(p *Project, worktreeRoot string) error {
	chatIDs, err := r.store.RemoveWorktreeFromIndex(p.Root(), worktreeRoot)
	if err != nil {
		return err
	}
	for _, id := range chatIDs {
		if err := r.store.DeleteChat(p.ID(), id); err != nil {
			logger.Warn("Restore: failed to delete files for chat %s: %v", id, err)
		}
	}

	p.RemoveWorktree(worktreeRoot)
	if r.bus != nil {
		r.bus.Publish(events.Event{Kind: events.WorktreesChanged})
	}
	return nil
}
