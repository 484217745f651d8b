package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/zafnz/grove/internal/backend"
	"github.com/zafnz/grove/internal/chat"
	pexec "github.com/zafnz/grove/internal/exec"
	"github.com/zafnz/grove/internal/git"
	"github.com/zafnz/grove/internal/store"
)

func withMockGit(t *testing.T) *pexec.MockExecutor {
	t.Helper()
	mock := pexec.NewMockExecutor()
	old := git.GetExecutor()
	git.SetExecutor(mock)
	t.Cleanup(func() { git.SetExecutor(old) })
	return mock
}

func TestProject_PrimaryInvariant(t *testing.T) {
	primary := &Worktree{Root: "/repo", Branch: "main"}
	p := NewProject("p1", "/repo", "repo", primary)

	if got := p.Primary(); got != primary || !got.Primary {
		t.Fatal("primary worktree not first or not flagged")
	}
	if p.Primary().Root != p.Root() {
		t.Error("primary root must equal project root")
	}

	p.AddWorktree(&Worktree{Root: "/wt1", Branch: "feature"})
	if len(p.Worktrees()) != 2 {
		t.Fatalf("got %d worktrees, want 2", len(p.Worktrees()))
	}
	if p.Worktrees()[0] != primary {
		t.Error("primary must stay first")
	}
}

func TestProject_RemoveWorktree(t *testing.T) {
	p := NewProject("p1", "/repo", "repo", &Worktree{Root: "/repo", Branch: "main"})
	p.AddWorktree(&Worktree{Root: "/wt1", Branch: "feature"})

	if removed := p.RemoveWorktree("/wt1"); removed == nil || removed.Root != "/wt1" {
		t.Errorf("RemoveWorktree(/wt1) = %v", removed)
	}
	if p.WorktreeAt("/wt1") != nil {
		t.Error("worktree still attached after removal")
	}

	// The primary worktree can never be removed.
	if removed := p.RemoveWorktree("/repo"); removed != nil {
		t.Error("primary worktree was removed")
	}
	if len(p.Worktrees()) != 1 {
		t.Errorf("got %d worktrees, want 1", len(p.Worktrees()))
	}
}

func TestRestoreOrCreate_Fresh(t *testing.T) {
	mock := withMockGit(t)
	mock.Stub("git rev-parse --abbrev-ref HEAD", pexec.MockResponse{Stdout: "main\n"})

	s := store.New(t.TempDir())
	r := NewRestoreService(s, nil, RestoreOptions{})

	p, isNew, err := r.RestoreOrCreate(context.Background(), "/home/user/myrepo")
	if err != nil {
		t.Fatalf("RestoreOrCreate() error = %v", err)
	}
	if !isNew {
		t.Error("isNew = false for an unknown repo")
	}
	if p.Name() != "myrepo" {
		t.Errorf("Name() = %q, want myrepo", p.Name())
	}
	if p.Primary().Branch != "main" {
		t.Errorf("primary branch = %q, want main", p.Primary().Branch)
	}

	// The fresh project is persisted immediately.
	index := s.LoadIndex()
	info, ok := index.Projects["/home/user/myrepo"]
	if !ok {
		t.Fatal("fresh project not saved to index")
	}
	if info.Worktrees["/home/user/myrepo"].Kind != store.KindPrimary {
		t.Error("primary worktree record missing or wrong kind")
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	mock := withMockGit(t)
	mock.Stub("git rev-parse --abbrev-ref HEAD", pexec.MockResponse{Stdout: "main\n"})

	s := store.New(t.TempDir())
	r := NewRestoreService(s, nil, RestoreOptions{})

	p, _, err := r.RestoreOrCreate(context.Background(), "/home/user/myrepo")
	if err != nil {
		t.Fatal(err)
	}

	// Register a linked worktree and a chat with two entries.
	wt := &Worktree{Root: "/home/user/wts/tkt-1-fix", Branch: "tkt-1-fix", BaseRef: "main"}
	if err := r.RegisterWorktree(p, wt); err != nil {
		t.Fatalf("RegisterWorktree() error = %v", err)
	}

	c := chat.New("Chat 1", true)
	c.ApplySettings(chat.Settings{AgentID: "claude-main", Backend: backend.TypeClaude, Model: "opus"})
	if err := r.AddChatToWorktree(p, wt.Root, c); err != nil {
		t.Fatalf("AddChatToWorktree() error = %v", err)
	}

	first := chat.NewEntry(chat.EntryUserInput)
	first.Text = "one"
	second := chat.NewEntry(chat.EntryTextOutput)
	second.Text = "two"
	for _, e := range []chat.Entry{first, second} {
		if err := s.AppendChatEntry(p.ID(), c.ID(), e); err != nil {
			t.Fatal(err)
		}
	}

	// Restore from the same store.
	restored, isNew, err := r.RestoreOrCreate(context.Background(), "/home/user/myrepo")
	if err != nil {
		t.Fatalf("second RestoreOrCreate() error = %v", err)
	}
	if isNew {
		t.Fatal("isNew = true on restore")
	}
	if restored.ID() != p.ID() {
		t.Errorf("project id changed: %q -> %q", p.ID(), restored.ID())
	}

	restoredWt := restored.WorktreeAt(wt.Root)
	if restoredWt == nil {
		t.Fatal("linked worktree not restored")
	}
	if restoredWt.Branch != "tkt-1-fix" || restoredWt.BaseRef != "main" {
		t.Errorf("worktree fields = %+v", restoredWt)
	}

	if len(restoredWt.Chats) != 1 {
		t.Fatalf("got %d chats, want 1", len(restoredWt.Chats))
	}
	rc := restoredWt.Chats[0]
	if rc.ID() != c.ID() || rc.Name() != "Chat 1" {
		t.Errorf("chat restored as %s/%s, want %s/Chat 1", rc.ID(), rc.Name(), c.ID())
	}

	// Transcript loads lazily, in order.
	count, err := r.LoadChatHistory(rc, restored.ID())
	if err != nil {
		t.Fatalf("LoadChatHistory() error = %v", err)
	}
	if count != 2 {
		t.Errorf("loaded %d entries, want 2", count)
	}
	entries := rc.Primary().Entries()
	if len(entries) != 2 || entries[0].Text != "one" || entries[1].Text != "two" {
		t.Errorf("restored entries = %+v", entries)
	}

	// Meta loads lazily too.
	r.ApplyChatMeta(rc, restored.ID())
	if rc.Model() != "opus" || rc.AgentID() != "claude-main" {
		t.Errorf("settings = %+v, want persisted meta applied", rc.Settings())
	}
}

func TestLoadChatHistory_SubagentEntries(t *testing.T) {
	s := store.New(t.TempDir())
	r := NewRestoreService(s, nil, RestoreOptions{})

	c := chat.Restore("c1", "Chat")
	main := chat.NewEntry(chat.EntryTextOutput)
	main.Text = "primary"
	sub := chat.NewEntry(chat.EntryTextOutput)
	sub.Text = "delegated"
	sub.SubagentID = "sub-1"
	for _, e := range []chat.Entry{main, sub} {
		if err := s.AppendChatEntry("p1", "c1", e); err != nil {
			t.Fatal(err)
		}
	}

	count, err := r.LoadChatHistory(c, "p1")
	if err != nil || count != 2 {
		t.Fatalf("LoadChatHistory() = (%d, %v), want (2, nil)", count, err)
	}
	if got := c.Primary().Len(); got != 1 {
		t.Errorf("primary has %d entries, want 1", got)
	}
	if got := c.Subagent("sub-1").Len(); got != 1 {
		t.Errorf("subagent has %d entries, want 1", got)
	}
}

func TestRestore_PrunesMissingWorktrees(t *testing.T) {
	mock := withMockGit(t)
	mock.Stub("git rev-parse --abbrev-ref HEAD", pexec.MockResponse{Stdout: "main\n"})

	storeDir := t.TempDir()
	repoRoot := t.TempDir()
	s := store.New(storeDir)

	r := NewRestoreService(s, nil, RestoreOptions{})
	p, _, err := r.RestoreOrCreate(context.Background(), repoRoot)
	if err != nil {
		t.Fatal(err)
	}

	// One worktree that exists, one that is gone.
	liveRoot := filepath.Join(t.TempDir(), "live")
	if err := os.MkdirAll(liveRoot, 0755); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterWorktree(p, &Worktree{Root: liveRoot, Branch: "live", BaseRef: "main"}); err != nil {
		t.Fatal(err)
	}
	ghostRoot := filepath.Join(storeDir, "no-such-dir")
	if err := r.RegisterWorktree(p, &Worktree{Root: ghostRoot, Branch: "ghost", BaseRef: "main"}); err != nil {
		t.Fatal(err)
	}
	c := chat.New("Ghost chat", true)
	if err := r.AddChatToWorktree(p, ghostRoot, c); err != nil {
		t.Fatal(err)
	}

	pruning := NewRestoreService(s, nil, RestoreOptions{ValidateFilesystem: true, PruneIndex: true})
	restored, _, err := pruning.RestoreOrCreate(context.Background(), repoRoot)
	if err != nil {
		t.Fatalf("RestoreOrCreate() error = %v", err)
	}

	if restored.WorktreeAt(ghostRoot) != nil {
		t.Error("vanished worktree was restored")
	}
	if restored.WorktreeAt(liveRoot) == nil {
		t.Error("live worktree was pruned")
	}

	// The index was pruned and the orphaned chat's files deleted.
	index := s.LoadIndex()
	if _, ok := index.Projects[repoRoot].Worktrees[ghostRoot]; ok {
		t.Error("vanished worktree still in index")
	}
	if _, err := os.Stat(filepath.Join(storeDir, "chats", p.ID(), c.ID())); !os.IsNotExist(err) {
		t.Error("orphaned chat files not deleted")
	}
}

func TestUnregisterWorktree(t *testing.T) {
	mock := withMockGit(t)
	mock.Stub("git rev-parse --abbrev-ref HEAD", pexec.MockResponse{Stdout: "main\n"})

	storeDir := t.TempDir()
	s := store.New(storeDir)
	repoRoot := t.TempDir()

	r := NewRestoreService(s, nil, RestoreOptions{})
	p, _, err := r.RestoreOrCreate(context.Background(), repoRoot)
	if err != nil {
		t.Fatal(err)
	}

	wt := &Worktree{Root: "/wt1", Branch: "tkt-1-fix", BaseRef: "main"}
	if err := r.RegisterWorktree(p, wt); err != nil {
		t.Fatal(err)
	}
	c := chat.New("Chat 1", true)
	if err := r.AddChatToWorktree(p, wt.Root, c); err != nil {
		t.Fatal(err)
	}

	if err := r.UnregisterWorktree(p, wt.Root); err != nil {
		t.Fatalf("UnregisterWorktree() error = %v", err)
	}

	if p.WorktreeAt(wt.Root) != nil {
		t.Error("worktree still attached after unregister")
	}
	if _, ok := s.LoadIndex().Projects[repoRoot].Worktrees[wt.Root]; ok {
		t.Error("worktree still in index")
	}
	if _, err := os.Stat(filepath.Join(storeDir, "chats", p.ID(), c.ID())); !os.IsNotExist(err) {
		t.Error("chat files not deleted")
	}
}

func TestRestore_ValidateWithoutPruneKeepsIndex(t *testing.T) {
	mock := withMockGit(t)
	mock.Stub("git rev-parse --abbrev-ref HEAD", pexec.MockResponse{Stdout: "main\n"})

	s := store.New(t.TempDir())
	repoRoot := t.TempDir()

	r := NewRestoreService(s, nil, RestoreOptions{})
	p, _, err := r.RestoreOrCreate(context.Background(), repoRoot)
	if err != nil {
		t.Fatal(err)
	}
	ghostRoot := filepath.Join(s.Root(), "gone")
	if err := r.RegisterWorktree(p, &Worktree{Root: ghostRoot, Branch: "gone"}); err != nil {
		t.Fatal(err)
	}

	validating := NewRestoreService(s, nil, RestoreOptions{ValidateFilesystem: true})
	restored, _, err := validating.RestoreOrCreate(context.Background(), repoRoot)
	if err != nil {
		t.Fatal(err)
	}

	if restored.WorktreeAt(ghostRoot) != nil {
		t.Error("vanished worktree restored into the project")
	}
	if _, ok := s.LoadIndex().Projects[repoRoot].Worktrees[ghostRoot]; !ok {
		t.Error("index pruned without PruneIndex")
	}
}
