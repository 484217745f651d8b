// Package store persists Grove's project graph: a single index file
// mapping projects to worktrees to chat references, plus per-chat meta
// records and append-only transcript logs.
//
// Layout under the injected root:
//
//	index.json
//	chats/<projectID>/<chatID>/meta.json
//	chats/<projectID>/<chatID>/transcript.jsonl
//
// Reads degrade: a missing or corrupt index loads as empty, corrupt
// meta loads as defaults, and corrupt transcript lines are skipped.
// The one exception is worktree removal, whose failures propagate
// because silently losing track of a worktree masks data loss.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zafnz/grove/internal/backend"
	"github.com/zafnz/grove/internal/chat"
	groveerrors "github.com/zafnz/grove/internal/errors"
	"github.com/zafnz/grove/internal/logger"
)

// Worktree kinds as persisted in the index.
const (
	KindPrimary = "primary"
	KindLinked  = "linked"
)

// ChatReference is the index's pointer to a chat. The id always
// matches a meta file and a transcript log under chats/.
type ChatReference struct {
	Name   string `json:"name"`
	ChatID string `json:"chatId"`
}

// WorktreeInfo is the persisted record of one worktree.
type WorktreeInfo struct {
	Kind    string          `json:"kind"`
	Name    string          `json:"name"`
	BaseRef string          `json:"baseRef,omitempty"`
	Chats   []ChatReference `json:"chats,omitempty"`
}

// ProjectInfo is the persisted record of one project, keyed by
// worktree root path.
type ProjectInfo struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	Worktrees map[string]WorktreeInfo `json:"worktrees"`
}

// ProjectsIndex is the top-level index, keyed by project root path.
type ProjectsIndex struct {
	Projects map[string]ProjectInfo `json:"projects"`
}

// NewProjectsIndex returns an empty index.
func NewProjectsIndex() *ProjectsIndex {
	return &ProjectsIndex{Projects: make(map[string]ProjectInfo)}
}

// ChatMeta is the per-chat side record, loaded lazily.
type ChatMeta struct {
	AgentID         string                  `json:"agentId,omitempty"`
	Backend         backend.Type            `json:"backend,omitempty"`
	Model           string                  `json:"model,omitempty"`
	PermissionMode  string                  `json:"permissionMode,omitempty"`
	Security        *backend.SecurityConfig `json:"securityConfig,omitempty"`
	ReasoningEffort string                  `json:"reasoningEffort,omitempty"`
	Draft           string                  `json:"draft,omitempty"`
	ResumeToken     string                  `json:"resumeToken,omitempty"`
}

// Store reads and writes the on-disk state under one root directory.
// The root is owned by a single process; there is no cross-process
// locking.
type Store struct {
	root string
}

// New creates a store rooted at dir.
func New(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the store's base directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) indexPath() string {
	return filepath.Join(s.root, "index.json")
}

func (s *Store) chatDir(projectID, chatID string) string {
	return filepath.Join(s.root, "chats", projectID, chatID)
}

func (s *Store) metaPath(projectID, chatID string) string {
	return filepath.Join(s.chatDir(projectID, chatID), "meta.json")
}

func (s *Store) transcriptPath(projectID, chatID string) string {
	return filepath.Join(s.chatDir(projectID, chatID), "transcript.jsonl")
}

// LoadIndex reads the projects index. A missing or unreadable index
// loads as empty; corruption is logged, never surfaced.
func (s *Store) LoadIndex() *ProjectsIndex {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Store: failed to read index: %v", err)
		}
		return NewProjectsIndex()
	}

	var index ProjectsIndex
	if err := json.Unmarshal(data, &index); err != nil {
		logger.Warn("Store: index is corrupt, starting empty: %v", err)
		return NewProjectsIndex()
	}
	if index.Projects == nil {
		index.Projects = make(map[string]ProjectInfo)
	}
	return &index
}

// SaveIndex overwrites the persisted index atomically via a temp-file
// rename.
func (s *Store) SaveIndex(index *ProjectsIndex) error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return groveerrors.IndexSaveFailed(s.indexPath(), err)
	}

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return groveerrors.IndexSaveFailed(s.indexPath(), err)
	}

	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return groveerrors.IndexSaveFailed(s.indexPath(), err)
	}
	if err := os.Rename(tmp, s.indexPath()); err != nil {
		os.Remove(tmp)
		return groveerrors.IndexSaveFailed(s.indexPath(), err)
	}
	return nil
}

// LoadChatMeta reads a chat's meta record. Missing or corrupt files
// load as the zero meta.
func (s *Store) LoadChatMeta(projectID, chatID string) ChatMeta {
	data, err := os.ReadFile(s.metaPath(projectID, chatID))
	if err != nil {
		return ChatMeta{}
	}

	var meta ChatMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		logger.Warn("Store: meta for chat %s is corrupt, using defaults: %v", chatID, err)
		return ChatMeta{}
	}
	return meta
}

// SaveChatMeta writes a chat's meta record.
func (s *Store) SaveChatMeta(projectID, chatID string, meta ChatMeta) error {
	if err := os.MkdirAll(s.chatDir(projectID, chatID), 0755); err != nil {
		return groveerrors.E(groveerrors.Op("store.SaveChatMeta"), groveerrors.KindStore, err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return groveerrors.E(groveerrors.Op("store.SaveChatMeta"), groveerrors.KindStore, err)
	}
	if err := os.WriteFile(s.metaPath(projectID, chatID), data, 0644); err != nil {
		return groveerrors.E(groveerrors.Op("store.SaveChatMeta"), groveerrors.KindStore, err)
	}
	return nil
}

// LoadChatHistory reads a chat's transcript in append order. Corrupt
// lines are skipped and logged; the good lines around them survive.
func (s *Store) LoadChatHistory(projectID, chatID string) []chat.Entry {
	f, err := os.Open(s.transcriptPath(projectID, chatID))
	if err != nil {
		return nil
	}
	defer f.Close()

	var entries []chat.Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry chat.Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			logger.Warn("Store: skipping corrupt transcript line %d for chat %s: %v", lineNo, chatID, err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("Store: transcript read for chat %s stopped early: %v", chatID, err)
	}
	return entries
}

// AppendChatEntry appends one entry as a new line in the chat's
// transcript. Prior lines are never rewritten.
func (s *Store) AppendChatEntry(projectID, chatID string, entry chat.Entry) error {
	const op groveerrors.Op = "store.AppendChatEntry"

	if err := os.MkdirAll(s.chatDir(projectID, chatID), 0755); err != nil {
		return groveerrors.E(op, groveerrors.KindStore, err)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return groveerrors.E(op, groveerrors.KindStore, err)
	}

	f, err := os.OpenFile(s.transcriptPath(projectID, chatID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return groveerrors.E(op, groveerrors.KindStore, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return groveerrors.E(op, groveerrors.KindStore, err)
	}
	return nil
}

// InitChat creates a chat's directory and an empty transcript so the
// ChatReference invariant (id matches files on disk) holds from the
// moment the chat is registered.
func (s *Store) InitChat(projectID, chatID string, meta ChatMeta) error {
	if err := s.SaveChatMeta(projectID, chatID, meta); err != nil {
		return err
	}
	f, err := os.OpenFile(s.transcriptPath(projectID, chatID), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return groveerrors.E(groveerrors.Op("store.InitChat"), groveerrors.KindStore, err)
	}
	return f.Close()
}

// DeleteChat removes a chat's on-disk directory.
func (s *Store) DeleteChat(projectID, chatID string) error {
	if err := os.RemoveAll(s.chatDir(projectID, chatID)); err != nil {
		return groveerrors.E(groveerrors.Op("store.DeleteChat"), groveerrors.KindStore, err)
	}
	return nil
}

// RemoveWorktreeFromIndex deletes a worktree's index entry and returns
// the chat ids it owned so the caller can delete their files. Unlike
// reads, failures here propagate.
func (s *Store) RemoveWorktreeFromIndex(projectRoot, worktreeRoot string) ([]string, error) {
	index := s.LoadIndex()

	info, ok := index.Projects[projectRoot]
	if !ok {
		return nil, nil
	}
	wt, ok := info.Worktrees[worktreeRoot]
	if !ok {
		return nil, nil
	}

	chatIDs := make([]string, 0, len(wt.Chats))
	for _, ref := range wt.Chats {
		chatIDs = append(chatIDs, ref.ChatID)
	}

	delete(info.Worktrees, worktreeRoot)
	index.Projects[projectRoot] = info

	if err := s.SaveIndex(index); err != nil {
		return nil, groveerrors.WorktreeRemovalFailed(worktreeRoot, err)
	}
	return chatIDs, nil
}

// AddChatToIndex registers a chat reference under a worktree in the
// index. The worktree must already be present.
func (s *Store) AddChatToIndex(projectRoot, worktreeRoot, chatID, chatName string) error {
	const op groveerrors.Op = "store.AddChatToIndex"

	index := s.LoadIndex()
	info, ok := index.Projects[projectRoot]
	if !ok {
		return groveerrors.E(op, groveerrors.KindNotFound, fmt.Sprintf("project %s not in index", projectRoot))
	}
	wt, ok := info.Worktrees[worktreeRoot]
	if !ok {
		return groveerrors.E(op, groveerrors.KindNotFound, fmt.Sprintf("worktree %s not in index", worktreeRoot))
	}

	wt.Chats = append(wt.Chats, ChatReference{Name: chatName, ChatID: chatID})
	info.Worktrees[worktreeRoot] = wt
	index.Projects[projectRoot] = info
	return s.SaveIndex(index)
}

// RemoveChatFromIndex drops a chat reference from its worktree entry.
func (s *Store) RemoveChatFromIndex(projectRoot, worktreeRoot, chatID string) error {
	index := s.LoadIndex()
	info, ok := index.Projects[projectRoot]
	if !ok {
		return nil
	}
	wt, ok := info.Worktrees[worktreeRoot]
	if !ok {
		return nil
	}

	kept := wt.Chats[:0]
	for _, ref := range wt.Chats {
		if ref.ChatID != chatID {
			kept = append(kept, ref)
		}
	}
	wt.Chats = kept
	info.Worktrees[worktreeRoot] = wt
	index.Projects[projectRoot] = info
	return s.SaveIndex(index)
}
