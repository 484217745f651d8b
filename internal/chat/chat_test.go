package chat

import (
	"testing"
)

func TestConversation_AppendOrder(t *testing.T) {
	conv := NewConversation(true)
	for _, text := range []string{"one", "two", "three"} {
		e := NewEntry(EntryTextOutput)
		e.Text = text
		conv.Append(e)
	}

	entries := conv.Entries()
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, want := range []string{"one", "two", "three"} {
		if entries[i].Text != want {
			t.Errorf("entries[%d].Text = %q, want %q", i, entries[i].Text, want)
		}
	}
}

func TestConversation_Replace(t *testing.T) {
	conv := NewConversation(true)
	e := NewEntry(EntryUserInput)
	e.Text = "stale"
	conv.Append(e)

	restored := []Entry{NewEntry(EntrySystem), NewEntry(EntryTextOutput)}
	conv.Replace(restored)

	entries := conv.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries after Replace, want 2", len(entries))
	}
	if entries[0].Kind != EntrySystem {
		t.Errorf("entries[0].Kind = %q, want system", entries[0].Kind)
	}
}

func TestNewEntry_ULIDsSortInCreationOrder(t *testing.T) {
	prev := NewEntry(EntryUserInput)
	for i := 0; i < 100; i++ {
		next := NewEntry(EntryUserInput)
		if next.ID <= prev.ID {
			t.Fatalf("entry id %q not greater than previous %q", next.ID, prev.ID)
		}
		prev = next
	}
}

func TestChat_IDImmutable(t *testing.T) {
	c := New("Chat 1", true)
	id := c.ID()
	if id == "" {
		t.Fatal("new chat has empty id")
	}

	c.SetName("renamed")
	if c.ID() != id {
		t.Error("chat id changed after rename")
	}
}

func TestChat_AutoNaming(t *testing.T) {
	c := New("Chat 1", true)
	if !c.AutoNamed() {
		t.Fatal("chat should start auto-named")
	}

	// An AI-generated title may overwrite an auto name.
	c.SetAutoName("Fix login bug")
	if c.Name() != "Fix login bug" {
		t.Errorf("Name() = %q, want auto-name applied", c.Name())
	}

	// A user rename pins the name.
	c.SetName("My chat")
	if c.AutoNamed() {
		t.Error("chat should not be auto-named after user rename")
	}
	c.SetAutoName("should not apply")
	if c.Name() != "My chat" {
		t.Errorf("Name() = %q, auto-name overwrote a user-set name", c.Name())
	}
}

func TestChat_SubagentLazyCreation(t *testing.T) {
	c := New("Chat 1", true)
	if len(c.SubagentIDs()) != 0 {
		t.Fatal("new chat should have no subagents")
	}

	conv := c.Subagent("tool-123")
	if conv == nil || conv.IsPrimary() {
		t.Fatal("subagent conversation should exist and not be primary")
	}

	// Same id resolves to the same conversation.
	if c.Subagent("tool-123") != conv {
		t.Error("second lookup created a new conversation")
	}
	if len(c.SubagentIDs()) != 1 {
		t.Errorf("got %d subagents, want 1", len(c.SubagentIDs()))
	}
}

func TestChat_ConversationFor(t *testing.T) {
	c := New("Chat 1", true)
	if c.ConversationFor("") != c.Primary() {
		t.Error("empty subagent id should route to primary")
	}
	if c.ConversationFor("sub-1") == c.Primary() {
		t.Error("subagent id should not route to primary")
	}
}

func TestRestore_KeepsID(t *testing.T) {
	c := Restore("abc-123", "Restored chat")
	if c.ID() != "abc-123" {
		t.Errorf("ID() = %q, want abc-123", c.ID())
	}
	if c.Name() != "Restored chat" {
		t.Errorf("Name() = %q", c.Name())
	}
	if c.Primary() == nil {
		t.Error("restored chat must have a primary conversation")
	}
}
