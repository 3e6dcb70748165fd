package sync

import (
	"sync"
	"testing"
	"time"

	"IMSync/module/chat/event"
)

type listClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *listClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *listClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestList() (*List, *listClock) {
	clk := &listClock{now: time.UnixMilli(1_700_000_000_000)}
	l := NewList(ListConf{SelfID: "bob", TypingTTL: 6 * time.Second, Clock: clk.Now})
	l.Seed([]Summary{
		{ConversationID: "c1", Participants: []string{"alice", "bob"}, LastTimestamp: 100},
		{ConversationID: "c2", Participants: []string{"bob", "carol"}, LastTimestamp: 200},
	})
	return l, clk
}

func listEvent(conv, sender string, ts int64) event.ConversationMessage {
	return event.ConversationMessage{
		ConversationID: conv,
		Message:        event.Message{ID: "m-" + conv, ConversationID: conv, SenderID: sender, Text: "hi", Timestamp: ts},
		Timestamp:      ts,
	}
}

func TestIncomingMessageIncrementsUnreadAndMovesFront(t *testing.T) {
	// Scenario B: bob is a participant of c1 but not viewing it; the compact
	// event increments c1's unread by exactly 1 and moves it to the front.
	l, _ := newTestList()

	l.ApplyConversationMessage(listEvent("c1", "alice", 300))

	if got := l.Unread("c1"); got != 1 {
		t.Fatalf("unread = %d, want 1", got)
	}
	if order := l.Summaries(); order[0].ConversationID != "c1" {
		t.Fatalf("c1 should be first, got %s", order[0].ConversationID)
	}

	// the viewer's own echo moves the conversation but never the counter
	l.ApplyConversationMessage(listEvent("c2", "bob", 400))
	if got := l.Unread("c2"); got != 0 {
		t.Fatalf("own message bumped unread to %d", got)
	}
	if order := l.Summaries(); order[0].ConversationID != "c2" {
		t.Fatalf("c2 should be first after own message, got %s", order[0].ConversationID)
	}
}

func TestReadReceiptDecrementsFloored(t *testing.T) {
	l, _ := newTestList()
	l.ApplyConversationMessage(listEvent("c1", "alice", 300))
	l.ApplyConversationMessage(listEvent("c1", "alice", 301))

	// someone else's receipt never touches bob's badge
	l.ApplyConversationRead(event.ConversationRead{ConversationID: "c1", ReaderID: "alice", ReadCount: 2})
	if got := l.Unread("c1"); got != 2 {
		t.Fatalf("unread = %d, want 2", got)
	}

	l.ApplyConversationRead(event.ConversationRead{ConversationID: "c1", ReaderID: "bob", ReadCount: 2})
	if got := l.Unread("c1"); got != 0 {
		t.Fatalf("unread = %d, want 0", got)
	}

	// floor at zero on over-delivery
	l.ApplyConversationRead(event.ConversationRead{ConversationID: "c1", ReaderID: "bob", ReadCount: 5})
	if got := l.Unread("c1"); got != 0 {
		t.Fatalf("unread went negative: %d", got)
	}
}

func TestUnknownConversationTriggersResync(t *testing.T) {
	l, _ := newTestList()

	l.ApplyConversationMessage(listEvent("c9", "alice", 300))
	l.ApplyConversationMessage(listEvent("c9", "alice", 301)) // dedup

	id, ok := l.TakeResyncRequest()
	if !ok || id != "c9" {
		t.Fatalf("TakeResyncRequest = %q, %v", id, ok)
	}
	if _, ok := l.TakeResyncRequest(); ok {
		t.Fatal("duplicate resync request for the same conversation")
	}

	// the unknown event is not applied; Seed supersedes it
	if got := l.Unread("c9"); got != 0 {
		t.Fatalf("unknown conversation accumulated unread %d", got)
	}
	l.Seed([]Summary{{ConversationID: "c9", Participants: []string{"alice", "bob"}, Unread: 1, LastTimestamp: 301}})
	if got := l.Unread("c9"); got != 1 {
		t.Fatalf("seeded unread = %d, want 1", got)
	}
}

func TestPresenceFlags(t *testing.T) {
	l, _ := newTestList()

	l.ApplyPresence(event.PresenceUpdate{UserID: "alice", IsOnline: true, LastSeen: 1})
	l.ApplyPresence(event.PresenceUpdate{UserID: "stranger", IsOnline: true, LastSeen: 1})

	sums := l.Summaries()
	for _, s := range sums {
		switch s.ConversationID {
		case "c1":
			if !s.Online["alice"] {
				t.Fatal("alice should be online in c1")
			}
		case "c2":
			if s.Online["alice"] {
				t.Fatal("alice is not a participant of c2")
			}
		}
		if s.Online["stranger"] {
			t.Fatal("stranger leaked into the projection")
		}
	}
}

func TestTypingExpires(t *testing.T) {
	l, clk := newTestList()

	l.ApplyTyping(event.Typing{ConversationID: "c1", UserID: "alice", IsTyping: true})
	now := clk.Now()
	for _, s := range l.Summaries() {
		if s.ConversationID == "c1" {
			if users := s.TypingUsers(now); len(users) != 1 || users[0] != "alice" {
				t.Fatalf("typing = %v", users)
			}
		}
	}

	clk.Advance(7 * time.Second)
	for _, s := range l.Summaries() {
		if s.ConversationID == "c1" {
			if users := s.TypingUsers(clk.Now()); len(users) != 0 {
				t.Fatalf("typing flag stuck: %v", users)
			}
		}
	}

	// explicit stop clears immediately
	l.ApplyTyping(event.Typing{ConversationID: "c1", UserID: "alice", IsTyping: true})
	l.ApplyTyping(event.Typing{ConversationID: "c1", UserID: "alice", IsTyping: false})
	for _, s := range l.Summaries() {
		if s.ConversationID == "c1" {
			if users := s.TypingUsers(clk.Now()); len(users) != 0 {
				t.Fatalf("typing not cleared: %v", users)
			}
		}
	}
}

func TestPinnedAndArchivedOrdering(t *testing.T) {
	l, _ := newTestList()
	l.Seed([]Summary{
		{ConversationID: "c1", LastTimestamp: 100},
		{ConversationID: "c2", LastTimestamp: 200},
		{ConversationID: "c3", LastTimestamp: 300},
	})
	l.SetPinned("c1", true)
	l.SetArchived("c3", true)

	order := l.Summaries()
	if order[0].ConversationID != "c1" {
		t.Fatalf("pinned c1 should lead, got %s", order[0].ConversationID)
	}
	if order[len(order)-1].ConversationID != "c3" {
		t.Fatalf("archived c3 should trail, got %s", order[len(order)-1].ConversationID)
	}

	// pinned/archived survive a reseed
	l.Seed([]Summary{
		{ConversationID: "c1", LastTimestamp: 100},
		{ConversationID: "c3", LastTimestamp: 300},
	})
	order = l.Summaries()
	if !order[0].Pinned || order[0].ConversationID != "c1" {
		t.Fatalf("pin lost on reseed: %+v", order[0])
	}
}
