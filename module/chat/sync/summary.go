package sync

import (
	"sort"
	gosync "sync"
	"time"

	"IMSync/module/chat/event"
)

// Summary is the list-level projection of one conversation. Recomputed
// incrementally from user-channel events; never double-applies a read/unread
// transition because every transition is driven by exactly one event.
type Summary struct {
	ConversationID string
	Name           string
	Participants   []string
	LastMessage    event.Message
	LastTimestamp  int64
	Unread         int
	Pinned         bool
	Archived       bool
	Online         map[string]bool
	typing         map[string]time.Time // userID -> expiry
}

// TypingUsers returns the unexpired typing set.
func (s *Summary) TypingUsers(now time.Time) []string {
	var out []string
	for u, exp := range s.typing {
		if now.Before(exp) {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}

// ListConf configures the conversation-list projection.
type ListConf struct {
	SelfID    string
	TypingTTL time.Duration    // a stuck typing flag clears after this
	Clock     func() time.Time // nil => time.Now
}

func (c *ListConf) norm() {
	if c.TypingTTL <= 0 {
		c.TypingTTL = 6 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// List owns the client's conversation-list projection. An event naming a
// conversation the list does not know is an explicit reconciliation
// transition: the id is queued and the embedding client performs a full
// resync, then calls Seed. The unknown event itself is not applied; the
// resync supersedes it.
type List struct {
	mu    gosync.Mutex
	conf  ListConf
	convs map[string]*Summary

	resyncQueue []string
	resyncSeen  map[string]bool
}

func NewList(conf ListConf) *List {
	conf.norm()
	return &List{
		convs:      make(map[string]*Summary),
		conf:       conf,
		resyncSeen: make(map[string]bool),
	}
}

// Seed replaces the projection with fresh server state (initial load or full
// resync). Pinned/archived are client-side flags and survive the reseed.
func (l *List) Seed(summaries []Summary) {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.convs
	l.convs = make(map[string]*Summary, len(summaries))
	for i := range summaries {
		s := summaries[i]
		if s.Online == nil {
			s.Online = make(map[string]bool)
		}
		s.typing = make(map[string]time.Time)
		if prev, ok := old[s.ConversationID]; ok {
			s.Pinned = prev.Pinned
			s.Archived = prev.Archived
		}
		l.convs[s.ConversationID] = &s
	}
	l.resyncQueue = nil
	l.resyncSeen = make(map[string]bool)
}

// ApplyConversationMessage applies the compact list-level event: snippet and
// position always move; unread increments by one only when someone else sent
// the message, the viewer's own echo never touches the counter.
func (l *List) ApplyConversationMessage(ev event.ConversationMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.convs[ev.ConversationID]
	if !ok {
		l.requestResyncLocked(ev.ConversationID)
		return
	}
	s.LastMessage = ev.Message
	s.LastTimestamp = ev.Timestamp
	if ev.Message.SenderID != l.conf.SelfID {
		s.Unread++
	}
}

// ApplyConversationRead applies the aggregate receipt: only the viewer's own
// receipts decrement their badge, floored at zero.
func (l *List) ApplyConversationRead(ev event.ConversationRead) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.convs[ev.ConversationID]
	if !ok {
		l.requestResyncLocked(ev.ConversationID)
		return
	}
	if ev.ReaderID != l.conf.SelfID {
		return
	}
	s.Unread -= ev.ReadCount
	if s.Unread < 0 {
		s.Unread = 0
	}
}

// ApplyPresence flips the online flag in every conversation the user
// participates in. Updates for strangers fall through silently; presence is
// broadcast wide and filtered here.
func (l *List) ApplyPresence(ev event.PresenceUpdate) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, s := range l.convs {
		for _, p := range s.Participants {
			if p == ev.UserID {
				s.Online[ev.UserID] = ev.IsOnline
				break
			}
		}
	}
}

// ApplyTyping sets or clears the typing flag with a TTL so a vanished peer
// cannot leave a stuck indicator.
func (l *List) ApplyTyping(ev event.Typing) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.convs[ev.ConversationID]
	if !ok {
		l.requestResyncLocked(ev.ConversationID)
		return
	}
	if ev.IsTyping {
		s.typing[ev.UserID] = l.conf.Clock().Add(l.conf.TypingTTL)
	} else {
		delete(s.typing, ev.UserID)
	}
}

func (l *List) SetPinned(conversationID string, pinned bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.convs[conversationID]; ok {
		s.Pinned = pinned
	}
}

func (l *List) SetArchived(conversationID string, archived bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.convs[conversationID]; ok {
		s.Archived = archived
	}
}

// Unread returns the badge count for one conversation.
func (l *List) Unread(conversationID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.convs[conversationID]; ok {
		return s.Unread
	}
	return 0
}

// Summaries returns the projection ordered for display: pinned first, then by
// last activity, archived last. Typing sets are resolved against the clock.
func (l *List) Summaries() []Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Summary, 0, len(l.convs))
	for _, s := range l.convs {
		out = append(out, *s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Archived != b.Archived {
			return !a.Archived
		}
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		if a.LastTimestamp != b.LastTimestamp {
			return a.LastTimestamp > b.LastTimestamp
		}
		return a.ConversationID < b.ConversationID
	})
	return out
}

// TakeResyncRequest pops one queued unknown-conversation id, if any. The
// embedding client drains this after every batch of applied events.
func (l *List) TakeResyncRequest() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.resyncQueue) == 0 {
		return "", false
	}
	id := l.resyncQueue[0]
	l.resyncQueue = l.resyncQueue[1:]
	delete(l.resyncSeen, id)
	return id, true
}

func (l *List) requestResyncLocked(conversationID string) {
	if l.resyncSeen[conversationID] {
		return
	}
	l.resyncSeen[conversationID] = true
	l.resyncQueue = append(l.resyncQueue, conversationID)
}
