package sync

import (
	"math"
	"sort"
	gosync "sync"
	"time"

	"IMSync/module/chat/event"
	errs "IMSync/tools/errs"
	ids "IMSync/tools/ids"
)

// State is the client-side lifecycle of one message entry.
//
//	Sending -> Delivered -> Read
//	Sending -> Failed (ack timeout or explicit error)
//
// "Sent" and "Delivered" collapse into one state here; the visible tick is
// derived from ReadBy, not from a separate transition.
type State int

const (
	StateSending State = iota
	StateDelivered
	StateRead
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSending:
		return "sending"
	case StateDelivered:
		return "delivered"
	case StateRead:
		return "read"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Entry is one row of the conversation view. A Sending/Failed entry is keyed
// by its idempotency token; a confirmed entry by its server id. The ordering
// key is seqNo when known, else the local timestamp.
type Entry struct {
	Token       string
	ServerID    string
	SeqNo       int64
	SenderID    string
	SenderName  string
	Body        string
	Type        string
	Attachments []event.Attachment
	Timestamp   int64 // Unix ms; local clock until confirmed
	State       State
	ReadBy      map[string]bool
}

func (e *Entry) orderKey() int64 {
	if e.SeqNo > 0 {
		return e.SeqNo
	}
	return math.MaxInt64 // pending entries sort after confirmed ones
}

// Conf configures a Timeline. Zero values get normalized; clock and token
// source are injectable for tests.
type Conf struct {
	SelfID     string
	AckTimeout time.Duration    // Sending older than this flips Failed
	Clock      func() time.Time // nil => time.Now
	NewToken   func() string    // nil => snowflake
}

func (c *Conf) norm() {
	if c.AckTimeout <= 0 {
		c.AckTimeout = 10 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.NewToken == nil {
		c.NewToken = ids.GenerateString
	}
}

// Timeline is the single authoritative per-conversation owner of optimistic
// and confirmed message state. Views subscribe to it; nothing else keeps a
// copy. All merges keep the list sorted by the ordering key and keep exactly
// one entry per persisted message no matter how many times it is delivered.
type Timeline struct {
	mu     gosync.Mutex
	convID string
	conf   Conf

	entries  []*Entry
	byToken  map[string]*Entry // Sending/Failed only
	byServer map[string]*Entry // confirmed only
}

func NewTimeline(convID string, conf Conf) *Timeline {
	conf.norm()
	return &Timeline{
		convID:   convID,
		conf:     conf,
		byToken:  make(map[string]*Entry),
		byServer: make(map[string]*Entry),
	}
}

// AppendLocal inserts an optimistic entry immediately and returns it. The
// caller sends the returned token with the submit operation.
func (t *Timeline) AppendLocal(body, msgType string, attachments []event.Attachment) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := &Entry{
		Token:       t.conf.NewToken(),
		SenderID:    t.conf.SelfID,
		Body:        body,
		Type:        msgType,
		Attachments: attachments,
		Timestamp:   t.conf.Clock().UnixMilli(),
		State:       StateSending,
		ReadBy:      map[string]bool{t.conf.SelfID: true},
	}
	t.byToken[e.Token] = e
	t.entries = append(t.entries, e)
	t.resort()
	return *e
}

// ApplyAck merges a direct acknowledgment. Identity is established by token
// first; if the same server id already arrived via room broadcast, the
// optimistic entry is dropped in favor of the confirmed one (one visible
// entry, never two). Acks for entries that already failed are ignored: a
// failed entry is never silently resurrected, a later resync reconciles it.
func (t *Timeline) ApplyAck(token, serverID string, seqNo, serverTimestamp int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byToken[token]
	if !ok {
		return // entry already replaced, or ack re-delivered: no-op
	}
	if e.State == StateFailed {
		return
	}

	if existing, dup := t.byServer[serverID]; dup {
		// broadcast won the race; fold the optimistic entry into it
		t.removeLocked(e)
		if existing.Timestamp == 0 {
			existing.Timestamp = serverTimestamp
		}
		return
	}

	delete(t.byToken, token)
	e.ServerID = serverID
	e.SeqNo = seqNo
	e.Timestamp = serverTimestamp
	e.State = StateDelivered
	t.byServer[serverID] = e
	t.resort()
}

// Fail transitions a Sending entry to Failed (explicit error path).
func (t *Timeline) Fail(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.byToken[token]; ok && e.State == StateSending {
		e.State = StateFailed
	}
}

// FailTimedOut flips every Sending entry older than the ack timeout and
// returns their tokens. The embedding client calls this on a ticker.
func (t *Timeline) FailTimedOut() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.conf.Clock().UnixMilli() - t.conf.AckTimeout.Milliseconds()
	var out []string
	for token, e := range t.byToken {
		if e.State == StateSending && e.Timestamp <= cutoff {
			e.State = StateFailed
			out = append(out, token)
		}
	}
	return out
}

// Retry turns a Failed entry into a brand-new Sending entry with a fresh
// token. The failed entry is removed; it is never resurrected in place.
func (t *Timeline) Retry(token string) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byToken[token]
	if !ok || e.State != StateFailed {
		return Entry{}, errs.ErrNotFound.WrapMsg("no failed entry for token", "token", token)
	}
	t.removeLocked(e)

	re := &Entry{
		Token:       t.conf.NewToken(),
		SenderID:    t.conf.SelfID,
		Body:        e.Body,
		Type:        e.Type,
		Attachments: e.Attachments,
		Timestamp:   t.conf.Clock().UnixMilli(),
		State:       StateSending,
		ReadBy:      map[string]bool{t.conf.SelfID: true},
	}
	t.byToken[re.Token] = re
	t.entries = append(t.entries, re)
	t.resort()
	return *re, nil
}

// ApplyMessage merges a room-broadcast message. Repeated delivery of the same
// server id is a no-op merge, because a message legitimately arrives via both
// the direct ack and the room broadcast.
func (t *Timeline) ApplyMessage(ev event.Message) {
	if ev.ConversationID != t.convID {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.byServer[ev.ID]; dup {
		return
	}

	e := &Entry{
		ServerID:   ev.ID,
		SeqNo:      ev.SeqNo,
		SenderID:   ev.SenderID,
		SenderName: ev.SenderName,
		Body:       ev.Text,
		Type:       ev.Type,
		Attachments: ev.Attachments,
		Timestamp:  ev.Timestamp,
		State:      StateDelivered,
		ReadBy:     map[string]bool{ev.SenderID: true},
	}
	t.byServer[ev.ID] = e
	t.entries = append(t.entries, e)
	t.resort()
}

// ApplyRead merges a read receipt. An empty message-id list means the
// conversation is fully read as of now: every confirmed entry gets the reader.
func (t *Timeline) ApplyRead(ev event.MessageRead) {
	if ev.ConversationID != t.convID {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	mark := func(e *Entry) {
		if e.ReadBy == nil {
			e.ReadBy = make(map[string]bool)
		}
		e.ReadBy[ev.ReaderID] = true
		if e.SenderID == t.conf.SelfID && ev.ReaderID != t.conf.SelfID && e.State == StateDelivered {
			e.State = StateRead
		}
	}

	if len(ev.MessageIDs) == 0 {
		for _, e := range t.byServer {
			mark(e)
		}
		return
	}
	for _, id := range ev.MessageIDs {
		if e, ok := t.byServer[id]; ok {
			mark(e)
		}
	}
}

// Resync replaces all confirmed state with a fresh server fetch. In-flight
// Sending entries survive (their ack may still arrive); Failed entries are
// dropped, because the fetch is the authoritative answer to whether their
// message made it: if it did, it is in msgs under its server id.
func (t *Timeline) Resync(msgs []event.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var keep []*Entry
	for _, e := range t.entries {
		if e.State == StateSending {
			keep = append(keep, e)
		} else if e.Token != "" {
			delete(t.byToken, e.Token)
		}
	}
	t.entries = keep
	t.byServer = make(map[string]*Entry)

	for _, ev := range msgs {
		if ev.ConversationID != t.convID && ev.ConversationID != "" {
			continue
		}
		if _, dup := t.byServer[ev.ID]; dup {
			continue
		}
		e := &Entry{
			ServerID:   ev.ID,
			SeqNo:      ev.SeqNo,
			SenderID:   ev.SenderID,
			SenderName: ev.SenderName,
			Body:       ev.Text,
			Type:       ev.Type,
			Attachments: ev.Attachments,
			Timestamp:  ev.Timestamp,
			State:      StateDelivered,
			ReadBy:     map[string]bool{ev.SenderID: true},
		}
		t.byServer[ev.ID] = e
		t.entries = append(t.entries, e)
	}
	t.resort()
}

// Entries returns a sorted snapshot.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	return out
}

// removeLocked drops the entry from the slice and both indexes.
func (t *Timeline) removeLocked(e *Entry) {
	if e.Token != "" {
		delete(t.byToken, e.Token)
	}
	if e.ServerID != "" {
		delete(t.byServer, e.ServerID)
	}
	for i, x := range t.entries {
		if x == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
}

func (t *Timeline) resort() {
	sort.SliceStable(t.entries, func(i, j int) bool {
		a, b := t.entries[i], t.entries[j]
		if a.orderKey() != b.orderKey() {
			return a.orderKey() < b.orderKey()
		}
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.Token < b.Token
	})
}
