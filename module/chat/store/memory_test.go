package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"IMSync/module/chat/model"
	errs "IMSync/tools/errs"
)

func seedConv(t *testing.T, s *MemStore, id string, participants ...string) {
	t.Helper()
	if err := s.CreateConversation(context.Background(), &model.Conversation{
		ID: id, Participants: participants,
	}); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
}

func TestIncrementAndFetchConcurrent(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	const workers = 16
	const perWorker = 50

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				n, err := s.IncrementAndFetch(ctx, "c1")
				if err != nil {
					t.Errorf("IncrementAndFetch: %v", err)
					return
				}
				mu.Lock()
				if seen[n] {
					t.Errorf("seq %d issued twice", n)
				}
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d distinct seqs, got %d", workers*perWorker, len(seen))
	}
	for i := int64(1); i <= workers*perWorker; i++ {
		if !seen[i] {
			t.Fatalf("seq %d missing (gap under pure increment)", i)
		}
	}

	// independent counter per conversation
	n, _ := s.IncrementAndFetch(ctx, "c2")
	if n != 1 {
		t.Fatalf("c2 counter should start at 1, got %d", n)
	}
}

func TestInsertRejectsDuplicateSeq(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if _, err := s.Insert(ctx, &model.Message{ID: "m1", ConversationID: "c1", SeqNo: 5}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.Insert(ctx, &model.Message{ID: "m2", ConversationID: "c1", SeqNo: 5}); err == nil {
		t.Fatal("duplicate seq accepted")
	}
	if _, err := s.Insert(ctx, &model.Message{ID: "m1", ConversationID: "c1", SeqNo: 6}); err == nil {
		t.Fatal("duplicate id accepted")
	}
}

func TestAddToReadByIdempotent(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if _, err := s.Insert(ctx, &model.Message{
		ID: "m1", ConversationID: "c1", SenderID: "alice", SeqNo: 1, ReadBy: []string{"alice"},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.AddToReadBy(ctx, "m1", "bob"); err != nil {
			t.Fatalf("AddToReadBy: %v", err)
		}
	}
	ms, err := s.MessagesByID(ctx, "c1", []string{"m1"})
	if err != nil {
		t.Fatalf("MessagesByID: %v", err)
	}
	if got := len(ms[0].ReadBy); got != 2 {
		t.Fatalf("read_by should stay a set, got %v", ms[0].ReadBy)
	}

	if err := s.AddToReadBy(ctx, "nope", "bob"); !errs.ErrNotFound.Is(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCountUnreadMatchesScan(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	seedConv(t, s, "c1", "alice", "bob")

	for i := 1; i <= 5; i++ {
		sender := "alice"
		if i%2 == 0 {
			sender = "bob"
		}
		if _, err := s.Insert(ctx, &model.Message{
			ID:             fmt.Sprintf("m%d", i),
			ConversationID: "c1",
			SenderID:       sender,
			SeqNo:          int64(i),
			ReadBy:         []string{sender},
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	// bob sent m2 and m4, so alice has 2 own + 3 from bob... alice unread = alice's
	// unread of alice-view: sender != alice and alice not in readBy -> m2, m4.
	n, err := s.CountUnread(ctx, "c1", "alice")
	if err != nil {
		t.Fatalf("CountUnread: %v", err)
	}
	if n != 2 {
		t.Fatalf("alice unread = %d, want 2", n)
	}

	unread, err := s.UnreadMessages(ctx, "c1", "bob")
	if err != nil {
		t.Fatalf("UnreadMessages: %v", err)
	}
	if len(unread) != 3 {
		t.Fatalf("bob unread = %d, want 3", len(unread))
	}
	for i := 1; i < len(unread); i++ {
		if unread[i].SeqNo <= unread[i-1].SeqNo {
			t.Fatalf("unread list not seq-ordered: %v", unread)
		}
	}

	_ = s.AddToReadBy(ctx, unread[0].ID, "bob")
	n, _ = s.CountUnread(ctx, "c1", "bob")
	if n != 2 {
		t.Fatalf("bob unread after one read = %d, want 2", n)
	}
}

func TestListMessagesPaging(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		if _, err := s.Insert(ctx, &model.Message{
			ID: fmt.Sprintf("m%d", i), ConversationID: "c1", SenderID: "alice", SeqNo: int64(i),
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	page, err := s.ListMessages(ctx, "c1", 4, 3)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(page) != 3 || page[0].SeqNo != 5 || page[2].SeqNo != 7 {
		t.Fatalf("page = %+v, want seqs 5..7", page)
	}

	all, _ := s.ListMessages(ctx, "c1", 0, 0)
	if len(all) != 10 {
		t.Fatalf("full list = %d, want 10", len(all))
	}
}

func TestConversationLookup(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	seedConv(t, s, "c1", "alice", "bob")

	c, err := s.Conversation(ctx, "c1")
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if !c.HasParticipant("alice") || c.HasParticipant("mallory") {
		t.Fatalf("participant check broken: %+v", c)
	}

	if _, err := s.Conversation(ctx, "missing"); !errs.ErrNotFound.Is(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	list, err := s.ListConversations(ctx, "bob")
	if err != nil || len(list) != 1 {
		t.Fatalf("ListConversations = %v, %v", list, err)
	}
}

func TestLastMessage(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	last, err := s.LastMessage(ctx, "empty")
	if err != nil || last != nil {
		t.Fatalf("LastMessage on empty conversation = %v, %v", last, err)
	}

	for i := 1; i <= 3; i++ {
		if _, err := s.Insert(ctx, &model.Message{
			ID: fmt.Sprintf("m%d", i), ConversationID: "c1", SenderID: "alice", SeqNo: int64(i),
		}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	last, err = s.LastMessage(ctx, "c1")
	if err != nil {
		t.Fatalf("LastMessage: %v", err)
	}
	if last == nil || last.ID != "m3" || last.SeqNo != 3 {
		t.Fatalf("last = %+v", last)
	}
}
