package store

import (
	"context"
	"sort"
	"sync"

	"IMSync/module/chat/model"
	errs "IMSync/tools/errs"
)

// MemStore is the in-memory twin of MongoStore, used by tests and single-node
// dev runs. Same contract, same error taxonomy, no I/O.
type MemStore struct {
	mu       sync.RWMutex
	counters map[string]int64
	messages map[string]*model.Message            // id -> message
	byConv   map[string]map[int64]*model.Message  // conv -> seq -> message
	convs    map[string]*model.Conversation
}

func NewMemStore() *MemStore {
	return &MemStore{
		counters: make(map[string]int64),
		messages: make(map[string]*model.Message),
		byConv:   make(map[string]map[int64]*model.Message),
		convs:    make(map[string]*model.Conversation),
	}
}

func (s *MemStore) IncrementAndFetch(_ context.Context, conversationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[conversationID]++
	return s.counters[conversationID], nil
}

func (s *MemStore) Insert(_ context.Context, m *model.Message) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[m.ID]; ok {
		return nil, errs.ErrPermanent.WrapMsg("duplicate message id", "message", m.ID)
	}
	if s.byConv[m.ConversationID] == nil {
		s.byConv[m.ConversationID] = make(map[int64]*model.Message)
	}
	if _, ok := s.byConv[m.ConversationID][m.SeqNo]; ok {
		return nil, errs.ErrPermanent.WrapMsg("duplicate seq", "conversation", m.ConversationID, "seq", m.SeqNo)
	}
	cp := *m
	cp.ReadBy = append([]string(nil), m.ReadBy...)
	s.messages[cp.ID] = &cp
	s.byConv[cp.ConversationID][cp.SeqNo] = &cp
	out := cp
	return &out, nil
}

func (s *MemStore) AddToReadBy(_ context.Context, messageID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return errs.ErrNotFound.WrapMsg("message absent", "message", messageID)
	}
	if !m.ReadByUser(userID) {
		m.ReadBy = append(m.ReadBy, userID)
	}
	return nil
}

func (s *MemStore) CountUnread(_ context.Context, conversationID, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, m := range s.byConv[conversationID] {
		if m.UnreadFor(userID) {
			n++
		}
	}
	return n, nil
}

func (s *MemStore) UnreadMessages(_ context.Context, conversationID, userID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Message
	for _, m := range s.byConv[conversationID] {
		if m.UnreadFor(userID) {
			cp := *m
			cp.ReadBy = append([]string(nil), m.ReadBy...)
			out = append(out, cp)
		}
	}
	sortBySeq(out)
	return out, nil
}

func (s *MemStore) MessagesByID(_ context.Context, conversationID string, ids []string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Message
	for _, id := range ids {
		if m, ok := s.messages[id]; ok && m.ConversationID == conversationID {
			cp := *m
			cp.ReadBy = append([]string(nil), m.ReadBy...)
			out = append(out, cp)
		}
	}
	sortBySeq(out)
	return out, nil
}

func (s *MemStore) ListMessages(_ context.Context, conversationID string, afterSeq int64, limit int64) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Message
	for _, m := range s.byConv[conversationID] {
		if m.SeqNo > afterSeq {
			cp := *m
			cp.ReadBy = append([]string(nil), m.ReadBy...)
			out = append(out, cp)
		}
	}
	sortBySeq(out)
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) LastMessage(_ context.Context, conversationID string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last *model.Message
	for _, m := range s.byConv[conversationID] {
		if last == nil || m.SeqNo > last.SeqNo {
			last = m
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	cp.ReadBy = append([]string(nil), last.ReadBy...)
	return &cp, nil
}

func (s *MemStore) Conversation(_ context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("conversation absent", "conversation", id)
	}
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	return &cp, nil
}

func (s *MemStore) ListConversations(_ context.Context, userID string) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Conversation
	for _, c := range s.convs {
		if c.HasParticipant(userID) {
			cp := *c
			cp.Participants = append([]string(nil), c.Participants...)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) CreateConversation(_ context.Context, c *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[c.ID]; ok {
		return errs.ErrPermanent.WrapMsg("duplicate conversation id", "conversation", c.ID)
	}
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	s.convs[c.ID] = &cp
	return nil
}

func sortBySeq(ms []model.Message) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].SeqNo < ms[j].SeqNo })
}
