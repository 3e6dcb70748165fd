package readstate

import (
	"context"
	"time"

	"IMSync/module/chat/event"
	"IMSync/module/chat/model"
	"IMSync/module/chat/store"
	errs "IMSync/tools/errs"
)

// Status is the per-message delivery status as derived from the readBy set.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// SenderStatus derives the sender-side tick: delivered until someone other
// than the sender appears in readBy, then read.
func SenderStatus(m *model.Message) Status {
	for _, u := range m.ReadBy {
		if u != m.SenderID {
			return StatusRead
		}
	}
	return StatusDelivered
}

// RecipientStatus derives the recipient-side view: read iff their id is in
// readBy, else sent.
func RecipientStatus(m *model.Message, user string) Status {
	if m.ReadByUser(user) {
		return StatusRead
	}
	return StatusSent
}

// Service maintains readBy sets and unread counts. Broadcaster injected, same
// as ingestion.
type Service struct {
	store store.Store
	bc    event.Broadcaster
	clock func() time.Time
}

func NewService(st store.Store, bc event.Broadcaster) *Service {
	return &Service{store: st, bc: bc, clock: time.Now}
}

func (s *Service) WithClock(clock func() time.Time) *Service { s.clock = clock; return s }

// MarkRead marks the given messages (or every unread message when ids is nil)
// as read by user and returns the count newly marked. Idempotent: an identical
// repeat call marks zero because the unread scan already excludes readBy hits.
//
// Two events leave here with deliberately different granularity: the room gets
// per-message identity for live status ticks, participants' user channels get
// only the aggregate for badge decrements.
func (s *Service) MarkRead(ctx context.Context, conversationID, userID string, ids []string) (int, error) {
	if conversationID == "" || userID == "" {
		return 0, errs.ErrValidation.WrapMsg("conversation_id and user_id are required")
	}

	conv, err := s.store.Conversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conv.HasParticipant(userID) {
		return 0, errs.ErrAccessDenied.WrapMsg("not a participant", "conversation", conversationID, "user", userID)
	}

	targets, err := s.unreadTargets(ctx, conversationID, userID, ids)
	if err != nil {
		return 0, err
	}
	if len(targets) == 0 {
		return 0, nil
	}

	marked := make([]string, 0, len(targets))
	for i := range targets {
		if err := s.store.AddToReadBy(ctx, targets[i].ID, userID); err != nil {
			// Surface the transient error with whatever was already marked;
			// the caller owns retry policy, and set semantics make a retry
			// safe.
			return len(marked), err
		}
		marked = append(marked, targets[i].ID)
	}

	now := s.clock().UnixMilli()
	s.bc.RoomMessageRead(conversationID, event.MessageRead{
		ConversationID: conversationID,
		MessageIDs:     marked,
		ReaderID:       userID,
		ReadAt:         now,
	})
	aggregate := event.ConversationRead{
		ConversationID: conversationID,
		ReaderID:       userID,
		ReadCount:      len(marked),
	}
	for _, p := range conv.Participants {
		s.bc.UserConversationRead(p, aggregate)
	}
	return len(marked), nil
}

// unreadTargets resolves the set of currently unread messages in scope:
// sender != user and user not in readBy, optionally restricted to ids.
func (s *Service) unreadTargets(ctx context.Context, conversationID, userID string, ids []string) ([]model.Message, error) {
	if ids == nil {
		return s.store.UnreadMessages(ctx, conversationID, userID)
	}
	msgs, err := s.store.MessagesByID(ctx, conversationID, ids)
	if err != nil {
		return nil, err
	}
	out := msgs[:0]
	for _, m := range msgs {
		if m.UnreadFor(userID) {
			out = append(out, m)
		}
	}
	return out, nil
}

// CountUnread proxies the store count for the list endpoints.
func (s *Service) CountUnread(ctx context.Context, conversationID, userID string) (int64, error) {
	return s.store.CountUnread(ctx, conversationID, userID)
}
