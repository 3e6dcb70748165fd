package store

import (
	"context"

	"IMSync/module/chat/model"
)

// Store is the persistence collaborator contract. The engine depends on two
// guarantees only: IncrementAndFetch is atomic and strictly increasing per
// conversation, and AddToReadBy has set semantics (repeat adds are no-ops).
// Everything else is plain reads.
//
// Insert is fire-once: the engine never retries a write, because a lost
// acknowledgment is healed by a later client resync, not by a second insert.
type Store interface {
	// IncrementAndFetch atomically advances the conversation's sequence
	// counter and returns the new value. Gaps are acceptable; duplicates and
	// reuse are not.
	IncrementAndFetch(ctx context.Context, conversationID string) (int64, error)

	// Insert persists the message and returns the stored record.
	Insert(ctx context.Context, m *model.Message) (*model.Message, error)

	// AddToReadBy adds user to the message's readBy set. Idempotent.
	AddToReadBy(ctx context.Context, messageID, userID string) error

	// CountUnread counts messages in the conversation with a different sender
	// and without userID in readBy.
	CountUnread(ctx context.Context, conversationID, userID string) (int64, error)

	// UnreadMessages returns those messages, ordered by seqNo ascending.
	UnreadMessages(ctx context.Context, conversationID, userID string) ([]model.Message, error)

	// MessagesByID returns the named messages of one conversation, ordered by
	// seqNo ascending. Missing ids are skipped, not errors.
	MessagesByID(ctx context.Context, conversationID string, ids []string) ([]model.Message, error)

	// ListMessages pages a conversation by seq range, ordered by seqNo
	// ascending. afterSeq=0 starts from the beginning.
	ListMessages(ctx context.Context, conversationID string, afterSeq int64, limit int64) ([]model.Message, error)

	// LastMessage returns the highest-seq message of the conversation, nil
	// when it has none.
	LastMessage(ctx context.Context, conversationID string) (*model.Message, error)

	// Conversation loads one conversation, errs.ErrNotFound when absent.
	Conversation(ctx context.Context, id string) (*model.Conversation, error)

	// ListConversations returns every conversation userID participates in.
	ListConversations(ctx context.Context, userID string) ([]model.Conversation, error)

	// CreateConversation inserts a conversation document.
	CreateConversation(ctx context.Context, c *model.Conversation) error
}
