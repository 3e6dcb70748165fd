package ingest

import (
	"context"
	"time"

	"IMSync/module/chat/event"
	"IMSync/module/chat/model"
	"IMSync/module/chat/store"
	errs "IMSync/tools/errs"
	ids "IMSync/tools/ids"
)

// Service is the message ingestion pipeline. The live ws handler and the
// fallback HTTP handler both call Submit; there is exactly one code path from
// submission to persistence to fan-out.
type Service struct {
	store store.Store
	bc    event.Broadcaster
	newID func() string
	clock func() time.Time
}

func NewService(st store.Store, bc event.Broadcaster) *Service {
	return &Service{
		store: st,
		bc:    bc,
		newID: ids.GenerateString,
		clock: time.Now,
	}
}

// WithClock and WithIDs are test hooks.
func (s *Service) WithClock(clock func() time.Time) *Service { s.clock = clock; return s }
func (s *Service) WithIDs(newID func() string) *Service      { s.newID = newID; return s }

type SubmitInput struct {
	ConversationID   string
	SenderID         string
	SenderName       string
	Body             string
	Type             string
	Attachments      []event.Attachment
	IdempotencyToken string
}

// Ack correlates the persisted message back to the caller's optimistic entry.
// Token is echoed verbatim; the server does not persist or dedupe by it, so a
// re-delivered confirmation must be tolerated by the reconciliation layer.
type Ack struct {
	ServerID        string
	SeqNo           int64
	ServerTimestamp int64
	Token           string
}

// Submit validates, sequences, persists and fans out one message.
//
//  1. sender must be a participant, else AccessDenied
//  2. atomic increment-and-fetch yields seqNo
//  3. persist with readBy = {sender}
//  4. ack to the caller, then broadcast
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Ack, error) {
	if in.ConversationID == "" || in.SenderID == "" {
		return nil, errs.ErrValidation.WrapMsg("conversation_id and sender_id are required")
	}
	if in.Body == "" && len(in.Attachments) == 0 {
		return nil, errs.ErrValidation.WrapMsg("empty message", "conversation", in.ConversationID)
	}

	conv, err := s.store.Conversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(in.SenderID) {
		return nil, errs.ErrAccessDenied.WrapMsg("not a participant", "conversation", in.ConversationID, "user", in.SenderID)
	}

	seqNo, err := s.store.IncrementAndFetch(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}

	now := s.clock().UnixMilli()
	msg := &model.Message{
		ID:             s.newID(),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		SenderName:     in.SenderName,
		Body:           in.Body,
		Type:           in.Type,
		Attachments:    in.Attachments,
		SeqNo:          seqNo,
		CreatedAt:      now,
		ReadBy:         []string{in.SenderID},
	}
	stored, err := s.store.Insert(ctx, msg)
	if err != nil {
		return nil, err
	}

	s.fanout(conv, stored)

	return &Ack{
		ServerID:        stored.ID,
		SeqNo:           stored.SeqNo,
		ServerTimestamp: stored.CreatedAt,
		Token:           in.IdempotencyToken,
	}, nil
}

// fanout pushes the persisted message to both audiences: room members get the
// full payload, every participant's user channel gets the compact list event.
// Best effort, no queue; a reconnecting client resyncs by re-fetching.
func (s *Service) fanout(conv *model.Conversation, m *model.Message) {
	ev := m.ToEvent()
	s.bc.RoomMessage(conv.ID, ev)

	compact := event.ConversationMessage{
		ConversationID: conv.ID,
		Message:        ev,
		Timestamp:      m.CreatedAt,
	}
	for _, p := range conv.Participants {
		s.bc.UserConversationMessage(p, compact)
	}
}
