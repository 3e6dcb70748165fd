package chat

import (
	"context"

	"IMSync/module/chat/event"
	"IMSync/module/chat/ingest"
	errs "IMSync/tools/errs"
)

// Handler handles one client operation kind. Business failures are answered
// with a nack to the offending socket; the returned error is for the server's
// log only.
type Handler interface {
	Kind() event.Kind
	Handle(ctx context.Context, c *Client, payload any) error
}

// Dispatcher routes parsed frames to their handler. The kind set is closed;
// registration of an unknown kind is a programming error caught at startup.
type Dispatcher struct {
	handlers map[event.Kind]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[event.Kind]Handler)}
}

func (d *Dispatcher) Register(h Handler) {
	d.handlers[h.Kind()] = h
}

func (d *Dispatcher) Dispatch(ctx context.Context, c *Client, kind event.Kind, payload any) error {
	h, ok := d.handlers[kind]
	if !ok {
		return errs.ErrValidation.WrapMsg("no handler for frame kind", "kind", kind.String())
	}
	return h.Handle(ctx, c, payload)
}

// ===== join / leave =====

type joinHandler struct{ s *Server }

func (h joinHandler) Kind() event.Kind { return event.KindJoin }

// Join admits the connection to the conversation room after a membership
// check. The ack carries a presence snapshot of the participants so the view
// renders online flags without a second round trip.
func (h joinHandler) Handle(ctx context.Context, c *Client, payload any) error {
	p := payload.(*event.Join)
	if p.ConversationID == "" {
		h.s.nack(c, "join", "", errs.ErrValidation.WrapMsg("conversation_id is required"))
		return nil
	}

	conv, err := h.s.store.Conversation(ctx, p.ConversationID)
	if err != nil {
		h.s.nack(c, "join", "", err)
		return err
	}
	if !conv.HasParticipant(c.UserID) {
		err := errs.ErrAccessDenied.WrapMsg("not a participant", "conversation", p.ConversationID, "user", c.UserID)
		h.s.nack(c, "join", "", err)
		return err
	}

	h.s.rooms.Join(p.ConversationID, c)
	h.s.ack(c, event.Ack{
		OK:     true,
		Op:     "join",
		Online: h.s.presence.OnlineAmong(conv.Participants),
	})
	return nil
}

type leaveHandler struct{ s *Server }

func (h leaveHandler) Kind() event.Kind { return event.KindLeave }

func (h leaveHandler) Handle(_ context.Context, c *Client, payload any) error {
	p := payload.(*event.Leave)
	if p.ConversationID == "" {
		h.s.nack(c, "leave", "", errs.ErrValidation.WrapMsg("conversation_id is required"))
		return nil
	}
	h.s.rooms.Leave(p.ConversationID, c.ConnID)
	h.s.ack(c, event.Ack{OK: true, Op: "leave"})
	return nil
}

// ===== submit =====

type submitHandler struct{ s *Server }

func (h submitHandler) Kind() event.Kind { return event.KindSubmit }

// Submit runs the shared ingestion pipeline. The sender identity comes from
// the authenticated session, never from the payload. The ack echoes the
// caller's idempotency token either way so the client can settle the right
// optimistic entry.
func (h submitHandler) Handle(ctx context.Context, c *Client, payload any) error {
	p := payload.(*event.Submit)

	ack, err := h.s.ingest.Submit(ctx, ingest.SubmitInput{
		ConversationID:   p.ConversationID,
		SenderID:         c.UserID,
		SenderName:       c.UserName,
		Body:             p.Body,
		Type:             p.Type,
		Attachments:      p.Attachments,
		IdempotencyToken: p.IdempotencyToken,
	})
	if err != nil {
		h.s.nack(c, "submit", p.IdempotencyToken, err)
		return err
	}

	h.s.ack(c, event.Ack{
		OK:              true,
		Op:              "submit",
		Token:           ack.Token,
		ServerID:        ack.ServerID,
		SeqNo:           ack.SeqNo,
		ServerTimestamp: ack.ServerTimestamp,
	})
	return nil
}

// ===== typing =====

type typingHandler struct{ s *Server }

func (h typingHandler) Kind() event.Kind { return event.KindTyping }

// Typing is fire-and-forget: no ack, no persistence, the user id is forced to
// the session's identity.
func (h typingHandler) Handle(_ context.Context, c *Client, payload any) error {
	p := payload.(*event.Typing)
	h.s.typing.Typing(p.ConversationID, c.UserID, p.IsTyping)
	return nil
}

// ===== read =====

type readHandler struct{ s *Server }

func (h readHandler) Kind() event.Kind { return event.KindRead }

func (h readHandler) Handle(ctx context.Context, c *Client, payload any) error {
	p := payload.(*event.Read)

	ids := p.MessageIDs
	if p.All {
		ids = nil
	}
	if _, err := h.s.reads.MarkRead(ctx, p.ConversationID, c.UserID, ids); err != nil {
		h.s.nack(c, "read", "", err)
		return err
	}
	h.s.ack(c, event.Ack{OK: true, Op: "read"})
	return nil
}

// ===== heartbeat =====

type heartbeatHandler struct{ s *Server }

func (h heartbeatHandler) Kind() event.Kind { return event.KindHeartbeat }

func (h heartbeatHandler) Handle(_ context.Context, c *Client, _ any) error {
	h.s.conns.Heartbeat(c.ConnID)
	h.s.presence.Heartbeat(c.UserID, c.ConnID)
	return nil
}
