package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"IMSync/middleware"
	"IMSync/module/chat/event"
	"IMSync/module/chat/ingest"
	"IMSync/module/chat/model"
	"IMSync/module/chat/presence"
	"IMSync/module/chat/readstate"
	"IMSync/module/chat/store"
	errs "IMSync/tools/errs"
)

// PresenceLookup answers cross-node presence queries, backed by the redis
// mirror. Nil disables the cross-node fallback.
type PresenceLookup interface {
	Lookup(ctx context.Context, userID string) (string, error)
}

// Handlers is the HTTP fallback surface. It drives the same services as the
// websocket gateway: a message posted here fans out to live sockets exactly
// like one submitted over a socket, and the same events reach the same
// audiences.
type Handlers struct {
	store    store.Store
	ingest   *ingest.Service
	reads    *readstate.Service
	presence *presence.Tracker
	lookup   PresenceLookup
}

func NewHandlers(st store.Store, ing *ingest.Service, reads *readstate.Service, tracker *presence.Tracker, lookup PresenceLookup) *Handlers {
	return &Handlers{store: st, ingest: ing, reads: reads, presence: tracker, lookup: lookup}
}

// Register mounts the routes on an authenticated group.
func (h *Handlers) Register(g *gin.RouterGroup) {
	g.GET("/conversations", h.listConversations)
	g.POST("/conversations", h.createConversation)
	g.GET("/conversations/:id/messages", h.listMessages)
	g.POST("/conversations/:id/messages", h.postMessage)
	g.POST("/conversations/:id/read", h.markRead)
	g.GET("/presence/:user", h.presenceOf)
}

type conversationSummary struct {
	ConversationID string         `json:"conversation_id"`
	Name           string         `json:"name,omitempty"`
	Participants   []string       `json:"participants"`
	LastMessage    *event.Message `json:"last_message,omitempty"`
	Unread         int64          `json:"unread"`
	Online         []string       `json:"online,omitempty"`
}

// listConversations seeds the client's conversation list: one summary per
// conversation with snippet, unread count and a local presence snapshot.
func (h *Handlers) listConversations(ctx *gin.Context) {
	id := middleware.From(ctx)

	convs, err := h.store.ListConversations(ctx.Request.Context(), id.UserID)
	if err != nil {
		fail(ctx, err)
		return
	}

	out := make([]conversationSummary, 0, len(convs))
	for _, c := range convs {
		unread, err := h.store.CountUnread(ctx.Request.Context(), c.ID, id.UserID)
		if err != nil {
			fail(ctx, err)
			return
		}
		sum := conversationSummary{
			ConversationID: c.ID,
			Name:           c.Name,
			Participants:   c.Participants,
			Unread:         unread,
			Online:         h.presence.OnlineAmong(c.Participants),
		}
		if last, err := h.store.LastMessage(ctx.Request.Context(), c.ID); err == nil && last != nil {
			ev := last.ToEvent()
			sum.LastMessage = &ev
		}
		out = append(out, sum)
	}
	ctx.JSON(http.StatusOK, gin.H{"conversations": out})
}

type createConversationReq struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Participants []string `json:"participants"`
}

func (h *Handlers) createConversation(ctx *gin.Context) {
	id := middleware.From(ctx)

	var req createConversationReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, errs.ErrValidation.WrapMsg("malformed body", "err", err.Error()))
		return
	}
	if req.ID == "" || len(req.Participants) == 0 {
		fail(ctx, errs.ErrValidation.WrapMsg("id and participants are required"))
		return
	}

	conv := newConversation(req, id.UserID)
	if err := h.store.CreateConversation(ctx.Request.Context(), conv); err != nil {
		fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"conversation_id": conv.ID})
}

type wireMessage struct {
	event.Message
	ReadBy []string `json:"read_by,omitempty"`
}

// listMessages pages a conversation by seq range; the resync fetch of the
// reconciliation contract. Participants only.
func (h *Handlers) listMessages(ctx *gin.Context) {
	id := middleware.From(ctx)
	convID := ctx.Param("id")

	conv, err := h.store.Conversation(ctx.Request.Context(), convID)
	if err != nil {
		fail(ctx, err)
		return
	}
	if !conv.HasParticipant(id.UserID) {
		fail(ctx, errs.ErrAccessDenied.WrapMsg("not a participant", "conversation", convID, "user", id.UserID))
		return
	}

	afterSeq, _ := strconv.ParseInt(ctx.Query("after_seq"), 10, 64)
	limit, _ := strconv.ParseInt(ctx.DefaultQuery("limit", "100"), 10, 64)

	msgs, err := h.store.ListMessages(ctx.Request.Context(), convID, afterSeq, limit)
	if err != nil {
		fail(ctx, err)
		return
	}
	out := make([]wireMessage, 0, len(msgs))
	for i := range msgs {
		out = append(out, wireMessage{Message: msgs[i].ToEvent(), ReadBy: msgs[i].ReadBy})
	}
	ctx.JSON(http.StatusOK, gin.H{"conversation_id": convID, "messages": out})
}

// postMessage is the HTTP twin of the submit frame. The response body is the
// same ack shape the socket would deliver.
func (h *Handlers) postMessage(ctx *gin.Context) {
	id := middleware.From(ctx)

	var req event.Submit
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, errs.ErrValidation.WrapMsg("malformed body", "err", err.Error()))
		return
	}

	ack, err := h.ingest.Submit(ctx.Request.Context(), ingest.SubmitInput{
		ConversationID:   ctx.Param("id"),
		SenderID:         id.UserID,
		SenderName:       id.Name,
		Body:             req.Body,
		Type:             req.Type,
		Attachments:      req.Attachments,
		IdempotencyToken: req.IdempotencyToken,
	})
	if err != nil {
		fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, event.Ack{
		OK:              true,
		Op:              "submit",
		Token:           ack.Token,
		ServerID:        ack.ServerID,
		SeqNo:           ack.SeqNo,
		ServerTimestamp: ack.ServerTimestamp,
	})
}

func (h *Handlers) markRead(ctx *gin.Context) {
	id := middleware.From(ctx)

	var req event.Read
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, errs.ErrValidation.WrapMsg("malformed body", "err", err.Error()))
		return
	}
	ids := req.MessageIDs
	if req.All {
		ids = nil
	}

	n, err := h.reads.MarkRead(ctx.Request.Context(), ctx.Param("id"), id.UserID, ids)
	if err != nil {
		fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"newly_read": n})
}

// presenceOf answers from the local tracker first; when the user is not on
// this gateway the redis mirror says whether another one holds them.
func (h *Handlers) presenceOf(ctx *gin.Context) {
	user := ctx.Param("user")
	online := h.presence.IsOnline(user)
	resp := gin.H{
		"user_id":   user,
		"online":    online,
		"last_seen": h.presence.LastSeen(user),
	}
	if !online && h.lookup != nil {
		if gw, err := h.lookup.Lookup(ctx.Request.Context(), user); err == nil && gw != "" {
			resp["online"] = true
			resp["gateway"] = gw
		}
	}
	ctx.JSON(http.StatusOK, resp)
}

// newConversation builds the document, forcing the creator into the
// participant set.
func newConversation(req createConversationReq, creator string) *model.Conversation {
	participants := req.Participants
	has := false
	for _, p := range participants {
		if p == creator {
			has = true
			break
		}
	}
	if !has {
		participants = append(participants, creator)
	}
	return &model.Conversation{
		ID:           req.ID,
		Name:         req.Name,
		Participants: participants,
		CreatedAt:    time.Now().UnixMilli(),
	}
}

func fail(ctx *gin.Context, err error) {
	ctx.JSON(httpStatus(err), gin.H{"code": errs.Code(err), "error": errs.Msg(err)})
}

func httpStatus(err error) int {
	switch errs.Code(err) {
	case errs.CodeValidation:
		return http.StatusBadRequest
	case errs.CodeAccessDenied:
		return http.StatusForbidden
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodeTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
