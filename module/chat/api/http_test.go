package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"IMSync/middleware"
	"IMSync/module/chat/event"
	"IMSync/module/chat/ingest"
	"IMSync/module/chat/model"
	"IMSync/module/chat/presence"
	"IMSync/module/chat/readstate"
	"IMSync/module/chat/store"
)

type noopBroadcaster struct{}

func (noopBroadcaster) RoomMessage(string, event.Message)                         {}
func (noopBroadcaster) UserConversationMessage(string, event.ConversationMessage) {}
func (noopBroadcaster) RoomTyping(string, event.Typing)                           {}
func (noopBroadcaster) RoomMessageRead(string, event.MessageRead)                 {}
func (noopBroadcaster) UserConversationRead(string, event.ConversationRead)       {}
func (noopBroadcaster) PresenceUpdate(event.PresenceUpdate)                       {}

func newTestRouter(t *testing.T) (*gin.Engine, *store.MemStore, *middleware.Verifier) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemStore()
	bc := noopBroadcaster{}
	tracker := presence.NewTracker(presence.Conf{TTL: time.Minute}, bc, nil)
	t.Cleanup(tracker.Close)

	handlers := NewHandlers(st, ingest.NewService(st, bc), readstate.NewService(st, bc), tracker, nil)
	verifier := middleware.NewVerifier("test-secret")

	r := gin.New()
	handlers.Register(r.Group("/api", verifier.Auth()))
	return r, st, verifier
}

func seedConversation(t *testing.T, st *store.MemStore) {
	t.Helper()
	ctx := context.Background()
	if err := st.CreateConversation(ctx, &model.Conversation{
		ID: "c1", Name: "general", Participants: []string{"alice", "bob"},
	}); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	for i := 1; i <= 3; i++ {
		if _, err := st.IncrementAndFetch(ctx, "c1"); err != nil {
			t.Fatalf("advance counter: %v", err)
		}
		if _, err := st.Insert(ctx, &model.Message{
			ID:             fmt.Sprintf("m%d", i),
			ConversationID: "c1",
			SenderID:       "alice",
			Body:           fmt.Sprintf("msg %d", i),
			SeqNo:          int64(i),
			CreatedAt:      int64(1_700_000_000_000 + i),
			ReadBy:         []string{"alice"},
		}); err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}
}

func do(t *testing.T, r *gin.Engine, v *middleware.Verifier, user, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := v.Sign(user, user, time.Minute)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPostMessage(t *testing.T) {
	r, st, v := newTestRouter(t)
	seedConversation(t, st)

	w := do(t, r, v, "bob", "POST", "/api/conversations/c1/messages",
		`{"body":"hello","idempotency_token":"tok-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
	var ack event.Ack
	if err := json.Unmarshal(w.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if !ack.OK || ack.SeqNo != 4 || ack.Token != "tok-1" || ack.ServerID == "" {
		t.Fatalf("ack = %+v", ack)
	}
}

func TestPostMessageForbidden(t *testing.T) {
	r, st, v := newTestRouter(t)
	seedConversation(t, st)

	w := do(t, r, v, "mallory", "POST", "/api/conversations/c1/messages", `{"body":"hi"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestPostMessageUnauthorized(t *testing.T) {
	r, st, _ := newTestRouter(t)
	seedConversation(t, st)

	req := httptest.NewRequest("POST", "/api/conversations/c1/messages", strings.NewReader(`{"body":"hi"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestListMessagesPaging(t *testing.T) {
	r, st, v := newTestRouter(t)
	seedConversation(t, st)

	w := do(t, r, v, "bob", "GET", "/api/conversations/c1/messages?after_seq=1&limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
	var resp struct {
		Messages []wireMessage `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].SeqNo != 2 {
		t.Fatalf("messages = %+v", resp.Messages)
	}
}

func TestMarkReadAndSummaries(t *testing.T) {
	r, st, v := newTestRouter(t)
	seedConversation(t, st)

	w := do(t, r, v, "bob", "GET", "/api/conversations", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var list struct {
		Conversations []conversationSummary `json:"conversations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Conversations) != 1 {
		t.Fatalf("conversations = %+v", list.Conversations)
	}
	c := list.Conversations[0]
	if c.Unread != 3 || c.LastMessage == nil || c.LastMessage.SeqNo != 3 {
		t.Fatalf("summary = %+v", c)
	}

	w = do(t, r, v, "bob", "POST", "/api/conversations/c1/read", `{"all":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
	var marked struct {
		NewlyRead int `json:"newly_read"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &marked); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if marked.NewlyRead != 3 {
		t.Fatalf("newly_read = %d, want 3", marked.NewlyRead)
	}

	w = do(t, r, v, "bob", "GET", "/api/conversations", "")
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Conversations[0].Unread != 0 {
		t.Fatalf("unread after markRead = %d", list.Conversations[0].Unread)
	}
}

func TestCreateConversationAddsCreator(t *testing.T) {
	r, st, v := newTestRouter(t)

	w := do(t, r, v, "carol", "POST", "/api/conversations",
		`{"id":"c2","name":"pair","participants":["dave"]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", w.Code, w.Body)
	}
	conv, err := st.Conversation(context.Background(), "c2")
	if err != nil {
		t.Fatalf("load conversation: %v", err)
	}
	if !conv.HasParticipant("carol") || !conv.HasParticipant("dave") {
		t.Fatalf("participants = %v", conv.Participants)
	}
}

func TestPresenceEndpoint(t *testing.T) {
	r, _, v := newTestRouter(t)

	w := do(t, r, v, "bob", "GET", "/api/presence/ghost", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Online bool `json:"online"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Online {
		t.Fatal("ghost reported online")
	}
}
