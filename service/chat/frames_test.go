package chat

import (
	"encoding/json"
	"testing"

	"IMSync/module/chat/event"
	errs "IMSync/tools/errs"
)

func TestParseFrameSubmit(t *testing.T) {
	raw := []byte(`{"kind":"submit","payload":{"conversation_id":"c1","body":"hi","idempotency_token":"tok-1"}}`)

	kind, payload, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if kind != event.KindSubmit {
		t.Fatalf("kind = %v, want submit", kind)
	}
	p, ok := payload.(*event.Submit)
	if !ok {
		t.Fatalf("payload type = %T", payload)
	}
	if p.ConversationID != "c1" || p.Body != "hi" || p.IdempotencyToken != "tok-1" {
		t.Fatalf("payload = %+v", p)
	}
}

func TestParseFrameEmptyPayload(t *testing.T) {
	kind, payload, err := ParseFrame([]byte(`{"kind":"heartbeat"}`))
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if kind != event.KindHeartbeat {
		t.Fatalf("kind = %v, want heartbeat", kind)
	}
	if _, ok := payload.(*event.Heartbeat); !ok {
		t.Fatalf("payload type = %T", payload)
	}
}

func TestParseFrameRejectsUnknownAndServerKinds(t *testing.T) {
	for _, raw := range []string{
		`{"kind":"shrug"}`,
		`{"kind":"ack"}`,
		`{"kind":"presence:update"}`,
		`{"kind":"conversation:message"}`,
	} {
		if _, _, err := ParseFrame([]byte(raw)); !errs.ErrValidation.Is(err) {
			t.Fatalf("frame %s: expected validation error, got %v", raw, err)
		}
	}
}

func TestParseFrameMalformed(t *testing.T) {
	if _, _, err := ParseFrame([]byte(`not json`)); !errs.ErrValidation.Is(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, _, err := ParseFrame([]byte(`{"kind":"submit","payload":[1,2]}`)); !errs.ErrValidation.Is(err) {
		t.Fatalf("expected validation error for wrong payload shape, got %v", err)
	}
}

func TestMarshalFrameRoundTrip(t *testing.T) {
	frame, err := MarshalFrame(event.KindMessage, event.Message{
		ID: "m1", ConversationID: "c1", SenderID: "alice", Text: "hi", SeqNo: 3, Timestamp: 99,
	})
	if err != nil {
		t.Fatalf("MarshalFrame: %v", err)
	}

	var f Frame
	if err := json.Unmarshal(frame, &f); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if f.Kind != event.KindMessage {
		t.Fatalf("kind = %v, want message", f.Kind)
	}
	var m event.Message
	if err := json.Unmarshal(f.Payload, &m); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if m.ID != "m1" || m.SeqNo != 3 {
		t.Fatalf("payload = %+v", m)
	}
}
