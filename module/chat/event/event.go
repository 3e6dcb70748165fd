package event

import (
	"encoding/json"

	errs "IMSync/tools/errs"
)

// Kind is the closed enumeration of frame kinds on the wire. Client-to-server
// operations and server-to-client events share the one enum so the dispatcher
// and the reconciliation layer switch over the same set. Each kind has exactly
// one payload struct; there is no free-form dispatch on raw strings.
type Kind int

const (
	KindUnknown Kind = iota

	// client -> server
	KindJoin
	KindLeave
	KindSubmit
	KindTyping
	KindRead
	KindHeartbeat

	// server -> client
	KindAck
	KindMessage
	KindConversationMessage
	KindMessageRead
	KindConversationRead
	KindPresenceUpdate
)

var kindNames = map[Kind]string{
	KindJoin:                "join",
	KindLeave:               "leave",
	KindSubmit:              "submit",
	KindTyping:              "typing",
	KindRead:                "read",
	KindHeartbeat:           "heartbeat",
	KindAck:                 "ack",
	KindMessage:             "message",
	KindConversationMessage: "conversation:message",
	KindMessageRead:         "message_read",
	KindConversationRead:    "conversation:read",
	KindPresenceUpdate:      "presence:update",
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, n := range kindNames {
		m[n] = k
	}
	return m
}()

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// ParseKind maps a wire name back into the enum. Unknown names stay
// KindUnknown so a malformed frame is rejected in one place.
func ParseKind(name string) Kind {
	return kindByName[name]
}

func (k Kind) MarshalJSON() ([]byte, error) {
	n, ok := kindNames[k]
	if !ok {
		return nil, errs.New("marshal unknown frame kind", "kind", int(k))
	}
	return json.Marshal(n)
}

func (k *Kind) UnmarshalJSON(b []byte) error {
	var n string
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*k = ParseKind(n)
	return nil
}
