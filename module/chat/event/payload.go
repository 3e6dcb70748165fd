package event

// Payload shapes, one per Kind. Timestamps are Unix milliseconds everywhere on
// the wire.

type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// ---- client -> server ----

type Join struct {
	ConversationID string `json:"conversation_id"`
}

type Leave struct {
	ConversationID string `json:"conversation_id"`
}

type Submit struct {
	ConversationID   string       `json:"conversation_id"`
	Body             string       `json:"body"`
	Type             string       `json:"type,omitempty"`
	Attachments      []Attachment `json:"attachments,omitempty"`
	IdempotencyToken string       `json:"idempotency_token"`
}

type Read struct {
	ConversationID string   `json:"conversation_id"`
	MessageIDs     []string `json:"message_ids,omitempty"`
	All            bool     `json:"all,omitempty"`
}

type Heartbeat struct{}

// ---- server -> client ----

// Ack answers join and submit operations. Token echoes the caller's
// idempotency token untouched; the server never stores it.
type Ack struct {
	OK              bool     `json:"ok"`
	Op              string   `json:"op"`
	Token           string   `json:"token,omitempty"`
	ServerID        string   `json:"server_id,omitempty"`
	SeqNo           int64    `json:"seq_no,omitempty"`
	ServerTimestamp int64    `json:"server_timestamp,omitempty"`
	Online          []string `json:"online,omitempty"` // presence snapshot on join acks
	Code            int      `json:"code,omitempty"`
	Error           string   `json:"error,omitempty"`
}

type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	SenderID       string       `json:"sender_id"`
	SenderName     string       `json:"sender_name,omitempty"`
	Text           string       `json:"text"`
	Type           string       `json:"type,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	SeqNo          int64        `json:"seq_no"`
	Timestamp      int64        `json:"timestamp"`
}

// ConversationMessage is the compact list-level event delivered on the user
// channel regardless of which conversation is open.
type ConversationMessage struct {
	ConversationID string  `json:"conversation_id"`
	Message        Message `json:"message"`
	Timestamp      int64   `json:"timestamp"`
}

type Typing struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

// MessageRead is room-scoped and names every message it covers so an open
// conversation view can flip the per-message status ticks.
type MessageRead struct {
	ConversationID string   `json:"conversation_id"`
	MessageIDs     []string `json:"message_ids"`
	ReaderID       string   `json:"reader_id"`
	ReadAt         int64    `json:"read_at"`
}

// ConversationRead is the aggregate counterpart on the user channel, used only
// to decrement unread badges.
type ConversationRead struct {
	ConversationID string `json:"conversation_id"`
	ReaderID       string `json:"reader_id"`
	ReadCount      int    `json:"read_count"`
}

type PresenceUpdate struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
	LastSeen int64  `json:"last_seen"`
}

// Broadcaster is the injected fan-out capability. Ingestion, read-state and
// typing take it at construction; nothing reaches for a global. All methods
// are best-effort fire-and-forget: durability comes from persistence, not
// delivery.
type Broadcaster interface {
	RoomMessage(conversationID string, ev Message)
	UserConversationMessage(userID string, ev ConversationMessage)
	RoomTyping(conversationID string, ev Typing)
	RoomMessageRead(conversationID string, ev MessageRead)
	UserConversationRead(userID string, ev ConversationRead)
	PresenceUpdate(ev PresenceUpdate)
}
