package model

import (
	"IMSync/module/chat/event"
)

// Message is the durable message record.
//
// SeqNo is the canonical ordering key: strictly increasing per conversation,
// assigned exactly once by the sequencer, never reordered or reused. Readers
// must order by SeqNo; CreatedAt is wall clock and subject to skew.
type Message struct {
	ID             string             `bson:"_id" json:"id"`
	ConversationID string             `bson:"conversation_id" json:"conversation_id"`
	SenderID       string             `bson:"sender_id" json:"sender_id"`
	SenderName     string             `bson:"sender_name,omitempty" json:"sender_name,omitempty"`
	Body           string             `bson:"body" json:"body"`
	Type           string             `bson:"type,omitempty" json:"type,omitempty"`
	Attachments    []event.Attachment `bson:"attachments,omitempty" json:"attachments,omitempty"`
	SeqNo          int64              `bson:"seq_no" json:"seq_no"`
	CreatedAt      int64              `bson:"created_at" json:"created_at"` // Unix ms
	EditedAt       int64              `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	ReadBy         []string           `bson:"read_by" json:"read_by"` // set semantics, $addToSet only
}

// ReadByUser reports whether user is in the ReadBy set.
func (m *Message) ReadByUser(user string) bool {
	for _, u := range m.ReadBy {
		if u == user {
			return true
		}
	}
	return false
}

// UnreadFor reports whether the message counts as unread for user: someone
// else sent it and user has not read it yet.
func (m *Message) UnreadFor(user string) bool {
	return m.SenderID != user && !m.ReadByUser(user)
}

// ToEvent converts the record into its wire event shape.
func (m *Message) ToEvent() event.Message {
	return event.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Text:           m.Body,
		Type:           m.Type,
		Attachments:    m.Attachments,
		SeqNo:          m.SeqNo,
		Timestamp:      m.CreatedAt,
	}
}
