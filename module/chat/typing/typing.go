package typing

import (
	"IMSync/module/chat/event"
)

// Broadcaster relays ephemeral typing indicators to the conversation room.
// Nothing is persisted and nothing is acknowledged; a lost indicator simply
// never renders.
type Broadcaster struct {
	bc event.Broadcaster
}

func NewBroadcaster(bc event.Broadcaster) *Broadcaster {
	return &Broadcaster{bc: bc}
}

func (b *Broadcaster) Typing(conversationID, userID string, isTyping bool) {
	if conversationID == "" || userID == "" {
		return
	}
	b.bc.RoomTyping(conversationID, event.Typing{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
	})
}
