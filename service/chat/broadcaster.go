package chat

import (
	"IMSync/logger"
	"IMSync/module/chat/event"
)

// Relay forwards marshaled frames to peer gateways. Nil means single-node
// operation.
type Relay interface {
	PublishRoom(conversationID string, frame []byte)
	PublishUser(userID string, frame []byte)
	PublishAll(frame []byte)
}

// LocalBroadcaster implements event.Broadcaster over the in-process room and
// connection registries, then mirrors every frame to the relay so peer
// gateways can deliver to their own sockets. Each event is marshaled exactly
// once no matter how many sockets receive it.
//
// Room events go to connections with the conversation open; user events go to
// every socket the user holds; presence goes to everyone.
type LocalBroadcaster struct {
	rooms *Rooms
	conns *ConnManager
	fan   *Fanout
	relay Relay // may be nil
}

func NewLocalBroadcaster(rooms *Rooms, conns *ConnManager, fan *Fanout, relay Relay) *LocalBroadcaster {
	return &LocalBroadcaster{rooms: rooms, conns: conns, fan: fan, relay: relay}
}

func (b *LocalBroadcaster) RoomMessage(conversationID string, ev event.Message) {
	b.room(conversationID, event.KindMessage, ev)
}

func (b *LocalBroadcaster) UserConversationMessage(userID string, ev event.ConversationMessage) {
	b.user(userID, event.KindConversationMessage, ev)
}

func (b *LocalBroadcaster) RoomTyping(conversationID string, ev event.Typing) {
	b.room(conversationID, event.KindTyping, ev)
}

func (b *LocalBroadcaster) RoomMessageRead(conversationID string, ev event.MessageRead) {
	b.room(conversationID, event.KindMessageRead, ev)
}

func (b *LocalBroadcaster) UserConversationRead(userID string, ev event.ConversationRead) {
	b.user(userID, event.KindConversationRead, ev)
}

func (b *LocalBroadcaster) PresenceUpdate(ev event.PresenceUpdate) {
	frame, ok := b.marshal(event.KindPresenceUpdate, ev)
	if !ok {
		return
	}
	b.fan.Broadcast(b.conns.AllClients(), frame)
	if b.relay != nil {
		b.relay.PublishAll(frame)
	}
}

// DeliverRoom, DeliverUser and DeliverAll are the relay's inbound path: local
// delivery only, never republished, or two gateways would bounce frames
// forever.
func (b *LocalBroadcaster) DeliverRoom(conversationID string, frame []byte) {
	b.fan.Broadcast(b.rooms.Members(conversationID), frame)
}

func (b *LocalBroadcaster) DeliverUser(userID string, frame []byte) {
	b.fan.Broadcast(b.conns.UserClients(userID), frame)
}

func (b *LocalBroadcaster) DeliverAll(frame []byte) {
	b.fan.Broadcast(b.conns.AllClients(), frame)
}

func (b *LocalBroadcaster) room(conversationID string, kind event.Kind, payload any) {
	frame, ok := b.marshal(kind, payload)
	if !ok {
		return
	}
	b.fan.Broadcast(b.rooms.Members(conversationID), frame)
	if b.relay != nil {
		b.relay.PublishRoom(conversationID, frame)
	}
}

func (b *LocalBroadcaster) user(userID string, kind event.Kind, payload any) {
	frame, ok := b.marshal(kind, payload)
	if !ok {
		return
	}
	b.fan.Broadcast(b.conns.UserClients(userID), frame)
	if b.relay != nil {
		b.relay.PublishUser(userID, frame)
	}
}

func (b *LocalBroadcaster) marshal(kind event.Kind, payload any) ([]byte, bool) {
	frame, err := MarshalFrame(kind, payload)
	if err != nil {
		logger.Errorf("[broadcast] marshal failed kind=%s err=%v", kind, err)
		return nil, false
	}
	return frame, true
}
