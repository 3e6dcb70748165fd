package model

// Conversation holds the participant set the access check runs against.
type Conversation struct {
	ID           string   `bson:"_id" json:"id"`
	Name         string   `bson:"name,omitempty" json:"name,omitempty"`
	Participants []string `bson:"participants" json:"participants"`
	CreatedAt    int64    `bson:"created_at" json:"created_at"` // Unix ms
}

func (c *Conversation) HasParticipant(user string) bool {
	for _, p := range c.Participants {
		if p == user {
			return true
		}
	}
	return false
}

// SeqCounter is the per-conversation sequence counter document. Value is the
// current max seqNo; advanced only through an atomic increment-and-fetch.
type SeqCounter struct {
	ConversationID string `bson:"_id" json:"conversation_id"`
	Value          int64  `bson:"value" json:"value"`
}
