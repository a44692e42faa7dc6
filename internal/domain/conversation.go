package domain

import (
	"strings"
	"time"
)

// ConversationKey returns the canonical key for the unordered pair (a, b).
// The two IDs are sorted so both orderings map to the same conversation.
func ConversationKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + ":" + b
}

// Conversation is the durable container for the message history between
// exactly two identities. At most one conversation exists per unordered
// participant pair; creation is lazy on first message and idempotent.
type Conversation struct {
	PairKey      string    `json:"pair_key"`
	ParticipantA string    `json:"participant_a"`
	ParticipantB string    `json:"participant_b"`
	MessageCount int64     `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is a single chat message. Immutable once created except for the
// read flag, which flips true exactly once via a mark-read action.
type Message struct {
	ID         string    `json:"id"`
	Seq        int64     `json:"seq"`
	PairKey    string    `json:"pair_key"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Body       string    `json:"body"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}
