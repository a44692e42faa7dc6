package domain

import "time"

// Notification types emitted by the external recruitment collaborators.
const (
	NotificationApplication  = "application"
	NotificationStatusChange = "status-change"
	NotificationFollow       = "follow"
)

// Notification is a durable notification for one recipient. It is persisted
// regardless of whether the recipient is connected at creation time and
// retrieved later by a listing call if the push found no connections.
type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	SenderID    string    `json:"sender_id"`
	SenderRole  Role      `json:"sender_role"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}
