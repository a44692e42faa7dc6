// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/talentlink/talentlink/internal/domain"
)

// Repository defines the interface for persisting conversations, messages,
// and notifications.
type Repository interface {
	// AppendMessage persists a new message and upserts the conversation for
	// the canonical pair key as one atomic step. Two concurrent first
	// messages between the same unordered pair yield exactly one
	// conversation.
	AppendMessage(ctx context.Context, senderID, receiverID, body string) (*domain.Message, error)

	// GetConversation returns the messages between a and b in stable
	// creation order. Page 1 holds the most recent messages; within a page
	// messages are ascending. A missing conversation yields an empty slice.
	GetConversation(ctx context.Context, a, b string, page, limit int) ([]*domain.Message, error)

	// GetConversationMeta retrieves the conversation record for a pair, or
	// nil if the pair has never exchanged a message.
	GetConversationMeta(ctx context.Context, a, b string) (*domain.Conversation, error)

	// MarkRead flips the read flag on all unread messages sent by senderID
	// to receiverID and reports how many rows changed.
	MarkRead(ctx context.Context, senderID, receiverID string) (int64, error)

	// CreateNotification persists a notification for its recipient.
	CreateNotification(ctx context.Context, n *domain.Notification) error

	// ListNotifications returns the recipient's notifications, newest first.
	ListNotifications(ctx context.Context, recipientID string, page, limit int) ([]*domain.Notification, error)

	// MarkNotificationsRead flips the read flag on all of the recipient's
	// unread notifications and reports how many rows changed.
	MarkNotificationsRead(ctx context.Context, recipientID string) (int64, error)

	// UpdateLastSeen records an approximate last-seen timestamp for an
	// identity. Best-effort mirror of the presence registry.
	UpdateLastSeen(ctx context.Context, identityID string, lastSeen time.Time) error

	// GetLastSeen retrieves the recorded last-seen timestamp, or the zero
	// time if the identity has never disconnected.
	GetLastSeen(ctx context.Context, identityID string) (time.Time, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
