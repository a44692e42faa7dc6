// Package notify persists notifications produced by external domain events
// and best-effort delivers them to connected recipients.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/talentlink/talentlink/internal/domain"
	"github.com/talentlink/talentlink/internal/presence"
	"github.com/talentlink/talentlink/internal/store"
)

var validate = validator.New()

type notifyRequest struct {
	RecipientID string `validate:"required"`
	SenderID    string `validate:"required"`
	SenderRole  string `validate:"required,oneof=student recruiter"`
	Type        string `validate:"required"`
	Title       string `validate:"required"`
}

// Notifier is the fan-out primitive external collaborators call after their
// own domain events (new application, status change, new follower). It never
// branches on why it was called: persist unconditionally, then push to the
// recipient's connections if any exist.
type Notifier struct {
	repo     store.Repository
	registry *presence.Registry
}

// NewNotifier creates a notifier over the given store and registry.
func NewNotifier(repo store.Repository, registry *presence.Registry) *Notifier {
	return &Notifier{repo: repo, registry: registry}
}

// Notify persists a notification and pushes it to the recipient if
// connected. An offline recipient is the expected common case and not an
// error; the notification waits for a later listing call.
func (n *Notifier) Notify(ctx context.Context, recipientID, senderID string, senderRole domain.Role, notifType, title, body string) (*domain.Notification, error) {
	req := notifyRequest{
		RecipientID: recipientID,
		SenderID:    senderID,
		SenderRole:  string(senderRole),
		Type:        notifType,
		Title:       title,
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	notification := &domain.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		SenderID:    senderID,
		SenderRole:  senderRole,
		Type:        notifType,
		Title:       title,
		Body:        body,
		Read:        false,
		CreatedAt:   time.Now(),
	}

	if err := n.repo.CreateNotification(ctx, notification); err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}

	conns := n.registry.ConnectionsFor(recipientID)
	for _, c := range conns {
		if pushErr := c.Send(ctx, domain.NewNotificationEvent(notification)); pushErr != nil {
			slog.Debug("Notification push failed", "conn_id", c.ID(), "notification_id", notification.ID, "error", pushErr)
		}
	}
	slog.Info("Notification created", "recipient", recipientID, "type", notifType, "pushed_to", len(conns))

	return notification, nil
}
