// Package chat orchestrates message delivery: validate, persist, then push
// to whichever of the receiver's connections are live.
package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/talentlink/talentlink/internal/domain"
	"github.com/talentlink/talentlink/internal/presence"
	"github.com/talentlink/talentlink/internal/store"
)

var validate = validator.New()

type sendRequest struct {
	SenderID   string `validate:"required"`
	ReceiverID string `validate:"required,nefield=SenderID"`
	Body       string `validate:"required"`
}

type markReadRequest struct {
	SenderID string `validate:"required"`
	ReaderID string `validate:"required,nefield=SenderID"`
}

// Service is the message delivery pipeline.
type Service struct {
	repo     store.Repository
	registry *presence.Registry
}

// NewService creates a delivery pipeline over the given store and registry.
func NewService(repo store.Repository, registry *presence.Registry) *Service {
	return &Service{repo: repo, registry: registry}
}

// SendMessage validates, durably persists, and then best-effort pushes a
// message. The persisted message is returned to the caller whether or not
// the receiver was online; an offline receiver sees it on their next fetch.
func (s *Service) SendMessage(ctx context.Context, senderID, receiverID, body string) (*domain.Message, error) {
	req := sendRequest{SenderID: senderID, ReceiverID: receiverID, Body: body}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	msg, err := s.repo.AppendMessage(ctx, senderID, receiverID, body)
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	// The durable write completed; from here on nothing can fail the send.
	conns := s.registry.ConnectionsFor(receiverID)
	for _, c := range conns {
		if pushErr := c.Send(ctx, domain.NewMessageEvent(msg)); pushErr != nil {
			slog.Debug("Message push failed", "conn_id", c.ID(), "message_id", msg.ID, "error", pushErr)
		}
	}
	slog.Info("Message sent", "sender", senderID, "receiver", receiverID, "message_id", msg.ID, "pushed_to", len(conns))

	return msg, nil
}

// MarkMessagesRead flips the read flag on every unread message senderID sent
// to readerID. If anything changed and the original sender is connected,
// they receive a messagesRead event naming the reader. Returns whether any
// messages changed.
func (s *Service) MarkMessagesRead(ctx context.Context, senderID, readerID string) (bool, error) {
	req := markReadRequest{SenderID: senderID, ReaderID: readerID}
	if err := validate.Struct(req); err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	changed, err := s.repo.MarkRead(ctx, senderID, readerID)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	if changed == 0 {
		return false, nil
	}

	for _, c := range s.registry.ConnectionsFor(senderID) {
		if pushErr := c.Send(ctx, domain.MessagesReadEvent(readerID)); pushErr != nil {
			slog.Debug("Read receipt push failed", "conn_id", c.ID(), "error", pushErr)
		}
	}
	slog.Debug("Messages marked read", "sender", senderID, "reader", readerID, "count", changed)
	return true, nil
}

// History returns the paginated conversation between two identities.
func (s *Service) History(ctx context.Context, a, b string, page, limit int) ([]*domain.Message, error) {
	if a == "" || b == "" {
		return nil, fmt.Errorf("%w: missing participant", domain.ErrValidation)
	}
	messages, err := s.repo.GetConversation(ctx, a, b, page, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch conversation: %w", err)
	}
	return messages, nil
}
