package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/talentlink/talentlink/internal/auth"
	"github.com/talentlink/talentlink/internal/domain"
)

// RegisterRoutes registers the messaging and notification routes. All of
// them run behind the identity gate middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/messages/{id}", h.SendMessage)
		r.Get("/messages/{id}", h.GetConversation)
		r.Post("/messages/{id}/read", h.MarkRead)
		r.Get("/notifications", h.ListNotifications)
		r.Post("/notifications", h.CreateNotification)
		r.Post("/notifications/read", h.MarkNotificationsRead)
		r.Get("/users/online", h.OnlineUsers)
		r.Get("/users/{id}/status", h.UserStatus)
	})
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// SendMessage persists a message to the user in the URL and pushes it to
// their live connections.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	receiverID := chi.URLParam(r, "id")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.chat.SendMessage(r.Context(), identity.ID, receiverID, req.Message)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Send message failed", "sender", identity.ID, "receiver", receiverID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	JSON(w, http.StatusCreated, map[string]interface{}{
		"success":    true,
		"newMessage": msg,
	})
}

// GetConversation returns the paginated message history with the user in
// the URL. A pair that never exchanged messages yields an empty list.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	otherID := chi.URLParam(r, "id")
	page, limit := pageParams(r)

	messages, err := h.chat.History(r.Context(), identity.ID, otherID, page, limit)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Fetch conversation failed", "user", identity.ID, "other", otherID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to fetch conversation")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"messages": messages,
	})
}

// MarkRead marks all unread messages from the user in the URL as read by
// the authenticated user.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	senderID := chi.URLParam(r, "id")

	changed, err := h.chat.MarkMessagesRead(r.Context(), senderID, identity.ID)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Mark read failed", "reader", identity.ID, "sender", senderID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to mark messages read")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"changed": changed,
	})
}

// ListNotifications returns the authenticated user's notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	page, limit := pageParams(r)

	notifications, err := h.repo.ListNotifications(r.Context(), identity.ID, page, limit)
	if err != nil {
		slog.Error("List notifications failed", "user", identity.ID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"notifications": notifications,
	})
}

type createNotificationRequest struct {
	RecipientID string `json:"recipientId"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Body        string `json:"body"`
}

// CreateNotification lets the recruitment collaborators (application CRUD,
// follow graph) persist and fan out a notification after one of their own
// domain events. The sender is the authenticated caller.
func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	notification, err := h.notifier.Notify(r.Context(), req.RecipientID, identity.ID, identity.Role, req.Type, req.Title, req.Body)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Create notification failed", "sender", identity.ID, "recipient", req.RecipientID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to create notification")
		return
	}

	JSON(w, http.StatusCreated, map[string]interface{}{
		"success":      true,
		"notification": notification,
	})
}

// MarkNotificationsRead flips the read flag on all of the authenticated
// user's unread notifications.
func (h *Handler) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	changed, err := h.repo.MarkNotificationsRead(r.Context(), identity.ID)
	if err != nil {
		slog.Error("Mark notifications read failed", "user", identity.ID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to mark notifications read")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"changed": changed,
	})
}

// OnlineUsers returns the IDs of all currently online identities.
func (h *Handler) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"online":  h.registry.OnlineIdentities(),
	})
}

// UserStatus reports whether one identity is online and, if offline, when
// it was last seen. The last-seen value is a best-effort mirror.
func (h *Handler) UserStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	status := map[string]interface{}{
		"success":  true,
		"identity": userID,
		"isOnline": h.registry.IsOnline(userID),
	}
	if lastSeen, err := h.repo.GetLastSeen(r.Context(), userID); err != nil {
		slog.Warn("Last seen lookup failed", "user", userID, "error", err)
	} else if !lastSeen.IsZero() {
		status["lastSeen"] = lastSeen
	}

	JSON(w, http.StatusOK, status)
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}
