package socket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/talentlink/talentlink/internal/auth"
	"github.com/talentlink/talentlink/internal/chat"
	"github.com/talentlink/talentlink/internal/domain"
	"github.com/talentlink/talentlink/internal/presence"
)

// command is the inbound message envelope. Fields are populated depending
// on the command type.
type command struct {
	Type       string   `json:"type"`
	ReceiverID string   `json:"receiverId,omitempty"`
	SenderID   string   `json:"senderId,omitempty"`
	Body       string   `json:"body,omitempty"`
	RoomID     string   `json:"roomId,omitempty"`
	IDs        []string `json:"ids,omitempty"`
}

// Handler upgrades authenticated connections and dispatches their commands.
type Handler struct {
	gate          *auth.Gate
	registry      *presence.Registry
	rooms         *presence.Rooms
	chat          *chat.Service
	typing        *chat.TypingCoordinator
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a WebSocket handler.
func NewHandler(gate *auth.Gate, registry *presence.Registry, rooms *presence.Rooms, chatSvc *chat.Service, typing *chat.TypingCoordinator, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		gate:          gate,
		registry:      registry,
		rooms:         rooms,
		chat:          chatSvc,
		typing:        typing,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for the WebSocket upgrade. The identity
// gate runs before anything else touches the connection; a rejected token
// never reaches the registry.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := h.gate.Verify(auth.TokenFromRequest(r))
	if err != nil {
		slog.Warn("WebSocket auth rejected", "ip", r.RemoteAddr, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "identity", identity.ID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "identity", identity.ID)
		}
	}()

	client := NewClient(ws, identity)
	slog.Info("WebSocket connected", "identity", identity.ID, "role", identity.Role, "conn_id", client.ID(), "ip", r.RemoteAddr)

	h.registry.Register(client)
	defer func() {
		h.rooms.LeaveAll(client)
		if wentOffline := h.registry.Deregister(client); wentOffline {
			h.typing.ReleaseSender(identity.ID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := client.Send(ctx, domain.ConnectedEvent(identity)); err != nil {
		slog.Debug("Failed to send connected ack", "error", err, "identity", identity.ID)
		return
	}

	h.dispatchLoop(ctx, client)
	slog.Info("WebSocket session ended", "identity", identity.ID, "conn_id", client.ID())
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// dispatchLoop reads and handles commands one at a time, so a connection's
// own operations stay ordered relative to each other.
func (h *Handler) dispatchLoop(ctx context.Context, client *Client) {
	identity := client.Identity()
	for {
		_, data, err := client.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "identity", identity.ID)
			} else if !errors.Is(err, context.Canceled) {
				slog.Warn("WebSocket read error", "error", err, "identity", identity.ID)
			}
			return
		}

		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.sendError(ctx, client, "malformed command")
			continue
		}

		h.handleCommand(ctx, client, cmd)
	}
}

func (h *Handler) handleCommand(ctx context.Context, client *Client, cmd command) {
	identity := client.Identity()

	switch cmd.Type {
	case "sendMessage":
		if _, err := h.chat.SendMessage(ctx, identity.ID, cmd.ReceiverID, cmd.Body); err != nil {
			slog.Warn("sendMessage failed", "identity", identity.ID, "receiver", cmd.ReceiverID, "error", err)
			h.sendError(ctx, client, errorText(err))
		}

	case "markRead":
		if _, err := h.chat.MarkMessagesRead(ctx, cmd.SenderID, identity.ID); err != nil {
			slog.Warn("markRead failed", "identity", identity.ID, "sender", cmd.SenderID, "error", err)
			h.sendError(ctx, client, errorText(err))
		}

	case "typingStart":
		h.typing.Start(identity.ID, cmd.ReceiverID)

	case "typingStop":
		h.typing.Stop(identity.ID, cmd.ReceiverID)

	case "joinRoom":
		if cmd.RoomID == "" {
			h.sendError(ctx, client, "missing roomId")
			return
		}
		h.rooms.Join(cmd.RoomID, client)

	case "leaveRoom":
		if cmd.RoomID == "" {
			h.sendError(ctx, client, "missing roomId")
			return
		}
		h.rooms.Leave(cmd.RoomID, client)

	case "onlineStatus":
		// Answer only the asking connection, one status per requested id.
		for _, id := range cmd.IDs {
			ev := domain.IdentityStatusEvent(domain.PresenceStatus{
				Identity: id,
				IsOnline: h.registry.IsOnline(id),
			})
			if err := client.Send(ctx, ev); err != nil {
				return
			}
		}

	default:
		h.sendError(ctx, client, "unknown command type")
	}
}

func (h *Handler) sendError(ctx context.Context, client *Client, msg string) {
	ev := domain.Event{Type: domain.EventError, Data: map[string]string{"error": msg}}
	if err := client.Send(ctx, ev); err != nil {
		slog.Debug("Failed to send error event", "error", err, "conn_id", client.ID())
	}
}

func errorText(err error) string {
	if errors.Is(err, domain.ErrValidation) {
		return err.Error()
	}
	// Persistence details stay in the logs; clients get a generic failure.
	return "internal error"
}
