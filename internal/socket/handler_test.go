package socket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
	"github.com/talentlink/talentlink/internal/auth"
	"github.com/talentlink/talentlink/internal/chat"
	"github.com/talentlink/talentlink/internal/domain"
	"github.com/talentlink/talentlink/internal/presence"
	"github.com/talentlink/talentlink/internal/store"
)

const testSecret = "test-signing-secret"

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})

	gate := auth.NewGate(testSecret)
	registry := presence.NewRegistry()
	rooms := presence.NewRooms()
	chatSvc := chat.NewService(repo, registry)
	typing := chat.NewTypingCoordinator(registry, 100*time.Millisecond)

	handler := NewHandler(gate, registry, rooms, chatSvc, typing, "", true)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, subject, role string) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server, subject string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + signToken(t, subject, "student")
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial failed for %s: %v", subject, err)
	}
	t.Cleanup(func() {
		_ = ws.Close(websocket.StatusNormalClosure, "test done")
	})
	return ws
}

// awaitEvent reads frames until one of the wanted type arrives.
func awaitEvent(t *testing.T, ctx context.Context, ws *websocket.Conn, eventType string) envelope {
	t.Helper()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			t.Fatalf("Read failed waiting for %s: %v", eventType, err)
		}
		var ev envelope
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("Malformed event frame: %s", data)
		}
		if ev.Type == eventType {
			return ev
		}
	}
}

func send(t *testing.T, ctx context.Context, ws *websocket.Conn, cmd command) {
	t.Helper()
	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("Marshal command failed: %v", err)
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("Write command failed: %v", err)
	}
}

func TestHandler_RejectsMissingToken(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.Dial(ctx, url, nil)
	if err == nil {
		t.Fatal("Expected dial to fail without a token")
	}
	if resp != nil && resp.StatusCode != 401 {
		t.Errorf("Expected status 401, got %d", resp.StatusCode)
	}
}

func TestHandler_ConnectAck(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws := dial(t, ctx, srv, "alice")

	ev := awaitEvent(t, ctx, ws, domain.EventConnected)
	var identity domain.Identity
	if err := json.Unmarshal(ev.Data, &identity); err != nil {
		t.Fatalf("Failed to decode connected payload: %v", err)
	}
	if identity.ID != "alice" {
		t.Errorf("Expected ack for alice, got %s", identity.ID)
	}
}

func TestHandler_MessageDelivery(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sender := dial(t, ctx, srv, "alice")
	receiver := dial(t, ctx, srv, "bob")
	awaitEvent(t, ctx, receiver, domain.EventConnected)
	awaitEvent(t, ctx, sender, domain.EventConnected)

	send(t, ctx, sender, command{Type: "sendMessage", ReceiverID: "bob", Body: "hi"})

	ev := awaitEvent(t, ctx, receiver, domain.EventNewMessage)
	var msg domain.Message
	if err := json.Unmarshal(ev.Data, &msg); err != nil {
		t.Fatalf("Failed to decode message payload: %v", err)
	}
	if msg.SenderID != "alice" || msg.ReceiverID != "bob" || msg.Body != "hi" {
		t.Errorf("Unexpected message: %+v", msg)
	}
	if msg.Read {
		t.Error("Expected delivered message to be unread")
	}
	if msg.ID == "" {
		t.Error("Expected persisted message to carry an ID")
	}
}

func TestHandler_SelfSendReturnsError(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws := dial(t, ctx, srv, "alice")
	awaitEvent(t, ctx, ws, domain.EventConnected)

	send(t, ctx, ws, command{Type: "sendMessage", ReceiverID: "alice", Body: "hi"})

	awaitEvent(t, ctx, ws, domain.EventError)
}

func TestHandler_OnlineStatusQuery(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws := dial(t, ctx, srv, "alice")
	awaitEvent(t, ctx, ws, domain.EventConnected)

	send(t, ctx, ws, command{Type: "onlineStatus", IDs: []string{"alice", "ghost"}})

	seen := map[string]bool{}
	for len(seen) < 2 {
		ev := awaitEvent(t, ctx, ws, domain.EventIdentityStatus)
		var status domain.PresenceStatus
		if err := json.Unmarshal(ev.Data, &status); err != nil {
			t.Fatalf("Failed to decode status payload: %v", err)
		}
		seen[status.Identity] = status.IsOnline
	}
	if !seen["alice"] {
		t.Error("Expected alice to be online")
	}
	if online, ok := seen["ghost"]; !ok || online {
		t.Error("Expected ghost to be reported offline")
	}
}

func TestHandler_TypingRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sender := dial(t, ctx, srv, "alice")
	receiver := dial(t, ctx, srv, "bob")
	awaitEvent(t, ctx, receiver, domain.EventConnected)
	awaitEvent(t, ctx, sender, domain.EventConnected)

	send(t, ctx, sender, command{Type: "typingStart", ReceiverID: "bob"})

	start := awaitEvent(t, ctx, receiver, domain.EventTypingStart)
	var payload domain.TypingPayload
	if err := json.Unmarshal(start.Data, &payload); err != nil {
		t.Fatalf("Failed to decode typing payload: %v", err)
	}
	if payload.SenderID != "alice" {
		t.Errorf("Expected typing from alice, got %s", payload.SenderID)
	}
	if payload.ChatID != domain.ConversationKey("alice", "bob") {
		t.Errorf("Unexpected chat id %q", payload.ChatID)
	}

	// The 100ms quiescence window expires with no refresh.
	awaitEvent(t, ctx, receiver, domain.EventTypingStop)
}
