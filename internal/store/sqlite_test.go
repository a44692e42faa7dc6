package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/talentlink/talentlink/internal/domain"
	"github.com/talentlink/talentlink/internal/shared"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return repo
}

func TestAppendMessage_SingleConversationPerPair(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	first, err := repo.AppendMessage(ctx, "alice", "bob", "hi")
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if first.Read {
		t.Error("Expected new message to be unread")
	}
	if first.SenderID != "alice" || first.ReceiverID != "bob" {
		t.Errorf("Unexpected participants: %s -> %s", first.SenderID, first.ReceiverID)
	}

	// The reply lands in the same conversation despite reversed order.
	if _, err := repo.AppendMessage(ctx, "bob", "alice", "hello"); err != nil {
		t.Fatalf("AppendMessage reply failed: %v", err)
	}

	conv, err := repo.GetConversationMeta(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("GetConversationMeta failed: %v", err)
	}
	if conv == nil {
		t.Fatal("Expected a conversation")
	}
	if conv.PairKey != domain.ConversationKey("alice", "bob") {
		t.Errorf("Unexpected pair key %q", conv.PairKey)
	}
	if conv.MessageCount != 2 {
		t.Errorf("Expected message count 2, got %d", conv.MessageCount)
	}

	messages, err := repo.GetConversation(ctx, "alice", "bob", 1, 20)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	if messages[0].Body != "hi" || messages[1].Body != "hello" {
		t.Errorf("Messages out of send order: %q, %q", messages[0].Body, messages[1].Body)
	}
}

func TestAppendMessage_ConcurrentFirstContact(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	errs := make(chan error, 2)

	go func() {
		defer wg.Done()
		_, err := repo.AppendMessage(ctx, "alice", "bob", "from alice")
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := repo.AppendMessage(ctx, "bob", "alice", "from bob")
		errs <- err
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Concurrent AppendMessage failed: %v", err)
		}
	}

	conv, err := repo.GetConversationMeta(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("GetConversationMeta failed: %v", err)
	}
	if conv == nil {
		t.Fatal("Expected a conversation")
	}
	if conv.MessageCount != 2 {
		t.Errorf("Expected exactly one conversation holding 2 messages, got count %d", conv.MessageCount)
	}
}

func TestMarkRead_SecondCallReportsNoChange(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	if _, err := repo.AppendMessage(ctx, "alice", "bob", "one"); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if _, err := repo.AppendMessage(ctx, "alice", "bob", "two"); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	// A message in the other direction must stay untouched.
	if _, err := repo.AppendMessage(ctx, "bob", "alice", "reply"); err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}

	changed, err := repo.MarkRead(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if changed != 2 {
		t.Errorf("Expected 2 messages flipped, got %d", changed)
	}

	changed, err = repo.MarkRead(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("Second MarkRead failed: %v", err)
	}
	if changed != 0 {
		t.Errorf("Expected second MarkRead to change nothing, got %d", changed)
	}

	messages, err := repo.GetConversation(ctx, "alice", "bob", 1, 20)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	for _, msg := range messages {
		wantRead := msg.SenderID == "alice"
		if msg.Read != wantRead {
			t.Errorf("Message %q: read=%v, want %v", msg.Body, msg.Read, wantRead)
		}
	}
}

func TestGetConversation_MissingPairIsEmpty(t *testing.T) {
	repo := newTestStore(t)

	messages, err := repo.GetConversation(context.Background(), "nobody", "noone", 1, 20)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("Expected empty history, got %d messages", len(messages))
	}
}

func TestGetConversation_StablePagination(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	bodies := []string{"m1", "m2", "m3", "m4", "m5"}
	for _, body := range bodies {
		if _, err := repo.AppendMessage(ctx, "alice", "bob", body); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	// Page 1 holds the most recent messages, ascending within the page.
	page1, err := repo.GetConversation(ctx, "alice", "bob", 1, 2)
	if err != nil {
		t.Fatalf("GetConversation page 1 failed: %v", err)
	}
	if len(page1) != 2 || page1[0].Body != "m4" || page1[1].Body != "m5" {
		t.Errorf("Unexpected page 1: %v", pageBodies(page1))
	}

	page2, err := repo.GetConversation(ctx, "alice", "bob", 2, 2)
	if err != nil {
		t.Fatalf("GetConversation page 2 failed: %v", err)
	}
	if len(page2) != 2 || page2[0].Body != "m2" || page2[1].Body != "m3" {
		t.Errorf("Unexpected page 2: %v", pageBodies(page2))
	}

	page3, err := repo.GetConversation(ctx, "alice", "bob", 3, 2)
	if err != nil {
		t.Fatalf("GetConversation page 3 failed: %v", err)
	}
	if len(page3) != 1 || page3[0].Body != "m1" {
		t.Errorf("Unexpected page 3: %v", pageBodies(page3))
	}

	// Repeated fetches never reorder.
	again, err := repo.GetConversation(ctx, "alice", "bob", 1, 2)
	if err != nil {
		t.Fatalf("GetConversation refetch failed: %v", err)
	}
	for i := range page1 {
		if page1[i].ID != again[i].ID {
			t.Errorf("Pagination unstable at index %d: %s vs %s", i, page1[i].ID, again[i].ID)
		}
	}
}

func TestNotifications_PersistAndList(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	older := &domain.Notification{
		ID:          "n-1",
		RecipientID: "bob",
		SenderID:    "alice",
		SenderRole:  domain.RoleStudent,
		Type:        domain.NotificationApplication,
		Title:       "New Job Application",
		Body:        "Alice applied to your posting",
		CreatedAt:   time.Now().Add(-time.Minute),
	}
	newer := &domain.Notification{
		ID:          "n-2",
		RecipientID: "bob",
		SenderID:    "carol",
		SenderRole:  domain.RoleStudent,
		Type:        domain.NotificationFollow,
		Title:       "New Follower",
		Body:        "Carol followed you",
		CreatedAt:   time.Now(),
	}
	for _, n := range []*domain.Notification{older, newer} {
		if err := repo.CreateNotification(ctx, n); err != nil {
			t.Fatalf("CreateNotification failed: %v", err)
		}
	}

	list, err := repo.ListNotifications(ctx, "bob", 1, 20)
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 notifications, got %d", len(list))
	}
	if list[0].ID != "n-2" || list[1].ID != "n-1" {
		t.Errorf("Expected newest first, got %s, %s", list[0].ID, list[1].ID)
	}
	if list[0].Read || list[1].Read {
		t.Error("Expected notifications to start unread")
	}

	changed, err := repo.MarkNotificationsRead(ctx, "bob")
	if err != nil {
		t.Fatalf("MarkNotificationsRead failed: %v", err)
	}
	if changed != 2 {
		t.Errorf("Expected 2 notifications flipped, got %d", changed)
	}
	changed, err = repo.MarkNotificationsRead(ctx, "bob")
	if err != nil {
		t.Fatalf("Second MarkNotificationsRead failed: %v", err)
	}
	if changed != 0 {
		t.Errorf("Expected second call to change nothing, got %d", changed)
	}
}

func TestLastSeen_RoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetLastSeen(ctx, "ghost")
	if err != nil {
		t.Fatalf("GetLastSeen failed: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("Expected zero time for unknown identity, got %v", got)
	}

	at := time.Now().Truncate(time.Millisecond)
	if err := repo.UpdateLastSeen(ctx, "alice", at); err != nil {
		t.Fatalf("UpdateLastSeen failed: %v", err)
	}

	got, err = repo.GetLastSeen(ctx, "alice")
	if err != nil {
		t.Fatalf("GetLastSeen failed: %v", err)
	}
	if !got.Equal(at) {
		t.Errorf("Expected last seen %v, got %v", at, got)
	}
}

func TestAppendMessage_ReplayCannotDuplicate(t *testing.T) {
	repo := newTestStore(t)
	s, ok := repo.(*SQLiteStore)
	if !ok {
		t.Fatalf("Unexpected repository type %T", repo)
	}
	ctx := context.Background()

	msg := &domain.Message{
		ID:         "m-fixed",
		PairKey:    domain.ConversationKey("alice", "bob"),
		SenderID:   "alice",
		ReceiverID: "bob",
		Body:       "hi",
		CreatedAt:  time.Now(),
	}
	if _, err := s.appendMessageTx(ctx, msg); err != nil {
		t.Fatalf("First append failed: %v", err)
	}

	// A replay of an attempt that actually committed must hit the unique
	// message ID, not insert a second row, and must not be classified as
	// retryable contention.
	_, err := s.appendMessageTx(ctx, msg)
	if err == nil {
		t.Fatal("Expected replay with the same message ID to fail")
	}
	if shared.IsSQLiteConflictError(err) {
		t.Errorf("Expected a constraint failure, got contention error: %v", err)
	}

	messages, err := repo.GetConversation(ctx, "alice", "bob", 1, 20)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("Expected exactly 1 message after replay, got %d", len(messages))
	}
	meta, err := repo.GetConversationMeta(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("GetConversationMeta failed: %v", err)
	}
	if meta == nil || meta.MessageCount != 1 {
		t.Errorf("Expected message count 1 after replay, got %+v", meta)
	}
}

func pageBodies(messages []*domain.Message) []string {
	bodies := make([]string, 0, len(messages))
	for _, m := range messages {
		bodies = append(bodies, m.Body)
	}
	return bodies
}
