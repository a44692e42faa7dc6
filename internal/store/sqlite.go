package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/talentlink/talentlink/internal/domain"
	"github.com/talentlink/talentlink/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS conversations (
		pair_key TEXT PRIMARY KEY,
		participant_a TEXT NOT NULL,
		participant_b TEXT NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT NOT NULL UNIQUE,
		pair_key TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		body TEXT NOT NULL,
		read INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(pair_key, created_at, seq);
	CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(sender_id, receiver_id) WHERE read = 0;

	CREATE TABLE IF NOT EXISTS notifications (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		notification_id TEXT NOT NULL UNIQUE,
		recipient_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_role TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		read INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at);

	CREATE TABLE IF NOT EXISTS last_seen (
		identity_id TEXT PRIMARY KEY,
		last_seen_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AppendMessage persists a message and upserts its conversation in a single
// transaction. The conversation upsert is keyed on the canonical pair key, so
// concurrent first messages between the same pair cannot create duplicates.
// Lock contention before the commit gets one retry; a failed commit is never
// retried, since the transaction may already have applied. The retry reuses
// the same message ID, so even a misjudged replay hits the unique index
// instead of inserting twice.
func (s *SQLiteStore) AppendMessage(ctx context.Context, senderID, receiverID, body string) (*domain.Message, error) {
	msg := &domain.Message{
		ID:         uuid.NewString(),
		PairKey:    domain.ConversationKey(senderID, receiverID),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		Read:       false,
		CreatedAt:  time.Now(),
	}

	retryable, err := s.appendMessageTx(ctx, msg)
	if err != nil && retryable && shared.IsSQLiteConflictError(err) {
		// A short backoff covers transient lock contention between the WAL
		// writer and a concurrent upsert.
		time.Sleep(50 * time.Millisecond)
		_, err = s.appendMessageTx(ctx, msg)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// appendMessageTx runs one append attempt. The bool reports whether the
// failure happened before the commit; only those attempts are known not to
// have applied.
func (s *SQLiteStore) appendMessageTx(ctx context.Context, msg *domain.Message) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return true, fmt.Errorf("begin append transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	createdAt := msg.CreatedAt.UnixMilli()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (message_id, pair_key, sender_id, receiver_id, body, read, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		msg.ID, msg.PairKey, msg.SenderID, msg.ReceiverID, msg.Body, createdAt,
	)
	if err != nil {
		return true, fmt.Errorf("insert message: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return true, fmt.Errorf("message sequence: %w", err)
	}
	msg.Seq = seq

	a, b := pairParticipants(msg.PairKey)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (pair_key, participant_a, participant_b, message_count, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(pair_key) DO UPDATE SET
			message_count = message_count + 1,
			updated_at = excluded.updated_at`,
		msg.PairKey, a, b, createdAt, createdAt,
	)
	if err != nil {
		return true, fmt.Errorf("upsert conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit append transaction: %w", err)
	}
	return false, nil
}

// GetConversation returns the paginated message history for the pair (a, b).
// Page 1 holds the most recent messages; within a page messages ascend by
// (created_at, seq) so repeated fetches never reorder.
func (s *SQLiteStore) GetConversation(ctx context.Context, a, b string, page, limit int) ([]*domain.Message, error) {
	page, limit = clampPage(page, limit)
	pairKey := domain.ConversationKey(a, b)

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, message_id, pair_key, sender_id, receiver_id, body, read, created_at
		FROM messages
		WHERE pair_key = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT ? OFFSET ?`,
		pairKey, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close conversation rows", "error", closeErr)
		}
	}()

	messages := []*domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var read int
		var createdAt int64
		if err := rows.Scan(
			&msg.Seq, &msg.ID, &msg.PairKey, &msg.SenderID, &msg.ReceiverID,
			&msg.Body, &read, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Read = read != 0
		msg.CreatedAt = time.UnixMilli(createdAt)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Rows arrive newest-first for pagination; reverse into send order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// GetConversationMeta retrieves the conversation record for a pair.
func (s *SQLiteStore) GetConversationMeta(ctx context.Context, a, b string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT pair_key, participant_a, participant_b, message_count, created_at, updated_at
		FROM conversations WHERE pair_key = ?`,
		domain.ConversationKey(a, b),
	)

	var conv domain.Conversation
	var createdAt, updatedAt int64
	err := row.Scan(
		&conv.PairKey, &conv.ParticipantA, &conv.ParticipantB,
		&conv.MessageCount, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation row: %w", err)
	}

	conv.CreatedAt = time.UnixMilli(createdAt)
	conv.UpdatedAt = time.UnixMilli(updatedAt)
	return &conv, nil
}

// MarkRead flips the read flag on the directed sender->receiver pair.
func (s *SQLiteStore) MarkRead(ctx context.Context, senderID, receiverID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET read = 1
		WHERE sender_id = ? AND receiver_id = ? AND read = 0`,
		senderID, receiverID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	changed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return changed, nil
}

// CreateNotification persists a notification for its recipient.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *domain.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (notification_id, recipient_id, sender_id, sender_role, type, title, body, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RecipientID, n.SenderID, string(n.SenderRole), n.Type, n.Title, n.Body,
		boolToInt(n.Read), n.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns the recipient's notifications, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, recipientID string, page, limit int) ([]*domain.Notification, error) {
	page, limit = clampPage(page, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT notification_id, recipient_id, sender_id, sender_role, type, title, body, read, created_at
		FROM notifications
		WHERE recipient_id = ?
		ORDER BY created_at DESC, seq DESC
		LIMIT ? OFFSET ?`,
		recipientID, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close notification rows", "error", closeErr)
		}
	}()

	notifications := []*domain.Notification{}
	for rows.Next() {
		var n domain.Notification
		var role string
		var read int
		var createdAt int64
		if err := rows.Scan(
			&n.ID, &n.RecipientID, &n.SenderID, &role, &n.Type, &n.Title, &n.Body,
			&read, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan notification row: %w", err)
		}
		n.SenderRole = domain.Role(role)
		n.Read = read != 0
		n.CreatedAt = time.UnixMilli(createdAt)
		notifications = append(notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return notifications, nil
}

// MarkNotificationsRead flips the read flag on all unread notifications for
// the recipient.
func (s *SQLiteStore) MarkNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = 1
		WHERE recipient_id = ? AND read = 0`,
		recipientID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	changed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return changed, nil
}

// UpdateLastSeen records an approximate last-seen timestamp for an identity.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, identityID string, lastSeen time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO last_seen (identity_id, last_seen_at) VALUES (?, ?)
		ON CONFLICT(identity_id) DO UPDATE SET last_seen_at = excluded.last_seen_at`,
		identityID, lastSeen.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}
	return nil
}

// GetLastSeen retrieves the recorded last-seen timestamp for an identity.
func (s *SQLiteStore) GetLastSeen(ctx context.Context, identityID string) (time.Time, error) {
	row := s.db.QueryRowContext(ctx, `SELECT last_seen_at FROM last_seen WHERE identity_id = ?`, identityID)

	var lastSeen int64
	err := row.Scan(&lastSeen)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("scan last_seen row: %w", err)
	}
	return time.UnixMilli(lastSeen), nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func pairParticipants(pairKey string) (string, string) {
	for i := 0; i < len(pairKey); i++ {
		if pairKey[i] == ':' {
			return pairKey[:i], pairKey[i+1:]
		}
	}
	return pairKey, ""
}

func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
