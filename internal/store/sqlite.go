package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/messenger/internal/models"
)

// SQLiteStore handles SQLite database operations.
// It mirrors the wide-column tables for development and tests: every statement
// touches one row and no transactions are used, so the fan-out behaves the same.
// Timestamps are stored as unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/messenger.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/messenger.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// EnsureSchema creates tables if they don't exist.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages_by_conversation (
		conversation_id INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		message_id INTEGER NOT NULL,
		sender_id INTEGER NOT NULL,
		receiver_id INTEGER NOT NULL,
		content TEXT NOT NULL,
		PRIMARY KEY (conversation_id, created_at, message_id)
	);

	CREATE TABLE IF NOT EXISTS conversations_by_user (
		user_id INTEGER NOT NULL,
		last_message_at INTEGER NOT NULL,
		conversation_id INTEGER NOT NULL,
		other_user_id INTEGER NOT NULL,
		last_message_content TEXT NOT NULL,
		PRIMARY KEY (user_id, last_message_at, conversation_id)
	);

	CREATE TABLE IF NOT EXISTS conversation_metadata (
		conversation_id INTEGER PRIMARY KEY,
		user1_id INTEGER NOT NULL,
		user2_id INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		last_message_at INTEGER,
		last_message_content TEXT
	);

	CREATE TABLE IF NOT EXISTS user_conversations_lookup (
		user1_id INTEGER NOT NULL,
		user2_id INTEGER NOT NULL,
		conversation_id INTEGER NOT NULL,
		PRIMARY KEY (user1_id, user2_id)
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertMessage writes a message row.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO messages_by_conversation (
			conversation_id, created_at, message_id, sender_id, receiver_id, content
		) VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ConversationID, msg.CreatedAt.UnixMilli(), msg.ID, msg.SenderID, msg.ReceiverID, msg.Content)
	return err
}

// CountMessages counts a conversation's messages, optionally only those before a time.
func (s *SQLiteStore) CountMessages(ctx context.Context, conversationID int64, before *time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM messages_by_conversation WHERE conversation_id = ?`
	args := []interface{}{conversationID}
	if before != nil {
		query += ` AND created_at < ?`
		args = append(args, before.UnixMilli())
	}

	var count int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// ScanMessages reads a conversation's messages newest first.
func (s *SQLiteStore) ScanMessages(ctx context.Context, conversationID int64, before *time.Time, limit int) ([]models.Message, error) {
	query := `
		SELECT conversation_id, created_at, message_id, sender_id, receiver_id, content
		FROM messages_by_conversation
		WHERE conversation_id = ?`
	args := []interface{}{conversationID}
	if before != nil {
		query += ` AND created_at < ?`
		args = append(args, before.UnixMilli())
	}
	query += ` ORDER BY created_at DESC, message_id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		var createdAt int64
		if err := rows.Scan(&msg.ConversationID, &createdAt, &msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content); err != nil {
			return nil, err
		}
		msg.CreatedAt = time.UnixMilli(createdAt).UTC()
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// InsertSummary writes a conversation_metadata row.
func (s *SQLiteStore) InsertSummary(ctx context.Context, summary *models.ConversationSummary) error {
	var lastAt *int64
	if summary.LastMessageAt != nil {
		ms := summary.LastMessageAt.UnixMilli()
		lastAt = &ms
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO conversation_metadata (
			conversation_id, user1_id, user2_id, created_at, last_message_at, last_message_content
		) VALUES (?, ?, ?, ?, ?, ?)
	`, summary.ID, summary.User1ID, summary.User2ID, summary.CreatedAt.UnixMilli(), lastAt, summary.LastMessageContent)
	return err
}

// UpdateSummaryLastMessage overwrites the last-message fields of a summary.
func (s *SQLiteStore) UpdateSummaryLastMessage(ctx context.Context, conversationID int64, at time.Time, content string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversation_metadata
		SET last_message_at = ?, last_message_content = ?
		WHERE conversation_id = ?
	`, at.UnixMilli(), content, conversationID)
	return err
}

// GetSummary retrieves a conversation summary by ID.
func (s *SQLiteStore) GetSummary(ctx context.Context, conversationID int64) (*models.ConversationSummary, error) {
	summary := &models.ConversationSummary{}
	var createdAt int64
	var lastAt sql.NullInt64
	var lastContent sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, user1_id, user2_id, created_at, last_message_at, last_message_content
		FROM conversation_metadata WHERE conversation_id = ?
	`, conversationID).Scan(
		&summary.ID,
		&summary.User1ID,
		&summary.User2ID,
		&createdAt,
		&lastAt,
		&lastContent,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	summary.CreatedAt = time.UnixMilli(createdAt).UTC()
	if lastAt.Valid {
		at := time.UnixMilli(lastAt.Int64).UTC()
		summary.LastMessageAt = &at
	}
	if lastContent.Valid {
		content := lastContent.String
		summary.LastMessageContent = &content
	}
	return summary, nil
}

// InsertUserConversation writes a conversations_by_user row.
func (s *SQLiteStore) InsertUserConversation(ctx context.Context, row *models.UserConversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO conversations_by_user (
			user_id, last_message_at, conversation_id, other_user_id, last_message_content
		) VALUES (?, ?, ?, ?, ?)
	`, row.UserID, row.LastMessageAt.UnixMilli(), row.ConversationID, row.OtherUserID, row.LastMessageContent)
	return err
}

// ScanUserConversations reads a user's index rows newest first.
func (s *SQLiteStore) ScanUserConversations(ctx context.Context, userID int64, limit int) ([]models.UserConversation, error) {
	query := `
		SELECT user_id, last_message_at, conversation_id, other_user_id, last_message_content
		FROM conversations_by_user
		WHERE user_id = ?
		ORDER BY last_message_at DESC, conversation_id DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.UserConversation, 0)
	for rows.Next() {
		var row models.UserConversation
		var lastAt int64
		if err := rows.Scan(&row.UserID, &lastAt, &row.ConversationID, &row.OtherUserID, &row.LastMessageContent); err != nil {
			return nil, err
		}
		row.LastMessageAt = time.UnixMilli(lastAt).UTC()
		result = append(result, row)
	}

	return result, rows.Err()
}

// GetConversationID looks up the conversation of a normalized user pair.
func (s *SQLiteStore) GetConversationID(ctx context.Context, user1ID, user2ID int64) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT conversation_id FROM user_conversations_lookup
		WHERE user1_id = ? AND user2_id = ?
	`, user1ID, user2ID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

// InsertConversationID writes the lookup row unless the pair already has one.
func (s *SQLiteStore) InsertConversationID(ctx context.Context, user1ID, user2ID, conversationID int64) (int64, bool, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO user_conversations_lookup (user1_id, user2_id, conversation_id)
		VALUES (?, ?, ?)
	`, user1ID, user2ID, conversationID)
	if err != nil {
		return 0, false, err
	}

	id, _, err := s.GetConversationID(ctx, user1ID, user2ID)
	if err != nil {
		return 0, false, err
	}
	return id, id == conversationID, nil
}

// isSQLiteTransient reports whether err is a lock contention error.
func isSQLiteTransient(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
