package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/messenger/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
// Tables keep the wide-column layout and writes keep upsert semantics;
// nothing here opens a transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates tables if they don't exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS messages_by_conversation (
			conversation_id BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			message_id BIGINT NOT NULL,
			sender_id INTEGER NOT NULL,
			receiver_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			PRIMARY KEY (conversation_id, created_at, message_id)
		);

		CREATE TABLE IF NOT EXISTS conversations_by_user (
			user_id INTEGER NOT NULL,
			last_message_at TIMESTAMPTZ NOT NULL,
			conversation_id BIGINT NOT NULL,
			other_user_id INTEGER NOT NULL,
			last_message_content TEXT NOT NULL,
			PRIMARY KEY (user_id, last_message_at, conversation_id)
		);

		CREATE TABLE IF NOT EXISTS conversation_metadata (
			conversation_id BIGINT PRIMARY KEY,
			user1_id INTEGER NOT NULL,
			user2_id INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			last_message_at TIMESTAMPTZ,
			last_message_content TEXT
		);

		CREATE TABLE IF NOT EXISTS user_conversations_lookup (
			user1_id INTEGER NOT NULL,
			user2_id INTEGER NOT NULL,
			conversation_id BIGINT NOT NULL,
			PRIMARY KEY (user1_id, user2_id)
		);
	`)
	return err
}

// InsertMessage writes a message row.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages_by_conversation (
			conversation_id, created_at, message_id, sender_id, receiver_id, content
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (conversation_id, created_at, message_id) DO UPDATE
		SET sender_id = EXCLUDED.sender_id, receiver_id = EXCLUDED.receiver_id, content = EXCLUDED.content
	`, msg.ConversationID, msg.CreatedAt, msg.ID, msg.SenderID, msg.ReceiverID, msg.Content)
	return err
}

// CountMessages counts a conversation's messages, optionally only those before a time.
func (s *PostgresStore) CountMessages(ctx context.Context, conversationID int64, before *time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM messages_by_conversation WHERE conversation_id = $1`
	args := []interface{}{conversationID}
	if before != nil {
		query += ` AND created_at < $2`
		args = append(args, millis(*before))
	}

	var count int
	err := s.pool.QueryRow(ctx, query, args...).Scan(&count)
	return count, err
}

// ScanMessages reads a conversation's messages newest first.
func (s *PostgresStore) ScanMessages(ctx context.Context, conversationID int64, before *time.Time, limit int) ([]models.Message, error) {
	query := `
		SELECT conversation_id, created_at, message_id, sender_id, receiver_id, content
		FROM messages_by_conversation
		WHERE conversation_id = $1`
	args := []interface{}{conversationID}
	if before != nil {
		query += ` AND created_at < $2`
		args = append(args, millis(*before))
	}
	query += ` ORDER BY created_at DESC, message_id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ConversationID, &msg.CreatedAt, &msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content); err != nil {
			return nil, err
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// InsertSummary writes a conversation_metadata row.
func (s *PostgresStore) InsertSummary(ctx context.Context, summary *models.ConversationSummary) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversation_metadata (
			conversation_id, user1_id, user2_id, created_at, last_message_at, last_message_content
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (conversation_id) DO UPDATE
		SET user1_id = EXCLUDED.user1_id, user2_id = EXCLUDED.user2_id, created_at = EXCLUDED.created_at,
			last_message_at = EXCLUDED.last_message_at, last_message_content = EXCLUDED.last_message_content
	`, summary.ID, summary.User1ID, summary.User2ID, summary.CreatedAt, summary.LastMessageAt, summary.LastMessageContent)
	return err
}

// UpdateSummaryLastMessage overwrites the last-message fields of a summary.
func (s *PostgresStore) UpdateSummaryLastMessage(ctx context.Context, conversationID int64, at time.Time, content string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE conversation_metadata
		SET last_message_at = $1, last_message_content = $2
		WHERE conversation_id = $3
	`, at, content, conversationID)
	return err
}

// GetSummary retrieves a conversation summary by ID.
func (s *PostgresStore) GetSummary(ctx context.Context, conversationID int64) (*models.ConversationSummary, error) {
	summary := &models.ConversationSummary{}
	err := s.pool.QueryRow(ctx, `
		SELECT conversation_id, user1_id, user2_id, created_at, last_message_at, last_message_content
		FROM conversation_metadata WHERE conversation_id = $1
	`, conversationID).Scan(
		&summary.ID,
		&summary.User1ID,
		&summary.User2ID,
		&summary.CreatedAt,
		&summary.LastMessageAt,
		&summary.LastMessageContent,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	summary.CreatedAt = summary.CreatedAt.UTC()
	if summary.LastMessageAt != nil {
		at := summary.LastMessageAt.UTC()
		summary.LastMessageAt = &at
	}
	return summary, nil
}

// InsertUserConversation writes a conversations_by_user row.
func (s *PostgresStore) InsertUserConversation(ctx context.Context, row *models.UserConversation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations_by_user (
			user_id, last_message_at, conversation_id, other_user_id, last_message_content
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, last_message_at, conversation_id) DO UPDATE
		SET other_user_id = EXCLUDED.other_user_id, last_message_content = EXCLUDED.last_message_content
	`, row.UserID, row.LastMessageAt, row.ConversationID, row.OtherUserID, row.LastMessageContent)
	return err
}

// ScanUserConversations reads a user's index rows newest first.
func (s *PostgresStore) ScanUserConversations(ctx context.Context, userID int64, limit int) ([]models.UserConversation, error) {
	query := `
		SELECT user_id, last_message_at, conversation_id, other_user_id, last_message_content
		FROM conversations_by_user
		WHERE user_id = $1
		ORDER BY last_message_at DESC, conversation_id DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]models.UserConversation, 0)
	for rows.Next() {
		var row models.UserConversation
		if err := rows.Scan(&row.UserID, &row.LastMessageAt, &row.ConversationID, &row.OtherUserID, &row.LastMessageContent); err != nil {
			return nil, err
		}
		row.LastMessageAt = row.LastMessageAt.UTC()
		result = append(result, row)
	}

	return result, rows.Err()
}

// GetConversationID looks up the conversation of a normalized user pair.
func (s *PostgresStore) GetConversationID(ctx context.Context, user1ID, user2ID int64) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		SELECT conversation_id FROM user_conversations_lookup
		WHERE user1_id = $1 AND user2_id = $2
	`, user1ID, user2ID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

// InsertConversationID writes the lookup row unless the pair already has one.
func (s *PostgresStore) InsertConversationID(ctx context.Context, user1ID, user2ID, conversationID int64) (int64, bool, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_conversations_lookup (user1_id, user2_id, conversation_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user1_id, user2_id) DO NOTHING
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

// isPostgresTransient reports whether err is a connection-level failure.
func isPostgresTransient(err error) bool {
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception; 57P03: cannot_connect_now; 53300: too_many_connections
		return strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "57P03" || pgErr.Code == "53300"
	}
	return false
}
