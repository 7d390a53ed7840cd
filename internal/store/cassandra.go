package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/gocql/gocql"

	"github.com/eldtechnologies/messenger/internal/models"
)

// keyspaceRegex matches legal unquoted CQL keyspace names.
var keyspaceRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,47}$`)

// CassandraStore handles Cassandra operations.
// Statements name the keyspace explicitly so one session serves schema setup and queries.
type CassandraStore struct {
	session           *gocql.Session
	keyspace          string
	replicationFactor int
}

// NewCassandraStore creates a new Cassandra store with a pooled session.
func NewCassandraStore(ctx context.Context, cfg Config) (*CassandraStore, error) {
	if !keyspaceRegex.MatchString(cfg.Keyspace) {
		return nil, fmt.Errorf("%w: keyspace %q", ErrInvalidConfig, cfg.Keyspace)
	}
	if len(cfg.CassandraHosts) == 0 {
		return nil, fmt.Errorf("%w: no cassandra hosts", ErrInvalidConfig)
	}

	cluster := gocql.NewCluster(cfg.CassandraHosts...)
	if cfg.CassandraPort > 0 {
		cluster.Port = cfg.CassandraPort
	}
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second

	consistency := gocql.Quorum
	if cfg.Consistency != "" {
		c, err := gocql.ParseConsistencyWrapper(cfg.Consistency)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		consistency = c
	}
	cluster.Consistency = consistency

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}

	rf := cfg.ReplicationFactor
	if rf <= 0 {
		rf = 1
	}

	s := &CassandraStore{session: session, keyspace: cfg.Keyspace, replicationFactor: rf}
	if err := s.Ping(ctx); err != nil {
		session.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the session and its connection pool.
func (s *CassandraStore) Close() {
	s.session.Close()
}

// Ping checks the Cassandra connection.
func (s *CassandraStore) Ping(ctx context.Context) error {
	return s.session.Query(`SELECT release_version FROM system.local`).WithContext(ctx).Exec()
}

// cql binds the keyspace into a statement template.
func (s *CassandraStore) cql(stmt string) string {
	return fmt.Sprintf(stmt, s.keyspace)
}

// EnsureSchema creates the keyspace and tables if they don't exist.
func (s *CassandraStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE KEYSPACE IF NOT EXISTS %[1]s
		WITH REPLICATION = {'class': 'SimpleStrategy', 'replication_factor': ` + strconv.Itoa(s.replicationFactor) + `}`,

		`CREATE TABLE IF NOT EXISTS %[1]s.messages_by_conversation (
			conversation_id bigint,
			created_at timestamp,
			message_id bigint,
			sender_id int,
			receiver_id int,
			content text,
			PRIMARY KEY (conversation_id, created_at, message_id)
		) WITH CLUSTERING ORDER BY (created_at DESC, message_id DESC)`,

		`CREATE TABLE IF NOT EXISTS %[1]s.conversations_by_user (
			user_id int,
			last_message_at timestamp,
			conversation_id bigint,
			other_user_id int,
			last_message_content text,
			PRIMARY KEY (user_id, last_message_at, conversation_id)
		) WITH CLUSTERING ORDER BY (last_message_at DESC, conversation_id DESC)`,

		`CREATE TABLE IF NOT EXISTS %[1]s.conversation_metadata (
			conversation_id bigint,
			user1_id int,
			user2_id int,
			created_at timestamp,
			last_message_at timestamp,
			last_message_content text,
			PRIMARY KEY (conversation_id)
		)`,

		`CREATE TABLE IF NOT EXISTS %[1]s.user_conversations_lookup (
			user1_id int,
			user2_id int,
			conversation_id bigint,
			PRIMARY KEY ((user1_id, user2_id))
		)`,
	}

	for _, stmt := range stmts {
		if err := s.session.Query(s.cql(stmt)).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// InsertMessage writes a message row.
func (s *CassandraStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	return s.session.Query(s.cql(`
		INSERT INTO %[1]s.messages_by_conversation (
			conversation_id, created_at, message_id, sender_id, receiver_id, content
		) VALUES (?, ?, ?, ?, ?, ?)
	`), msg.ConversationID, msg.CreatedAt, msg.ID, msg.SenderID, msg.ReceiverID, msg.Content).
		WithContext(ctx).Exec()
}

// CountMessages counts a conversation's messages, optionally only those before a time.
func (s *CassandraStore) CountMessages(ctx context.Context, conversationID int64, before *time.Time) (int, error) {
	stmt := `SELECT COUNT(*) FROM %[1]s.messages_by_conversation WHERE conversation_id = ?`
	args := []interface{}{conversationID}
	if before != nil {
		stmt += ` AND created_at < ?`
		args = append(args, *before)
	}

	var count int64
	if err := s.session.Query(s.cql(stmt), args...).WithContext(ctx).Scan(&count); err != nil {
		return 0, err
	}
	return int(count), nil
}

// ScanMessages reads a conversation's messages in clustering order.
func (s *CassandraStore) ScanMessages(ctx context.Context, conversationID int64, before *time.Time, limit int) ([]models.Message, error) {
	stmt := `
		SELECT conversation_id, created_at, message_id, sender_id, receiver_id, content
		FROM %[1]s.messages_by_conversation
		WHERE conversation_id = ?`
	args := []interface{}{conversationID}
	if before != nil {
		stmt += ` AND created_at < ?`
		args = append(args, *before)
	}
	if limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, limit)
	}

	iter := s.session.Query(s.cql(stmt), args...).WithContext(ctx).Iter()

	messages := make([]models.Message, 0)
	var msg models.Message
	for iter.Scan(&msg.ConversationID, &msg.CreatedAt, &msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content) {
		msg.CreatedAt = msg.CreatedAt.UTC()
		messages = append(messages, msg)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	return messages, nil
}

// InsertSummary writes a conversation_metadata row.
func (s *CassandraStore) InsertSummary(ctx context.Context, summary *models.ConversationSummary) error {
	return s.session.Query(s.cql(`
		INSERT INTO %[1]s.conversation_metadata (
			conversation_id, user1_id, user2_id, created_at, last_message_at, last_message_content
		) VALUES (?, ?, ?, ?, ?, ?)
	`), summary.ID, summary.User1ID, summary.User2ID, summary.CreatedAt,
		summary.LastMessageAt, summary.LastMessageContent).
		WithContext(ctx).Exec()
}

// UpdateSummaryLastMessage overwrites the last-message fields of a summary.
func (s *CassandraStore) UpdateSummaryLastMessage(ctx context.Context, conversationID int64, at time.Time, content string) error {
	return s.session.Query(s.cql(`
		UPDATE %[1]s.conversation_metadata
		SET last_message_at = ?, last_message_content = ?
		WHERE conversation_id = ?
	`), at, content, conversationID).WithContext(ctx).Exec()
}

// GetSummary retrieves a conversation summary by ID.
func (s *CassandraStore) GetSummary(ctx context.Context, conversationID int64) (*models.ConversationSummary, error) {
	summary := &models.ConversationSummary{}
	var user1ID, user2ID *int64
	err := s.session.Query(s.cql(`
		SELECT conversation_id, user1_id, user2_id, created_at, last_message_at, last_message_content
		FROM %[1]s.conversation_metadata WHERE conversation_id = ?
	`), conversationID).WithContext(ctx).Scan(
		&summary.ID,
		&user1ID,
		&user2ID,
		&summary.CreatedAt,
		&summary.LastMessageAt,
		&summary.LastMessageContent,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	// An UPDATE of a missing row creates one holding only the updated
	// columns; without participants it is not a summary.
	if user1ID == nil || user2ID == nil {
		return nil, nil
	}
	summary.User1ID, summary.User2ID = *user1ID, *user2ID

	summary.CreatedAt = summary.CreatedAt.UTC()
	if summary.LastMessageAt != nil {
		at := summary.LastMessageAt.UTC()
		summary.LastMessageAt = &at
	}
	return summary, nil
}

// InsertUserConversation writes a conversations_by_user row.
func (s *CassandraStore) InsertUserConversation(ctx context.Context, row *models.UserConversation) error {
	return s.session.Query(s.cql(`
		INSERT INTO %[1]s.conversations_by_user (
			user_id, last_message_at, conversation_id, other_user_id, last_message_content
		) VALUES (?, ?, ?, ?, ?)
	`), row.UserID, row.LastMessageAt, row.ConversationID, row.OtherUserID, row.LastMessageContent).
		WithContext(ctx).Exec()
}

// ScanUserConversations reads a user's index rows in clustering order.
func (s *CassandraStore) ScanUserConversations(ctx context.Context, userID int64, limit int) ([]models.UserConversation, error) {
	stmt := `
		SELECT user_id, last_message_at, conversation_id, other_user_id, last_message_content
		FROM %[1]s.conversations_by_user
		WHERE user_id = ?`
	args := []interface{}{userID}
	if limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, limit)
	}

	iter := s.session.Query(s.cql(stmt), args...).WithContext(ctx).Iter()

	rows := make([]models.UserConversation, 0)
	var row models.UserConversation
	for iter.Scan(&row.UserID, &row.LastMessageAt, &row.ConversationID, &row.OtherUserID, &row.LastMessageContent) {
		row.LastMessageAt = row.LastMessageAt.UTC()
		rows = append(rows, row)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	return rows, nil
}

// GetConversationID looks up the conversation of a normalized user pair.
func (s *CassandraStore) GetConversationID(ctx context.Context, user1ID, user2ID int64) (int64, bool, error) {
	var id int64
	err := s.session.Query(s.cql(`
		SELECT conversation_id FROM %[1]s.user_conversations_lookup
		WHERE user1_id = ? AND user2_id = ?
	`), user1ID, user2ID).WithContext(ctx).Scan(&id)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

// InsertConversationID writes the lookup row with a lightweight transaction.
func (s *CassandraStore) InsertConversationID(ctx context.Context, user1ID, user2ID, conversationID int64) (int64, bool, error) {
	existing := map[string]interface{}{}
	applied, err := s.session.Query(s.cql(`
		INSERT INTO %[1]s.user_conversations_lookup (user1_id, user2_id, conversation_id)
		VALUES (?, ?, ?) IF NOT EXISTS
	`), user1ID, user2ID, conversationID).WithContext(ctx).MapScanCAS(existing)
	if err != nil {
		return 0, false, err
	}
	if applied {
		return conversationID, true, nil
	}

	// A retried insert can find its own earlier write.
	id, _ := existing["conversation_id"].(int64)
	return id, id == conversationID, nil
}

// isCassandraTransient reports whether err is worth retrying.
func isCassandraTransient(err error) bool {
	if errors.Is(err, gocql.ErrNoConnections) ||
		errors.Is(err, gocql.ErrConnectionClosed) ||
		errors.Is(err, gocql.ErrTimeoutNoResponse) {
		return true
	}

	var reqErr gocql.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.Code() {
		case gocql.ErrCodeUnavailable, gocql.ErrCodeOverloaded, gocql.ErrCodeBootstrapping,
			gocql.ErrCodeWriteTimeout, gocql.ErrCodeReadTimeout:
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
