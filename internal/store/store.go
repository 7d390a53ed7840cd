package store

import (
	"context"
	"errors"
	"time"

	"github.com/eldtechnologies/messenger/internal/models"
)

var (
	// ErrConnectionUnavailable is returned once transient store errors outlast the retry budget.
	ErrConnectionUnavailable = errors.New("store: connection unavailable")

	// ErrInvalidConfig is returned for configuration that no retry can fix.
	ErrInvalidConfig = errors.New("store: invalid configuration")
)

// Tables defines the denormalized tables of the messenger keyspace.
// CassandraStore, PostgresStore and SQLiteStore implement this interface.
// None of the operations span more than one row; callers own cross-table consistency.
//
// A limit <= 0 on a scan reads the whole partition.
// Get operations return a nil value (or false) and a nil error when the row does not exist.
type Tables interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error
	EnsureSchema(ctx context.Context) error

	// messages_by_conversation, newest first
	InsertMessage(ctx context.Context, msg *models.Message) error
	CountMessages(ctx context.Context, conversationID int64, before *time.Time) (int, error)
	ScanMessages(ctx context.Context, conversationID int64, before *time.Time, limit int) ([]models.Message, error)

	// conversation_metadata
	InsertSummary(ctx context.Context, summary *models.ConversationSummary) error
	UpdateSummaryLastMessage(ctx context.Context, conversationID int64, at time.Time, content string) error
	GetSummary(ctx context.Context, conversationID int64) (*models.ConversationSummary, error)

	// conversations_by_user, newest first
	InsertUserConversation(ctx context.Context, row *models.UserConversation) error
	ScanUserConversations(ctx context.Context, userID int64, limit int) ([]models.UserConversation, error)

	// user_conversations_lookup
	GetConversationID(ctx context.Context, user1ID, user2ID int64) (int64, bool, error)
	// InsertConversationID writes the lookup row only if the pair has none yet.
	// It returns the conversation id the pair resolves to afterwards and whether it is ours.
	InsertConversationID(ctx context.Context, user1ID, user2ID, conversationID int64) (int64, bool, error)
}

// Config selects and configures a Tables backend.
type Config struct {
	Backend string // "cassandra", "postgres" or "sqlite"

	CassandraHosts    []string
	CassandraPort     int
	Keyspace          string
	ReplicationFactor int
	Consistency       string

	DatabaseURL string
	SQLitePath  string

	// Connection bootstrap
	ConnectAttempts       int
	ConnectInitialBackoff time.Duration
	ConnectMaxBackoff     time.Duration

	// Per-operation retry of transient errors
	OpRetries int
}

// Backends
const (
	BackendCassandra = "cassandra"
	BackendPostgres  = "postgres"
	BackendSQLite    = "sqlite"
)

// millis converts a time to the millisecond precision of the store.
func millis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}
