package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/messenger/internal/models"
)

var (
	errFlaky = errors.New("flaky")
	errFatal = errors.New("fatal")
)

// flakyTables fails the first failures calls of each operation with err.
type flakyTables struct {
	Tables
	failures int
	err      error
	calls    map[string]int
}

func newFlakyTables(t *testing.T, failures int, err error) *flakyTables {
	return &flakyTables{Tables: createTestSQLite(t), failures: failures, err: err, calls: map[string]int{}}
}

func (f *flakyTables) fail(op string) error {
	f.calls[op]++
	if f.calls[op] <= f.failures {
		return f.err
	}
	return nil
}

func (f *flakyTables) InsertMessage(ctx context.Context, msg *models.Message) error {
	if err := f.fail("insert_message"); err != nil {
		return err
	}
	return f.Tables.InsertMessage(ctx, msg)
}

func (f *flakyTables) CountMessages(ctx context.Context, conversationID int64, before *time.Time) (int, error) {
	if err := f.fail("count_messages"); err != nil {
		return 0, err
	}
	return f.Tables.CountMessages(ctx, conversationID, before)
}

func (f *flakyTables) InsertConversationID(ctx context.Context, user1ID, user2ID, conversationID int64) (int64, bool, error) {
	if err := f.fail("insert_conversation_id"); err != nil {
		return 0, false, err
	}
	return f.Tables.InsertConversationID(ctx, user1ID, user2ID, conversationID)
}

func isFlaky(err error) bool { return errors.Is(err, errFlaky) }

func newTestGateway(tables Tables, retries int) *Gateway {
	return NewGateway(tables, isFlaky, GatewayOptions{
		Retries:         retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}, zerolog.Nop())
}

func TestGateway_RetriesTransientErrors(t *testing.T) {
	ctx := context.Background()
	flaky := newFlakyTables(t, 2, errFlaky)
	gw := newTestGateway(flaky, 3)

	require.NoError(t, gw.InsertMessage(ctx, &models.Message{
		ID: 1, ConversationID: 9, SenderID: 1, ReceiverID: 2, Content: "x", CreatedAt: time.Now(),
	}))
	assert.Equal(t, 3, flaky.calls["insert_message"])

	count, err := gw.CountMessages(ctx, 9, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGateway_ExhaustedRetriesBecomeConnectionUnavailable(t *testing.T) {
	ctx := context.Background()
	flaky := newFlakyTables(t, 10, errFlaky)
	gw := newTestGateway(flaky, 2)

	_, err := gw.CountMessages(ctx, 9, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionUnavailable)
	assert.Equal(t, 3, flaky.calls["count_messages"])
}

func TestGateway_PermanentErrorsPassThrough(t *testing.T) {
	ctx := context.Background()
	flaky := newFlakyTables(t, 10, errFatal)
	gw := newTestGateway(flaky, 5)

	_, _, err := gw.InsertConversationID(ctx, 1, 2, 3)
	require.ErrorIs(t, err, errFatal)
	assert.NotErrorIs(t, err, ErrConnectionUnavailable)
	assert.Equal(t, 1, flaky.calls["insert_conversation_id"])
}

func TestGateway_RetriedLookupInsertStaysOurs(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(newFlakyTables(t, 1, errFlaky), 3)

	id, ours, err := gw.InsertConversationID(ctx, 1, 2, 42)
	require.NoError(t, err)
	assert.True(t, ours)
	assert.Equal(t, int64(42), id)
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	gw, err := Open(ctx, Config{
		Backend:    BackendSQLite,
		SQLitePath: t.TempDir() + "/open.db",
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(gw.Close)

	require.NoError(t, gw.Ping(ctx))
	summary, err := gw.GetSummary(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, summary)
}

func TestOpen_InvalidConfigIsNotRetried(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown backend", Config{Backend: "mongodb"}},
		{"bad keyspace", Config{Backend: BackendCassandra, CassandraHosts: []string{"127.0.0.1"}, Keyspace: "drop table;"}},
		{"postgres without url", Config{Backend: BackendPostgres}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			_, err := Open(ctx, tt.cfg, zerolog.Nop())
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Less(t, time.Since(start), time.Second)
		})
	}
}

func TestOpen_GivesUpAfterBoundedAttempts(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, Config{
		Backend:               BackendPostgres,
		DatabaseURL:           "postgres://nobody@127.0.0.1:1/none?connect_timeout=1",
		ConnectAttempts:       3,
		ConnectInitialBackoff: time.Millisecond,
		ConnectMaxBackoff:     2 * time.Millisecond,
	}, zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionUnavailable)
	assert.Contains(t, err.Error(), "after 3 attempts")
}
