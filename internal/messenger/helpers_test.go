package messenger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/messenger/internal/models"
	"github.com/eldtechnologies/messenger/internal/store"
)

var errInjected = errors.New("injected failure")

// seqIDs hands out 1, 2, 3, ...
type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NextID() int64 { return s.n.Add(1) }

// stepClock advances by step on every reading.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), step: time.Second}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

// createTestTables opens an empty SQLite store in a temp dir.
func createTestTables(t *testing.T) *store.SQLiteStore {
	t.Helper()

	ctx := context.Background()
	tables, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "messenger.db"))
	require.NoError(t, err)
	require.NoError(t, tables.EnsureSchema(ctx))
	t.Cleanup(tables.Close)

	return tables
}

func newTestService(t *testing.T, tables store.Tables, cache SummaryCache) *Service {
	t.Helper()

	svc, err := NewService(tables, Options{
		Cache:  cache,
		IDs:    &seqIDs{},
		Clock:  newStepClock(),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	return svc
}

// faultyTables fails selected operations of the wrapped tables.
type faultyTables struct {
	store.Tables

	failInsertMessage error
	failUpdateSummary error
	failIndexFor      map[int64]error // keyed by user id
	hideLookup        bool            // GetConversationID always reports absent
}

func (f *faultyTables) InsertMessage(ctx context.Context, msg *models.Message) error {
	if f.failInsertMessage != nil {
		return f.failInsertMessage
	}
	return f.Tables.InsertMessage(ctx, msg)
}

func (f *faultyTables) UpdateSummaryLastMessage(ctx context.Context, conversationID int64, at time.Time, content string) error {
	if f.failUpdateSummary != nil {
		return f.failUpdateSummary
	}
	return f.Tables.UpdateSummaryLastMessage(ctx, conversationID, at, content)
}

func (f *faultyTables) InsertUserConversation(ctx context.Context, row *models.UserConversation) error {
	if err := f.failIndexFor[row.UserID]; err != nil {
		return err
	}
	return f.Tables.InsertUserConversation(ctx, row)
}

func (f *faultyTables) GetConversationID(ctx context.Context, user1ID, user2ID int64) (int64, bool, error) {
	if f.hideLookup {
		return 0, false, nil
	}
	return f.Tables.GetConversationID(ctx, user1ID, user2ID)
}

// pausingTables can hold one GetSummary call between its table read and its
// return, so a test can interleave a write there.
type pausingTables struct {
	store.Tables

	mu     sync.Mutex
	read   chan struct{}
	resume chan struct{}
}

// pauseNextSummaryRead arms the pause. read closes once the row is loaded;
// closing resume lets the call return it.
func (p *pausingTables) pauseNextSummaryRead() (read chan struct{}, resume chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.read, p.resume = make(chan struct{}), make(chan struct{})
	return p.read, p.resume
}

func (p *pausingTables) GetSummary(ctx context.Context, conversationID int64) (*models.ConversationSummary, error) {
	summary, err := p.Tables.GetSummary(ctx, conversationID)

	p.mu.Lock()
	read, resume := p.read, p.resume
	p.read, p.resume = nil, nil
	p.mu.Unlock()

	if read != nil {
		close(read)
		<-resume
	}
	return summary, err
}
