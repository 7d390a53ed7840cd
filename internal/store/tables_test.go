package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/messenger/internal/models"
)

// runTablesSuite checks the behavior every backend must share.
// Each subtest uses its own ids so the suite can run on a shared keyspace.
func runTablesSuite(t *testing.T, tables Tables) {
	ctx := context.Background()
	base := time.Date(2024, 2, 10, 8, 30, 0, 0, time.UTC)

	t.Run("messages newest first", func(t *testing.T) {
		const conv = 1001
		for i := 0; i < 5; i++ {
			require.NoError(t, tables.InsertMessage(ctx, &models.Message{
				ID:             int64(10 + i),
				ConversationID: conv,
				SenderID:       1,
				ReceiverID:     2,
				Content:        "msg",
				CreatedAt:      base.Add(time.Duration(i) * time.Second),
			}))
		}

		count, err := tables.CountMessages(ctx, conv, nil)
		require.NoError(t, err)
		assert.Equal(t, 5, count)

		rows, err := tables.ScanMessages(ctx, conv, nil, 3)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, int64(14), rows[0].ID)
		assert.Equal(t, int64(12), rows[2].ID)
		assert.True(t, base.Add(4*time.Second).Equal(rows[0].CreatedAt))
		assert.Equal(t, time.UTC, rows[0].CreatedAt.Location())

		all, err := tables.ScanMessages(ctx, conv, nil, 0)
		require.NoError(t, err)
		assert.Len(t, all, 5)
	})

	t.Run("before is strict", func(t *testing.T) {
		const conv = 1002
		for i := 0; i < 4; i++ {
			require.NoError(t, tables.InsertMessage(ctx, &models.Message{
				ID:             int64(20 + i),
				ConversationID: conv,
				SenderID:       1,
				ReceiverID:     2,
				Content:        "msg",
				CreatedAt:      base.Add(time.Duration(i) * time.Second),
			}))
		}

		before := base.Add(2 * time.Second)
		count, err := tables.CountMessages(ctx, conv, &before)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		rows, err := tables.ScanMessages(ctx, conv, &before, 0)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, int64(21), rows[0].ID)
	})

	t.Run("same millisecond orders by message id", func(t *testing.T) {
		const conv = 1003
		for _, id := range []int64{31, 33, 32} {
			require.NoError(t, tables.InsertMessage(ctx, &models.Message{
				ID: id, ConversationID: conv, SenderID: 1, ReceiverID: 2, Content: "tie", CreatedAt: base,
			}))
		}

		rows, err := tables.ScanMessages(ctx, conv, nil, 0)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, []int64{33, 32, 31}, []int64{rows[0].ID, rows[1].ID, rows[2].ID})
	})

	t.Run("summary lifecycle", func(t *testing.T) {
		const conv = 2001
		missing, err := tables.GetSummary(ctx, conv)
		require.NoError(t, err)
		assert.Nil(t, missing)

		require.NoError(t, tables.InsertSummary(ctx, &models.ConversationSummary{
			ID: conv, User1ID: 3, User2ID: 8, CreatedAt: base,
		}))

		summary, err := tables.GetSummary(ctx, conv)
		require.NoError(t, err)
		require.NotNil(t, summary)
		assert.Equal(t, int64(3), summary.User1ID)
		assert.Equal(t, int64(8), summary.User2ID)
		assert.True(t, base.Equal(summary.CreatedAt))
		assert.Nil(t, summary.LastMessageAt)
		assert.Nil(t, summary.LastMessageContent)

		at := base.Add(time.Minute)
		require.NoError(t, tables.UpdateSummaryLastMessage(ctx, conv, at, "latest"))

		summary, err = tables.GetSummary(ctx, conv)
		require.NoError(t, err)
		require.NotNil(t, summary.LastMessageAt)
		assert.True(t, at.Equal(*summary.LastMessageAt))
		assert.Equal(t, "latest", *summary.LastMessageContent)
	})

	t.Run("updating a missing summary leaves it missing", func(t *testing.T) {
		const conv = 2002
		require.NoError(t, tables.UpdateSummaryLastMessage(ctx, conv, base, "orphan"))

		summary, err := tables.GetSummary(ctx, conv)
		require.NoError(t, err)
		assert.Nil(t, summary)
	})

	t.Run("user index keeps every row", func(t *testing.T) {
		const user = 3001
		for i, conv := range []int64{4001, 4002, 4001} {
			require.NoError(t, tables.InsertUserConversation(ctx, &models.UserConversation{
				UserID:             user,
				LastMessageAt:      base.Add(time.Duration(i) * time.Second),
				ConversationID:     conv,
				OtherUserID:        7,
				LastMessageContent: "c",
			}))
		}

		rows, err := tables.ScanUserConversations(ctx, user, 0)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, int64(4001), rows[0].ConversationID)
		assert.Equal(t, int64(4002), rows[1].ConversationID)
		assert.True(t, rows[0].LastMessageAt.After(rows[1].LastMessageAt))

		limited, err := tables.ScanUserConversations(ctx, user, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("lookup insert if absent", func(t *testing.T) {
		_, found, err := tables.GetConversationID(ctx, 5001, 5002)
		require.NoError(t, err)
		assert.False(t, found)

		id, ours, err := tables.InsertConversationID(ctx, 5001, 5002, 6001)
		require.NoError(t, err)
		assert.True(t, ours)
		assert.Equal(t, int64(6001), id)

		id, ours, err = tables.InsertConversationID(ctx, 5001, 5002, 6002)
		require.NoError(t, err)
		assert.False(t, ours)
		assert.Equal(t, int64(6001), id)

		id, found, err = tables.GetConversationID(ctx, 5001, 5002)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, int64(6001), id)
	})

	t.Run("schema is idempotent", func(t *testing.T) {
		require.NoError(t, tables.EnsureSchema(ctx))
		require.NoError(t, tables.Ping(ctx))
	})
}
