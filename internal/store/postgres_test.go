package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, url)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.EnsureSchema(ctx))
	_, err = s.pool.Exec(ctx, `TRUNCATE messages_by_conversation, conversations_by_user, conversation_metadata, user_conversations_lookup`)
	require.NoError(t, err)

	runTablesSuite(t, s)
}

func TestIsPostgresTransient(t *testing.T) {
	assert.True(t, isPostgresTransient(&pgconn.PgError{Code: "08006"}))
	assert.True(t, isPostgresTransient(&pgconn.PgError{Code: "57P03"}))
	assert.True(t, isPostgresTransient(&pgconn.PgError{Code: "53300"}))
	assert.False(t, isPostgresTransient(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isPostgresTransient(errors.New("boom")))
}
