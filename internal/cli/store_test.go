package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/messenger/internal/messenger"
	"github.com/eldtechnologies/messenger/internal/models"
	"github.com/eldtechnologies/messenger/internal/store"
)

// useSQLite points the store configuration at a fresh SQLite file.
func useSQLite(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "messenger.db")
	t.Setenv("STORE_BACKEND", store.BackendSQLite)
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("ENV", "test")
	t.Setenv("REDIS_URL", "")
	return path
}

func TestSchemaCommand(t *testing.T) {
	path := useSQLite(t)

	out, err := execute(t, "--format", "json", "schema", "--attempts", "1")
	require.NoError(t, err)

	var result map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "ok", result["status"])
	assert.Equal(t, store.BackendSQLite, result["backend"])

	tables, err := store.NewSQLiteStore(context.Background(), path)
	require.NoError(t, err)
	defer tables.Close()
	count, err := tables.CountMessages(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRepairCommand(t *testing.T) {
	path := useSQLite(t)
	ctx := context.Background()

	// A message whose fan-out stopped after the first step.
	tables, err := store.NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, tables.EnsureSchema(ctx))
	require.NoError(t, tables.InsertMessage(ctx, &models.Message{
		ID:             7,
		ConversationID: 42,
		SenderID:       9,
		ReceiverID:     5,
		Content:        "stranded",
		CreatedAt:      time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}))
	tables.Close()

	out, err := execute(t, "--format", "json", "repair", "42")
	require.NoError(t, err)

	var reports []messenger.RepairReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, messenger.RepairReport{
		ConversationID:   42,
		Messages:         1,
		SummaryCreated:   true,
		LookupRestored:   true,
		IndexRowsWritten: 2,
	}, reports[0])

	out, err = execute(t, "repair", "42")
	require.NoError(t, err)
	assert.Equal(t, "conversation 42: consistent (1 messages)\n", out)
}

func TestRepairUnknownConversation(t *testing.T) {
	useSQLite(t)

	_, err := execute(t, "repair", "--attempts", "1", "404")
	require.Error(t, err)
	assert.Equal(t, messenger.KindNotFound, messenger.KindOf(err))
	assert.Contains(t, err.Error(), fmt.Sprint(404))
}
