package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/messenger/internal/api"
	"github.com/eldtechnologies/messenger/internal/messenger"
	"github.com/eldtechnologies/messenger/internal/models"
	"github.com/eldtechnologies/messenger/internal/store"
)

func newAPIServer(t *testing.T) string {
	t.Helper()

	ctx := context.Background()
	tables, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "cli.db"))
	require.NoError(t, err)
	require.NoError(t, tables.EnsureSchema(ctx))
	t.Cleanup(tables.Close)

	svc, err := messenger.NewService(tables, messenger.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewRouter(zerolog.Nop(), api.Deps{Service: svc, Tables: tables}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestSendAndListThroughAPI(t *testing.T) {
	url := newAPIServer(t)

	out, err := execute(t, "--url", url, "--format", "json", "send", "5", "9", "hello")
	require.NoError(t, err)
	var first models.Message
	require.NoError(t, json.Unmarshal([]byte(out), &first))
	assert.Equal(t, int64(5), first.SenderID)
	assert.NotZero(t, first.ConversationID)

	out, err = execute(t, "--url", url, "send", "9", "5", "hi back")
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("in conversation %d", first.ConversationID))

	out, err = execute(t, "--url", url, "--format", "json", "messages", "--limit", "1", fmt.Sprint(first.ConversationID))
	require.NoError(t, err)
	var page models.Page[models.Message]
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "hi back", page.Data[0].Content)

	out, err = execute(t, "--url", url, "conversations", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "hi back")
	assert.Contains(t, out, "page 1, 1 of 1 conversations")

	out, err = execute(t, "--url", url, "conversation", fmt.Sprint(first.ConversationID))
	require.NoError(t, err)
	assert.Contains(t, out, "between 5 and 9")
	assert.Contains(t, out, `"hi back"`)
}

func TestAPIErrorsSurface(t *testing.T) {
	url := newAPIServer(t)

	_, err := execute(t, "--url", url, "conversation", "987654321")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = execute(t, "--url", url, "send", "3", "3", "to myself")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
