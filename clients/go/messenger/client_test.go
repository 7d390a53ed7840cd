package messenger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SendMessage(t *testing.T) {
	created := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/messages", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req SendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, SendMessageRequest{SenderID: 1, ReceiverID: 2, Content: "hi"}, req)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Message{ID: 10, ConversationID: 5, SenderID: 1, ReceiverID: 2, Content: "hi", CreatedAt: created})
	}))
	defer srv.Close()

	msg, err := NewClient(srv.URL).SendMessage(context.Background(), 1, 2, "hi")
	require.NoError(t, err)

	want := &Message{ID: 10, ConversationID: 5, SenderID: 1, ReceiverID: 2, Content: "hi", CreatedAt: created}
	if diff := cmp.Diff(want, msg); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_GetMessagesBefore(t *testing.T) {
	before := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/messages/conversation/5/before", r.URL.Path)
		assert.Equal(t, "2024-06-01T10:00:00Z", r.URL.Query().Get("before_timestamp"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))

		json.NewEncoder(w).Encode(MessagesPage{Total: 11, Page: 2, Limit: 10, Data: []Message{{ID: 1}}})
	}))
	defer srv.Close()

	page, err := NewClient(srv.URL).GetMessages(context.Background(), 5, 2, 10, before)
	require.NoError(t, err)
	assert.Equal(t, 11, page.Total)
	assert.Len(t, page.Data, 1)
}

func TestClient_GetUserConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/conversations/user/9", r.URL.Path)
		assert.Empty(t, r.URL.RawQuery)

		json.NewEncoder(w).Encode(ConversationsPage{Total: 1, Page: 1, Limit: 20, Data: []Conversation{{ID: 3, LastMessageContent: "hi back"}}})
	}))
	defer srv.Close()

	page, err := NewClient(srv.URL).GetUserConversations(context.Background(), 9, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "hi back", page.Data[0].LastMessageContent)
}

func TestClient_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"conversation not found"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetConversation(context.Background(), 404)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "conversation not found")
}
