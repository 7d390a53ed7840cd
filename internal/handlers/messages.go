package handlers

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
}

// SendMessage handles sending a message, creating the conversation on first contact.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	// Parse request body
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// Validate participants (user ids are 32-bit in the tables)
	if !validUserID(req.SenderID) || !validUserID(req.ReceiverID) {
		h.Error(w, http.StatusBadRequest, "sender_id and receiver_id must be positive 32-bit integers")
		return
	}
	if req.SenderID == req.ReceiverID {
		h.Error(w, http.StatusBadRequest, "sender and receiver must be two different users")
		return
	}

	// Validate content
	if strings.TrimSpace(req.Content) == "" {
		h.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	if len(req.Content) > maxContentBytes {
		h.Error(w, http.StatusUnprocessableEntity, "content too long (max 8192 bytes)")
		return
	}

	msg, err := h.svc.RecordMessage(r.Context(), req.SenderID, req.ReceiverID, req.Content)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusCreated, msg)
}

// GetConversationMessages handles listing a conversation's messages, newest first.
func (h *Handler) GetConversationMessages(w http.ResponseWriter, r *http.Request) {
	h.listMessages(w, r, nil)
}

// GetMessagesBefore handles listing a conversation's messages older than before_timestamp.
func (h *Handler) GetMessagesBefore(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("before_timestamp")
	if raw == "" {
		h.Error(w, http.StatusBadRequest, "before_timestamp is required")
		return
	}
	before, ok := parseTimestamp(raw)
	if !ok {
		h.Error(w, http.StatusBadRequest, "before_timestamp must be an ISO 8601 date-time or unix milliseconds")
		return
	}

	h.listMessages(w, r, &before)
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request, before *time.Time) {
	conversationID, ok := parseID(chi.URLParam(r, "conversation_id"))
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid conversation ID")
		return
	}

	page, limit, ok := parsePagination(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "page must be >= 1 and limit between 1 and 100")
		return
	}

	result, err := h.svc.ListConversationMessages(r.Context(), conversationID, page, limit, before)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, result)
}

// timestampLayouts are the before_timestamp forms accepted besides unix
// milliseconds. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp accepts unix milliseconds or an ISO 8601 date-time, with or
// without a zone and fraction.
func parseTimestamp(s string) (time.Time, bool) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func validUserID(id int64) bool {
	return id > 0 && id <= math.MaxInt32
}
