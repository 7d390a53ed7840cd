package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetUserConversations handles listing a user's conversations, most recent first.
func (h *Handler) GetUserConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(chi.URLParam(r, "user_id"))
	if !ok || !validUserID(userID) {
		h.Error(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	page, limit, ok := parsePagination(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "page must be >= 1 and limit between 1 and 100")
		return
	}

	result, err := h.svc.ListUserConversations(r.Context(), userID, page, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, result)
}

// GetConversation handles fetching a single conversation summary.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := parseID(chi.URLParam(r, "conversation_id"))
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid conversation ID")
		return
	}

	summary, err := h.svc.GetConversation(r.Context(), conversationID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, summary)
}
