package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/messenger/internal/messenger"
	"github.com/eldtechnologies/messenger/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxContentBytes = 8192
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	svc    *messenger.Service
	tables store.Tables
	cache  *store.RedisCache // nil when REDIS_URL is unset
	logger zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(svc *messenger.Service, tables store.Tables, cache *store.RedisCache, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, tables: tables, cache: cache, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// fail maps a service error to a response. Only not-found and bad input
// are told apart; everything else is a generic server error.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch messenger.KindOf(err) {
	case messenger.KindNotFound:
		h.Error(w, http.StatusNotFound, "conversation not found")
		return
	case messenger.KindInvalidPair:
		h.Error(w, http.StatusBadRequest, "sender and receiver must be two different users")
		return
	case messenger.KindInvalidArgument:
		h.Error(w, http.StatusBadRequest, "invalid pagination parameters")
		return
	}

	event := h.logger.Error().
		Err(err).
		Str("kind", string(messenger.KindOf(err))).
		Str("method", r.Method).
		Str("path", r.URL.Path)
	if step := messenger.StepOf(err); step != "" {
		event = event.Str("step", string(step))
	}
	event.Msg("request failed")

	h.Error(w, http.StatusInternalServerError, "internal server error")
}

// parsePagination reads page and limit query params.
func parsePagination(r *http.Request) (page, limit int, ok bool) {
	page, limit = 1, defaultPageSize

	if s := r.URL.Query().Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return 0, 0, false
		}
		page = n
	}

	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxPageSize {
			return 0, 0, false
		}
		limit = n
	}

	return page, limit, true
}

// parseID parses a positive integer path parameter.
func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
