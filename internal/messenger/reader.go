package messenger

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/messenger/internal/metrics"
	"github.com/eldtechnologies/messenger/internal/models"
	"github.com/eldtechnologies/messenger/internal/store"
)

// Reader serves the paginated read paths.
//
// The tables can only scan a partition in clustering order, so a page is
// produced by reading page*pageSize rows and dropping the ones before it.
// Cost grows with the page number; partitions are assumed to stay small.
type Reader struct {
	tables    store.Tables
	summaries *summaries
	logger    zerolog.Logger
}

func validatePage(op string, page, pageSize int) error {
	if page < 1 {
		return invalidArgument(op, "page must be >= 1, got %d", page)
	}
	if pageSize < 1 {
		return invalidArgument(op, "page size must be >= 1, got %d", pageSize)
	}
	return nil
}

// window returns the rows of page from rows that start at the first row of page 1.
func window[T any](rows []T, page, pageSize int) []T {
	offset := (page - 1) * pageSize
	if offset >= len(rows) {
		return []T{}
	}
	end := offset + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

// ListConversationMessages returns one page of a conversation, newest first.
// With before set, only messages created strictly earlier are considered.
func (r *Reader) ListConversationMessages(ctx context.Context, conversationID int64, page, pageSize int, before *time.Time) (*models.Page[models.Message], error) {
	const op = "list_conversation_messages"

	if err := validatePage(op, page, pageSize); err != nil {
		return nil, err
	}

	total, err := r.tables.CountMessages(ctx, conversationID, before)
	if err != nil {
		return nil, storeError(op, conversationID, err)
	}

	result := &models.Page[models.Message]{
		Total: total,
		Page:  page,
		Limit: pageSize,
		Data:  []models.Message{},
	}
	if (page-1)*pageSize >= total {
		return result, nil
	}

	rows, err := r.tables.ScanMessages(ctx, conversationID, before, page*pageSize)
	if err != nil {
		return nil, storeError(op, conversationID, err)
	}
	result.Data = window(rows, page, pageSize)

	return result, nil
}

// ListUserConversations returns one page of a user's conversations, most
// recently active first.
//
// The user index gets a row per message, so the whole partition is read and
// only the newest row of each conversation is kept; Total counts distinct
// conversations. Rows whose summary is missing are skipped.
func (r *Reader) ListUserConversations(ctx context.Context, userID int64, page, pageSize int) (*models.Page[models.ConversationView], error) {
	const op = "list_user_conversations"

	if err := validatePage(op, page, pageSize); err != nil {
		return nil, err
	}

	rows, err := r.tables.ScanUserConversations(ctx, userID, 0)
	if err != nil {
		return nil, storeError(op, 0, err)
	}

	latest := make([]models.UserConversation, 0, len(rows))
	seen := make(map[int64]struct{}, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.ConversationID]; ok {
			continue
		}
		seen[row.ConversationID] = struct{}{}
		latest = append(latest, row)
	}

	result := &models.Page[models.ConversationView]{
		Total: len(latest),
		Page:  page,
		Limit: pageSize,
		Data:  []models.ConversationView{},
	}

	for _, row := range window(latest, page, pageSize) {
		summary, err := r.summaries.get(ctx, row.ConversationID)
		if err != nil {
			return nil, storeError(op, row.ConversationID, err)
		}
		if summary == nil {
			metrics.SkippedIndexRows.Inc()
			r.logger.Warn().
				Int64("user_id", userID).
				Int64("conversation_id", row.ConversationID).
				Msg("Index row without summary, skipping")
			continue
		}
		result.Data = append(result.Data, models.ConversationView{
			ID:                 summary.ID,
			User1ID:            summary.User1ID,
			User2ID:            summary.User2ID,
			OtherUserID:        summary.OtherUser(userID),
			LastMessageAt:      row.LastMessageAt,
			LastMessageContent: row.LastMessageContent,
		})
	}

	return result, nil
}

// GetConversation returns a conversation summary or a KindNotFound error.
func (r *Reader) GetConversation(ctx context.Context, conversationID int64) (*models.ConversationSummary, error) {
	const op = "get_conversation"

	summary, err := r.summaries.get(ctx, conversationID)
	if err != nil {
		return nil, storeError(op, conversationID, err)
	}
	if summary == nil {
		return nil, notFound(op, conversationID)
	}
	return summary, nil
}
