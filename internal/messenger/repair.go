package messenger

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/messenger/internal/models"
	"github.com/eldtechnologies/messenger/internal/store"
)

// RepairReport lists what a repair changed.
type RepairReport struct {
	ConversationID   int64 `json:"conversation_id"`
	Messages         int   `json:"messages"`
	SummaryCreated   bool  `json:"summary_created"`
	SummaryUpdated   bool  `json:"summary_updated"`
	LookupRestored   bool  `json:"lookup_restored"`
	LookupConflict   int64 `json:"lookup_conflict,omitempty"` // conversation the pair resolves to instead
	IndexRowsWritten int   `json:"index_rows_written"`
}

// Changed reports whether the repair wrote anything.
func (r *RepairReport) Changed() bool {
	return r.SummaryCreated || r.SummaryUpdated || r.LookupRestored || r.IndexRowsWritten > 0
}

// Repairer rebuilds the denormalized rows of a conversation from its
// messages, which a partially failed fan-out never loses.
type Repairer struct {
	tables    store.Tables
	summaries *summaries
	logger    zerolog.Logger
}

// RepairConversation brings the summary, the lookup row and both users'
// newest index rows in line with the message partition. Running it twice
// changes nothing the second time.
func (r *Repairer) RepairConversation(ctx context.Context, conversationID int64) (*RepairReport, error) {
	const op = "repair_conversation"

	messages, err := r.tables.ScanMessages(ctx, conversationID, nil, 0)
	if err != nil {
		return nil, storeError(op, conversationID, err)
	}
	if len(messages) == 0 {
		return nil, notFound(op, conversationID)
	}

	report := &RepairReport{ConversationID: conversationID, Messages: len(messages)}
	newest := messages[0]
	oldest := messages[len(messages)-1]
	lo, hi := normalize(newest.SenderID, newest.ReceiverID)

	summary, err := r.tables.GetSummary(ctx, conversationID)
	if err != nil {
		return nil, storeError(op, conversationID, err)
	}

	switch {
	case summary == nil:
		at, content := newest.CreatedAt, newest.Content
		summary = &models.ConversationSummary{
			ID:                 conversationID,
			User1ID:            lo,
			User2ID:            hi,
			CreatedAt:          oldest.CreatedAt,
			LastMessageAt:      &at,
			LastMessageContent: &content,
		}
		if err := r.tables.InsertSummary(ctx, summary); err != nil {
			return nil, storeError(op, conversationID, err)
		}
		report.SummaryCreated = true
	case summary.LastMessageAt == nil || summary.LastMessageAt.Before(newest.CreatedAt):
		if err := r.tables.UpdateSummaryLastMessage(ctx, conversationID, newest.CreatedAt, newest.Content); err != nil {
			return nil, storeError(op, conversationID, err)
		}
		report.SummaryUpdated = true
	}
	if report.SummaryCreated || report.SummaryUpdated {
		r.summaries.forget(ctx, conversationID, newest.CreatedAt)
	}

	winner, found, err := r.tables.GetConversationID(ctx, lo, hi)
	if err != nil {
		return nil, storeError(op, conversationID, err)
	}
	if !found {
		winner, report.LookupRestored, err = r.tables.InsertConversationID(ctx, lo, hi, conversationID)
		if err != nil {
			return nil, storeError(op, conversationID, err)
		}
	}
	if winner != conversationID {
		report.LookupConflict = winner
		r.logger.Warn().
			Int64("conversation_id", conversationID).
			Int64("lookup_conversation_id", winner).
			Msg("Pair resolves to another conversation")
	}

	for _, row := range []models.UserConversation{
		{UserID: newest.SenderID, OtherUserID: newest.ReceiverID},
		{UserID: newest.ReceiverID, OtherUserID: newest.SenderID},
	} {
		present, err := r.hasIndexRow(ctx, row.UserID, conversationID, newest)
		if err != nil {
			return nil, storeError(op, conversationID, err)
		}
		if present {
			continue
		}
		row.ConversationID = conversationID
		row.LastMessageAt = newest.CreatedAt
		row.LastMessageContent = newest.Content
		if err := r.tables.InsertUserConversation(ctx, &row); err != nil {
			return nil, storeError(op, conversationID, err)
		}
		report.IndexRowsWritten++
	}

	r.logger.Info().
		Int64("conversation_id", conversationID).
		Bool("changed", report.Changed()).
		Msg("Conversation repaired")

	return report, nil
}

func (r *Repairer) hasIndexRow(ctx context.Context, userID, conversationID int64, newest models.Message) (bool, error) {
	rows, err := r.tables.ScanUserConversations(ctx, userID, 0)
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if row.ConversationID == conversationID && row.LastMessageAt.Equal(newest.CreatedAt) {
			return true, nil
		}
	}
	return false, nil
}
