package messenger

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/messenger/internal/metrics"
	"github.com/eldtechnologies/messenger/internal/models"
	"github.com/eldtechnologies/messenger/internal/store"
)

// Writer records messages into every table that serves a read path.
type Writer struct {
	resolver  *Resolver
	tables    store.Tables
	summaries *summaries
	ids       IDGenerator
	clock     Clock
	logger    zerolog.Logger
}

// RecordMessage stores a message from senderID to receiverID.
//
// The writes run one after another: message row, summary, sender index,
// receiver index. All four carry the same timestamp. The first failure stops
// the sequence and is returned as KindWriteFailure with its Step; rows written
// before it stay, the message row being the ground truth a repair works from.
func (w *Writer) RecordMessage(ctx context.Context, senderID, receiverID int64, content string) (*models.Message, error) {
	const op = "record_message"

	conv, err := w.resolver.ResolveOrCreate(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}

	now := stamp(w.clock)
	msg := &models.Message{
		ID:             w.ids.NextID(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		CreatedAt:      now,
	}

	steps := []struct {
		step  Step
		write func() error
	}{
		{StepMessage, func() error {
			return w.tables.InsertMessage(ctx, msg)
		}},
		{StepSummary, func() error {
			defer w.summaries.forget(ctx, conv.ID, now)
			return w.tables.UpdateSummaryLastMessage(ctx, conv.ID, now, content)
		}},
		{StepSenderIndex, func() error {
			return w.tables.InsertUserConversation(ctx, &models.UserConversation{
				UserID:             senderID,
				LastMessageAt:      now,
				ConversationID:     conv.ID,
				OtherUserID:        receiverID,
				LastMessageContent: content,
			})
		}},
		{StepReceiverIndex, func() error {
			return w.tables.InsertUserConversation(ctx, &models.UserConversation{
				UserID:             receiverID,
				LastMessageAt:      now,
				ConversationID:     conv.ID,
				OtherUserID:        senderID,
				LastMessageContent: content,
			})
		}},
	}

	for _, s := range steps {
		if err := s.write(); err != nil {
			metrics.FanoutWrites.WithLabelValues(string(s.step), "failure").Inc()
			w.logger.Error().
				Err(err).
				Str("step", string(s.step)).
				Int64("conversation_id", conv.ID).
				Int64("message_id", msg.ID).
				Msg("Message fan-out incomplete")
			return nil, &Error{
				Kind:           KindWriteFailure,
				Op:             op,
				Step:           s.step,
				ConversationID: conv.ID,
				Err:            err,
			}
		}
		metrics.FanoutWrites.WithLabelValues(string(s.step), "success").Inc()
	}

	metrics.MessagesRecorded.Inc()
	return msg, nil
}
