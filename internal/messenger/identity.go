package messenger

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/messenger/internal/metrics"
	"github.com/eldtechnologies/messenger/internal/models"
	"github.com/eldtechnologies/messenger/internal/store"
)

// Resolver maps an unordered pair of users to their one conversation.
type Resolver struct {
	tables    store.Tables
	summaries *summaries
	ids       IDGenerator
	clock     Clock
	logger    zerolog.Logger
}

// normalize orders a pair the way user_conversations_lookup keys it.
func normalize(a, b int64) (lo, hi int64) {
	if a < b {
		return a, b
	}
	return b, a
}

func validatePair(op string, a, b int64) error {
	if a <= 0 || b <= 0 {
		return &Error{Kind: KindInvalidPair, Op: op, Err: errors.New("user ids must be positive")}
	}
	if a == b {
		return &Error{Kind: KindInvalidPair, Op: op, Err: errors.New("a user cannot converse with themself")}
	}
	return nil
}

// ResolveOrCreate returns the conversation between userA and userB, creating
// it on first contact. Argument order does not matter.
//
// Creation writes the summary and then claims the lookup row with an
// insert-if-absent. A writer that loses the claim leaves its summary behind
// as an orphan and returns the winner's conversation.
func (r *Resolver) ResolveOrCreate(ctx context.Context, userA, userB int64) (*models.ConversationSummary, error) {
	const op = "resolve_or_create"

	if err := validatePair(op, userA, userB); err != nil {
		return nil, err
	}
	lo, hi := normalize(userA, userB)

	id, found, err := r.tables.GetConversationID(ctx, lo, hi)
	if err != nil {
		return nil, storeError(op, 0, err)
	}
	if found {
		return r.load(ctx, op, id)
	}

	summary := &models.ConversationSummary{
		ID:        r.ids.NextID(),
		User1ID:   lo,
		User2ID:   hi,
		CreatedAt: stamp(r.clock),
	}
	if err := r.tables.InsertSummary(ctx, summary); err != nil {
		return nil, storeError(op, summary.ID, err)
	}

	winner, ours, err := r.tables.InsertConversationID(ctx, lo, hi, summary.ID)
	if err != nil {
		return nil, storeError(op, summary.ID, err)
	}
	if !ours {
		metrics.OrphanedSummaries.Inc()
		r.logger.Warn().
			Int64("orphaned_conversation_id", summary.ID).
			Int64("conversation_id", winner).
			Int64("user1_id", lo).
			Int64("user2_id", hi).
			Msg("Lost conversation creation race")
		return r.load(ctx, op, winner)
	}

	metrics.ConversationsCreated.Inc()
	r.logger.Debug().
		Int64("conversation_id", summary.ID).
		Int64("user1_id", lo).
		Int64("user2_id", hi).
		Msg("Conversation created")

	return summary, nil
}

func (r *Resolver) load(ctx context.Context, op string, conversationID int64) (*models.ConversationSummary, error) {
	summary, err := r.summaries.get(ctx, conversationID)
	if err != nil {
		return nil, storeError(op, conversationID, err)
	}
	if summary == nil {
		return nil, notFound(op, conversationID)
	}
	return summary, nil
}
