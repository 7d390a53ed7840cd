package messenger

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/messenger/internal/metrics"
	"github.com/eldtechnologies/messenger/internal/models"
	"github.com/eldtechnologies/messenger/internal/store"
)

// SummaryCache keeps conversation summaries close to the readers.
// store.RedisCache implements it. GetSummary returns nil on a miss.
//
// Entries are versioned by last message time: SetSummary must not replace an
// entry with an older summary, and ForgetSummary must keep refusing summaries
// older than lastMessageAt, so a read racing a write cannot re-cache the row
// the write replaced.
type SummaryCache interface {
	GetSummary(ctx context.Context, conversationID int64) (*models.ConversationSummary, error)
	SetSummary(ctx context.Context, summary *models.ConversationSummary) error
	ForgetSummary(ctx context.Context, conversationID int64, lastMessageAt time.Time) error
}

// summaries reads conversation_metadata through an optional cache.
// Cache failures are logged and never fail the caller.
type summaries struct {
	tables store.Tables
	cache  SummaryCache
	logger zerolog.Logger
}

// get returns the summary, or nil when the row does not exist.
func (s *summaries) get(ctx context.Context, conversationID int64) (*models.ConversationSummary, error) {
	if s.cache != nil {
		cached, err := s.cache.GetSummary(ctx, conversationID)
		switch {
		case err != nil:
			metrics.CacheLookups.WithLabelValues("error").Inc()
			s.logger.Warn().Err(err).Int64("conversation_id", conversationID).Msg("Summary cache read failed")
		case cached != nil:
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return cached, nil
		default:
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	summary, err := s.tables.GetSummary(ctx, conversationID)
	if err != nil || summary == nil {
		return summary, err
	}

	if s.cache != nil {
		if err := s.cache.SetSummary(ctx, summary); err != nil {
			s.logger.Warn().Err(err).Int64("conversation_id", conversationID).Msg("Summary cache write failed")
		}
	}
	return summary, nil
}

// forget drops a summary whose last message just moved to lastMessageAt.
func (s *summaries) forget(ctx context.Context, conversationID int64, lastMessageAt time.Time) {
	if s.cache == nil {
		return
	}
	if err := s.cache.ForgetSummary(ctx, conversationID, lastMessageAt); err != nil {
		s.logger.Warn().Err(err).Int64("conversation_id", conversationID).Msg("Summary cache invalidation failed")
	}
}
