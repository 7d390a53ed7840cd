package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/messenger/internal/metrics"
	"github.com/eldtechnologies/messenger/internal/models"
)

// GatewayOptions tunes the per-operation retry of transient errors.
type GatewayOptions struct {
	Retries         int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (o GatewayOptions) withDefaults() GatewayOptions {
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = 50 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = time.Second
	}
	return o
}

// Gateway owns the connection to a Tables backend and retries transient
// failures of single operations. Errors that survive the retry budget are
// reported as ErrConnectionUnavailable; everything else passes through.
type Gateway struct {
	tables    Tables
	transient func(error) bool
	opts      GatewayOptions
	logger    zerolog.Logger
}

// NewGateway wraps tables. transient decides which errors are worth retrying.
func NewGateway(tables Tables, transient func(error) bool, opts GatewayOptions, logger zerolog.Logger) *Gateway {
	if transient == nil {
		transient = func(error) bool { return false }
	}
	return &Gateway{
		tables:    tables,
		transient: transient,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

// Open connects to the configured backend, creates the schema and returns a Gateway.
// Connecting is retried with a bounded exponential backoff; configuration errors are not.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (*Gateway, error) {
	transient, err := classifier(cfg.Backend)
	if err != nil {
		return nil, err
	}

	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 10
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.ConnectInitialBackoff
	if b.InitialInterval <= 0 {
		b.InitialInterval = 5 * time.Second
	}
	b.MaxInterval = cfg.ConnectMaxBackoff
	if b.MaxInterval <= 0 {
		b.MaxInterval = 30 * time.Second
	}
	b.Multiplier = 1.5
	b.MaxElapsedTime = 0
	b.Reset()

	attempt := 0
	connect := func() (Tables, error) {
		attempt++
		tables, err := dial(ctx, cfg)
		if err != nil {
			if errors.Is(err, ErrInvalidConfig) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if err := tables.EnsureSchema(ctx); err != nil {
			tables.Close()
			return nil, err
		}
		return tables, nil
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn().
			Err(err).
			Str("backend", cfg.Backend).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Dur("retry_in", wait).
			Msg("Store connection failed, retrying")
	}

	tables, err := backoff.RetryNotifyWithData(connect,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx), notify)
	if err != nil {
		if errors.Is(err, ErrInvalidConfig) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrConnectionUnavailable, cfg.Backend, attempt, err)
	}

	logger.Info().Str("backend", cfg.Backend).Int("attempts", attempt).Msg("Store connected")

	return NewGateway(tables, transient, GatewayOptions{Retries: cfg.OpRetries}, logger), nil
}

func dial(ctx context.Context, cfg Config) (Tables, error) {
	switch cfg.Backend {
	case BackendCassandra:
		return NewCassandraStore(ctx, cfg)
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("%w: DATABASE_URL is required for the postgres backend", ErrInvalidConfig)
		}
		return NewPostgresStore(ctx, cfg.DatabaseURL)
	case BackendSQLite:
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, cfg.Backend)
	}
}

func classifier(backend string) (func(error) bool, error) {
	switch backend {
	case BackendCassandra:
		return isCassandraTransient, nil
	case BackendPostgres:
		return isPostgresTransient, nil
	case BackendSQLite:
		return isSQLiteTransient, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, backend)
	}
}

// run executes fn, retrying transient errors within the gateway budget.
func run[T any](ctx context.Context, g *Gateway, op string, fn func() (T, error)) (T, error) {
	start := time.Now()
	defer func() {
		metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.opts.InitialInterval
	b.MaxInterval = g.opts.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()

	attempt := func() (T, error) {
		v, err := fn()
		if err != nil && !g.transient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	notify := func(err error, wait time.Duration) {
		metrics.StoreRetries.WithLabelValues(op).Inc()
		g.logger.Warn().Err(err).Str("op", op).Dur("retry_in", wait).Msg("Transient store error, retrying")
	}

	v, err := backoff.RetryNotifyWithData(attempt,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(g.opts.Retries)), ctx), notify)
	if err != nil && g.transient(err) && ctx.Err() == nil {
		return v, fmt.Errorf("%w: %s: %v", ErrConnectionUnavailable, op, err)
	}
	return v, err
}

func exec(ctx context.Context, g *Gateway, op string, fn func() error) error {
	_, err := run(ctx, g, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Close closes the underlying backend.
func (g *Gateway) Close() {
	g.tables.Close()
}

// Ping checks the backend once, without retrying.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.tables.Ping(ctx)
}

// EnsureSchema creates the keyspace and tables if they don't exist.
func (g *Gateway) EnsureSchema(ctx context.Context) error {
	return exec(ctx, g, "ensure_schema", func() error {
		return g.tables.EnsureSchema(ctx)
	})
}

func (g *Gateway) InsertMessage(ctx context.Context, msg *models.Message) error {
	return exec(ctx, g, "insert_message", func() error {
		return g.tables.InsertMessage(ctx, msg)
	})
}

func (g *Gateway) CountMessages(ctx context.Context, conversationID int64, before *time.Time) (int, error) {
	return run(ctx, g, "count_messages", func() (int, error) {
		return g.tables.CountMessages(ctx, conversationID, before)
	})
}

func (g *Gateway) ScanMessages(ctx context.Context, conversationID int64, before *time.Time, limit int) ([]models.Message, error) {
	return run(ctx, g, "scan_messages", func() ([]models.Message, error) {
		return g.tables.ScanMessages(ctx, conversationID, before, limit)
	})
}

func (g *Gateway) InsertSummary(ctx context.Context, summary *models.ConversationSummary) error {
	return exec(ctx, g, "insert_summary", func() error {
		return g.tables.InsertSummary(ctx, summary)
	})
}

func (g *Gateway) UpdateSummaryLastMessage(ctx context.Context, conversationID int64, at time.Time, content string) error {
	return exec(ctx, g, "update_summary", func() error {
		return g.tables.UpdateSummaryLastMessage(ctx, conversationID, at, content)
	})
}

func (g *Gateway) GetSummary(ctx context.Context, conversationID int64) (*models.ConversationSummary, error) {
	return run(ctx, g, "get_summary", func() (*models.ConversationSummary, error) {
		return g.tables.GetSummary(ctx, conversationID)
	})
}

func (g *Gateway) InsertUserConversation(ctx context.Context, row *models.UserConversation) error {
	return exec(ctx, g, "insert_user_conversation", func() error {
		return g.tables.InsertUserConversation(ctx, row)
	})
}

func (g *Gateway) ScanUserConversations(ctx context.Context, userID int64, limit int) ([]models.UserConversation, error) {
	return run(ctx, g, "scan_user_conversations", func() ([]models.UserConversation, error) {
		return g.tables.ScanUserConversations(ctx, userID, limit)
	})
}

func (g *Gateway) GetConversationID(ctx context.Context, user1ID, user2ID int64) (int64, bool, error) {
	type found struct {
		id int64
		ok bool
	}
	r, err := run(ctx, g, "get_conversation_id", func() (found, error) {
		id, ok, err := g.tables.GetConversationID(ctx, user1ID, user2ID)
		return found{id, ok}, err
	})
	return r.id, r.ok, err
}

// InsertConversationID is retried like any other write. A retry after a
// lost acknowledgement reads back our own row and still reports it as ours.
func (g *Gateway) InsertConversationID(ctx context.Context, user1ID, user2ID, conversationID int64) (int64, bool, error) {
	type resolved struct {
		id   int64
		ours bool
	}
	r, err := run(ctx, g, "insert_conversation_id", func() (resolved, error) {
		id, ours, err := g.tables.InsertConversationID(ctx, user1ID, user2ID, conversationID)
		return resolved{id, ours}, err
	})
	return r.id, r.ours, err
}

var _ Tables = (*Gateway)(nil)
