package messenger

import (
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/messenger/internal/store"
)

// Options configures a Service. Zero values pick the defaults.
type Options struct {
	Cache  SummaryCache // nil disables caching
	IDs    IDGenerator  // default: snowflake node 0
	Clock  Clock        // default: system clock
	Logger zerolog.Logger
}

// Service is the conversation storage layer used by the HTTP handlers and the CLI.
type Service struct {
	*Resolver
	*Writer
	*Reader
	*Repairer
}

// NewService wires the resolver, writer, reader and repairer over tables.
func NewService(tables store.Tables, opts Options) (*Service, error) {
	if opts.IDs == nil {
		ids, err := NewSnowflakeIDs(0)
		if err != nil {
			return nil, err
		}
		opts.IDs = ids
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}

	sums := &summaries{tables: tables, cache: opts.Cache, logger: opts.Logger}
	resolver := &Resolver{
		tables:    tables,
		summaries: sums,
		ids:       opts.IDs,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}

	return &Service{
		Resolver: resolver,
		Writer: &Writer{
			resolver:  resolver,
			tables:    tables,
			summaries: sums,
			ids:       opts.IDs,
			clock:     opts.Clock,
			logger:    opts.Logger,
		},
		Reader:   &Reader{tables: tables, summaries: sums, logger: opts.Logger},
		Repairer: &Repairer{tables: tables, summaries: sums, logger: opts.Logger},
	}, nil
}
