package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/eldtechnologies/messenger/internal/config"
	"github.com/eldtechnologies/messenger/internal/messenger"
	"github.com/eldtechnologies/messenger/internal/store"
)

// StoreOptions holds flags shared by the commands that open the store.
type StoreOptions struct {
	*RootOptions
	Attempts int
}

func (o *StoreOptions) bindFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&o.Attempts, "attempts", 0, "connection attempts (0 uses CONNECT_ATTEMPTS)")
}

// openStore connects to the store configured in the environment.
func (o *StoreOptions) openStore(ctx context.Context, logger zerolog.Logger) (*config.Config, *store.Gateway, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	storeCfg := cfg.StoreConfig()
	if o.Attempts > 0 {
		storeCfg.ConnectAttempts = o.Attempts
	}

	tables, err := store.Open(ctx, storeCfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, tables, nil
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Create the keyspace and tables if they do not exist",
		Long: `Connect to the configured store and create the four tables the
messenger uses. Safe to run against a store that already has them.

Example:
  STORE_BACKEND=sqlite SQLITE_PATH=./data/messenger.db messengerctl schema`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(opts, cmd)
		},
	}
	opts.bindFlags(cmd)

	return cmd
}

func runSchema(opts *StoreOptions, cmd *cobra.Command) error {
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	cfg, tables, err := opts.openStore(cmd.Context(), logger)
	if err != nil {
		return err
	}
	defer tables.Close()

	result := map[string]string{"status": "ok", "backend": cfg.StoreBackend}
	return printResult(cmd.OutOrStdout(), opts.Format, result, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "schema ready (%s)\n", cfg.StoreBackend)
		return err
	})
}

// NewRepairCommand creates the repair command.
func NewRepairCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "repair <conversation-id>...",
		Short: "Rebuild a conversation's summary, lookup and index rows",
		Long: `Rebuild the rows a partially failed send can leave behind, using the
conversation's messages as the source of truth. Repairing a healthy
conversation changes nothing.

Example:
  messengerctl repair 1790329482913222656
  messengerctl repair --format json 1790329482913222656 1790329482913222657`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepair(opts, args, cmd)
		},
	}
	opts.bindFlags(cmd)

	return cmd
}

func runRepair(opts *StoreOptions, args []string, cmd *cobra.Command) error {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid conversation id %q", arg)
		}
		ids = append(ids, id)
	}

	ctx := cmd.Context()
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	cfg, tables, err := opts.openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer tables.Close()

	svcOpts := messenger.Options{Logger: logger}
	if cfg.RedisURL != "" {
		cache, err := store.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, cached summaries may stay stale until they expire")
		} else {
			defer cache.Close()
			svcOpts.Cache = cache
		}
	}

	svc, err := messenger.NewService(tables, svcOpts)
	if err != nil {
		return err
	}

	reports := make([]*messenger.RepairReport, 0, len(ids))
	for _, id := range ids {
		report, err := svc.RepairConversation(ctx, id)
		if err != nil {
			return fmt.Errorf("repair conversation %d: %w", id, err)
		}
		reports = append(reports, report)
	}

	return printResult(cmd.OutOrStdout(), opts.Format, reports, func(w io.Writer) error {
		for _, r := range reports {
			if !r.Changed() && r.LookupConflict == 0 {
				fmt.Fprintf(w, "conversation %d: consistent (%d messages)\n", r.ConversationID, r.Messages)
				continue
			}
			fmt.Fprintf(w, "conversation %d: %d messages, summary created=%t updated=%t, lookup restored=%t, index rows written=%d\n",
				r.ConversationID, r.Messages, r.SummaryCreated, r.SummaryUpdated, r.LookupRestored, r.IndexRowsWritten)
			if r.LookupConflict != 0 {
				fmt.Fprintf(w, "  warning: the pair resolves to conversation %d\n", r.LookupConflict)
			}
		}
		return nil
	})
}
