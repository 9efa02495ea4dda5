package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/torosent/vuload/internal/compare"
	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/history"
	"github.com/torosent/vuload/internal/output"
)

// openStore connects the configured history backend and loads the document.
// The returned function releases backend resources.
func openStore(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*history.Store, func(), error) {
	var (
		backend history.Backend
		closeFn = func() {}
	)
	switch cfg.History.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.History.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.History.RedisAddr, err)
		}
		backend = history.NewRedisBackend(client, cfg.History.RedisKey)
		closeFn = func() {
			if err := client.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close redis client")
			}
		}
	default:
		backend = history.NewFileBackend(cfg.History.Path)
	}

	store, err := history.NewStore(ctx, backend, logger.WithField("backend", cfg.History.Backend))
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}

// historyCommand loads the configuration and history shared by the trends
// and compare commands, then hands the document to show.
func historyCommand(cmd *cobra.Command, show func(out io.Writer, doc history.Document, jsonOut bool, scheme *output.ColorScheme) error) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	if err := cfg.ValidateHistory(); err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.Flags(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	out := cmd.OutOrStdout()
	return show(out, store.Snapshot(), cfg.JSONOutput, output.SchemeFor(out != os.Stdout))
}

func newTrendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trends",
		Short: "Summarize the recorded history and the latest metric trends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return historyCommand(cmd, func(out io.Writer, doc history.Document, jsonOut bool, scheme *output.ColorScheme) error {
				summary := history.Summarize(doc)
				if jsonOut {
					return output.PrintJSONReport(out, summary)
				}
				output.PrintSummary(out, summary, scheme)
				return nil
			})
		},
	}
}

func newCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare",
		Short: "Compare the latest run of every recorded user count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return historyCommand(cmd, func(out io.Writer, doc history.Document, jsonOut bool, scheme *output.ColorScheme) error {
				result := compare.Compare(doc)
				if jsonOut {
					return output.PrintJSONReport(out, result)
				}
				output.PrintComparison(out, result, scheme)
				return nil
			})
		},
	}
}
