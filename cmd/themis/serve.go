package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wehubfusion/Themis/pkg/client"
	"github.com/wehubfusion/Themis/pkg/logging"
	"github.com/wehubfusion/Themis/pkg/nodes"
	"github.com/wehubfusion/Themis/pkg/runner"
	"github.com/wehubfusion/Themis/pkg/validate"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run validation jobs from NATS JetStream",
		Long: `Pulls validation jobs from a JetStream consumer, runs them on a pool of
workers and publishes one result per job. Configured through THEMIS_* environment
variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg Config, logger *zap.Logger) error {
	c := client.NewClient(cfg.connectionConfig(), cfg.messageConfig(), logger)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("Error closing NATS client", zap.Error(err))
		}
	}()

	metrics := validate.NewMetricsCollector()
	opts := validate.DefaultOptions().
		WithLogger(logging.NewZapLogger(logger)).
		WithMetrics(metrics)
	registry, err := nodes.NewDefaultRegistry(opts)
	if err != nil {
		return err
	}

	r, err := runner.NewRunner(c.Messages, registry, cfg.runnerConfig(), logger)
	if err != nil {
		return err
	}
	if cfg.TracingEnabled {
		tc := cfg.tracingConfig()
		r.WithTracing(ctx, &tc)
	}
	if cfg.SentryDSN != "" {
		reporter, err := runner.NewSentryReporter(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
			Release:     "themis@" + version,
		})
		if err != nil {
			return err
		}
		r.WithReporter(reporter)
		defer reporter.Flush(2 * time.Second)
	}
	defer func() {
		if err := r.Close(); err != nil {
			logger.Warn("Error closing runner", zap.Error(err))
		}
	}()

	logger.Info("Themis runner started",
		zap.String("stream", cfg.Stream),
		zap.String("consumer", cfg.Consumer),
		zap.Int("workers", cfg.Workers),
		zap.Strings("nodeTypes", registry.Types()))

	err = r.Run(ctx)
	m := metrics.GetMetrics()
	logger.Info("Validation totals",
		zap.Int64("itemsPassed", m.ItemsPassed),
		zap.Int64("itemsFailed", m.ItemsFailed),
		zap.Int64("rulesSkipped", m.RulesSkipped),
		zap.Float64("failureRate", metrics.FailureRate()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
