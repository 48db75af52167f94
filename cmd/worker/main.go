package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"jobfit-backend/internal/bootstrap"
	"jobfit-backend/internal/shared/config"
	"jobfit-backend/internal/shared/telemetry"
	"jobfit-backend/internal/workerproc"
)

const (
	defaultVisibilitySeconds = 600
	defaultShutdownTimeout   = 30 * time.Second
	defaultCancelPoll        = 2 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type workerFlags struct {
	envFiles        []string
	concurrency     int
	visibility      int32
	shutdownTimeout time.Duration
	cancelPoll      time.Duration
}

func newRootCmd() *cobra.Command {
	var f workerFlags
	cmd := &cobra.Command{
		Use:           "worker",
		Short:         "Execute queued analysis jobs from SQS",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load(f.envFiles...)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := run(ctx, cfg, f); err != nil {
				telemetry.Error("worker.exit", map[string]any{"err": err.Error()})
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&f.envFiles, "env-file", nil, "dotenv files to load")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "parallel jobs (defaults to JOB_MAX_CONCURRENCY)")
	cmd.Flags().Int32Var(&f.visibility, "visibility-seconds", defaultVisibilitySeconds, "SQS visibility timeout")
	cmd.Flags().DurationVar(&f.shutdownTimeout, "shutdown-timeout", defaultShutdownTimeout, "grace period for in-flight jobs")
	cmd.Flags().DurationVar(&f.cancelPoll, "cancel-poll", defaultCancelPoll, "how often running jobs re-check for cancellation")
	return cmd
}

func run(ctx context.Context, cfg config.Config, f workerFlags) error {
	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), f.shutdownTimeout)
		defer cancel()
		_ = app.Close(closeCtx)
	}()
	if app.Queue == nil {
		return errors.New("JOBS_QUEUE_URL is required")
	}

	// Cancellation is requested by the API process, so workers poll for it.
	app.Executor.CancelPoll = f.cancelPoll

	concurrency := f.concurrency
	if concurrency <= 0 {
		concurrency = cfg.JobMaxConcurrency
	}
	w := &workerproc.Worker{
		Consumer:    app.Queue.WithVisibility(f.visibility),
		Runner:      app.Executor,
		Concurrency: concurrency,
	}
	telemetry.Info("worker.start", map[string]any{
		"concurrency":        concurrency,
		"visibility_seconds": f.visibility,
	})
	return w.Run(ctx, f.shutdownTimeout)
}
