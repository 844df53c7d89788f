package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/photo-cluster/internal/admission"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Admit queued pictures into clusters",
	Long: `Run an admission worker. The worker dequeues ingested pictures one at a
time, compares each against the existing clusters and either joins the
best matching cluster or starts a new one. Several workers may run against
the same database.

Stop with Ctrl+C; the item in progress is finished first.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().Duration("poll", 0, "Idle poll interval (defaults to WORKER_POLL_INTERVAL)")
	workerCmd.Flags().Bool("once", false, "Drain the queue and exit instead of polling")
}

func runWorker(cmd *cobra.Command, args []string) error {
	b, err := openBackend()
	if err != nil {
		return err
	}
	defer b.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl, err := b.controller(ctx)
	if err != nil {
		return fmt.Errorf("failed to create admission controller: %w", err)
	}

	poll := mustGetDuration(cmd, "poll")
	if poll <= 0 {
		poll = b.cfg.Worker.PollInterval
	}
	worker := admission.NewWorker(b.queue, ctrl, b.store, poll, slog.Default())

	slog.Info("admission worker configured",
		"strategy", ctrl.Strategy(),
		"fusion", b.engine.FusionName(),
		"algorithms", b.engine.Algorithms(),
		"centrality_mode", b.cfg.Admission.CentralityMode)

	if mustGetBool(cmd, "once") {
		return drainQueue(ctx, worker)
	}
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// drainQueue processes items until the queue is empty or ctx is cancelled.
func drainQueue(ctx context.Context, worker *admission.Worker) error {
	for ctx.Err() == nil {
		worked, err := worker.ProcessNext(ctx)
		if err != nil {
			return err
		}
		if !worked {
			break
		}
	}
	stats := worker.Stats()
	fmt.Printf("Processed %d items: %d new clusters, %d already clustered, %d failed, %d consistency warnings\n",
		stats.Processed, stats.NewClusters, stats.Duplicates, stats.Failed, stats.Warnings)
	return nil
}
