package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/internal/syncer"
)

// debounce batches a burst of update events into one sync pass.
const watchDebounce = 500 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run sync passes as update events arrive",
	Long: `Subscribe to the Redis sync-request queue and run a bidirectional
sync pass whenever updates are published. Requires a redis section in
warren.yml. Runs until interrupted.

Bursts of updates are debounced into a single pass.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	if ws.queue == nil {
		return printer.Error(
			"sync queue is not configured",
			"warren watch needs the Redis queue to hear about updates.",
			[]string{"Add a redis section to warren.yml:\n  redis:\n    addr: localhost:6379"},
		)
	}
	if err := ws.queue.Ping(cmd.Context()); err != nil {
		return printer.Error(
			"Redis connection failed",
			err.Error(),
			[]string{"Check that Redis is running at the configured address"},
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub, err := ws.queue.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	eng := syncer.New(ws.mono, ws.dist, ws.statePath(), ws.cfg.Sync.Phase, ws.logger)
	printer.Info("watching for updates (ctrl-c to stop)...\n")

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			printer.Info("\nstopped.\n")
			return nil

		case req, ok := <-sub.Events():
			if !ok {
				return nil
			}
			printer.Info("update: %s (%s from %s)\n", req.TaskID, req.Reason, req.Origin)
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C

		case err := <-sub.Errors():
			if err != nil {
				ws.logger.Warn().Err(err).Msg("subscription error")
			}

		case <-fire:
			fire = nil
			report, err := eng.Sync(ctx, syncer.Bidirectional)
			if err != nil {
				ws.logger.Error().Err(err).Msg("sync pass failed")
				continue
			}
			printer.Info("sync: %s\n", report.Summary())
			for _, c := range report.Conflicts {
				printer.Warning("%s: conflict, needs manual review\n", c.TaskID)
			}
		}
	}
}
