package commands

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/checkpoint"
	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/internal/store"
	"github.com/dyluth/warren/internal/syncer"
)

var (
	syncDirection    string
	syncOutputFormat string
	syncNoCheckpoint bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the monolith and the per-task documents",
	Long: `Run one synchronization pass between the two stores.

One-sided changes are propagated automatically. A task edited in both
stores since the last sync is resolved field-by-field with the
most-complete-wins policy, written to both stores, and flagged for
manual review; review findings make the command exit 1. A one-way run
cannot write the resolution to both stores, so it reports such
conflicts as deferred and leaves both stores untouched.

A checkpoint of both stores is taken before the pass so a bad sync can
be undone with 'warren restore'; disable with --no-checkpoint.

Directions:
  bidirectional            both ways (default)
  monolith-to-distributed  push TASKS.md changes out
  distributed-to-monolith  pull per-task document changes in

Examples:
  warren sync
  warren sync --direction monolith-to-distributed
  warren sync --output=json | jq .conflicts`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVarP(&syncDirection, "direction", "d", string(syncer.Bidirectional), "Sync direction")
	syncCmd.Flags().StringVarP(&syncOutputFormat, "output", "o", "default", "Output format: default or json")
	syncCmd.Flags().BoolVar(&syncNoCheckpoint, "no-checkpoint", false, "Skip the automatic pre-sync checkpoint")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	direction := syncer.Direction(syncDirection)
	if err := direction.Validate(); err != nil {
		return printer.Error("invalid --direction value", err.Error(), []string{
			"Valid directions: bidirectional, monolith-to-distributed, distributed-to-monolith",
		})
	}

	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	// A sync is safe to interrupt: it stops at the next task boundary.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Checkpoint before touching either store so a bad pass can be undone
	// with 'warren restore'. Retention prunes the oldest automatically.
	if !syncNoCheckpoint {
		mgr := checkpoint.New(ws.checkpointDir(), ws.cfg.Checkpoints.Keep, ws.mono, ws.dist, ws.logger)
		meta, err := mgr.Create(ctx, "pre-sync")
		if err != nil {
			return printer.Error(
				"failed to create pre-sync checkpoint",
				err.Error(),
				[]string{"Skip the safety checkpoint with --no-checkpoint"},
			)
		}
		ws.logger.Debug().Str("checkpoint_id", meta.ID).Msg("pre-sync checkpoint created")
	}

	eng := syncer.New(ws.mono, ws.dist, ws.statePath(), ws.cfg.Sync.Phase, ws.logger)
	report, err := eng.Sync(ctx, direction)
	if err != nil {
		if errors.Is(err, store.ErrLockTimeout) {
			return printer.Error(
				"store is locked",
				"Another process holds a store lock; the sync did not start.",
				[]string{"Retry once the other warren invocation finishes"},
			)
		}
		if !errors.Is(err, context.Canceled) {
			return err
		}
		printer.Warning("sync interrupted, partial results follow\n")
	}

	if syncOutputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		renderSyncReport(report)
	}

	if report.HasFindings() {
		return findingsError{}
	}
	return nil
}

func renderSyncReport(report *syncer.Report) {
	printer.Info("sync (%s): %s\n", report.Direction, report.Summary())

	for _, c := range report.Applied {
		printer.Success("%s: %s %s -> %s\n", c.TaskID, c.Kind, c.Source, c.Target)
	}
	for _, c := range report.Conflicts {
		if c.Deferred {
			printer.Warning("%s: conflict deferred, run a bidirectional sync to resolve\n", c.TaskID)
		} else {
			printer.Warning("%s: conflict, needs manual review\n", c.TaskID)
		}
		for _, d := range c.Decisions {
			printer.Printf("    %s: %s wins (%s)\n", d.Field, d.Winner, d.Policy)
			printer.Printf("      monolith:    %s\n", firstLine(d.Monolith))
			printer.Printf("      distributed: %s\n", firstLine(d.Distributed))
		}
	}
	for _, f := range report.Failed {
		printer.Warning("%s: %s failure: %s\n", f.TaskID, f.Stage, f.Msg)
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i] + " ..."
		}
	}
	if s == "" {
		return "(empty)"
	}
	return s
}
