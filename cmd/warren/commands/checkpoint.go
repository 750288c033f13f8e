package commands

import (
	"context"
	"encoding/json"
	"os"
	"text/tabwriter"

	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/checkpoint"
	"github.com/dyluth/warren/internal/printer"
)

var (
	checkpointKeep         int
	checkpointOutputFormat string
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Manage store snapshots",
	Long: `Create, list, and prune point-in-time snapshots of both stores.

A checkpoint captures the exact bytes of TASKS.md and every per-task
document, so 'warren restore' can bring the whole workspace back to this
moment. Take one before any risky migration step.`,
}

var checkpointCreateCmd = &cobra.Command{
	Use:   "create [label]",
	Short: "Snapshot both stores",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheckpointCreate,
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpoints, newest first",
	Args:  cobra.NoArgs,
	RunE:  runCheckpointList,
}

var checkpointPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest checkpoints",
	Args:  cobra.NoArgs,
	RunE:  runCheckpointPrune,
}

func init() {
	checkpointPruneCmd.Flags().IntVar(&checkpointKeep, "keep", 0, "Checkpoints to keep (default: checkpoints.keep from warren.yml)")
	checkpointListCmd.Flags().StringVarP(&checkpointOutputFormat, "output", "o", "default", "Output format: default or json")
	checkpointCmd.AddCommand(checkpointCreateCmd)
	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointCmd.AddCommand(checkpointPruneCmd)
	rootCmd.AddCommand(checkpointCmd)
}

func runCheckpointCreate(cmd *cobra.Command, args []string) error {
	label := ""
	if len(args) == 1 {
		label = args[0]
	}

	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	mgr := checkpoint.New(ws.checkpointDir(), ws.cfg.Checkpoints.Keep, ws.mono, ws.dist, ws.logger)
	meta, err := mgr.Create(context.Background(), label)
	if err != nil {
		return err
	}

	printer.Success("checkpoint %s created (%d entities)\n", meta.ID, meta.EntityCount)
	return nil
}

func runCheckpointList(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	mgr := checkpoint.New(ws.checkpointDir(), ws.cfg.Checkpoints.Keep, ws.mono, ws.dist, ws.logger)
	metas, err := mgr.List()
	if err != nil {
		return err
	}

	if checkpointOutputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(metas)
	}

	if len(metas) == 0 {
		printer.Info("No checkpoints yet. Create one with 'warren checkpoint create'.\n")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tENTITIES\tLABEL")
	for _, m := range metas {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", m.ID, m.CreatedAt.Format("2006-01-02 15:04:05"), m.EntityCount, m.Label)
	}
	return w.Flush()
}

func runCheckpointPrune(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	keep := checkpointKeep
	if keep <= 0 {
		keep = ws.cfg.Checkpoints.Keep
	}

	mgr := checkpoint.New(ws.checkpointDir(), ws.cfg.Checkpoints.Keep, ws.mono, ws.dist, ws.logger)
	removed, err := mgr.Prune(keep)
	if err != nil {
		return err
	}

	if len(removed) == 0 {
		printer.Info("Nothing to prune (%d kept).\n", keep)
		return nil
	}
	for _, m := range removed {
		printer.Info("pruned %s (%s)\n", m.ID, m.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	printer.Success("%d checkpoint(s) pruned\n", len(removed))
	return nil
}
