package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/checkpoint"
	"github.com/dyluth/warren/internal/printer"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <checkpoint-id>",
	Short: "Restore both stores from a checkpoint",
	Long: `Replace the live stores with a checkpoint's captured bytes.

The checkpoint's aggregate checksum is verified first; a corrupt or
missing checkpoint fails closed and the live stores are left untouched.
Restored documents keep the schema versions they were captured with.

The checkpoint ID may be abbreviated to a unique prefix of at least 6
characters, like a git commit hash.

Example:
  warren checkpoint list
  warren restore 6b2a41`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	mgr := checkpoint.New(ws.checkpointDir(), ws.cfg.Checkpoints.Keep, ws.mono, ws.dist, ws.logger)

	id, err := mgr.Resolve(args[0])
	if err != nil {
		var ambiguous *checkpoint.AmbiguousIDError
		if errors.As(err, &ambiguous) {
			return printer.Error(
				fmt.Sprintf("ambiguous checkpoint ID '%s'", args[0]),
				checkpoint.FormatAmbiguousIDError(ambiguous),
				nil,
			)
		}
		if errors.Is(err, checkpoint.ErrCheckpointNotFound) {
			return printer.Error(
				fmt.Sprintf("checkpoint '%s' not found", args[0]),
				"",
				[]string{"List checkpoints:\n  warren checkpoint list"},
			)
		}
		return err
	}

	meta, err := mgr.Restore(context.Background(), id)
	if err != nil {
		switch {
		case errors.Is(err, checkpoint.ErrCheckpointNotFound):
			return printer.Error(
				fmt.Sprintf("checkpoint '%s' not found", args[0]),
				"",
				[]string{"List checkpoints:\n  warren checkpoint list"},
			)
		case errors.Is(err, checkpoint.ErrRollbackFailure):
			return printer.Error(
				"restore failed partway",
				err.Error(),
				[]string{
					"The stores may disagree with each other.",
					"Retry the restore, then run:\n  warren validate",
				},
			)
		}
		return err
	}

	printer.Success("restored checkpoint %s (%s, %d entities)\n", meta.ID, meta.Label, meta.EntityCount)
	printer.Info("Run 'warren validate' to confirm store integrity.\n")
	return nil
}
