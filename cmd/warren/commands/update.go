package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/internal/router"
	"github.com/dyluth/warren/internal/store"
)

var updateCmd = &cobra.Command{
	Use:   "update <task-id> <field> <value>",
	Short: "Update one field of a task",
	Long: `Update one field of a task in the authoritative store.

The write happens synchronously under the store's exclusive lock; a sync
request is queued afterwards when Redis is configured, so the other store
catches up on the next sync pass.

Updatable fields: title, status, notes, priority, type, complexity,
depends_on (comma-separated task IDs).

Examples:
  warren update T-01 status "complete"
  warren update T-01 priority critical
  warren update T-01 depends_on "T-02, T-03"`,
	Args: cobra.ExactArgs(3),
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	return applyUpdate(args[0], args[1], args[2])
}

func applyUpdate(id, field, value string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	r := router.New(ws.cfg.Mode, ws.mono, ws.dist, ws.queue, ws.cfg.Sync.Phase, ws.logger)
	if err := r.UpdateField(context.Background(), id, field, value); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return printer.Error(
				fmt.Sprintf("task '%s' not found", id),
				fmt.Sprintf("The task does not exist in the %s store.", r.Authority()),
				[]string{"List known tasks:\n  warren list"},
			)
		case errors.Is(err, store.ErrLockTimeout):
			return printer.Error(
				"store is locked",
				"Another process holds the store lock.",
				[]string{"Retry once the other warren invocation finishes"},
			)
		case errors.Is(err, router.ErrUnknownField):
			return printer.Error(
				fmt.Sprintf("field '%s' is not updatable", field),
				"",
				[]string{"Updatable fields: title, status, notes, priority, type, complexity, depends_on"},
			)
		}
		return err
	}

	printer.Success("updated %s.%s\n", id, field)
	return nil
}
