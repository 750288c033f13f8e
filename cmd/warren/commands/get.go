package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/internal/router"
	"github.com/dyluth/warren/internal/store"
)

var getOutputFormat string

var getCmd = &cobra.Command{
	Use:   "get <task-id> [field]",
	Short: "Read a task, or a single field of it",
	Long: `Read one task from the store the configured mode selects.

Without a field, prints the full record. With a field name (title, status,
priority, type, complexity, depends_on, context, testing, acceptance, done,
risk, refs, subtasks, notes), prints just that value.

Examples:
  warren get T-01
  warren get T-01 status
  warren get T-01 --output=json | jq .subtasks`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runGet,
}

func init() {
	getCmd.Flags().StringVarP(&getOutputFormat, "output", "o", "default", "Output format: default or json")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	ctx := context.Background()
	r := router.New(ws.cfg.Mode, ws.mono, ws.dist, ws.queue, ws.cfg.Sync.Phase, ws.logger)
	id := args[0]

	if getOutputFormat == "json" {
		t, err := r.GetTask(ctx, id)
		if err != nil {
			return getError(id, err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	}

	field := router.FieldFull
	if len(args) == 2 {
		field = args[1]
	}
	value, err := r.GetTaskData(ctx, id, field)
	if err != nil {
		return getError(id, err)
	}
	printer.Println(value)
	return nil
}

func getError(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return printer.Error(
			fmt.Sprintf("task '%s' not found", id),
			"The task does not exist in the store this mode reads from.",
			[]string{"List known tasks:\n  warren list"},
		)
	}
	return err
}
