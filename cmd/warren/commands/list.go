package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/internal/router"
	"github.com/dyluth/warren/pkg/task"
)

var (
	listPriority     string
	listType         string
	listStatus       string
	listOutputFormat string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, optionally filtered",
	Long: `List every task visible in the configured mode, sorted by ID.

Filters combine with AND. Status matches as a case-insensitive substring
because status is free text.

Examples:
  warren list
  warren list --priority high --type feature
  warren list --status "in progress"
  warren list --output=json | jq -r '.[].id'`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listPriority, "priority", "", "Filter by priority (critical, high, medium, low)")
	listCmd.Flags().StringVar(&listType, "type", "", "Filter by type (feature, bugfix, refactor, research, operations)")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status substring")
	listCmd.Flags().StringVarP(&listOutputFormat, "output", "o", "default", "Output format: default or json")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	filter := router.Filter{
		Priority: task.Priority(listPriority),
		Type:     task.TaskType(listType),
		Status:   listStatus,
	}
	if filter.Priority != "" {
		if err := filter.Priority.Validate(); err != nil {
			return printer.Error("invalid --priority value", err.Error(),
				[]string{"Valid priorities: critical, high, medium, low"})
		}
	}
	if filter.Type != "" {
		if err := filter.Type.Validate(); err != nil {
			return printer.Error("invalid --type value", err.Error(),
				[]string{"Valid types: feature, bugfix, refactor, research, operations"})
		}
	}

	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	r := router.New(ws.cfg.Mode, ws.mono, ws.dist, ws.queue, ws.cfg.Sync.Phase, ws.logger)
	tasks, err := r.ListTasks(context.Background(), filter)
	if err != nil {
		return err
	}

	if listOutputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tasks)
	}

	if len(tasks) == 0 {
		printer.Info("No tasks match.\n")
		return nil
	}

	printer.Printf("%d task(s)\n\n", len(tasks))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Priority, t.Type, t.Status, t.Title)
	}
	return w.Flush()
}
