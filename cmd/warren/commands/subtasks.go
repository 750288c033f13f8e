package commands

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/internal/router"
)

var subtasksOutputFormat string

var subtasksCmd = &cobra.Command{
	Use:   "subtasks <task-id>",
	Short: "List a task's work items",
	Long: `List a task's work items with their composite keys.

Examples:
  warren subtasks T-01
  warren subtasks T-01 --output=json | jq '.[].wii'`,
	Args: cobra.ExactArgs(1),
	RunE: runSubtasks,
}

func init() {
	subtasksCmd.Flags().StringVarP(&subtasksOutputFormat, "output", "o", "default", "Output format: default or json")
	rootCmd.AddCommand(subtasksCmd)
}

func runSubtasks(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	r := router.New(ws.cfg.Mode, ws.mono, ws.dist, ws.queue, ws.cfg.Sync.Phase, ws.logger)
	subs, err := r.GetWIISubtasks(context.Background(), args[0])
	if err != nil {
		return getError(args[0], err)
	}

	if subtasksOutputFormat == "json" {
		type subtaskOut struct {
			WII         string `json:"wii"`
			Description string `json:"description"`
			Points      int    `json:"points"`
			Status      string `json:"status"`
			Completion  int    `json:"completion,omitempty"`
			Deliverable string `json:"deliverable,omitempty"`
		}
		out := make([]subtaskOut, 0, len(subs))
		for _, s := range subs {
			out = append(out, subtaskOut{
				WII:         s.WII.String(),
				Description: s.Description,
				Points:      s.Points,
				Status:      string(s.Status),
				Completion:  s.Completion,
				Deliverable: s.Deliverable,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(subs) == 0 {
		printer.Info("No subtasks.\n")
		return nil
	}
	for _, s := range subs {
		printer.Printf("[%s] %s (%d pts, %s", s.WII, s.Description, s.Points, s.Status)
		if s.Completion > 0 {
			printer.Printf(" %d%%", s.Completion)
		}
		printer.Printf(")\n")
	}
	return nil
}
