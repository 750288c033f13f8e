package commands

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/internal/router"
	"github.com/dyluth/warren/internal/syncer"
)

var statusOutputFormat string

// workspaceStatus is the machine-readable form of 'warren status'.
type workspaceStatus struct {
	Root             string     `json:"root"`
	Mode             string     `json:"mode"`
	Authority        string     `json:"authority"`
	MonolithTasks    int        `json:"monolith_tasks"`
	DistributedTasks int        `json:"distributed_tasks"`
	ParseErrors      int        `json:"parse_errors"`
	SyncedTasks      int        `json:"synced_tasks"`
	LastSynced       *time.Time `json:"last_synced,omitempty"`
	QueuePending     int        `json:"queue_pending"`
	QueueEnabled     bool       `json:"queue_enabled"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workspace state at a glance",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutputFormat, "output", "o", "default", "Output format: default or json")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	monoTasks, monoErrs, err := ws.mono.Load()
	if err != nil {
		return err
	}
	distIDs, err := ws.dist.List()
	if err != nil {
		return err
	}
	state, err := syncer.LoadState(ws.statePath())
	if err != nil {
		return err
	}

	r := router.New(ws.cfg.Mode, ws.mono, ws.dist, ws.queue, ws.cfg.Sync.Phase, ws.logger)
	st := workspaceStatus{
		Root:             ws.cfg.Root,
		Mode:             string(ws.cfg.Mode),
		Authority:        r.Authority(),
		MonolithTasks:    len(monoTasks),
		DistributedTasks: len(distIDs),
		ParseErrors:      len(monoErrs),
		SyncedTasks:      len(state.Tasks),
		QueueEnabled:     ws.queue != nil,
	}

	var last time.Time
	for _, ts := range state.Tasks {
		if ts.LastSynced.After(last) {
			last = ts.LastSynced
		}
	}
	if !last.IsZero() {
		st.LastSynced = &last
	}

	if ws.queue != nil {
		pending, err := ws.queue.Pending(context.Background())
		if err == nil {
			st.QueuePending = len(pending)
		}
	}

	if statusOutputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	printer.Info("workspace: %s\n", st.Root)
	printer.Info("mode: %s (writes go to the %s store)\n", st.Mode, st.Authority)
	printer.Info("monolith: %d task(s)\n", st.MonolithTasks)
	printer.Info("distributed: %d document(s)\n", st.DistributedTasks)
	if st.ParseErrors > 0 {
		printer.Warning("%d parse error(s) in the monolith, run 'warren validate'\n", st.ParseErrors)
	}
	if st.LastSynced != nil {
		printer.Info("last sync: %s (%d task(s) tracked)\n",
			st.LastSynced.Format("2006-01-02 15:04:05"), st.SyncedTasks)
	} else {
		printer.Info("last sync: never\n")
	}
	if st.QueueEnabled {
		printer.Info("sync queue: %d pending request(s)\n", st.QueuePending)
	}
	return nil
}
