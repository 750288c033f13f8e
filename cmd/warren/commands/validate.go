package commands

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/internal/validate"
)

var (
	validateScope        string
	validateOutputFormat string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the integrity of both stores",
	Long: `Run integrity checks over both stores and report every finding.

Scopes:
  structural   per-entity checks: required fields, enums, subtask keys, checksums
  referential  dependency graph: dangling references, cycles
  round-trip   render/re-parse stability
  full         all of the above (default)

Nothing is ever repaired automatically. Error-grade findings make the
command exit 1.

Examples:
  warren validate
  warren validate --scope referential
  warren validate --output=json | jq '.findings[] | select(.severity=="error")'`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateScope, "scope", "s", string(validate.ScopeFull), "Check scope")
	validateCmd.Flags().StringVarP(&validateOutputFormat, "output", "o", "default", "Output format: default or json")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	scope := validate.Scope(validateScope)
	if err := scope.Validate(); err != nil {
		return printer.Error("invalid --scope value", err.Error(), []string{
			"Valid scopes: structural, referential, round-trip, full",
		})
	}

	ws, err := openWorkspace()
	if err != nil {
		return err
	}
	defer ws.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v := validate.New(ws.mono, ws.dist, ws.cfg.Checks.RoundTripSample, ws.logger)
	report, err := v.Run(ctx, scope)
	if err != nil {
		return err
	}

	if validateOutputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printer.Info("validate (%s): %s\n", report.Scope, report.Summary())
		for _, f := range report.Findings {
			where := f.EntityID
			if where == "" {
				where = f.Store
			} else if f.Store != "" {
				where = f.EntityID + " (" + f.Store + ")"
			}
			if f.Severity == validate.SeverityError {
				printer.Warning("[%s] %s: %s\n", f.Check, where, f.Message)
			} else {
				printer.Info("  [%s] %s: %s\n", f.Check, where, f.Message)
			}
		}
	}

	if report.HasErrors() {
		return findingsError{}
	}
	return nil
}
