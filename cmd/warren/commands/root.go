package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warren",
	Short: "Warren - dual-store task database synchronizer",
	Long: `Warren keeps a task database consistent across two representations:
a single monolithic document (TASKS.md) and a directory of per-task
documents (tasks/). It routes queries to the right store for the
configured mode, synchronizes changes between them with explicit
conflict handling, validates integrity, and checkpoints store state
for safe rollback during migration.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// newLogger builds the engine logger. Human-facing output goes through the
// printer; this log carries the structured engine events on stderr.
func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

// findingsError signals a run that completed but left findings a human must
// review. Its empty message keeps main from double-printing; the report was
// already rendered.
type findingsError struct{}

func (findingsError) Error() string { return "" }

// ExitCode maps a command error to the CLI exit code: 0 success, 1 findings
// requiring review, 2 hard failure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.As(err, &findingsError{}) {
		return 1
	}
	return 2
}
