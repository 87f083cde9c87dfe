// Command sigcheck is the CLI driver for the type-check coordinator: run
// without a subcommand it starts the master, speaking LSP over stdin and
// stdout; the `worker` subcommand starts one of the three worker kinds
// (interaction, signature, code) as a standalone child process.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verbose   bool
	steepfile string
	logger    *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sigcheck",
	Short: "A signature-driven type-check coordinator",
	Long: `sigcheck type-checks a codebase against external signature files.

Run without arguments to start the master LSP server, reading the client
channel on stdin and writing it to stdout. Workers are spawned
automatically as child processes; the "worker" subcommand exists so the
master can exec itself as a worker and is not normally invoked directly.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		// The master and workers all speak the LSP protocol over stdout;
		// logging must never land there.
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
		built, err := cfg.Build()
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		logger = built
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runMaster,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&steepfile, "steepfile", "Sigcheckfile", "path to the project's Sigcheckfile")

	rootCmd.AddCommand(workerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode)
	}
	os.Exit(exitCode)
}

// exitCode is set by runMaster: 0 clean, 1 when any error or warning
// diagnostic was published, 2 on an unrecoverable worker error or a
// startup failure. The Sigcheckfile's expectations file is not read, so
// expectations play no part in the exit code.
var exitCode int
