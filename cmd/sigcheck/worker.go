package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sigcheck/sigcheck/internal/checkworker"
	"github.com/sigcheck/sigcheck/internal/config"
)

var (
	flagInteraction bool
	flagSignature   bool
	flagTypecheck   bool
	flagIndex       int
	flagCount       int
)

var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run one worker process (spawned internally by the master)",
	Hidden: true,
	RunE:   runWorker,
}

func init() {
	workerCmd.Flags().BoolVar(&flagInteraction, "interaction", false, "run as the interaction worker")
	workerCmd.Flags().BoolVar(&flagSignature, "signature", false, "run as the signature worker")
	workerCmd.Flags().BoolVar(&flagTypecheck, "typecheck", false, "run as a code (typecheck) worker")
	workerCmd.Flags().IntVar(&flagIndex, "index", 0, "this code worker's index (--typecheck only)")
	workerCmd.Flags().IntVar(&flagCount, "count", 1, "total number of code workers (--typecheck only)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	kind, err := workerKind()
	if err != nil {
		exitCode = 2
		return err
	}

	cfg, err := config.Load(steepfile)
	if err != nil {
		exitCode = 2
		return fmt.Errorf("loading %s: %w", steepfile, err)
	}

	env, err := checkworker.LoadEnvironment(cfg.SignatureDirs)
	if err != nil {
		exitCode = 2
		return fmt.Errorf("loading signature environment: %w", err)
	}

	w := checkworker.New(kind, flagIndex, env, os.Stdin, os.Stdout, logger.With(zap.String("worker", string(kind)), zap.Int("index", flagIndex)))
	if err := w.Run(); err != nil {
		exitCode = 2
		return err
	}
	return nil
}

func workerKind() (checkworker.Kind, error) {
	switch {
	case flagInteraction:
		return checkworker.Interaction, nil
	case flagSignature:
		return checkworker.Signature, nil
	case flagTypecheck:
		return checkworker.Code, nil
	default:
		return "", fmt.Errorf("worker: exactly one of --interaction, --signature, --typecheck is required")
	}
}
