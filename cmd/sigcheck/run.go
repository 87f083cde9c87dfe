package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sigcheck/sigcheck/internal/config"
	"github.com/sigcheck/sigcheck/internal/controller"
	"github.com/sigcheck/sigcheck/internal/master"
	"github.com/sigcheck/sigcheck/internal/rpc"
	"github.com/sigcheck/sigcheck/internal/worker"
)

const signatureDebounce = 200 * time.Millisecond

func runMaster(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(steepfile)
	if err != nil {
		exitCode = 2
		return err
	}

	binary, err := os.Executable()
	if err != nil {
		exitCode = 2
		return fmt.Errorf("locating own binary: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	interaction, err := worker.Spawn(ctx, binary, worker.Interaction, 0, steepfile, []string{"--interaction"}, logger)
	if err != nil {
		exitCode = 2
		return fmt.Errorf("spawning interaction worker: %w", err)
	}
	signature, err := worker.Spawn(ctx, binary, worker.Signature, 0, steepfile, []string{"--signature"}, logger)
	if err != nil {
		exitCode = 2
		return fmt.Errorf("spawning signature worker: %w", err)
	}

	code := make([]*worker.Process, cfg.CodeWorkers)
	for i := 0; i < cfg.CodeWorkers; i++ {
		w, err := worker.Spawn(ctx, binary, worker.Code, i, steepfile, []string{
			"--typecheck",
			fmt.Sprintf("--index=%d", i),
			fmt.Sprintf("--count=%d", cfg.CodeWorkers),
		}, logger)
		if err != nil {
			exitCode = 2
			return fmt.Errorf("spawning code worker %d: %w", i, err)
		}
		code[i] = w
	}

	m := master.New(
		rpc.NewReader(os.Stdin),
		rpc.NewWriter(os.Stdout),
		interaction, signature, code,
		cfg.CodeWorkers,
		master.Options{ReportProgressThreshold: cfg.ReportProgressThreshold},
		logger,
	)

	watcher, err := controller.NewWatcher(cfg.SignatureDirs, signatureDebounce, m.NotifyChanged, logger)
	if err != nil {
		logger.Warn("signature watcher unavailable", zap.Error(err))
	} else {
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	runErr := m.Run(ctx)

	summary := m.Summary()
	switch {
	case m.Fatal():
		exitCode = 2
	case summary.Errors > 0 || summary.Warnings > 0:
		exitCode = 1
	default:
		exitCode = 0
	}

	if runErr != nil && runErr != context.Canceled && runErr != io.EOF {
		logger.Info("master event loop stopped", zap.Error(runErr))
	}
	return nil
}
