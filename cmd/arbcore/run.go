package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"arbcore/internal/engine"
	"arbcore/internal/exchange"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the live (or paper) per-tick trading loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(cfgPath)
		},
	}
}

func runLoop(path string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging)

	var client exchange.Client
	if cfg.Execution.PaperTrading {
		client = exchange.NewPaperClient(cfg.Backtest.StartingCash)
		logger.Warn("paper trading mode active — no real orders will be placed")
	} else {
		client = exchange.NewRESTClient(exchange.ClientConfig{
			BaseURL: cfg.Exchange.BaseURL,
			APIKey:  cfg.Exchange.APIKey,
			DryRun:  cfg.DryRun,
		}, logger)
	}

	core, err := engine.New(*cfg, client, logger)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- core.Run(ctx) }()

	logger.Info("arbcore started",
		"paper_trading", cfg.Execution.PaperTrading,
		"scan_interval", cfg.Execution.ScanInterval,
		"dry_run", cfg.DryRun,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("engine loop exited unexpectedly", "error", err)
		}
	}

	cancel()
	core.Stop()
	return nil
}
