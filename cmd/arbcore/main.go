// Command arbcore is the entry point for the fractional-Kelly arbitrage
// core: it loads configuration, wires the exchange boundary (live REST
// or paper), and runs either the live/paper tick loop (run) or a
// deterministic historical replay (backtest).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"arbcore/internal/config"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:   "arbcore",
		Short: "Fractional-Kelly arbitrage core for binary prediction markets",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "configs/config.yaml", "path to config YAML")
	root.AddCommand(newRunCmd())
	root.AddCommand(newBacktestCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the config file at path, falling back to
// the hardcoded paper-trading defaults when path doesn't exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return config.Default(), nil
		}
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
