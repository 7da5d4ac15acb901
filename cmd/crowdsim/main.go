package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/crowdsim/internal/config"
	"github.com/nvandessel/crowdsim/internal/logging"
	"github.com/nvandessel/crowdsim/internal/store"
)

// Set by goreleaser.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "crowdsim",
		Short: "Crowd contagion simulator",
		Long: `crowdsim places agents in a window, walks them toward a shared attractor
and records every contact between them while a contagion spreads through
susceptible, infected and recovered states.

Runs, agents and contacts are stored in .crowdsim/crowdsim.db under the
project root.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.crowdsim/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newBatchCmd(),
		newRunsCmd(),
		newContactsCmd(),
		newGraphCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

// loadConfig loads --config when given, the default locations otherwise,
// and validates the result.
func loadConfig(cmd *cobra.Command) (*config.CrowdsimConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	var (
		cfg *config.CrowdsimConfig
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openStore opens the run database the config resolves to under --root.
func openStore(cmd *cobra.Command, cfg *config.CrowdsimConfig) (*store.SQLiteStore, error) {
	root, _ := cmd.Flags().GetString("root")
	s, err := store.NewSQLiteStore(cfg.DatabasePath(root))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return s, nil
}

func newLogger(cfg *config.CrowdsimConfig) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, os.Stderr)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// signalContext returns a context cancelled on SIGINT (and SIGTERM where
// it exists).
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		stopSignals(sigCh)
	}()
	return ctx, cancel
}
