// Command landreg runs the land-registry duplicate and conflict detection
// engine: the ops HTTP server, one-off detection runs, classifier training and
// the audit outbox relay.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"landreg/internal/platform/config"
	"landreg/internal/platform/logger"
)

var (
	configPath string
	logLevel   string

	cfg config.Config
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "landreg",
	Short:         "Land registry duplicate and conflict detection",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if configPath != "" {
			if err := os.Setenv("LANDREG_CONFIG", configPath); err != nil {
				return err
			}
		}
		loaded, err := config.FromEnv()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		cfg = loaded

		format := logger.FormatText
		if cmd.Name() == serveCmd.Name() {
			format = logger.FormatJSON
		}
		log = logger.New(cfg.LogLevel, format)
		slog.SetDefault(log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides LANDREG_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(serveCmd, detectCmd, scanDocumentsCmd, resolveCmd, trainCmd, relayAuditCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
