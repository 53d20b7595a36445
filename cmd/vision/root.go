package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"targetvision/internal/config"
	"targetvision/internal/logger"

	"github.com/spf13/cobra"
)

// Version is the application version.
const Version = "0.1.0"

var (
	// cfg and log are loaded once for every subcommand
	cfg *config.Config
	log *logger.Logger

	dbPath string
)

var rootCmd = &cobra.Command{
	Use:     "vision",
	Short:   "Two-strip vision target tracker",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		if dbPath != "" {
			cfg.DatabasePath = dbPath
		}
		log = logger.NewLogger(cfg)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			log.Close()
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "pose history database (default: $DB_PATH or ./data/poses.db)")
}
