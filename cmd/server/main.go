package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sudo-init-do/tasking/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(ctx).Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(ctx context.Context) *cobra.Command {
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "tasking",
		Short: "Sensor tasking API server",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			setupLogger(cfg)
			return cfg.Validate()
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfg.StoreType, "store", cfg.StoreType, "storage backend: memory, postgres or mongo")

	registerServeCmd(ctx, &cfg, rootCmd)
	registerMigrateCmd(ctx, &cfg, rootCmd)
	return rootCmd
}

func setupLogger(cfg config.Config) {
	level := slog.LevelInfo
	if cfg.Development() {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func registerMigrateCmd(ctx context.Context, cfg *config.Config, rootCmd *cobra.Command) {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the storage schema and exit",
		RunE: func(*cobra.Command, []string) error {
			if cfg.StoreType == "memory" {
				return fmt.Errorf("migrate: the memory store has no schema")
			}
			s, err := openStore(ctx, *cfg)
			if err != nil {
				return err
			}
			slog.Info("schema ready", "store", cfg.StoreType)
			return s.Close(ctx)
		},
	})
}
