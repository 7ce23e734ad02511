// Package cli is the bookworms command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"bookworms/internal/app"
	"bookworms/internal/config"
	"bookworms/internal/logger"
	"bookworms/internal/migrations"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// NewRootCommand builds the command tree. Running without a subcommand serves.
func NewRootCommand() *cobra.Command {
	var cfg *config.Config

	cmd := &cobra.Command{
		Use:           "bookworms",
		Short:         "Book Worms daily reading bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = config.Load()
			logger.Init(cfg.LogLevel, cfg.LogJSON)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.AddCommand(newServeCommand(&cfg))
	cmd.AddCommand(newMigrateCommand(&cfg))
	cmd.AddCommand(newTriggerCommand(&cfg))
	return cmd
}

// Execute runs the root command with signal-aware context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

func newServeCommand(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the bot and the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	if cfg.StoreDriver == "postgres" {
		if err := migrations.Up(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	a, err := app.New(ctx, cfg, Version)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func newMigrateCommand(cfg **config.Config) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := *cfg
			if c.StoreDriver != "postgres" {
				return errors.New("migrations apply to the postgres store only; sqlite creates its schema on open")
			}
			if down {
				if err := migrations.Down(c.DatabaseURL); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back one migration")
				return nil
			}
			if err := migrations.Up(c.DatabaseURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the last migration")
	return cmd
}

func newTriggerCommand(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <name>",
		Short: "Run one scheduled trigger now",
		Long:  "Run one scheduled trigger now. Names: " + fmt.Sprint(config.DefaultSchedule("UTC").Names()),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), *cfg, Version)
			if err != nil {
				return err
			}
			res, err := a.RunTrigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if res.Err != nil {
				return fmt.Errorf("trigger %s (run %s): %w", res.Trigger, res.RunID, res.Err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "trigger %s finished in %s (run %s)\n", res.Trigger, res.Duration, res.RunID)
			return nil
		},
	}
}
