// Package cli wires the service binary's commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/account-security-service/internal/config"
	"github.com/sandeepkv93/account-security-service/internal/database"
	"github.com/sandeepkv93/account-security-service/internal/di"
	"github.com/sandeepkv93/account-security-service/internal/tools/common"
)

type options struct {
	envFile string
	ci      bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "account-security",
		Short:         "Account security service: login, sessions, two-factor and recovery",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return common.LoadEnvFile(opts.envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "optional KEY=VALUE file applied before reading the environment")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "plain machine-readable output")
	cmd.AddCommand(newServeCommand(), newMigrateCommand(opts), newSweepCommand(opts))
	return cmd
}

func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, cleanup, err := di.InitializeApp(ctx, cfg)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			defer cleanup()
			return a.Run(ctx)
		},
	}
}

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := database.Open(database.Options{Driver: cfg.DatabaseDriver, DSN: cfg.DatabaseURL})
			if err != nil {
				return err
			}
			defer func() { _ = database.Close(db) }()
			err = database.Migrate(db)
			report(cmd.OutOrStdout(), opts, "migrate", []string{"driver=" + cfg.DatabaseDriver}, err)
			return err
		},
	}
}

func newSweepCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired security tokens and sessions once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			m, cleanup, err := di.InitializeMaintenance(cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			return runSweep(cmd.Context(), cmd.OutOrStdout(), opts, m)
		},
	}
}

func runSweep(ctx context.Context, out io.Writer, opts *options, m *di.Maintenance) error {
	var (
		details []string
		failed  error
	)
	for _, r := range m.Sweeper.RunOnce(ctx) {
		if r.Err != nil {
			details = append(details, fmt.Sprintf("%s failed", r.Name))
			failed = fmt.Errorf("sweep %s: %w", r.Name, r.Err)
			continue
		}
		details = append(details, fmt.Sprintf("%s removed=%d", r.Name, r.Removed))
	}
	report(out, opts, "sweep", details, failed)
	return failed
}

func report(out io.Writer, opts *options, title string, details []string, err error) {
	if opts.ci {
		common.PrintCIResult(out, err == nil, title, details, err)
		return
	}
	common.PrintResult(out, title, err == nil, details, err)
}
