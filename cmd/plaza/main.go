// Command plaza runs the presence server and its operator tasks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"plaza/cmd/internal/app"
	"plaza/cmd/internal/db/migrate"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "plaza",
		Short:        "Multiplayer presence server",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return app.LoadEnvFile()
		},
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newAdminCmd())
	return root
}

// bootstrap loads configuration and builds the App.
func bootstrap(ctx context.Context) (*app.App, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	log := app.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	settings, err := app.LoadSettings(cfg)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, settings, log)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the /ws presence gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or roll back the database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				dsn = os.Getenv("PLAZA_DATABASE_URL")
			}
			if err := migrate.Run(dsn, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: ok\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "database-url", "", "Postgres URL (default $PLAZA_DATABASE_URL)")
	return cmd
}

func newAdminCmd() *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Operator account tasks",
	}
	admin.AddCommand(&cobra.Command{
		Use:   "grant <username|email>",
		Short: "Promote an existing account to ADMIN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.Auth().GrantAdmin(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted ADMIN to %s (%s)\n", u.Username, u.ID)
			return nil
		},
	})
	return admin
}
