package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehr/profileapi/internal/config"
	"github.com/ehr/profileapi/internal/platform/db"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "profile-server",
		Short:        "Profile API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.Version)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the profiles schema in PostgreSQL",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(mg *db.Migrator) error {
				applied, err := mg.Up()
				if err != nil {
					return err
				}
				if !applied {
					fmt.Fprintln(cmd.OutOrStdout(), "No pending migrations.")
					return nil
				}
				return printStatus(cmd, mg)
			})
		},
	})

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Revert applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return withMigrator(func(mg *db.Migrator) error {
				if err := mg.Down(steps); err != nil {
					return err
				}
				return printStatus(cmd, mg)
			})
		},
	}
	downCmd.Flags().Int("steps", 1, "Number of migrations to revert")
	cmd.AddCommand(downCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(mg *db.Migrator) error {
				return printStatus(cmd, mg)
			})
		},
	})

	return cmd
}

func withMigrator(fn func(mg *db.Migrator) error) error {
	dsn, err := config.DatabaseURL()
	if err != nil {
		return err
	}
	mg, err := db.NewMigrator(dsn)
	if err != nil {
		return err
	}
	defer mg.Close()
	return fn(mg)
}

func printStatus(cmd *cobra.Command, mg *db.Migrator) error {
	st, err := mg.Status()
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	out := cmd.OutOrStdout()
	switch {
	case !st.Applied:
		fmt.Fprintln(out, "No migrations applied.")
	case st.Dirty:
		fmt.Fprintf(out, "Schema version %d (dirty: a migration failed part way, fix it and force the version)\n", st.Version)
	default:
		fmt.Fprintf(out, "Schema version %d\n", st.Version)
	}
	return nil
}

// runServer blocks until SIGINT or SIGTERM, then drains in-flight requests.
func runServer(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		logger := config.NewLogger(os.Getenv("ENV") == "development")
		logger.Error().Err(err).Msg("failed to load config")
		return err
	}
	return serve(ctx, cfg, cfg.Logger())
}
