package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"ikpa/internal/cli"
	"ikpa/internal/config"
	"ikpa/internal/storage"
)

func migrateCmd() *cobra.Command {
	var showVersion bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := cli.SetupLogger(cfg)

			dialect, err := storage.ParseDialect(cfg.DBDriver)
			if err != nil {
				return err
			}
			dsn := cfg.DSN()
			if dialect == storage.SQLite {
				if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
					return fmt.Errorf("create db directory: %w", err)
				}
				dsn = storage.SQLiteDSN(dsn)
			}

			if !showVersion {
				if err := storage.RunMigrations(dialect, dsn); err != nil {
					return err
				}
			}
			v, dirty, err := storage.MigrationVersion(dialect, dsn)
			if err != nil {
				return err
			}
			logger.Info("Schema version", "driver", string(dialect), "version", v, "dirty", dirty)
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", v, dirty)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showVersion, "version", false, "print the applied schema version without migrating")
	return cmd
}
