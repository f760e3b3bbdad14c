package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-service/internal/config"
	"github.com/kozaktomas/face-service/internal/database/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply PostgreSQL schema migrations",
	Long: `Apply pending PostgreSQL schema migrations.
Only used with DB_DRIVER=postgres; the MySQL schema belongs to the attendance API.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Driver != config.DriverPostgres {
		fmt.Println("MySQL schema is managed by the attendance API; nothing to migrate")
		return nil
	}

	ctx := context.Background()
	pool, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	versions, err := pool.MigrationsApplied(ctx)
	if err != nil {
		return fmt.Errorf("listing migrations: %w", err)
	}
	fmt.Printf("Schema up to date (%d migrations applied)\n", len(versions))
	for _, v := range versions {
		fmt.Printf("  %s\n", v)
	}
	return nil
}
