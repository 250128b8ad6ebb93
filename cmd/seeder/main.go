//cmd/seeder/main.go
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unclebandit/campaign-mailer/internal/config"
	"github.com/unclebandit/campaign-mailer/internal/db"
	"github.com/unclebandit/campaign-mailer/internal/logger"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "seeder",
	Short: "Database setup and seed data for the campaign mailer",
	Long: `Seeder prepares a campaign mailer database: it applies migrations,
imports contacts from CSV and stores templates.

It reads the same environment (or .env file) as the server, so DB_DRIVER and
DATABASE_URL select the target store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		logger.Init(logger.Config{Env: "dev", Level: cfg.LogLevel, ServiceName: "seeder"})
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()
		fmt.Println("Migrations applied.")
		return nil
	},
}

// openStore connects and migrates, so every command works on a fresh database.
func openStore(ctx context.Context) (*sql.DB, error) {
	conn, err := db.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, conn, cfg.DBDriver); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(contactsCmd)
	rootCmd.AddCommand(templateCmd)
}

func main() {
	defer logger.Sync()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
