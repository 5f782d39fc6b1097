package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/garrettladley/rally/internal/storage"
)

type dbConfig struct {
	Driver      storage.Driver `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	DatabaseURL string         `env:"STORAGE_DATABASE_URL"`
	SQLitePath  string         `env:"STORAGE_SQLITE_PATH" envDefault:"rally.db"`
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations to the configured history database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.ParseAs[dbConfig]()
			if err != nil {
				return fmt.Errorf("failed to read config: %w", err)
			}
			if cfg.Driver == storage.DriverMemory {
				fmt.Println("memory driver has nothing to migrate")
				return nil
			}

			// opening a history store applies its migrations
			backends, err := storage.Open(cmd.Context(), storage.Config{
				Driver:      cfg.Driver,
				DatabaseURL: cfg.DatabaseURL,
				SQLitePath:  cfg.SQLitePath,
			})
			if err != nil {
				return err
			}
			defer func() {
				_ = backends.Notifications.Close()
			}()

			fmt.Printf("Migrations applied successfully (%s)\n", cfg.Driver)
			return nil
		},
	}
}
