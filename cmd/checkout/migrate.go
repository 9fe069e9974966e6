package main

import (
	"errors"
	"fmt"

	"github.com/fjod/storefront-checkout/internal/config"
	"github.com/fjod/storefront-checkout/internal/repository"
	"github.com/fjod/storefront-checkout/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the attempt ledger migrations",
	Long: `Apply the database migrations for payment attempts and the outbox.

Examples:
  checkout migrate
  DB_HOST=localhost DB_PASSWORD=secret checkout migrate`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.LedgerEnabled() {
		return errors.New("DB_HOST is required to run migrations")
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	creds := credentials(cfg)
	repo, err := repository.NewRepository(creds, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(creds); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database migrations completed", zap.String("dir", creds.MigrationsDirPath))
	return nil
}

func credentials(cfg *config.Config) *repository.Credentials {
	return &repository.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.MigrationsDir,
	}
}
