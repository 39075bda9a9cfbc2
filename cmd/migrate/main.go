package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/oksasatya/magic-code-auth/config"
	pginfra "github.com/oksasatya/magic-code-auth/internal/infrastructure/postgres"
	"github.com/oksasatya/magic-code-auth/pkg/helpers"
)

// Applies db/migrations. Unlike the issuer, this refuses to guess a database.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-migrate", cfg.Env)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is not set")
		os.Exit(1)
	}
	if err := pginfra.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir, logger); err != nil {
		logger.WithError(err).Error("migration failed")
		os.Exit(1)
	}
}
