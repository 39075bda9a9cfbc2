package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/oksasatya/magic-code-auth/config"
	"github.com/oksasatya/magic-code-auth/internal/application"
	pginfra "github.com/oksasatya/magic-code-auth/internal/infrastructure/postgres"
	"github.com/oksasatya/magic-code-auth/pkg/helpers"
)

// Usage: seed [email...]. Each email is upserted the same way a login does.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env)

	emails := os.Args[1:]
	if len(emails) == 0 {
		emails = []string{"demo@example.com"}
	}

	dsn, fallback := cfg.PostgresDSN()
	if fallback {
		logger.Warn("DATABASE_URL not set, using the local development database")
	}
	ctx := context.Background()
	pool, err := pginfra.NewPool(ctx, dsn, cfg.DBMaxConns, cfg.DBMinConns, cfg.DBMaxConnLife)
	if err != nil {
		logger.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	svc := application.NewService(pginfra.NewUserRepository(pool), logger, nil, cfg.ESUsersIndex)
	for _, email := range emails {
		u, err := svc.GetOrCreate(ctx, email)
		if err != nil {
			logger.WithError(err).WithField("email", email).Error("failed to seed user")
			continue
		}
		fmt.Printf("seeded user: id=%s email=%s\n", u.ID, u.Email)
	}
}
