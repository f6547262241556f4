// cmd/db/migrate.go applies the embedded schema migrations to the configured
// Postgres database without starting the HTTP server. Useful when the server
// runs with RUN_MIGRATIONS=false.
package main

import (
	"context"
	"errors"
	"time"

	"github.com/jason-s-yu/cordless/internal/config"
	"github.com/jason-s-yu/cordless/internal/database"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	if err := run(logger); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}
}

func run(logger *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("set DATABASE_URL or POSTGRES_USER, PG_HOST and PG_DATABASE")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	start := time.Now()
	if err := database.Migrate(ctx, pool); err != nil {
		return err
	}
	logger.WithField("duration", time.Since(start)).Info("database is up to date")
	return nil
}
