package main

import (
	"context"
	"errors"
	"os"

	"github.com/joho/godotenv"

	"github.com/oksasatya/turbo-auth/config"
	"github.com/oksasatya/turbo-auth/internal/domain/entity"
	"github.com/oksasatya/turbo-auth/internal/domain/repository"
	pginfra "github.com/oksasatya/turbo-auth/internal/infrastructure/postgres"
	"github.com/oksasatya/turbo-auth/pkg/helpers"
)

// seed creates (or resets) an admin account in the postgres store.
// SEED_ADMIN_PASSWORD is required; there is no built-in default password.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env, cfg.LogLevel)

	email := entity.NormalizeEmail(getenv("SEED_ADMIN_EMAIL", "admin@example.com"))
	name := getenv("SEED_ADMIN_NAME", "Administrator")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if len(password) < 6 {
		logger.Fatal("SEED_ADMIN_PASSWORD must be set and at least 6 characters long")
	}

	ctx := context.Background()
	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), cfg.DBMaxConns, cfg.DBMinConns, cfg.DBMaxConnLife)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to postgres")
	}
	defer pool.Close()

	if err := pginfra.Migrate(cfg.PostgresDSN(), cfg.MigrationsDir, logger); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}

	hash, err := helpers.NewPasswordHasher().Hash(password)
	if err != nil {
		logger.WithError(err).Fatal("failed to hash password")
	}

	users := pginfra.NewUserRepository(pool)
	u := &entity.User{Email: email, Password: hash, Name: name, Role: entity.RoleAdmin, IsActive: true}
	err = users.Create(ctx, u)
	switch {
	case err == nil:
		logger.WithFields(map[string]any{"user_id": u.ID, "email": email}).Info("seeded admin user")
	case errors.Is(err, repository.ErrDuplicateEmail):
		existing, err := users.GetByEmail(ctx, email)
		if err != nil {
			logger.WithError(err).Fatal("failed to load existing user")
		}
		if err := users.UpdatePassword(ctx, existing.ID, hash); err != nil {
			logger.WithError(err).Fatal("failed to reset password")
		}
		if err := users.SetActive(ctx, existing.ID, true); err != nil {
			logger.WithError(err).Fatal("failed to activate user")
		}
		logger.WithField("user_id", existing.ID).Info("admin user already existed; password reset and account activated")
	default:
		logger.WithError(err).Fatal("failed to seed user")
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
