package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/turbo-auth/config"
	"github.com/oksasatya/turbo-auth/internal/application"
	"github.com/oksasatya/turbo-auth/internal/container"
	"github.com/oksasatya/turbo-auth/internal/domain/repository"
	meminfra "github.com/oksasatya/turbo-auth/internal/infrastructure/memory"
	pginfra "github.com/oksasatya/turbo-auth/internal/infrastructure/postgres"
	"github.com/oksasatya/turbo-auth/internal/infrastructure/redisstore"
	"github.com/oksasatya/turbo-auth/internal/interface/middleware"
	"github.com/oksasatya/turbo-auth/internal/router"
	"github.com/oksasatya/turbo-auth/pkg/helpers"
	"github.com/oksasatya/turbo-auth/pkg/validation"
)

func main() {
	_ = godotenv.Load() // load .env if present

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName, cfg.Env, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	gin.SetMode(cfg.GinMode)
	validation.Init()

	ctx := context.Background()
	container.SetConfig(cfg)
	container.SetLogger(logger)
	container.SetJWT(helpers.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL))
	container.SetHasher(helpers.NewPasswordHasher())

	closers := wireStores(ctx, cfg, logger)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()
	wireOptional(ctx, cfg, logger)
	defer container.GetRabbitPub().Close()
	if up := container.GetGCSUploader(); up != nil {
		defer func() { _ = up.Client.Close() }()
	}

	housekeeping := application.NewHousekeeping(container.GetSessionRepo(), logger, cfg.SessionCleanupInterval)
	housekeeping.Start()

	// Gin engine and global middleware
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RealIP(cfg.TrustProxyHeaders))
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	// bearer tokens travel in a header, so credentials mode is never needed
	if origins := cfg.CORSOrigins(); len(origins) > 0 {
		corsCfg.AllowOrigins = origins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	r.Use(cors.New(corsCfg))
	if cfg.HTTPLogEnabled {
		r.Use(middleware.Logger(logger))
	}

	// Registry: auto-register modules using container
	reg := router.NewRegistry(r, "/api")
	router.InitModules(reg, router.BuildAuthDeps())
	reg.RegisterAll()
	reg.LogRoutes(logger)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Infof("server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %s\n", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	housekeeping.Stop()
	logger.Info("server exited properly")
}

// wireStores builds the user and session repositories selected by config and
// returns the cleanup functions for whatever connections it opened.
func wireStores(ctx context.Context, cfg *config.Config, logger *logrus.Logger) []func() {
	var closers []func()

	if cfg.UsesPostgres() {
		pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), cfg.DBMaxConns, cfg.DBMinConns, cfg.DBMaxConnLife)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to postgres")
		}
		closers = append(closers, pool.Close)
		container.SetPGPool(pool)

		if err := pginfra.Migrate(cfg.PostgresDSN(), cfg.MigrationsDir, logger); err != nil {
			logger.WithError(err).Fatal("migration failed")
		}
	}

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		container.SetUserRepo(pginfra.NewUserRepository(container.GetPGPool()))
	default:
		logger.Warn("using in-memory user store; accounts are lost on restart")
		container.SetUserRepo(meminfra.NewUserRepository())
	}

	var sessions repository.SessionRepository
	switch cfg.SessionDriver {
	case config.DriverPostgres:
		sessions = pginfra.NewSessionRepository(container.GetPGPool())
	case config.DriverRedis:
		rdb, err := helpers.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to redis")
		}
		closers = append(closers, func() { _ = rdb.Close() })
		container.SetRedis(rdb)
		sessions = redisstore.NewSessionRepository(rdb)
	default:
		logger.Warn("using in-memory session store; sessions are lost on restart")
		sessions = meminfra.NewSessionRepository()
	}
	container.SetSessionRepo(sessions)
	logger.WithFields(logrus.Fields{"users": cfg.StoreDriver, "sessions": cfg.SessionDriver}).Info("stores ready")
	return closers
}

// wireOptional connects the event publisher and avatar storage. Both are
// optional: a failure is logged and the feature stays disabled.
func wireOptional(ctx context.Context, cfg *config.Config, logger *logrus.Logger) {
	if cfg.RabbitMQURL != "" {
		pub, err := helpers.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQEventsQueue)
		if err != nil {
			logger.WithError(err).Warn("rabbitmq unavailable; auth events disabled")
		} else {
			container.SetRabbitPub(pub)
		}
	}
	if cfg.GCSBucket != "" {
		client, err := helpers.NewGCSClient(ctx, cfg.GCSCredentialsJSONPath)
		if err != nil {
			logger.WithError(err).Warn("gcs unavailable; avatar upload disabled")
			return
		}
		container.SetGCSUploader(helpers.NewGCSUploader(client, cfg.GCSBucket))
	}
}
