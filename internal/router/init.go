package router

import (
	"context"

	"github.com/oksasatya/turbo-auth/internal/application"
	"github.com/oksasatya/turbo-auth/internal/container"
	handlers "github.com/oksasatya/turbo-auth/internal/interface/http"
	"github.com/oksasatya/turbo-auth/internal/router/modules"
)

type AuthModuleDeps struct {
	Service *application.Service
	Handler *handlers.AuthHandler
}

// BuildAuthDeps wires the auth service from container singletons. Optional
// collaborators (event publisher, avatar storage) stay nil when unset so the
// service sees a true nil interface.
func BuildAuthDeps() AuthModuleDeps {
	cfg := container.GetConfig()
	logger := container.GetLogger()

	svc := application.NewService(
		container.GetUserRepo(),
		container.GetSessionRepo(),
		container.GetHasher(),
		container.GetJWT(),
		logger,
		cfg.SessionTTL,
	)
	if pub := container.GetRabbitPub(); pub != nil {
		svc.Events = pub
	}
	if up := container.GetGCSUploader(); up != nil {
		svc.Avatars = up
	}

	return AuthModuleDeps{
		Service: svc,
		Handler: handlers.NewAuthHandler(svc, logger),
	}
}

func healthChecks() map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{}
	if pool := container.GetPGPool(); pool != nil {
		checks["postgres"] = pool.Ping
	}
	if rdb := container.GetRedis(); rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if pub := container.GetRabbitPub(); pub != nil {
		checks["rabbitmq"] = pub.Ping
	}
	return checks
}

// InitModules registers every application module with the registry and
// mounts the root liveness route. Call once during startup.
func InitModules(r *Registry, auth AuthModuleDeps) {
	health := handlers.NewHealthHandler(container.GetConfig().AppName, healthChecks())
	r.Engine.GET("/", health.Root)

	r.Add(modules.NewHealthModule(health))
	r.Add(modules.NewAuthModule(auth.Handler, auth.Service, container.GetLogger()))
}
