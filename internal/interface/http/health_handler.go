package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/turbo-auth/pkg/response"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	AppName string
	Checks  map[string]Pinger
}

func NewHealthHandler(appName string, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{AppName: appName, Checks: checks}
}

// Root GET /
func (h *HealthHandler) Root(c *gin.Context) {
	response.Message(c, http.StatusOK, h.AppName+" API is running!")
}

// Health GET /api/health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	deps := make(map[string]string, len(h.Checks))
	for name, ping := range h.Checks {
		if err := ping(ctx); err != nil {
			deps[name] = "down"
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		deps[name] = "up"
	}
	body := gin.H{"status": status, "timestamp": time.Now().UTC().Format(time.RFC3339)}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}
	response.Success(c, code, body)
}
