package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
	"smarttrain/utils"
)

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Pinger
}

// NewHealthHandler checks redis and, when db is not nil, the database.
func NewHealthHandler(client redis.Cmdable, db Pinger) *HealthHandler {
	checks := map[string]Pinger{
		"redis": func(ctx context.Context) error { return utils.RedisHealthCheck(ctx, client) },
	}
	if db != nil {
		checks["database"] = db
	}
	return &HealthHandler{checks: checks}
}

// Health - GET /health
func (h *HealthHandler) Health(e *core.RequestEvent) error {
	ctx, cancel := context.WithTimeout(e.Request.Context(), 2*time.Second)
	defer cancel()

	code := http.StatusOK
	result := map[string]string{"status": "healthy"}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			code = http.StatusServiceUnavailable
			result["status"] = "unhealthy"
			result[name] = "unavailable"
			slog.Error("Health check failed", "check", name, "error", err)
			continue
		}
		result[name] = "ok"
	}
	return e.JSON(code, result)
}
