// Package http exposes the operational API: liveness, readiness and the
// pipeline counters.
package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// StatusSource reports the pipeline counters and the last run.
type StatusSource interface {
	Snapshot() map[string]int64
	LastRun() (runID string, finished time.Time, ok bool)
}

type HealthHandler struct {
	redis  *redis.Client
	status StatusSource
}

func NewHealthHandler(redisClient *redis.Client, status StatusSource) *HealthHandler {
	return &HealthHandler{
		redis:  redisClient,
		status: status,
	}
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
	app.Get("/status", h.Status)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	// Redis backs the shared limiter; without it the limiter degrades to
	// its in-process window, so a missing client is not a failure.
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["redis"] = "healthy"
		}
	} else {
		checks["redis"] = "not configured"
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Status(c *fiber.Ctx) error {
	resp := fiber.Map{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.status != nil {
		resp["counters"] = h.status.Snapshot()
		if runID, finished, ok := h.status.LastRun(); ok {
			resp["last_run"] = fiber.Map{
				"run_id":      runID,
				"finished_at": finished.UTC().Format(time.RFC3339),
			}
		}
	}
	return c.JSON(resp)
}
