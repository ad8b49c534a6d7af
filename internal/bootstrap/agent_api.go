package bootstrap

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	agenthttp "agent_server/adapter/in/http"
	"agent_server/config"
)

// NewAPI builds the operational HTTP server. It only exposes health,
// readiness and the pipeline counters; there is no message-level API.
func NewAPI(cfg *config.Config, deps *Dependencies, status agenthttp.StatusSource) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: cfg.IsProduction(),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})
	app.Use(recover.New())

	handler := agenthttp.NewHealthHandler(deps.Redis, status)
	handler.Register(app)
	return app
}
