package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"agent_server/config"
	"agent_server/internal/bootstrap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env if present (local development).
	_ = godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: agent, api, cleanup, all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	switch *mode {
	case "agent":
		runAgent(cfg, deps, false)
	case "api":
		runAPI(cfg, deps)
	case "cleanup":
		runCleanup(cfg, deps)
	case "all":
		runAgent(cfg, deps, true)
	default:
		deps.Log.Fatal().Str("mode", *mode).Msg("unknown run mode")
	}
}

// runAgent starts the classification loop; withAPI also serves the
// operational endpoints off the same metrics.
func runAgent(cfg *config.Config, deps *bootstrap.Dependencies, withAPI bool) {
	agent, err := bootstrap.NewAgent(cfg, deps)
	if err != nil {
		deps.Log.Fatal().Err(err).Msg("failed to initialize agent")
	}

	if withAPI {
		app := bootstrap.NewAPI(cfg, deps, agent.Loop())
		go func() {
			addr := ":" + cfg.Port
			deps.Log.Info().Str("addr", addr).Msg("api server starting")
			if err := app.Listen(addr); err != nil {
				deps.Log.Error().Err(err).Msg("api server stopped")
			}
		}()
		defer shutdownAPI(deps, app.Shutdown)
	}

	agent.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	deps.Log.Info().Dur("timeout", shutdownTimeout).Msg("shutting down")
	done := make(chan struct{})
	go func() {
		agent.Stop()
		close(done)
	}()

	select {
	case <-done:
		deps.Log.Info().Msg("agent shut down gracefully")
	case <-time.After(shutdownTimeout):
		deps.Log.Warn().Msg("agent shutdown timed out, forcing exit")
		os.Exit(1)
	}
}

func runAPI(cfg *config.Config, deps *bootstrap.Dependencies) {
	app := bootstrap.NewAPI(cfg, deps, nil)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		shutdownAPI(deps, app.Shutdown)
	}()

	addr := ":" + cfg.Port
	deps.Log.Info().Str("addr", addr).Msg("api server starting")
	if err := app.Listen(addr); err != nil {
		deps.Log.Fatal().Err(err).Msg("api server failed")
	}
}

func runCleanup(cfg *config.Config, deps *bootstrap.Dependencies) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary := bootstrap.RunCleanup(ctx, cfg, deps)
	deps.Log.Info().
		Int("examined", summary.Examined).
		Int("deleted", summary.Deleted).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("cleanup finished")
	if summary.Failed > 0 {
		os.Exit(1)
	}
}

func shutdownAPI(deps *bootstrap.Dependencies, shutdown func() error) {
	done := make(chan error, 1)
	go func() {
		done <- shutdown()
	}()

	select {
	case err := <-done:
		if err != nil {
			deps.Log.Error().Err(err).Msg("api shutdown error")
		}
	case <-time.After(shutdownTimeout):
		deps.Log.Warn().Msg("api shutdown timed out")
	}
}
