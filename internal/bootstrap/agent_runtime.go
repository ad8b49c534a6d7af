package bootstrap

import (
	"context"
	"time"

	"agent_server/adapter/in/worker"
	"agent_server/config"
	"agent_server/core/service/cleanup"
)

// Agent is the long-running classification loop.
type Agent struct {
	loop *worker.AgentLoop
}

// NewAgent wires the fetch loop. The label vocabulary is ensured before the
// loop starts so concurrent label applies never race on label creation.
func NewAgent(cfg *config.Config, deps *Dependencies) (*Agent, error) {
	loop := worker.NewAgentLoop(deps.Mailbox, deps.Runner, deps.Metrics, worker.LoopConfig{
		AccountIDs:    cfg.AccountIDs,
		BatchSize:     int64(cfg.BatchSize),
		FetchInterval: cfg.FetchInterval,
	}, deps.Log)

	ensureCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := loop.EnsureVocabulary(ensureCtx, cfg.ProcessedLabel); err != nil {
		return nil, err
	}

	return &Agent{loop: loop}, nil
}

// Loop exposes the loop as the status source for the operational API.
func (a *Agent) Loop() *worker.AgentLoop {
	return a.loop
}

func (a *Agent) Start() {
	a.loop.Start()
}

func (a *Agent) Stop() {
	a.loop.Stop()
}

// RunCleanup executes one retention pass and returns its summary.
func RunCleanup(ctx context.Context, cfg *config.Config, deps *Dependencies) *cleanup.Summary {
	cleaner := cleanup.NewCleaner(deps.Mailbox, cleanup.Config{
		ProcessedLabel:   cfg.ProcessedLabel,
		MaxRetentionDays: cfg.CleanupRetentionDays,
		DryRun:           cfg.CleanupDryRun,
	}, deps.Log)

	return cleaner.Run(ctx, cfg.AccountIDs)
}
