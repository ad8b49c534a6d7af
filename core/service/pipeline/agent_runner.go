package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agent_server/core/domain"
	"agent_server/core/port/out"
)

// RunnerConfig sizes the per-run worker pool.
type RunnerConfig struct {
	Workers        int
	WorkerChanSize int
}

// DefaultRunnerConfig returns default pool sizing.
func DefaultRunnerConfig() *RunnerConfig {
	return &RunnerConfig{Workers: 4, WorkerChanSize: 16}
}

// RunSummary aggregates one batch run.
type RunSummary struct {
	RunID        string
	Total        int
	Dispositions map[domain.Disposition]int
	Outcomes     []*Outcome
	Duration     time.Duration
}

// Runner executes per-message pipelines concurrently over a bounded worker
// pool. Messages are independent; the only shared resource is the backend
// limiter inside the analyzer stages.
type Runner struct {
	pipeline *Pipeline
	config   *RunnerConfig
	log      zerolog.Logger
}

func NewRunner(p *Pipeline, config *RunnerConfig, log zerolog.Logger) *Runner {
	if config == nil {
		config = DefaultRunnerConfig()
	}
	return &Runner{
		pipeline: p,
		config:   config,
		log:      log.With().Str("component", "runner").Logger(),
	}
}

type messageWorker struct {
	pipeline *Pipeline

	mu       sync.Mutex
	outcomes []*Outcome
}

// Do implements pool.Worker.
func (w *messageWorker) Do(ctx context.Context, raw out.RawMessage) error {
	outcome := w.pipeline.Process(ctx, raw)
	w.mu.Lock()
	w.outcomes = append(w.outcomes, outcome)
	w.mu.Unlock()
	return nil
}

// Run processes one batch. Cancelling ctx stops new submissions; in-flight
// messages either finish or are abandoned unmarked, which is safe because
// an unmarked message is simply fetched again next run.
func (r *Runner) Run(ctx context.Context, msgs []out.RawMessage) *RunSummary {
	start := time.Now()
	runID := uuid.NewString()
	log := r.log.With().Str("run_id", runID).Logger()
	log.Info().Int("batch", len(msgs)).Msg("pipeline run started")

	worker := &messageWorker{pipeline: r.pipeline}
	group := pool.New[out.RawMessage](r.config.Workers, worker).
		WithWorkerChanSize(r.config.WorkerChanSize).
		WithContinueOnError()

	if err := group.Go(ctx); err != nil {
		log.Error().Err(err).Msg("worker pool failed to start")
		return &RunSummary{RunID: runID, Total: len(msgs), Dispositions: map[domain.Disposition]int{}, Duration: time.Since(start)}
	}

submitLoop:
	for _, msg := range msgs {
		select {
		case <-ctx.Done():
			log.Warn().Msg("run cancelled, remaining messages left for next run")
			break submitLoop
		default:
			group.Submit(msg)
		}
	}

	if err := group.Close(ctx); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Msg("worker pool closed with error")
	}

	summary := &RunSummary{
		RunID:        runID,
		Total:        len(msgs),
		Dispositions: make(map[domain.Disposition]int),
		Outcomes:     worker.outcomes,
		Duration:     time.Since(start),
	}
	for _, o := range worker.outcomes {
		summary.Dispositions[o.Disposition]++
	}

	log.Info().
		Int("total", summary.Total).
		Int("completed", len(summary.Outcomes)).
		Dur("duration", summary.Duration).
		Msg("pipeline run finished")
	return summary
}
