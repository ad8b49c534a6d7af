// Package analysis implements the staged classification of messages: an LLM
// text stage, a degraded multimodal stage, and a deterministic heuristic
// stage that can never fail.
package analysis

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"agent_server/core/domain"
	"agent_server/core/port/out"
)

// Stage is one attempt strategy in the fallback chain. A stage reports
// (nil, nil) when it declines to run (gating) and (nil, err) when the
// backend failed or returned a structurally invalid analysis. Either way the
// analyzer moves on to the next stage.
type Stage interface {
	Name() string
	Attempt(ctx context.Context, msg *domain.Message) (*domain.ClassificationResult, error)
}

// Config holds staged-analyzer policy.
type Config struct {
	EnableMultimodalFallback     bool
	MultimodalMaxAttachments     int
	MultimodalMaxAttachmentBytes int64
	ClassifierTimeout            time.Duration
	MaxBodyChars                 int
	Timezone                     string
}

// DefaultConfig returns default analyzer policy.
func DefaultConfig() *Config {
	return &Config{
		EnableMultimodalFallback:     true,
		MultimodalMaxAttachments:     3,
		MultimodalMaxAttachmentBytes: 2_000_000,
		ClassifierTimeout:            30 * time.Second,
		MaxBodyChars:                 4000,
		Timezone:                     "UTC",
	}
}

// StagedAnalyzer runs the fallback chain. It is total: every message gets a
// classification because the final heuristic stage always succeeds.
type StagedAnalyzer struct {
	stages []Stage
	log    zerolog.Logger
}

// NewStagedAnalyzer builds the standard three-stage chain.
func NewStagedAnalyzer(backend out.ClassifierPort, limiter BackendGate, cfg *Config, log zerolog.Logger) *StagedAnalyzer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &StagedAnalyzer{
		stages: []Stage{
			NewTextStage(backend, limiter, cfg),
			NewMultimodalStage(backend, limiter, cfg),
			NewHeuristicStage(),
		},
		log: log.With().Str("component", "staged_analyzer").Logger(),
	}
}

// NewStagedAnalyzerWithStages wires an explicit chain; used by tests.
func NewStagedAnalyzerWithStages(log zerolog.Logger, stages ...Stage) *StagedAnalyzer {
	return &StagedAnalyzer{stages: stages, log: log}
}

// BackendGate is the shared limiter every backend call must pass through.
// Satisfied by *ratelimit.BackendLimiter.
type BackendGate interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// Analyze walks the stage chain and returns the first structurally valid
// result, stamped with its source. It never returns nil and never panics
// past this boundary regardless of backend behavior.
func (a *StagedAnalyzer) Analyze(ctx context.Context, msg *domain.Message) *domain.ClassificationResult {
	for _, stage := range a.stages {
		result, err := a.attempt(ctx, stage, msg)
		if err != nil {
			a.log.Warn().
				Str("message_id", msg.ID).
				Str("stage", stage.Name()).
				Err(err).
				Msg("stage failed, advancing")
			continue
		}
		if result == nil {
			a.log.Debug().
				Str("message_id", msg.ID).
				Str("stage", stage.Name()).
				Msg("stage declined")
			continue
		}
		a.log.Info().
			Str("message_id", msg.ID).
			Str("source", string(result.Source)).
			Str("spam", string(result.Spam)).
			Msg("classification complete")
		return result
	}

	// Unreachable with the standard chain: the heuristic stage accepts
	// every message. Kept as a hard floor for custom chains.
	return heuristicResult(msg)
}

func (a *StagedAnalyzer) attempt(ctx context.Context, stage Stage, msg *domain.Message) (result *domain.ClassificationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &panicError{stage: stage.Name(), value: r}
		}
	}()
	return stage.Attempt(ctx, msg)
}

type panicError struct {
	stage string
	value any
}

func (e *panicError) Error() string {
	return "stage " + e.stage + " panicked"
}
