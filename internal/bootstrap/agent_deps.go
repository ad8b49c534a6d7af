// Package bootstrap wires adapters, services and the pipeline together for
// each run mode.
package bootstrap

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"agent_server/adapter/out/llm"
	"agent_server/adapter/out/provider"
	"agent_server/config"
	"agent_server/core/domain"
	"agent_server/core/service/analysis"
	"agent_server/core/service/pipeline"
	"agent_server/core/service/preprocess"
	"agent_server/pkg/ratelimit"
)

// Dependencies holds everything the run modes share.
type Dependencies struct {
	Config *config.Config
	Log    zerolog.Logger
	Redis  *redis.Client

	Mailbox    *provider.GmailAdapter
	Classifier *llm.OpenAIClassifier
	Executor   *provider.GoogleActionsAdapter
	Limiter    *ratelimit.BackendLimiter

	Analyzer *analysis.StagedAnalyzer
	Pipeline *pipeline.Pipeline
	Metrics  *pipeline.Metrics
	Runner   *pipeline.Runner
}

// NewDependencies builds the full dependency graph. Redis is optional: the
// limiter falls back to its in-process window without it.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	log := newLogger(cfg)

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		redisClient = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, limiter uses in-process window")
		}
		cancel()
	}

	mailbox := provider.NewGmailAdapter(&provider.GmailConfig{
		ClientID:       cfg.GoogleClientID,
		ClientSecret:   cfg.GoogleClientSecret,
		RedirectURL:    cfg.GoogleRedirectURL,
		TokenDir:       cfg.GoogleTokenDir,
		ProcessedLabel: cfg.ProcessedLabel,
	}, log)

	executor := provider.NewGoogleActionsAdapter(&provider.GoogleActionsConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		TokenDir:     cfg.GoogleTokenDir,
		Timezone:     cfg.Timezone,
	}, log)

	classifier := llm.NewOpenAIClassifier(llm.Config{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.LLMModel,
		VisionModel: cfg.LLMVisionModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
	}, log)

	limiter := ratelimit.NewBackendLimiter(redisClient, &ratelimit.Config{
		MaxConcurrent:     cfg.LimiterMaxConcurrent,
		RequestsPerSecond: cfg.LimiterRequestsPerSecond,
		BurstSize:         cfg.LimiterBurstSize,
	})

	analyzer := analysis.NewStagedAnalyzer(classifier, limiter, &analysis.Config{
		EnableMultimodalFallback:     cfg.EnableMultimodalFallback,
		MultimodalMaxAttachments:     cfg.MultimodalMaxAttachments,
		MultimodalMaxAttachmentBytes: int64(cfg.MultimodalMaxAttachmentByte),
		ClassifierTimeout:            cfg.ClassifierTimeout,
		MaxBodyChars:                 4000,
		Timezone:                     cfg.Timezone,
	}, log)

	metrics := &pipeline.Metrics{}
	pipe := pipeline.New(pipeline.Deps{
		Cleaner:            preprocess.NewCleaner(),
		Analyzer:           analyzer,
		Validator:          analysis.NewValidator(),
		Mailbox:            mailbox,
		Executor:           executor,
		Metrics:            metrics,
		MaxAttachmentBytes: int64(cfg.MultimodalMaxAttachmentByte),
	}, pipeline.Policy{
		EnforceBothLabels: cfg.EnforceBothLabels,
		SpamDisposition:   domain.SpamDispositionMode(cfg.SpamDisposition),
	}, log)

	runner := pipeline.NewRunner(pipe, &pipeline.RunnerConfig{
		Workers:        cfg.WorkerCount,
		WorkerChanSize: cfg.WorkerChanSize,
	}, log)

	deps := &Dependencies{
		Config:     cfg,
		Log:        log,
		Redis:      redisClient,
		Mailbox:    mailbox,
		Classifier: classifier,
		Executor:   executor,
		Limiter:    limiter,
		Analyzer:   analyzer,
		Pipeline:   pipe,
		Metrics:    metrics,
		Runner:     runner,
	}

	cleanup := func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}
	return deps, cleanup, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.IsDevelopment() {
		level = zerolog.DebugLevel
	}

	var log zerolog.Logger
	if cfg.IsDevelopment() {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		log = zerolog.New(os.Stdout)
	}
	return log.Level(level).With().
		Timestamp().
		Str("service", "mail-agent").
		Str("agent_id", cfg.AgentID).
		Logger()
}
