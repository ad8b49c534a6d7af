// Package worker drives the periodic fetch-and-classify loop.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"agent_server/core/domain"
	"agent_server/core/port/out"
	"agent_server/core/service/pipeline"
)

// LoopConfig sizes the fetch loop.
type LoopConfig struct {
	AccountIDs    []string
	BatchSize     int64
	FetchInterval time.Duration
}

// AgentLoop fetches unread mail per account on a fixed interval and hands
// each batch to the pipeline runner. Runs never overlap: a tick that fires
// while a run is still going is skipped by the ticker semantics.
type AgentLoop struct {
	mailbox out.MailboxPort
	runner  *pipeline.Runner
	metrics *pipeline.Metrics
	config  LoopConfig
	log     zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	lastRunID   string
	lastRunTime time.Time
}

func NewAgentLoop(mailbox out.MailboxPort, runner *pipeline.Runner, metrics *pipeline.Metrics, config LoopConfig, log zerolog.Logger) *AgentLoop {
	if config.BatchSize <= 0 {
		config.BatchSize = 25
	}
	if config.FetchInterval <= 0 {
		config.FetchInterval = 5 * time.Minute
	}
	return &AgentLoop{
		mailbox: mailbox,
		runner:  runner,
		metrics: metrics,
		config:  config,
		log:     log.With().Str("component", "agent-loop").Logger(),
	}
}

// EnsureVocabulary creates the full label vocabulary up front so per-message
// label applies never race each other on label creation.
func (l *AgentLoop) EnsureVocabulary(ctx context.Context, processedLabel string) error {
	names := append(domain.ClassificationLabels(), processedLabel)
	for _, accountID := range l.config.AccountIDs {
		if _, err := l.mailbox.EnsureLabels(ctx, accountID, names); err != nil {
			return err
		}
		l.log.Info().Str("account_id", accountID).Int("labels", len(names)).Msg("label vocabulary ensured")
	}
	return nil
}

// Start launches the loop. The first cycle runs immediately.
func (l *AgentLoop) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.log.Info().
		Dur("interval", l.config.FetchInterval).
		Strs("accounts", l.config.AccountIDs).
		Msg("agent loop starting")
	go l.run(ctx)
}

// Stop cancels the loop and waits for the current cycle to finish.
func (l *AgentLoop) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.log.Info().Msg("agent loop stopped")
}

func (l *AgentLoop) run(ctx context.Context) {
	defer close(l.done)

	l.Cycle(ctx)
	ticker := time.NewTicker(l.config.FetchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cycle(ctx)
		}
	}
}

// Cycle runs one fetch-and-process pass over every account. Exported so the
// one-shot mode can reuse it.
func (l *AgentLoop) Cycle(ctx context.Context) {
	for _, accountID := range l.config.AccountIDs {
		if ctx.Err() != nil {
			return
		}

		msgs, err := l.mailbox.FetchUnread(ctx, accountID, l.config.BatchSize)
		if err != nil {
			l.log.Error().Err(err).Str("account_id", accountID).Msg("fetch failed, account skipped this cycle")
			continue
		}
		if len(msgs) == 0 {
			l.log.Debug().Str("account_id", accountID).Msg("no unread messages")
			continue
		}

		summary := l.runner.Run(ctx, msgs)
		l.mu.Lock()
		l.lastRunID = summary.RunID
		l.lastRunTime = time.Now()
		l.mu.Unlock()
	}
}

// Snapshot implements the status source for the operational API.
func (l *AgentLoop) Snapshot() map[string]int64 {
	return l.metrics.Snapshot()
}

// LastRun implements the status source for the operational API.
func (l *AgentLoop) LastRun() (string, time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastRunID == "" {
		return "", time.Time{}, false
	}
	return l.lastRunID, l.lastRunTime, true
}
