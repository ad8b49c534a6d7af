package analysis

import (
	"context"

	"agent_server/core/domain"
	"agent_server/core/port/out"
	"agent_server/pkg/apperr"
)

// TextStage sends the cleaned body to the classifier backend. First and
// richest stage of the chain.
type TextStage struct {
	backend out.ClassifierPort
	limiter BackendGate
	cfg     *Config
}

func NewTextStage(backend out.ClassifierPort, limiter BackendGate, cfg *Config) *TextStage {
	return &TextStage{backend: backend, limiter: limiter, cfg: cfg}
}

func (s *TextStage) Name() string { return "llm_text" }

// Attempt calls the backend with the bounded cleaned body and validates the
// response structurally. Timeouts and backend errors are returned as
// transient errors so the analyzer advances.
func (s *TextStage) Attempt(ctx context.Context, msg *domain.Message) (*domain.ClassificationResult, error) {
	release, err := s.limiter.Acquire(ctx, "classifier")
	if err != nil {
		return nil, apperr.TransientBackend(err, "limiter acquire failed")
	}
	defer release()

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ClassifierTimeout)
	defer cancel()

	raw, err := s.backend.AnalyzeText(callCtx, &out.ClassifierRequest{
		From:         msg.From,
		Subject:      msg.Subject,
		Body:         truncateBody(msg.CleanedBody, s.cfg.MaxBodyChars),
		ReceivedDate: msg.Date,
		Timezone:     s.cfg.Timezone,
	})
	if err != nil {
		return nil, apperr.TransientBackend(err, "text analysis call failed")
	}

	return parseAnalysis(raw, domain.SourceLLMText)
}
