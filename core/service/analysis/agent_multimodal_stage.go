package analysis

import (
	"context"

	"agent_server/core/domain"
	"agent_server/core/port/out"
	"agent_server/pkg/apperr"
)

// MultimodalStage resends the message with attachment payloads when the text
// stage failed and the body alone is too thin to classify. Entered only for
// short_text/no_text messages carrying non-text content.
type MultimodalStage struct {
	backend out.ClassifierPort
	limiter BackendGate
	cfg     *Config
}

func NewMultimodalStage(backend out.ClassifierPort, limiter BackendGate, cfg *Config) *MultimodalStage {
	return &MultimodalStage{backend: backend, limiter: limiter, cfg: cfg}
}

func (s *MultimodalStage) Name() string { return "llm_multimodal" }

// Attempt declines unless the multimodal gate conditions hold and at least
// one attachment survives the count and byte caps.
func (s *MultimodalStage) Attempt(ctx context.Context, msg *domain.Message) (*domain.ClassificationResult, error) {
	if !s.cfg.EnableMultimodalFallback {
		return nil, nil
	}
	if msg.BodyQuality != domain.BodyQualityShortText && msg.BodyQuality != domain.BodyQualityNoText {
		return nil, nil
	}
	if !msg.HasNonTextContent {
		return nil, nil
	}

	selected := SelectAttachments(msg.Attachments, s.cfg.MultimodalMaxAttachments, s.cfg.MultimodalMaxAttachmentBytes)
	if len(selected) == 0 {
		return nil, nil
	}

	release, err := s.limiter.Acquire(ctx, "classifier")
	if err != nil {
		return nil, apperr.TransientBackend(err, "limiter acquire failed")
	}
	defer release()

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ClassifierTimeout)
	defer cancel()

	raw, err := s.backend.AnalyzeMultimodal(callCtx, &out.ClassifierRequest{
		From:         msg.From,
		Subject:      msg.Subject,
		Body:         truncateBody(msg.CleanedBody, s.cfg.MaxBodyChars),
		ReceivedDate: msg.Date,
		Timezone:     s.cfg.Timezone,
		Attachments:  selected,
	})
	if err != nil {
		return nil, apperr.TransientBackend(err, "multimodal analysis call failed")
	}

	return parseAnalysis(raw, domain.SourceLLMMultimodal)
}

// SelectAttachments picks up to maxCount attachments with payloads no larger
// than maxBytes. Oversized or excess attachments are dropped, never
// truncated.
func SelectAttachments(atts []domain.Attachment, maxCount int, maxBytes int64) []domain.Attachment {
	if maxCount <= 0 {
		return nil
	}
	var selected []domain.Attachment
	for _, att := range atts {
		if len(att.Data) == 0 || !att.IsImage() {
			continue
		}
		if maxBytes > 0 && int64(len(att.Data)) > maxBytes {
			continue
		}
		selected = append(selected, att)
		if len(selected) == maxCount {
			break
		}
	}
	return selected
}
