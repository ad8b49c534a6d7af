package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"agent_server/core/domain"
	"agent_server/core/port/out"
	"agent_server/core/service/analysis"
	"agent_server/core/service/preprocess"
	"agent_server/pkg/apperr"
)

// Analyzer is the staged analyzer seen by the pipeline. Satisfied by
// *analysis.StagedAnalyzer.
type Analyzer interface {
	Analyze(ctx context.Context, msg *domain.Message) *domain.ClassificationResult
}

// Policy holds the disposition knobs. See config for the corresponding
// environment options.
type Policy struct {
	EnforceBothLabels bool
	SpamDisposition   domain.SpamDispositionMode
}

// Outcome is the terminal, auditable state of one message in one run.
type Outcome struct {
	MessageID   string
	Disposition domain.Disposition
	Source      domain.ClassificationSource
	Labels      []string
	Actions     []out.ActionOutcome
	Err         error
}

// Pipeline runs a single message from raw fetch to terminal disposition.
// Stages are strictly sequential per message; concurrency happens across
// messages in the runner.
type Pipeline struct {
	cleaner    *preprocess.Cleaner
	analyzer   Analyzer
	validator  *analysis.Validator
	gate       *ActionGate
	reconciler *LabelReconciler
	mailbox    out.MailboxPort
	executor   out.ActionExecutorPort
	policy     Policy
	metrics    *Metrics
	log        zerolog.Logger

	maxAttachmentBytes int64
}

type Deps struct {
	Cleaner            *preprocess.Cleaner
	Analyzer           Analyzer
	Validator          *analysis.Validator
	Mailbox            out.MailboxPort
	Executor           out.ActionExecutorPort
	Metrics            *Metrics
	MaxAttachmentBytes int64
}

func New(deps Deps, policy Policy, log zerolog.Logger) *Pipeline {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &Pipeline{
		cleaner:            deps.Cleaner,
		analyzer:           deps.Analyzer,
		validator:          deps.Validator,
		gate:               NewActionGate(),
		reconciler:         NewLabelReconciler(policy.EnforceBothLabels),
		mailbox:            deps.Mailbox,
		executor:           deps.Executor,
		policy:             policy,
		metrics:            metrics,
		log:                log.With().Str("component", "pipeline").Logger(),
		maxAttachmentBytes: deps.MaxAttachmentBytes,
	}
}

// Metrics returns the shared counters.
func (p *Pipeline) Metrics() *Metrics {
	return p.metrics
}

// Process takes one raw message to a terminal state. It never returns a nil
// outcome and never lets one message's failure escape to the batch: every
// error path ends in the pending disposition, which simply means the
// message stays unprocessed and is retried on a later run.
func (p *Pipeline) Process(ctx context.Context, raw out.RawMessage) *Outcome {
	log := p.log.With().Str("message_id", raw.ID).Str("account_id", raw.AccountID).Logger()

	// Normalize. Attachment payloads are hydrated first so the multimodal
	// stage has something to send; hydration failure only costs that stage.
	if len(raw.Attachments) > 0 && raw.HasNonTextContent {
		hydrated, err := p.mailbox.HydrateAttachments(ctx, raw.AccountID, raw.ID, raw.Attachments, p.maxAttachmentBytes)
		if err != nil {
			log.Warn().Err(err).Msg("attachment hydration failed")
		} else {
			raw.Attachments = hydrated
		}
	}
	msg := p.cleaner.Normalize(raw)

	result := p.analyzer.Analyze(ctx, &msg)
	if result.Source == domain.SourceHeuristic {
		p.metrics.FallbackUsed.Add(1)
	}

	if err := p.validator.Validate(result); err != nil {
		p.metrics.ClassificationIncomplete.Add(1)
		p.metrics.PendingRetry.Add(1)
		log.Warn().Err(err).Msg("classification rejected, message left for retry")
		return p.pending(msg.ID, result, err)
	}

	if result.IsSpam() {
		return p.disposeSpam(ctx, &msg, result, log)
	}
	return p.labelAndMark(ctx, &msg, result, log)
}

// disposeSpam short-circuits the tag-and-act flow. Regardless of the trash
// mode the message is marked processed, so spam never re-enters the
// pipeline on the next run.
func (p *Pipeline) disposeSpam(ctx context.Context, msg *domain.Message, result *domain.ClassificationResult, log zerolog.Logger) *Outcome {
	if p.policy.SpamDisposition == domain.SpamDispositionTrash {
		if err := p.mailbox.Trash(ctx, msg.AccountID, msg.ID); err != nil {
			p.metrics.PendingRetry.Add(1)
			log.Error().Err(err).Msg("trash request failed, spam left for retry")
			return p.pending(msg.ID, result, apperr.Mailbox(err, "trash request failed"))
		}
		p.metrics.SpamTrashed.Add(1)
	} else {
		p.metrics.SpamMarkedOnly.Add(1)
	}

	if err := p.mailbox.MarkProcessed(ctx, msg.AccountID, msg.ID); err != nil {
		p.metrics.PendingRetry.Add(1)
		return p.pending(msg.ID, result, apperr.Mailbox(err, "mark processed failed"))
	}

	log.Info().Str("mode", string(p.policy.SpamDisposition)).Msg("spam disposed")
	return &Outcome{
		MessageID:   msg.ID,
		Disposition: domain.DispositionSpamDisposed,
		Source:      result.Source,
	}
}

// labelAndMark is the non-spam path: execute warranted actions, apply
// labels, and mark processed only when the reconciler allows it.
func (p *Pipeline) labelAndMark(ctx context.Context, msg *domain.Message, result *domain.ClassificationResult, log zerolog.Logger) *Outcome {
	var executed []out.ActionOutcome
	for _, action := range p.gate.SelectActions(result) {
		outcome, err := p.executeAction(ctx, msg.AccountID, action)
		if err != nil {
			// Transient: leave unprocessed, the whole message retries.
			p.metrics.PendingRetry.Add(1)
			log.Error().Err(err).Str("action", string(action.Kind)).Msg("action execution failed")
			return p.pending(msg.ID, result, apperr.TransientBackend(err, "action execution failed"))
		}
		p.metrics.ActionsExecuted.Add(1)
		executed = append(executed, *outcome)
	}

	labels, err := p.reconciler.ResolveLabels(result)
	if err != nil {
		// Fatal config: logged once, message skipped, batch proceeds.
		log.Error().Err(err).Msg("label vocabulary does not cover classification")
		p.metrics.PendingRetry.Add(1)
		return p.pending(msg.ID, result, err)
	}

	applyResult, err := p.mailbox.ApplyLabels(ctx, msg.AccountID, msg.ID, labels)
	if err != nil {
		p.metrics.PendingRetry.Add(1)
		return p.pending(msg.ID, result, apperr.Mailbox(err, "label apply failed"))
	}

	if !p.reconciler.MayMarkProcessed(labels, applyResult.Applied) {
		p.metrics.ProcessedWithoutBothLabels.Add(1)
		p.metrics.PendingRetry.Add(1)
		log.Warn().
			Strs("required", labels).
			Strs("applied", applyResult.Applied).
			Msg("label apply incomplete, marking withheld")
		return p.pending(msg.ID, result, apperr.ReliabilityGate("required labels not fully applied"))
	}

	if err := p.mailbox.MarkProcessed(ctx, msg.AccountID, msg.ID); err != nil {
		p.metrics.PendingRetry.Add(1)
		return p.pending(msg.ID, result, apperr.Mailbox(err, "mark processed failed"))
	}

	p.metrics.Processed.Add(1)
	log.Info().
		Str("category", string(result.Category)).
		Str("priority", string(result.Priority)).
		Strs("labels", labels).
		Msg("message labeled and processed")

	return &Outcome{
		MessageID:   msg.ID,
		Disposition: domain.DispositionLabeledAndProcessed,
		Source:      result.Source,
		Labels:      labels,
		Actions:     executed,
	}
}

func (p *Pipeline) executeAction(ctx context.Context, accountID string, action ValidatedAction) (*out.ActionOutcome, error) {
	switch action.Kind {
	case domain.ToolCalendar:
		return p.executor.CreateEvent(ctx, accountID, action.Calendar)
	case domain.ToolReminder:
		return p.executor.CreateReminder(ctx, accountID, action.Reminder)
	case domain.ToolTask:
		return p.executor.CreateTask(ctx, accountID, action.Task)
	}
	return nil, apperr.New(apperr.CodeInternal, "unknown action kind")
}

func (p *Pipeline) pending(messageID string, result *domain.ClassificationResult, err error) *Outcome {
	source := domain.ClassificationSource("")
	if result != nil {
		source = result.Source
	}
	return &Outcome{
		MessageID:   messageID,
		Disposition: domain.DispositionIncompletePending,
		Source:      source,
		Err:         err,
	}
}
