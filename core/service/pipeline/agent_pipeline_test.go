package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"agent_server/core/domain"
	"agent_server/core/port/out"
	"agent_server/core/service/analysis"
	"agent_server/core/service/preprocess"
)

// fixedAnalyzer returns a scripted result for every message.
type fixedAnalyzer struct {
	result *domain.ClassificationResult
}

func (a *fixedAnalyzer) Analyze(context.Context, *domain.Message) *domain.ClassificationResult {
	return a.result
}

// fakeMailbox records calls and simulates the label/marker state the real
// mailbox owns.
type fakeMailbox struct {
	mu sync.Mutex

	unread    []out.RawMessage
	processed map[string]bool
	trashed   []string
	applied   map[string][]string // message id -> labels
	marked    []string

	failLabels map[string]bool // labels the apply call reports as failed
	applyErr   error
	trashErr   error
	markErr    error
}

func newFakeMailbox(msgs ...out.RawMessage) *fakeMailbox {
	return &fakeMailbox{
		unread:     msgs,
		processed:  make(map[string]bool),
		applied:    make(map[string][]string),
		failLabels: make(map[string]bool),
	}
}

func (f *fakeMailbox) FetchUnread(_ context.Context, _ string, _ int64) ([]out.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []out.RawMessage
	for _, m := range f.unread {
		if !f.processed[m.ID] {
			result = append(result, m)
		}
	}
	return result, nil
}

func (f *fakeMailbox) HydrateAttachments(_ context.Context, _, _ string, atts []domain.Attachment, _ int64) ([]domain.Attachment, error) {
	return atts, nil
}

func (f *fakeMailbox) EnsureLabels(_ context.Context, _ string, names []string) (map[string]string, error) {
	ids := make(map[string]string, len(names))
	for _, n := range names {
		ids[n] = "id-" + n
	}
	return ids, nil
}

func (f *fakeMailbox) ApplyLabels(_ context.Context, _, messageID string, labels []string) (*out.LabelApplyResult, error) {
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	result := &out.LabelApplyResult{}
	for _, l := range labels {
		if f.failLabels[l] {
			result.Failed = append(result.Failed, l)
			continue
		}
		result.Applied = append(result.Applied, l)
		f.applied[messageID] = append(f.applied[messageID], l)
	}
	return result, nil
}

func (f *fakeMailbox) MarkProcessed(_ context.Context, _, messageID string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[messageID] = true
	f.marked = append(f.marked, messageID)
	return nil
}

func (f *fakeMailbox) Trash(_ context.Context, _, messageID string) error {
	if f.trashErr != nil {
		return f.trashErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trashed = append(f.trashed, messageID)
	return nil
}

func (f *fakeMailbox) ListProcessed(_ context.Context, _, _ string, _ int64) ([]out.ProcessedMessage, error) {
	return nil, nil
}

// fakeExecutor counts action executions.
type fakeExecutor struct {
	mu     sync.Mutex
	events int
	err    error
}

func (f *fakeExecutor) CreateEvent(context.Context, string, *domain.CalendarIntent) (*out.ActionOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.events++
	return &out.ActionOutcome{Kind: domain.ToolCalendar, ID: "evt-1"}, nil
}

func (f *fakeExecutor) CreateReminder(context.Context, string, *domain.ReminderIntent) (*out.ActionOutcome, error) {
	return &out.ActionOutcome{Kind: domain.ToolReminder, ID: "rem-1"}, nil
}

func (f *fakeExecutor) CreateTask(context.Context, string, *domain.TaskIntent) (*out.ActionOutcome, error) {
	return &out.ActionOutcome{Kind: domain.ToolTask, ID: "task-1"}, nil
}

func newTestPipeline(mailbox *fakeMailbox, executor *fakeExecutor, result *domain.ClassificationResult, policy Policy) *Pipeline {
	return New(Deps{
		Cleaner:   preprocess.NewCleaner(),
		Analyzer:  &fixedAnalyzer{result: result},
		Validator: analysis.NewValidator(),
		Mailbox:   mailbox,
		Executor:  executor,
	}, policy, zerolog.Nop())
}

func workResult() *domain.ClassificationResult {
	return &domain.ClassificationResult{
		Spam:     domain.NotSpam,
		Category: domain.CategoryWork,
		Priority: domain.PriorityHigh,
		Source:   domain.SourceLLMText,
		Complete: true,
	}
}

func rawMsg(id string) out.RawMessage {
	return out.RawMessage{ID: id, AccountID: "default", From: "boss@example.com", Subject: "Status"}
}

func TestProcessLabelsAndMarksValidatedMessage(t *testing.T) {
	mailbox := newFakeMailbox()
	p := newTestPipeline(mailbox, &fakeExecutor{}, workResult(), Policy{EnforceBothLabels: true, SpamDisposition: domain.SpamDispositionTrash})

	outcome := p.Process(context.Background(), rawMsg("m1"))

	if outcome.Disposition != domain.DispositionLabeledAndProcessed {
		t.Fatalf("Disposition = %s, want labeled_and_processed (err: %v)", outcome.Disposition, outcome.Err)
	}
	wantLabels := []string{"Priority/High", "Category/Work"}
	if len(outcome.Labels) != 2 || outcome.Labels[0] != wantLabels[0] || outcome.Labels[1] != wantLabels[1] {
		t.Errorf("Labels = %v, want %v", outcome.Labels, wantLabels)
	}
	if len(mailbox.marked) != 1 || mailbox.marked[0] != "m1" {
		t.Errorf("marked = %v, want [m1]", mailbox.marked)
	}
}

func TestProcessSpamTrashModeTrashesAndMarks(t *testing.T) {
	mailbox := newFakeMailbox()
	spam := &domain.ClassificationResult{Spam: domain.Spam, Source: domain.SourceLLMText, Complete: true}
	p := newTestPipeline(mailbox, &fakeExecutor{}, spam, Policy{SpamDisposition: domain.SpamDispositionTrash})

	outcome := p.Process(context.Background(), rawMsg("m1"))

	if outcome.Disposition != domain.DispositionSpamDisposed {
		t.Fatalf("Disposition = %s, want spam_disposed", outcome.Disposition)
	}
	if len(mailbox.trashed) != 1 {
		t.Error("trash request should be issued in trash mode")
	}
	if len(mailbox.marked) != 1 {
		t.Error("spam must still be marked processed")
	}
	if len(mailbox.applied["m1"]) != 0 {
		t.Errorf("spam must never receive Priority/Category labels, got %v", mailbox.applied["m1"])
	}
}

func TestProcessSpamNoneModeSkipsTrashButMarks(t *testing.T) {
	mailbox := newFakeMailbox()
	spam := &domain.ClassificationResult{Spam: domain.Spam, Source: domain.SourceHeuristic, Complete: true}
	p := newTestPipeline(mailbox, &fakeExecutor{}, spam, Policy{SpamDisposition: domain.SpamDispositionNone})

	outcome := p.Process(context.Background(), rawMsg("m1"))

	if outcome.Disposition != domain.DispositionSpamDisposed {
		t.Fatalf("Disposition = %s, want spam_disposed", outcome.Disposition)
	}
	if len(mailbox.trashed) != 0 {
		t.Error("no trash request in none mode")
	}
	if len(mailbox.marked) != 1 {
		t.Error("spam must be marked processed even without trashing")
	}
}

func TestProcessRejectedClassificationLeftForRetry(t *testing.T) {
	mailbox := newFakeMailbox()
	incomplete := &domain.ClassificationResult{
		Spam: domain.NotSpam, Category: domain.CategoryWork,
		Source: domain.SourceLLMText, Complete: true, // priority missing, flag lies
	}
	p := newTestPipeline(mailbox, &fakeExecutor{}, incomplete, Policy{EnforceBothLabels: true, SpamDisposition: domain.SpamDispositionTrash})

	outcome := p.Process(context.Background(), rawMsg("m1"))

	if outcome.Disposition != domain.DispositionIncompletePending {
		t.Fatalf("Disposition = %s, want labeled_incomplete_pending", outcome.Disposition)
	}
	if outcome.Err == nil {
		t.Error("rejection should carry the validator error")
	}
	if len(mailbox.marked) != 0 || len(mailbox.applied["m1"]) != 0 {
		t.Error("rejected message must receive no labels and no marker")
	}
}

func TestProcessPartialLabelApplyWithholdsMarking(t *testing.T) {
	mailbox := newFakeMailbox()
	mailbox.failLabels["Category/Work"] = true
	p := newTestPipeline(mailbox, &fakeExecutor{}, workResult(), Policy{EnforceBothLabels: true, SpamDisposition: domain.SpamDispositionTrash})

	outcome := p.Process(context.Background(), rawMsg("m1"))

	if outcome.Disposition != domain.DispositionIncompletePending {
		t.Fatalf("Disposition = %s, want labeled_incomplete_pending", outcome.Disposition)
	}
	if len(mailbox.marked) != 0 {
		t.Error("marking must be withheld when one of two required labels failed")
	}
	if got := p.Metrics().ProcessedWithoutBothLabels.Load(); got != 1 {
		t.Errorf("ProcessedWithoutBothLabels = %d, want 1", got)
	}
}

func TestProcessSingleLabelSufficesWhenNotEnforced(t *testing.T) {
	mailbox := newFakeMailbox()
	mailbox.failLabels["Category/Work"] = true
	p := newTestPipeline(mailbox, &fakeExecutor{}, workResult(), Policy{EnforceBothLabels: false, SpamDisposition: domain.SpamDispositionTrash})

	outcome := p.Process(context.Background(), rawMsg("m1"))

	if outcome.Disposition != domain.DispositionLabeledAndProcessed {
		t.Fatalf("Disposition = %s, want labeled_and_processed", outcome.Disposition)
	}
	if len(mailbox.marked) != 1 {
		t.Error("one applied label suffices when enforcement is off")
	}
}

func TestProcessActionFailureLeavesMessageUnmarked(t *testing.T) {
	mailbox := newFakeMailbox()
	result := workResult()
	result.RequiredTools = []domain.ToolAction{domain.ToolCalendar}
	result.CalendarEvent = &domain.CalendarIntent{Title: "Review", StartTime: "2026-02-12T10:00:00Z"}
	executor := &fakeExecutor{err: errors.New("calendar api down")}
	p := newTestPipeline(mailbox, executor, result, Policy{EnforceBothLabels: true, SpamDisposition: domain.SpamDispositionTrash})

	outcome := p.Process(context.Background(), rawMsg("m1"))

	if outcome.Disposition != domain.DispositionIncompletePending {
		t.Fatalf("Disposition = %s, want labeled_incomplete_pending", outcome.Disposition)
	}
	if len(mailbox.marked) != 0 {
		t.Error("message with failed action must stay unprocessed for retry")
	}
}

// Idempotence across runs: once marked processed, a message is filtered out
// of the next fetch and its action is never executed twice.
func TestRunTwiceDoesNotReExecuteActions(t *testing.T) {
	result := workResult()
	result.RequiredTools = []domain.ToolAction{domain.ToolCalendar}
	result.CalendarEvent = &domain.CalendarIntent{Title: "Review", StartTime: "2026-02-12T10:00:00Z"}

	mailbox := newFakeMailbox(rawMsg("m1"), rawMsg("m2"))
	executor := &fakeExecutor{}
	p := newTestPipeline(mailbox, executor, result, Policy{EnforceBothLabels: true, SpamDisposition: domain.SpamDispositionTrash})
	runner := NewRunner(p, &RunnerConfig{Workers: 2, WorkerChanSize: 4}, zerolog.Nop())
	ctx := context.Background()

	batch, _ := mailbox.FetchUnread(ctx, "default", 10)
	first := runner.Run(ctx, batch)
	if first.Dispositions[domain.DispositionLabeledAndProcessed] != 2 {
		t.Fatalf("first run dispositions = %v", first.Dispositions)
	}
	if executor.events != 2 {
		t.Fatalf("first run executed %d events, want 2", executor.events)
	}

	batch, _ = mailbox.FetchUnread(ctx, "default", 10)
	second := runner.Run(ctx, batch)
	if second.Total != 0 {
		t.Fatalf("second run fetched %d messages, want 0 (processed marker filters them)", second.Total)
	}
	if executor.events != 2 {
		t.Errorf("second run re-executed actions: %d events, want still 2", executor.events)
	}
}

func TestRunnerCancelledContextStopsSubmitting(t *testing.T) {
	mailbox := newFakeMailbox()
	p := newTestPipeline(mailbox, &fakeExecutor{}, workResult(), Policy{SpamDisposition: domain.SpamDispositionTrash})
	runner := NewRunner(p, DefaultRunnerConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := runner.Run(ctx, []out.RawMessage{rawMsg("m1"), rawMsg("m2")})
	if len(summary.Outcomes) != 0 {
		t.Errorf("cancelled run processed %d messages, want 0", len(summary.Outcomes))
	}
	if len(mailbox.marked) != 0 {
		t.Error("no message may be marked processed in a cancelled run")
	}
}
