package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"agent_server/core/domain"
	"agent_server/core/port/out"
)

type noopGate struct{}

func (noopGate) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

// fakeBackend scripts the classifier backend per stage.
type fakeBackend struct {
	textResult       *out.RawAnalysis
	textErr          error
	multimodalResult *out.RawAnalysis
	multimodalErr    error

	textCalls       int
	multimodalCalls int
	lastMultimodal  *out.ClassifierRequest
}

func (f *fakeBackend) AnalyzeText(ctx context.Context, req *out.ClassifierRequest) (*out.RawAnalysis, error) {
	f.textCalls++
	return f.textResult, f.textErr
}

func (f *fakeBackend) AnalyzeMultimodal(ctx context.Context, req *out.ClassifierRequest) (*out.RawAnalysis, error) {
	f.multimodalCalls++
	f.lastMultimodal = req
	return f.multimodalResult, f.multimodalErr
}

func newAnalyzer(backend out.ClassifierPort, cfg *Config) *StagedAnalyzer {
	return NewStagedAnalyzer(backend, noopGate{}, cfg, zerolog.Nop())
}

func testMessage() *domain.Message {
	return &domain.Message{
		ID:          "m1",
		From:        "boss@example.com",
		Subject:     "Status",
		Date:        time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
		CleanedBody: "Please send the quarterly report by Friday.",
		TextLength:  43,
		BodyQuality: domain.BodyQualityFullText,
	}
}

func TestAnalyzeTrustsValidTextStageVerbatim(t *testing.T) {
	backend := &fakeBackend{
		textResult: &out.RawAnalysis{
			IsSpam:        "NOT_SPAM",
			Category:      "work",
			Priority:      "high",
			RequiredTools: []string{"calendar", "none"},
			CalendarEvent: &domain.CalendarIntent{Title: "Review", StartTime: "2026-02-12T10:00:00Z"},
			Reasoning:     "deadline mentioned",
		},
	}
	result := newAnalyzer(backend, nil).Analyze(context.Background(), testMessage())

	if result.Source != domain.SourceLLMText {
		t.Fatalf("Source = %s, want llm_text", result.Source)
	}
	if result.Category != domain.CategoryWork || result.Priority != domain.PriorityHigh {
		t.Errorf("got %s/%s, want WORK/HIGH", result.Category, result.Priority)
	}
	if !result.Complete {
		t.Error("valid text result must be complete")
	}
	if len(result.RequiredTools) != 1 || result.RequiredTools[0] != domain.ToolCalendar {
		t.Errorf("RequiredTools = %v, want [calendar]", result.RequiredTools)
	}
	if backend.multimodalCalls != 0 {
		t.Error("later stages must not run after a success")
	}
}

func TestAnalyzeHeuristicWhenBackendAlwaysErrors(t *testing.T) {
	backend := &fakeBackend{
		textErr:       errors.New("backend down"),
		multimodalErr: errors.New("backend down"),
	}
	msg := testMessage()
	msg.BodyQuality = domain.BodyQualityShortText
	msg.HasNonTextContent = true
	msg.Attachments = []domain.Attachment{
		{ID: "a1", MimeType: "image/png", Data: []byte("img")},
	}

	result := newAnalyzer(backend, nil).Analyze(context.Background(), msg)

	if result.Source != domain.SourceHeuristic {
		t.Fatalf("Source = %s, want heuristic", result.Source)
	}
	if !result.Complete {
		t.Error("heuristic result must always be complete")
	}
	if !result.StructurallyComplete() {
		t.Error("heuristic result must satisfy the structural invariant")
	}
}

func TestAnalyzeTimeoutWithMultimodalDisabledFallsToHeuristic(t *testing.T) {
	backend := &fakeBackend{textErr: context.DeadlineExceeded}
	cfg := DefaultConfig()
	cfg.EnableMultimodalFallback = false

	msg := testMessage()
	msg.BodyQuality = domain.BodyQualityShortText
	msg.HasNonTextContent = true
	msg.Attachments = []domain.Attachment{
		{ID: "a1", MimeType: "image/png", Data: []byte("img")},
	}

	result := newAnalyzer(backend, cfg).Analyze(context.Background(), msg)

	if result.Source != domain.SourceHeuristic {
		t.Fatalf("Source = %s, want heuristic", result.Source)
	}
	if !result.Complete {
		t.Error("heuristic result must be complete")
	}
	if backend.multimodalCalls != 0 {
		t.Error("multimodal stage must not run when disabled")
	}
}

func TestAnalyzeInvalidPriorityTriesMultimodalBeforeHeuristic(t *testing.T) {
	backend := &fakeBackend{
		// Syntactically invalid priority: structural failure, not an error.
		textResult: &out.RawAnalysis{IsSpam: "NOT_SPAM", Category: "WORK", Priority: "SOMEWHAT_HIGH"},
		multimodalResult: &out.RawAnalysis{
			IsSpam:   "NOT_SPAM",
			Category: "WORK",
			Priority: "HIGH",
		},
	}

	msg := testMessage()
	msg.BodyQuality = domain.BodyQualityShortText
	msg.HasNonTextContent = true
	msg.Attachments = []domain.Attachment{
		{ID: "a1", MimeType: "image/png", Data: make([]byte, 100)},
		{ID: "a2", MimeType: "image/jpeg", Data: make([]byte, 100)},
	}

	result := newAnalyzer(backend, nil).Analyze(context.Background(), msg)

	if backend.multimodalCalls != 1 {
		t.Fatalf("multimodal calls = %d, want 1 (stage 2 attempted next, not heuristic)", backend.multimodalCalls)
	}
	if result.Source != domain.SourceLLMMultimodal {
		t.Fatalf("Source = %s, want llm_multimodal", result.Source)
	}
	if got := len(backend.lastMultimodal.Attachments); got != 2 {
		t.Errorf("attachments sent = %d, want 2", got)
	}
}

func TestAnalyzeMultimodalDeclinesForFullText(t *testing.T) {
	backend := &fakeBackend{textErr: errors.New("parse failure")}
	msg := testMessage() // full_text

	result := newAnalyzer(backend, nil).Analyze(context.Background(), msg)

	if backend.multimodalCalls != 0 {
		t.Error("multimodal stage must decline for full_text bodies")
	}
	if result.Source != domain.SourceHeuristic {
		t.Fatalf("Source = %s, want heuristic", result.Source)
	}
}

func TestAnalyzeSpamWithoutCategoryIsValid(t *testing.T) {
	backend := &fakeBackend{
		textResult: &out.RawAnalysis{IsSpam: "SPAM", Reasoning: "obvious phishing"},
	}
	result := newAnalyzer(backend, nil).Analyze(context.Background(), testMessage())

	if result.Spam != domain.Spam {
		t.Fatalf("Spam = %s, want SPAM", result.Spam)
	}
	if result.Source != domain.SourceLLMText {
		t.Errorf("Source = %s, want llm_text", result.Source)
	}
	if !result.Complete {
		t.Error("spam results are complete without category/priority")
	}
}

func TestSelectAttachments(t *testing.T) {
	atts := []domain.Attachment{
		{ID: "big", MimeType: "image/png", Data: make([]byte, 300)},
		{ID: "ok1", MimeType: "image/png", Data: make([]byte, 100)},
		{ID: "pdf", MimeType: "application/pdf", Data: make([]byte, 50)},
		{ID: "empty", MimeType: "image/png"},
		{ID: "ok2", MimeType: "image/jpeg", Data: make([]byte, 100)},
		{ID: "ok3", MimeType: "image/gif", Data: make([]byte, 100)},
	}

	selected := SelectAttachments(atts, 2, 200)

	if len(selected) != 2 {
		t.Fatalf("selected %d attachments, want 2", len(selected))
	}
	if selected[0].ID != "ok1" || selected[1].ID != "ok2" {
		t.Errorf("selected %s/%s, want ok1/ok2 (oversized and excess dropped, not truncated)",
			selected[0].ID, selected[1].ID)
	}
}
