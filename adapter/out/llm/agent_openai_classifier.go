// Package llm implements the classifier backend on the OpenAI chat API.
package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	openai "github.com/sashabaranov/go-openai"

	"agent_server/core/port/out"
	"agent_server/pkg/apperr"
)

const DefaultModel = "gpt-4o-mini"

// systemPrompt instructs the model on spam characteristics and the exact
// JSON shape. The structural validation of what comes back lives in the
// core, not here.
const systemPrompt = `You are an expert email assistant. Analyze the email and respond with a single JSON object.

Spam characteristics to consider:
1. Unsolicited commercial content or marketing materials
2. Suspicious sender addresses (mismatched domains, random characters)
3. Poor grammar, spelling errors, or unusual formatting
4. Urgency or pressure tactics ("Act now!", "Limited time")
5. Requests for sensitive information (passwords, bank details)
6. Too-good-to-be-true offers (prizes, inheritance, investments)
7. Excessive use of capital letters, punctuation, or emojis
8. Generic greetings ("Dear Sir/Madam", "Dear User")
9. Mismatched sender name and email address
10. Links to suspicious or shortened URLs
11. Requests for money transfers or cryptocurrency
12. Impersonation of legitimate organizations

Respond with exactly this JSON shape:
{
  "is_spam": "SPAM" or "NOT_SPAM",
  "category": one of "WORK", "PERSONAL", "FAMILY", "SOCIAL", "MARKETING", "SCHOOL", "NEWSLETTER", "SHOPPING",
  "priority": one of "CRITICAL", "URGENT", "HIGH", "NORMAL", "LOW", "IGNORE",
  "required_tools": array drawn from "calendar", "reminder", "task", or ["none"],
  "calendar_event": {"title", "start_time", "end_time", "description", "attendees"} or null,
  "reminder": {"title", "due_date", "priority", "description"} or null,
  "task": {"title", "description", "due_date", "priority"} or null,
  "reasoning": brief explanation of the classification
}

Rules:
- If is_spam is "SPAM", category and priority may be omitted.
- Only request a tool when the email clearly calls for one; use ["none"] otherwise.
- All timestamps must be RFC 3339 in the user's timezone.`

// Config holds the OpenAI classifier configuration.
type Config struct {
	APIKey      string
	Model       string
	VisionModel string
	MaxTokens   int
	Temperature float64
}

// OpenAIClassifier implements out.ClassifierPort. One circuit breaker covers
// both the text and the multimodal calls since they hit the same backend.
type OpenAIClassifier struct {
	client      *openai.Client
	model       string
	visionModel string
	maxTokens   int
	temperature float32
	cb          *gobreaker.CircuitBreaker
	log         zerolog.Logger
}

func NewOpenAIClassifier(cfg Config, log zerolog.Logger) *OpenAIClassifier {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = model
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	logger := log.With().Str("component", "openai").Logger()
	cbSettings := gobreaker.Settings{
		Name:        "openai-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}

	return &OpenAIClassifier{
		client:      openai.NewClient(cfg.APIKey),
		model:       model,
		visionModel: visionModel,
		maxTokens:   maxTokens,
		temperature: float32(cfg.Temperature),
		cb:          gobreaker.NewCircuitBreaker(cbSettings),
		log:         logger,
	}
}

// AnalyzeText classifies from the cleaned text alone.
func (c *OpenAIClassifier) AnalyzeText(ctx context.Context, req *out.ClassifierRequest) (*out.RawAnalysis, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: userPrompt(req)},
	}
	return c.complete(ctx, c.model, messages)
}

// AnalyzeMultimodal sends the (possibly empty) text together with image
// attachments to the vision model. The caller already filtered attachments
// to images within the size cap.
func (c *OpenAIClassifier) AnalyzeMultimodal(ctx context.Context, req *out.ClassifierRequest) (*out.RawAnalysis, error) {
	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: userPrompt(req)},
	}
	for _, att := range req.Attachments {
		if len(att.Data) == 0 {
			continue
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:%s;base64,%s", att.MimeType, base64.StdEncoding.EncodeToString(att.Data)),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, MultiContent: parts},
	}
	return c.complete(ctx, c.visionModel, messages)
}

func (c *OpenAIClassifier) complete(ctx context.Context, model string, messages []openai.ChatCompletionMessage) (*out.RawAnalysis, error) {
	var resp openai.ChatCompletionResponse
	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       model,
			Messages:    messages,
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, apperr.TransientBackend(err, "classifier circuit open")
		}
		return nil, apperr.TransientBackend(err, "chat completion failed")
	}
	resp = result.(openai.ChatCompletionResponse)

	if len(resp.Choices) == 0 {
		return nil, apperr.New(apperr.CodeTransientBackend, "empty completion response")
	}

	var analysis out.RawAnalysis
	content := stripCodeFence(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		c.log.Warn().Err(err).Str("model", model).Msg("unparseable completion payload")
		return nil, apperr.StructuralValidation("backend returned malformed JSON")
	}
	return &analysis, nil
}

func userPrompt(req *out.ClassifierRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Timezone: %s\n", req.Timezone)
	if !req.ReceivedDate.IsZero() {
		fmt.Fprintf(&b, "Received: %s\n", req.ReceivedDate.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "\nAnalyze this email:\nFrom: %s\nSubject: %s\nBody:\n%s\n", req.From, req.Subject, req.Body)
	if len(req.Attachments) > 0 {
		fmt.Fprintf(&b, "\nThe email carries %d image attachment(s), included below.\n", len(req.Attachments))
	}
	return b.String()
}

// stripCodeFence tolerates models that wrap JSON in markdown fences despite
// JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var _ out.ClassifierPort = (*OpenAIClassifier)(nil)
