package out

import (
	"context"
	"time"

	"agent_server/core/domain"
)

// ClassifierRequest carries the message content sent to the classifier
// backend. Attachments are only populated for the multimodal stage and
// already filtered to the configured count and byte caps.
type ClassifierRequest struct {
	From         string
	Subject      string
	Body         string
	ReceivedDate time.Time
	Timezone     string
	Attachments  []domain.Attachment
}

// RawAnalysis is the backend's structured response before the core validates
// its enum values. Fields are strings on purpose: the staged analyzer owns
// the structural check, not the adapter.
type RawAnalysis struct {
	IsSpam        string                 `json:"is_spam"`
	Category      string                 `json:"category"`
	Priority      string                 `json:"priority"`
	RequiredTools []string               `json:"required_tools"`
	CalendarEvent *domain.CalendarIntent `json:"calendar_event,omitempty"`
	Reminder      *domain.ReminderIntent `json:"reminder,omitempty"`
	Task          *domain.TaskIntent     `json:"task,omitempty"`
	Reasoning     string                 `json:"reasoning"`
}

// ClassifierPort is the LLM backend. Both calls may fail or return
// structurally invalid analyses; the staged analyzer treats either the same
// way and falls through to the next stage.
type ClassifierPort interface {
	AnalyzeText(ctx context.Context, req *ClassifierRequest) (*RawAnalysis, error)
	AnalyzeMultimodal(ctx context.Context, req *ClassifierRequest) (*RawAnalysis, error)
}
