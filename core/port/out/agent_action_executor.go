package out

import (
	"context"

	"agent_server/core/domain"
)

// ActionOutcome describes a successfully created calendar event, reminder
// or task.
type ActionOutcome struct {
	Kind domain.ToolAction
	ID   string
	Link string
}

// ActionExecutorPort creates the side effects the action gate approved.
// Failures here are transient: the message is left unprocessed and the
// action is retried on the next run.
type ActionExecutorPort interface {
	CreateEvent(ctx context.Context, accountID string, intent *domain.CalendarIntent) (*ActionOutcome, error)
	CreateReminder(ctx context.Context, accountID string, intent *domain.ReminderIntent) (*ActionOutcome, error)
	CreateTask(ctx context.Context, accountID string, intent *domain.TaskIntent) (*ActionOutcome, error)
}
