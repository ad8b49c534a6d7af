// Package pipeline routes validated classifications to their terminal
// disposition: spam disposal, label-and-mark, or pending retry.
package pipeline

import (
	"time"

	"agent_server/core/domain"
)

// Priorities and categories that warrant follow-up actions. Everything else
// gets labels only.
var actionPriorities = map[domain.EmailPriority]bool{
	domain.PriorityCritical: true,
	domain.PriorityUrgent:   true,
	domain.PriorityHigh:     true,
}

var actionCategories = map[domain.EmailCategory]bool{
	domain.CategoryWork:     true,
	domain.CategoryPersonal: true,
	domain.CategorySchool:   true,
}

// ValidatedAction is an action whose payload passed the structural check and
// may be handed to the executor.
type ValidatedAction struct {
	Kind     domain.ToolAction
	Calendar *domain.CalendarIntent
	Reminder *domain.ReminderIntent
	Task     *domain.TaskIntent
}

// ActionGate decides whether the executor should be called and with which
// payload. It never infers actions: only tools named in the result are
// considered, and a structurally broken payload downgrades to no action
// instead of failing the message.
type ActionGate struct{}

func NewActionGate() *ActionGate {
	return &ActionGate{}
}

// SelectActions returns at most one validated action, the first tool in the
// result's order whose payload is structurally sound.
func (g *ActionGate) SelectActions(result *domain.ClassificationResult) []ValidatedAction {
	if result == nil || result.IsSpam() || !result.StructurallyComplete() {
		return nil
	}
	if !actionPriorities[result.Priority] || !actionCategories[result.Category] {
		return nil
	}

	for _, tool := range result.RequiredTools {
		switch tool {
		case domain.ToolCalendar:
			if validCalendar(result.CalendarEvent) {
				return []ValidatedAction{{Kind: domain.ToolCalendar, Calendar: result.CalendarEvent}}
			}
		case domain.ToolReminder:
			if validReminder(result.Reminder) {
				return []ValidatedAction{{Kind: domain.ToolReminder, Reminder: result.Reminder}}
			}
		case domain.ToolTask:
			if validTask(result.Task) {
				return []ValidatedAction{{Kind: domain.ToolTask, Task: result.Task}}
			}
		}
	}
	return nil
}

func validCalendar(intent *domain.CalendarIntent) bool {
	if intent == nil || intent.Title == "" {
		return false
	}
	return parseableTime(intent.StartTime)
}

func validReminder(intent *domain.ReminderIntent) bool {
	return intent != nil && intent.Title != "" && parseableTime(intent.DueDate)
}

func validTask(intent *domain.TaskIntent) bool {
	return intent != nil && intent.Title != ""
}

// parseableTime accepts RFC 3339 and the date-only form backends sometimes
// send.
func parseableTime(s string) bool {
	if s == "" {
		return false
	}
	if _, err := time.Parse(time.RFC3339, s); err == nil {
		return true
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
