package pipeline

import (
	"testing"

	"agent_server/core/domain"
)

func gateResult(category domain.EmailCategory, priority domain.EmailPriority) *domain.ClassificationResult {
	return &domain.ClassificationResult{
		Spam:     domain.NotSpam,
		Category: category,
		Priority: priority,
		Source:   domain.SourceLLMText,
		Complete: true,
	}
}

func TestSelectActionsWarrant(t *testing.T) {
	calendar := &domain.CalendarIntent{Title: "Sync", StartTime: "2026-03-01T09:00:00Z"}

	tests := []struct {
		name     string
		category domain.EmailCategory
		priority domain.EmailPriority
		want     int
	}{
		{"critical work acts", domain.CategoryWork, domain.PriorityCritical, 1},
		{"urgent personal acts", domain.CategoryPersonal, domain.PriorityUrgent, 1},
		{"high school acts", domain.CategorySchool, domain.PriorityHigh, 1},
		{"normal work labels only", domain.CategoryWork, domain.PriorityNormal, 0},
		{"urgent marketing labels only", domain.CategoryMarketing, domain.PriorityUrgent, 0},
		{"low personal labels only", domain.CategoryPersonal, domain.PriorityLow, 0},
	}

	gate := NewActionGate()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := gateResult(tt.category, tt.priority)
			result.RequiredTools = []domain.ToolAction{domain.ToolCalendar}
			result.CalendarEvent = calendar
			if got := len(gate.SelectActions(result)); got != tt.want {
				t.Errorf("SelectActions returned %d actions, want %d", got, tt.want)
			}
		})
	}
}

func TestSelectActionsAtMostOne(t *testing.T) {
	result := gateResult(domain.CategoryWork, domain.PriorityUrgent)
	result.RequiredTools = []domain.ToolAction{domain.ToolCalendar, domain.ToolReminder, domain.ToolTask}
	result.CalendarEvent = &domain.CalendarIntent{Title: "Sync", StartTime: "2026-03-01T09:00:00Z"}
	result.Reminder = &domain.ReminderIntent{Title: "Follow up", DueDate: "2026-03-02"}
	result.Task = &domain.TaskIntent{Title: "Draft report"}

	actions := NewActionGate().SelectActions(result)
	if len(actions) != 1 {
		t.Fatalf("SelectActions returned %d actions, want exactly 1", len(actions))
	}
	if actions[0].Kind != domain.ToolCalendar {
		t.Errorf("Kind = %s, want the first tool in the result's order", actions[0].Kind)
	}
}

func TestSelectActionsBrokenPayloadDowngrades(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.ClassificationResult)
		want   domain.ToolAction // "" means no action
	}{
		{
			"calendar without start time falls through to reminder",
			func(r *domain.ClassificationResult) {
				r.RequiredTools = []domain.ToolAction{domain.ToolCalendar, domain.ToolReminder}
				r.CalendarEvent = &domain.CalendarIntent{Title: "Sync"}
				r.Reminder = &domain.ReminderIntent{Title: "Follow up", DueDate: "2026-03-02"}
			},
			domain.ToolReminder,
		},
		{
			"unparseable start time downgrades to no action",
			func(r *domain.ClassificationResult) {
				r.RequiredTools = []domain.ToolAction{domain.ToolCalendar}
				r.CalendarEvent = &domain.CalendarIntent{Title: "Sync", StartTime: "tomorrow at 9"}
			},
			"",
		},
		{
			"tool named without payload downgrades to no action",
			func(r *domain.ClassificationResult) {
				r.RequiredTools = []domain.ToolAction{domain.ToolTask}
			},
			"",
		},
		{
			"date-only due date accepted",
			func(r *domain.ClassificationResult) {
				r.RequiredTools = []domain.ToolAction{domain.ToolReminder}
				r.Reminder = &domain.ReminderIntent{Title: "Pay invoice", DueDate: "2026-04-01"}
			},
			domain.ToolReminder,
		},
	}

	gate := NewActionGate()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := gateResult(domain.CategoryWork, domain.PriorityUrgent)
			tt.mutate(result)
			actions := gate.SelectActions(result)
			if tt.want == "" {
				if len(actions) != 0 {
					t.Errorf("SelectActions = %v, want none", actions)
				}
				return
			}
			if len(actions) != 1 || actions[0].Kind != tt.want {
				t.Errorf("SelectActions = %v, want one %s action", actions, tt.want)
			}
		})
	}
}

func TestSelectActionsSpamNeverActs(t *testing.T) {
	result := &domain.ClassificationResult{
		Spam:          domain.Spam,
		Source:        domain.SourceLLMText,
		Complete:      true,
		RequiredTools: []domain.ToolAction{domain.ToolCalendar},
		CalendarEvent: &domain.CalendarIntent{Title: "Sync", StartTime: "2026-03-01T09:00:00Z"},
	}
	if actions := NewActionGate().SelectActions(result); len(actions) != 0 {
		t.Errorf("SelectActions = %v, want none for spam", actions)
	}
}
