package domain

import "strings"

// SpamFlag is the binary spam verdict from the analyzer.
type SpamFlag string

const (
	Spam    SpamFlag = "SPAM"
	NotSpam SpamFlag = "NOT_SPAM"
)

// Valid reports whether the flag is one of the two enum values.
func (s SpamFlag) Valid() bool {
	return s == Spam || s == NotSpam
}

// EmailCategory is the closed category enum assigned by the analyzer.
type EmailCategory string

const (
	CategoryWork       EmailCategory = "WORK"
	CategoryPersonal   EmailCategory = "PERSONAL"
	CategoryFamily     EmailCategory = "FAMILY"
	CategorySocial     EmailCategory = "SOCIAL"
	CategoryMarketing  EmailCategory = "MARKETING"
	CategorySchool     EmailCategory = "SCHOOL"
	CategoryNewsletter EmailCategory = "NEWSLETTER"
	CategoryShopping   EmailCategory = "SHOPPING"
)

// AllCategories lists every valid category, in prompt order.
var AllCategories = []EmailCategory{
	CategoryWork, CategoryPersonal, CategoryFamily, CategorySocial,
	CategoryMarketing, CategorySchool, CategoryNewsletter, CategoryShopping,
}

// Valid reports whether the category is a member of the closed enum.
func (c EmailCategory) Valid() bool {
	for _, v := range AllCategories {
		if c == v {
			return true
		}
	}
	return false
}

// EmailPriority is the closed priority enum assigned by the analyzer.
type EmailPriority string

const (
	PriorityCritical EmailPriority = "CRITICAL"
	PriorityUrgent   EmailPriority = "URGENT"
	PriorityHigh     EmailPriority = "HIGH"
	PriorityNormal   EmailPriority = "NORMAL"
	PriorityLow      EmailPriority = "LOW"
	PriorityIgnore   EmailPriority = "IGNORE"
)

// AllPriorities lists every valid priority, highest first.
var AllPriorities = []EmailPriority{
	PriorityCritical, PriorityUrgent, PriorityHigh,
	PriorityNormal, PriorityLow, PriorityIgnore,
}

// Valid reports whether the priority is a member of the closed enum.
func (p EmailPriority) Valid() bool {
	for _, v := range AllPriorities {
		if p == v {
			return true
		}
	}
	return false
}

// ParseCategory normalizes a backend-provided string into the category enum.
// Returns false for anything outside the closed set.
func ParseCategory(s string) (EmailCategory, bool) {
	c := EmailCategory(strings.ToUpper(strings.TrimSpace(s)))
	return c, c.Valid()
}

// ParsePriority normalizes a backend-provided string into the priority enum.
func ParsePriority(s string) (EmailPriority, bool) {
	p := EmailPriority(strings.ToUpper(strings.TrimSpace(s)))
	return p, p.Valid()
}

// ParseSpamFlag normalizes a backend-provided string into the spam enum.
func ParseSpamFlag(s string) (SpamFlag, bool) {
	f := SpamFlag(strings.ToUpper(strings.TrimSpace(s)))
	return f, f.Valid()
}

// ClassificationSource indicates which analysis stage produced the result.
type ClassificationSource string

const (
	SourceLLMText       ClassificationSource = "llm_text"
	SourceLLMMultimodal ClassificationSource = "llm_multimodal"
	SourceHeuristic     ClassificationSource = "heuristic"
)

// Valid reports whether the source names a known stage.
func (s ClassificationSource) Valid() bool {
	switch s {
	case SourceLLMText, SourceLLMMultimodal, SourceHeuristic:
		return true
	}
	return false
}

// ToolAction names a follow-up action the analyzer may request.
type ToolAction string

const (
	ToolCalendar ToolAction = "calendar"
	ToolReminder ToolAction = "reminder"
	ToolTask     ToolAction = "task"
	ToolNone     ToolAction = "none"
)

// CalendarIntent is the payload for a requested calendar event.
type CalendarIntent struct {
	Title       string   `json:"title"`
	StartTime   string   `json:"start_time"`
	EndTime     string   `json:"end_time,omitempty"`
	Description string   `json:"description,omitempty"`
	Attendees   []string `json:"attendees,omitempty"`
}

// ReminderIntent is the payload for a requested reminder.
type ReminderIntent struct {
	Title       string `json:"title"`
	DueDate     string `json:"due_date"`
	Priority    string `json:"priority,omitempty"`
	Description string `json:"description,omitempty"`
}

// TaskIntent is the payload for a requested task.
type TaskIntent struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Assignees   []string `json:"assignees,omitempty"`
}

// ClassificationResult is produced exactly once per message by the staged
// analyzer. It is read-only after that: the validator may reject it but
// never edits it.
type ClassificationResult struct {
	Spam          SpamFlag             `json:"is_spam"`
	Category      EmailCategory        `json:"category,omitempty"`
	Priority      EmailPriority        `json:"priority,omitempty"`
	Source        ClassificationSource `json:"classification_source"`
	Complete      bool                 `json:"classification_complete"`
	RequiredTools []ToolAction         `json:"required_tools"`
	CalendarEvent *CalendarIntent      `json:"calendar_event,omitempty"`
	Reminder      *ReminderIntent      `json:"reminder,omitempty"`
	Task          *TaskIntent          `json:"task,omitempty"`
	Reasoning     string               `json:"reasoning,omitempty"`
}

// IsSpam reports whether the result carries a positive spam verdict.
func (r *ClassificationResult) IsSpam() bool {
	return r != nil && r.Spam == Spam
}

// StructurallyComplete recomputes the completeness invariant from the fields
// themselves: non-spam results need both enums set, spam results do not.
func (r *ClassificationResult) StructurallyComplete() bool {
	if r == nil || !r.Spam.Valid() {
		return false
	}
	if r.Spam == Spam {
		return true
	}
	return r.Category.Valid() && r.Priority.Valid()
}
