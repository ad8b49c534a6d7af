package domain

import "strings"

// Label name prefixes used in the mailbox label vocabulary.
const (
	PriorityLabelPrefix = "Priority/"
	CategoryLabelPrefix = "Category/"

	// DefaultProcessedLabel marks a message as fully handled by the agent.
	// A message bearing this label is filtered out of the next fetch cycle.
	DefaultProcessedLabel = "ProcessedByAgent"
)

// titleCase converts an enum value like "HIGH" to "High".
func titleCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// PriorityLabel returns the mailbox label name for a priority, e.g. "Priority/High".
func PriorityLabel(p EmailPriority) string {
	if !p.Valid() {
		return ""
	}
	return PriorityLabelPrefix + titleCase(string(p))
}

// CategoryLabel returns the mailbox label name for a category, e.g. "Category/Work".
func CategoryLabel(c EmailCategory) string {
	if !c.Valid() {
		return ""
	}
	return CategoryLabelPrefix + titleCase(string(c))
}

// ClassificationLabels returns the full label vocabulary the agent may apply.
// Used at startup to make sure every label exists in the mailbox.
func ClassificationLabels() []string {
	labels := make([]string, 0, len(AllPriorities)+len(AllCategories))
	for _, p := range AllPriorities {
		labels = append(labels, PriorityLabel(p))
	}
	for _, c := range AllCategories {
		labels = append(labels, CategoryLabel(c))
	}
	return labels
}
