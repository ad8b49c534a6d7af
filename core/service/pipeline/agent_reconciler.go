package pipeline

import (
	"agent_server/core/domain"
	"agent_server/pkg/apperr"
)

// LabelReconciler maps a final classification onto the mailbox label
// vocabulary and owns the second reliability gate: even a structurally valid
// classification must not be marked processed when the label apply partially
// failed under strict policy.
type LabelReconciler struct {
	enforceBothLabels bool
}

func NewLabelReconciler(enforceBothLabels bool) *LabelReconciler {
	return &LabelReconciler{enforceBothLabels: enforceBothLabels}
}

// ResolveLabels computes the Priority/ and Category/ label names for a
// non-spam result. An enum that no longer maps to a label means schema
// drift, reported as a fatal configuration error so the operator sees it;
// the message is skipped, not the batch.
func (r *LabelReconciler) ResolveLabels(result *domain.ClassificationResult) ([]string, error) {
	if result == nil || result.IsSpam() {
		// Spam never receives Priority/Category labels.
		return nil, nil
	}

	priorityLabel := domain.PriorityLabel(result.Priority)
	categoryLabel := domain.CategoryLabel(result.Category)
	if priorityLabel == "" || categoryLabel == "" {
		return nil, apperr.FatalConfig("classification does not resolve to the label vocabulary").
			WithDetail("category", string(result.Category)).
			WithDetail("priority", string(result.Priority))
	}
	return []string{priorityLabel, categoryLabel}, nil
}

// MayMarkProcessed decides whether the processed marker may be added given
// which of the required labels the mailbox reported as applied. With
// enforce_both_labels, both must have landed; otherwise one suffices.
func (r *LabelReconciler) MayMarkProcessed(required, applied []string) bool {
	if len(required) == 0 {
		return false
	}
	appliedSet := make(map[string]bool, len(applied))
	for _, l := range applied {
		appliedSet[l] = true
	}

	appliedCount := 0
	for _, l := range required {
		if appliedSet[l] {
			appliedCount++
		}
	}
	if r.enforceBothLabels {
		return appliedCount == len(required)
	}
	return appliedCount > 0
}
