package pipeline

import "sync/atomic"

// Metrics counts pipeline outcomes across runs. Exposed on the status
// endpoint.
type Metrics struct {
	Processed                  atomic.Int64
	SpamTrashed                atomic.Int64
	SpamMarkedOnly             atomic.Int64
	FallbackUsed               atomic.Int64
	ClassificationIncomplete   atomic.Int64
	ProcessedWithoutBothLabels atomic.Int64
	ActionsExecuted            atomic.Int64
	PendingRetry               atomic.Int64
}

// Snapshot returns a plain map for serialization.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"processed":                     m.Processed.Load(),
		"spam_trashed":                  m.SpamTrashed.Load(),
		"spam_marked_only":              m.SpamMarkedOnly.Load(),
		"fallback_used":                 m.FallbackUsed.Load(),
		"classification_incomplete":     m.ClassificationIncomplete.Load(),
		"processed_without_both_labels": m.ProcessedWithoutBothLabels.Load(),
		"actions_executed":              m.ActionsExecuted.Load(),
		"pending_retry":                 m.PendingRetry.Load(),
	}
}
