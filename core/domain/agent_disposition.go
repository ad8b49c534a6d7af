package domain

// Disposition is the terminal outcome of one message in one pipeline run.
// It is derived from the classification and the configured policy, computed
// fresh every run and never persisted.
type Disposition string

const (
	// DispositionSpamDisposed means the message was identified as spam and
	// disposed of according to policy. Terminal.
	DispositionSpamDisposed Disposition = "spam_disposed"

	// DispositionLabeledAndProcessed means labels were applied and the
	// processed marker was added. Terminal.
	DispositionLabeledAndProcessed Disposition = "labeled_and_processed"

	// DispositionIncompletePending means the classification or label apply
	// failed a reliability gate. The message stays unprocessed and is
	// re-evaluated on the next fetch cycle.
	DispositionIncompletePending Disposition = "labeled_incomplete_pending"
)

// SpamDispositionMode configures what to do with messages classified as spam.
type SpamDispositionMode string

const (
	// SpamDispositionTrash requests deletion from the mailbox.
	SpamDispositionTrash SpamDispositionMode = "trash"
	// SpamDispositionNone skips deletion but still marks the message
	// processed so spam does not re-enter the pipeline every run.
	SpamDispositionNone SpamDispositionMode = "none"
)
