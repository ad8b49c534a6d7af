// Package out defines outbound ports to external collaborators. The core
// only ever talks to the mailbox, classifier backend and action executor
// through these interfaces.
package out

import (
	"context"
	"time"

	"agent_server/core/domain"
)

// RawMessage is an email as fetched from the mailbox, before normalization.
// Body is the raw base64url-encoded payload the provider returns.
type RawMessage struct {
	ID                string
	ThreadID          string
	AccountID         string
	From              string
	Subject           string
	Date              time.Time
	Body              string
	Attachments       []domain.Attachment
	HasNonTextContent bool
}

// ProcessedMessage is the label and date metadata the retention job needs
// to evaluate its rules. No body is fetched.
type ProcessedMessage struct {
	ID        string
	AccountID string
	Labels    []string
	Date      time.Time
}

// LabelApplyResult reports which labels the mailbox accepted. A partially
// failed apply is not an error at the transport level; the reconciler
// decides what it means for marking.
type LabelApplyResult struct {
	Applied []string
	Failed  []string
}

// MailboxPort is the mailbox transport. The label and processed-marker state
// behind it is the single source of truth for "already processed"; the core
// never caches it.
type MailboxPort interface {
	// FetchUnread returns unread messages that do not yet bear the
	// processed marker label.
	FetchUnread(ctx context.Context, accountID string, maxResults int64) ([]RawMessage, error)

	// HydrateAttachments downloads payloads for the given attachments,
	// skipping any larger than maxBytes. Oversized attachments are returned
	// without data, never truncated.
	HydrateAttachments(ctx context.Context, accountID, messageID string, atts []domain.Attachment, maxBytes int64) ([]domain.Attachment, error)

	// EnsureLabels creates any missing labels and returns name -> label ID.
	EnsureLabels(ctx context.Context, accountID string, names []string) (map[string]string, error)

	// ApplyLabels adds the named labels to a message.
	ApplyLabels(ctx context.Context, accountID, messageID string, labels []string) (*LabelApplyResult, error)

	// MarkProcessed adds the processed marker label to a message.
	MarkProcessed(ctx context.Context, accountID, messageID string) error

	// Trash moves a message to the mailbox trash.
	Trash(ctx context.Context, accountID, messageID string) error

	// ListProcessed returns metadata for messages bearing the processed
	// marker label, for the retention job.
	ListProcessed(ctx context.Context, accountID, markerLabel string, maxResults int64) ([]ProcessedMessage, error)
}
