package domain

import "time"

// BodyQuality describes how much usable text the normalizer extracted.
type BodyQuality string

const (
	BodyQualityFullText  BodyQuality = "full_text"
	BodyQualityShortText BodyQuality = "short_text"
	BodyQualityNoText    BodyQuality = "no_text"
)

// Attachment describes a single attachment on a message. Data is populated
// lazily by the mailbox adapter and only for attachments the multimodal stage
// is allowed to send.
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Data     []byte `json:"-"`
}

// IsImage reports whether the attachment payload can be sent to a vision model.
func (a Attachment) IsImage() bool {
	switch a.MimeType {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
		return true
	}
	return false
}

// Message is the normalized form of a fetched email. It is produced once by
// the normalizer and never mutated by the pipeline.
type Message struct {
	ID                string       `json:"id"`
	ThreadID          string       `json:"thread_id"`
	AccountID         string       `json:"account_id"`
	From              string       `json:"from"`
	Subject           string       `json:"subject"`
	Date              time.Time    `json:"date"`
	CleanedBody       string       `json:"cleaned_body"`
	TextLength        int          `json:"text_length"`
	BodyQuality       BodyQuality  `json:"body_quality"`
	Attachments       []Attachment `json:"attachments,omitempty"`
	HasNonTextContent bool         `json:"has_non_text_content"`
}
