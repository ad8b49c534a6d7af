// Package preprocess normalizes raw mailbox messages into cleaned text the
// classifier can consume, plus a quality signal for the multimodal gate.
package preprocess

import (
	"encoding/base64"
	"html"
	"regexp"
	"strings"
	"unicode"

	"agent_server/core/domain"
	"agent_server/core/port/out"
)

// Body quality thresholds, in characters of cleaned text.
const shortTextThreshold = 200

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe         = regexp.MustCompile(`(?s)<[^>]+>`)
	urlRe         = regexp.MustCompile(`https?://\S+|www\.\S+`)
	bareDomainRe  = regexp.MustCompile(`(?:\S+\.)+(?:com|org|net|edu|gov|mil|biz|info|io|ai|co)\S*`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// Cleaner turns a raw message into an immutable domain.Message.
type Cleaner struct{}

func NewCleaner() *Cleaner {
	return &Cleaner{}
}

// Normalize decodes and cleans the raw body and derives the body-quality
// tier. It never fails: an undecodable body degrades to no_text rather than
// blocking the message, so the heuristic stage still gets sender and subject.
func (c *Cleaner) Normalize(raw out.RawMessage) domain.Message {
	body := decodeBody(raw.Body)
	body = stripHTML(body)
	body = stripURLs(body)
	body = normalizeText(body)

	quality := domain.BodyQualityFullText
	switch {
	case len(body) == 0:
		quality = domain.BodyQualityNoText
	case len(body) < shortTextThreshold:
		quality = domain.BodyQualityShortText
	}

	return domain.Message{
		ID:                raw.ID,
		ThreadID:          raw.ThreadID,
		AccountID:         raw.AccountID,
		From:              raw.From,
		Subject:           raw.Subject,
		Date:              raw.Date,
		CleanedBody:       body,
		TextLength:        len(body),
		BodyQuality:       quality,
		Attachments:       raw.Attachments,
		HasNonTextContent: raw.HasNonTextContent,
	}
}

// decodeBody decodes the provider's base64url payload. Plain-text bodies
// that fail to decode are used as-is.
func decodeBody(body string) string {
	if body == "" {
		return ""
	}
	if decoded, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(body, "=")); err == nil {
		return string(decoded)
	}
	return body
}

func stripHTML(content string) string {
	content = html.UnescapeString(content)
	content = scriptStyleRe.ReplaceAllString(content, " ")
	return tagRe.ReplaceAllString(content, " ")
}

func stripURLs(text string) string {
	text = urlRe.ReplaceAllString(text, "")
	return bareDomainRe.ReplaceAllString(text, "")
}

// normalizeText collapses whitespace and drops control characters and
// symbols that only add prompt noise.
func normalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\n' || r == '\t' || r == ' ':
			b.WriteRune(' ')
		case unicode.IsControl(r):
		case unicode.In(r, unicode.So, unicode.Sk): // emoji and symbol noise
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(b.String(), " "))
}
