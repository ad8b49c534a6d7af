package preprocess

import (
	"encoding/base64"
	"strings"
	"testing"

	"agent_server/core/domain"
	"agent_server/core/port/out"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestNormalizeCleansHTMLAndURLs(t *testing.T) {
	raw := out.RawMessage{
		ID:   "m1",
		Body: b64(`<html><style>p{color:red}</style><p>Meeting &amp; agenda at https://example.com/x tomorrow</p></html>`),
	}

	msg := NewCleaner().Normalize(raw)

	if strings.Contains(msg.CleanedBody, "<") || strings.Contains(msg.CleanedBody, "style") {
		t.Errorf("HTML not stripped: %q", msg.CleanedBody)
	}
	if strings.Contains(msg.CleanedBody, "http") {
		t.Errorf("URL not stripped: %q", msg.CleanedBody)
	}
	if !strings.Contains(msg.CleanedBody, "Meeting & agenda") {
		t.Errorf("entity not unescaped: %q", msg.CleanedBody)
	}
}

func TestNormalizeBodyQualityTiers(t *testing.T) {
	tests := []struct {
		name string
		body string
		want domain.BodyQuality
	}{
		{"empty body is no_text", "", domain.BodyQualityNoText},
		{"short body is short_text", b64("pls see attached"), domain.BodyQualityShortText},
		{"long body is full_text", b64(strings.Repeat("status update for the quarterly report ", 20)), domain.BodyQualityFullText},
	}

	cleaner := NewCleaner()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := cleaner.Normalize(out.RawMessage{ID: "m", Body: tt.body})
			if msg.BodyQuality != tt.want {
				t.Errorf("BodyQuality = %s, want %s (len %d)", msg.BodyQuality, tt.want, msg.TextLength)
			}
		})
	}
}

func TestNormalizeNeverFails(t *testing.T) {
	// Invalid base64 should fall through to the raw text, not error out.
	msg := NewCleaner().Normalize(out.RawMessage{ID: "m1", Body: "not base64!!!"})
	if msg.CleanedBody == "" {
		t.Error("plain-text body should survive normalization")
	}
	if msg.TextLength != len(msg.CleanedBody) {
		t.Errorf("TextLength = %d, want %d", msg.TextLength, len(msg.CleanedBody))
	}
}
