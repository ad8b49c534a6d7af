package llm

import (
	"strings"
	"testing"
	"time"

	"agent_server/core/port/out"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain json untouched", `{"is_spam":"SPAM"}`, `{"is_spam":"SPAM"}`},
		{"json fence removed", "```json\n{\"is_spam\":\"SPAM\"}\n```", `{"is_spam":"SPAM"}`},
		{"bare fence removed", "```\n{}\n```", "{}"},
		{"surrounding whitespace trimmed", "  {}  ", "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFence(tt.in); got != tt.want {
				t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestUserPromptIncludesEmailFields(t *testing.T) {
	req := &out.ClassifierRequest{
		From:         "boss@example.com",
		Subject:      "Quarterly review",
		Body:         "Please prepare the numbers.",
		ReceivedDate: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC),
		Timezone:     "Europe/Berlin",
	}
	prompt := userPrompt(req)

	for _, want := range []string{"boss@example.com", "Quarterly review", "Please prepare the numbers.", "Europe/Berlin", "2026-02-10T09:00:00Z"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
