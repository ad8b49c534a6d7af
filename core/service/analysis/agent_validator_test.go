package analysis

import (
	"context"
	"testing"

	"agent_server/core/domain"
	"agent_server/pkg/apperr"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		result  *domain.ClassificationResult
		wantOK  bool
	}{
		{
			name: "complete non-spam result passes",
			result: &domain.ClassificationResult{
				Spam: domain.NotSpam, Category: domain.CategoryWork,
				Priority: domain.PriorityHigh, Source: domain.SourceLLMText, Complete: true,
			},
			wantOK: true,
		},
		{
			name: "spam without category or priority passes",
			result: &domain.ClassificationResult{
				Spam: domain.Spam, Source: domain.SourceLLMText, Complete: true,
			},
			wantOK: true,
		},
		{
			name:   "nil result fails",
			result: nil,
		},
		{
			name: "invalid spam flag fails",
			result: &domain.ClassificationResult{
				Spam: "MAYBE", Source: domain.SourceLLMText,
			},
		},
		{
			name: "missing source fails",
			result: &domain.ClassificationResult{
				Spam: domain.NotSpam, Category: domain.CategoryWork,
				Priority: domain.PriorityHigh, Complete: true,
			},
		},
		{
			name: "stage lying about completeness fails",
			result: &domain.ClassificationResult{
				Spam: domain.NotSpam, Category: domain.CategoryWork,
				Source: domain.SourceLLMText, Complete: true, // priority missing
			},
		},
		{
			name: "understated completeness fails",
			result: &domain.ClassificationResult{
				Spam: domain.NotSpam, Category: domain.CategoryWork,
				Priority: domain.PriorityHigh, Source: domain.SourceLLMText, Complete: false,
			},
		},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.result)
			if tt.wantOK && err != nil {
				t.Fatalf("Validate() = %v, want pass", err)
			}
			if !tt.wantOK {
				if err == nil {
					t.Fatal("Validate() passed, want failure")
				}
				if !apperr.IsCode(err, apperr.CodeStructuralValidation) {
					t.Errorf("error code = %v, want STRUCTURAL_VALIDATION", err)
				}
			}
		})
	}
}

func TestHeuristicStageRules(t *testing.T) {
	tests := []struct {
		name         string
		from         string
		subject      string
		body         string
		wantSpam     domain.SpamFlag
		wantCategory domain.EmailCategory
		wantPriority domain.EmailPriority
	}{
		{
			name: "multiple spam signals flag spam",
			from: "promo@win.example", subject: "You have won the lottery",
			body:     "claim your prize today",
			wantSpam: domain.Spam,
		},
		{
			name: "single spam signal stays conservative",
			from: "friend@example.com", subject: "act now on those tickets",
			body:     "they sell out fast",
			wantSpam: domain.NotSpam, wantCategory: domain.CategoryPersonal, wantPriority: domain.PriorityNormal,
		},
		{
			name: "social sender",
			from: "notify@linkedin.com", subject: "You have a new connection",
			wantSpam: domain.NotSpam, wantCategory: domain.CategorySocial, wantPriority: domain.PriorityLow,
		},
		{
			name: "urgent work subject",
			from: "manager@corp.example", subject: "URGENT: project deadline moved",
			body:     "the review meeting is tomorrow",
			wantSpam: domain.NotSpam, wantCategory: domain.CategoryWork, wantPriority: domain.PriorityUrgent,
		},
		{
			name: "newsletter keywords demoted to low",
			from: "hello@example.com", subject: "Your weekly digest",
			body:     "unsubscribe at any time",
			wantSpam: domain.NotSpam, wantCategory: domain.CategoryNewsletter, wantPriority: domain.PriorityLow,
		},
		{
			name: "no matches default to personal normal",
			from: "alex@example.com", subject: "hey",
			body:     "long time no see",
			wantSpam: domain.NotSpam, wantCategory: domain.CategoryPersonal, wantPriority: domain.PriorityNormal,
		},
	}

	stage := NewHeuristicStage()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &domain.Message{From: tt.from, Subject: tt.subject, CleanedBody: tt.body}
			result, err := stage.Attempt(context.Background(), msg)
			if err != nil {
				t.Fatalf("heuristic stage must not fail: %v", err)
			}
			if !result.Complete || !result.StructurallyComplete() {
				t.Error("heuristic result must always be complete")
			}
			if result.Spam != tt.wantSpam {
				t.Fatalf("Spam = %s, want %s", result.Spam, tt.wantSpam)
			}
			if tt.wantSpam == domain.Spam {
				return
			}
			if result.Category != tt.wantCategory {
				t.Errorf("Category = %s, want %s", result.Category, tt.wantCategory)
			}
			if result.Priority != tt.wantPriority {
				t.Errorf("Priority = %s, want %s", result.Priority, tt.wantPriority)
			}
		})
	}
}
