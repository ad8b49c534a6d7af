package analysis

import (
	"context"
	"strings"

	"agent_server/core/domain"
)

// HeuristicStage is the deterministic, offline last resort. It applies fixed
// keyword and sender-pattern rules and always produces a complete
// classification, so the analyzer as a whole can never fail.
type HeuristicStage struct{}

func NewHeuristicStage() *HeuristicStage {
	return &HeuristicStage{}
}

func (s *HeuristicStage) Name() string { return "heuristic" }

func (s *HeuristicStage) Attempt(_ context.Context, msg *domain.Message) (*domain.ClassificationResult, error) {
	return heuristicResult(msg), nil
}

// Spam signal keywords. The spam flag is conservative: a single signal is
// not enough to dispose of someone's mail.
var spamSignals = []string{
	"you have won", "claim your prize", "lottery", "inheritance",
	"wire transfer", "act now", "limited time offer", "free money",
	"cryptocurrency investment", "verify your account immediately",
}

var categoryRules = []struct {
	keywords []string
	category domain.EmailCategory
}{
	{[]string{"unsubscribe", "newsletter", "weekly digest", "daily digest"}, domain.CategoryNewsletter},
	{[]string{"sale", "discount", "% off", "promo", "coupon", "deal of"}, domain.CategoryMarketing},
	{[]string{"order", "shipped", "delivery", "tracking number", "your receipt"}, domain.CategoryShopping},
	{[]string{"assignment", "homework", "syllabus", "semester", "tuition", "campus"}, domain.CategorySchool},
	{[]string{"meeting", "project", "deadline", "standup", "review", "invoice"}, domain.CategoryWork},
}

var senderRules = []struct {
	patterns []string
	category domain.EmailCategory
}{
	{[]string{"facebook", "twitter", "instagram", "linkedin", "tiktok"}, domain.CategorySocial},
	{[]string{".edu", "school", "university"}, domain.CategorySchool},
	{[]string{"amazon", "ebay", "etsy", "shop"}, domain.CategoryShopping},
	{[]string{"newsletter@", "digest@", "news@"}, domain.CategoryNewsletter},
	{[]string{"marketing@", "promo@", "offers@", "deals@"}, domain.CategoryMarketing},
}

var priorityRules = []struct {
	keywords []string
	priority domain.EmailPriority
}{
	{[]string{"emergency", "critical", "outage", "security alert"}, domain.PriorityCritical},
	{[]string{"urgent", "asap", "immediately", "action required"}, domain.PriorityUrgent},
	{[]string{"reminder", "due", "deadline", "expires"}, domain.PriorityHigh},
}

// heuristicResult classifies from fixed rules. Category defaults to
// PERSONAL and priority to NORMAL when nothing matches; low-value categories
// are demoted to LOW.
func heuristicResult(msg *domain.Message) *domain.ClassificationResult {
	subject := strings.ToLower(msg.Subject)
	body := strings.ToLower(msg.CleanedBody)
	sender := strings.ToLower(msg.From)
	text := subject + " " + body

	signals := 0
	for _, kw := range spamSignals {
		if strings.Contains(text, kw) {
			signals++
		}
	}
	if signals >= 2 {
		return &domain.ClassificationResult{
			Spam:      domain.Spam,
			Source:    domain.SourceHeuristic,
			Complete:  true,
			Reasoning: "heuristic: multiple spam keyword signals",
		}
	}

	category := domain.CategoryPersonal
	matched := false
	for _, rule := range senderRules {
		for _, p := range rule.patterns {
			if strings.Contains(sender, p) {
				category = rule.category
				matched = true
				break
			}
		}
		if matched {
			break
		}
	}
	if !matched {
		for _, rule := range categoryRules {
			for _, kw := range rule.keywords {
				if strings.Contains(text, kw) {
					category = rule.category
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
	}

	priority := domain.PriorityNormal
	for _, rule := range priorityRules {
		for _, kw := range rule.keywords {
			if strings.Contains(subject, kw) {
				priority = rule.priority
				break
			}
		}
		if priority != domain.PriorityNormal {
			break
		}
	}
	if priority == domain.PriorityNormal {
		switch category {
		case domain.CategoryMarketing, domain.CategoryNewsletter, domain.CategorySocial:
			priority = domain.PriorityLow
		}
	}

	return &domain.ClassificationResult{
		Spam:      domain.NotSpam,
		Category:  category,
		Priority:  priority,
		Source:    domain.SourceHeuristic,
		Complete:  true,
		Reasoning: "heuristic: keyword and sender-pattern rules",
	}
}
