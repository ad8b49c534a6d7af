// Package cleanup enforces retention on messages the agent has already
// processed. It runs as a separate scheduled job, never inside the
// classification pipeline.
package cleanup

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"agent_server/core/domain"
	"agent_server/core/port/out"
)

// Protected categories keep their mail longer than the rest.
var protectedCategories = map[string]bool{
	"Work":     true,
	"Personal": true,
	"School":   true,
}

type categoryCondition int

const (
	anyCategory categoryCondition = iota
	protectedOnly
	unprotectedOnly
)

type retentionRule struct {
	priority   string
	condition  categoryCondition
	maxAgeDays float64
}

// Lower-value mail ages out quickly; protected categories get two weeks.
// Priorities not listed here (Critical, Urgent, High, Normal-less mail) are
// never deleted by rule.
var retentionRules = []retentionRule{
	{priority: "Ignore", condition: anyCategory, maxAgeDays: 0},
	{priority: "Low", condition: unprotectedOnly, maxAgeDays: 3},
	{priority: "Low", condition: protectedOnly, maxAgeDays: 14},
	{priority: "Normal", condition: unprotectedOnly, maxAgeDays: 7},
	{priority: "Normal", condition: protectedOnly, maxAgeDays: 14},
}

// Config controls one cleanup run.
type Config struct {
	ProcessedLabel string
	MaxResults     int64
	// MaxRetentionDays is a backstop: processed mail older than this is
	// deleted no matter which labels it carries. Zero disables it.
	MaxRetentionDays int
	DryRun           bool
}

// Summary reports what a run did (or, in dry-run mode, would have done).
type Summary struct {
	Examined int
	Deleted  int
	Skipped  int
	Failed   int
}

// Cleaner walks processed mail per account and trashes what the retention
// rules no longer want kept.
type Cleaner struct {
	mailbox out.MailboxPort
	config  Config
	log     zerolog.Logger
}

func NewCleaner(mailbox out.MailboxPort, config Config, log zerolog.Logger) *Cleaner {
	if config.ProcessedLabel == "" {
		config.ProcessedLabel = domain.DefaultProcessedLabel
	}
	if config.MaxResults <= 0 {
		config.MaxResults = 500
	}
	return &Cleaner{
		mailbox: mailbox,
		config:  config,
		log:     log.With().Str("component", "cleanup").Logger(),
	}
}

// Run applies the retention rules to every account. One account's failure
// does not stop the others.
func (c *Cleaner) Run(ctx context.Context, accountIDs []string) *Summary {
	summary := &Summary{}
	now := time.Now().UTC()
	c.log.Info().Bool("dry_run", c.config.DryRun).Strs("accounts", accountIDs).Msg("cleanup run started")

	for _, accountID := range accountIDs {
		if ctx.Err() != nil {
			c.log.Warn().Msg("cleanup cancelled")
			break
		}
		c.runAccount(ctx, accountID, now, summary)
	}

	c.log.Info().
		Int("examined", summary.Examined).
		Int("deleted", summary.Deleted).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("cleanup run finished")
	return summary
}

func (c *Cleaner) runAccount(ctx context.Context, accountID string, now time.Time, summary *Summary) {
	log := c.log.With().Str("account_id", accountID).Logger()

	msgs, err := c.mailbox.ListProcessed(ctx, accountID, c.config.ProcessedLabel, c.config.MaxResults)
	if err != nil {
		log.Error().Err(err).Msg("listing processed mail failed")
		summary.Failed++
		return
	}
	log.Info().Int("count", len(msgs)).Msg("processed mail listed")

	for _, msg := range msgs {
		summary.Examined++

		priority := labelValue(msg.Labels, domain.PriorityLabelPrefix)
		category := labelValue(msg.Labels, domain.CategoryLabelPrefix)
		ageDays := ageInDays(now, msg.Date)

		if !c.shouldDelete(priority, category, ageDays) {
			summary.Skipped++
			continue
		}

		if c.config.DryRun {
			log.Info().
				Str("message_id", msg.ID).
				Str("priority", priority).
				Str("category", category).
				Float64("age_days", ageDays).
				Msg("dry run, would trash")
			summary.Deleted++
			continue
		}

		if err := c.mailbox.Trash(ctx, accountID, msg.ID); err != nil {
			log.Error().Err(err).Str("message_id", msg.ID).Msg("trash failed")
			summary.Failed++
			continue
		}
		summary.Deleted++
		log.Info().
			Str("message_id", msg.ID).
			Str("priority", priority).
			Str("category", category).
			Float64("age_days", ageDays).
			Msg("trashed by retention rule")
	}
}

func (c *Cleaner) shouldDelete(priority, category string, ageDays float64) bool {
	if c.config.MaxRetentionDays > 0 && ageDays >= float64(c.config.MaxRetentionDays) {
		return true
	}
	if priority == "" {
		return false
	}
	protected := protectedCategories[titleWord(category)]
	normalized := titleWord(priority)

	for _, rule := range retentionRules {
		if rule.priority != normalized {
			continue
		}
		if rule.condition == protectedOnly && !protected {
			continue
		}
		if rule.condition == unprotectedOnly && protected {
			continue
		}
		if ageDays >= rule.maxAgeDays {
			return true
		}
	}
	return false
}

// labelValue returns the suffix of the first label with the given prefix,
// e.g. "Low" from "Priority/Low".
func labelValue(labels []string, prefix string) string {
	for _, l := range labels {
		if strings.HasPrefix(l, prefix) {
			return strings.TrimPrefix(l, prefix)
		}
	}
	return ""
}

func titleWord(s string) string {
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

func ageInDays(now, date time.Time) float64 {
	if date.IsZero() {
		return 0
	}
	return now.Sub(date).Hours() / 24
}
