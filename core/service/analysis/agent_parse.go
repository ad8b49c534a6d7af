package analysis

import (
	"agent_server/core/domain"
	"agent_server/core/port/out"
	"agent_server/pkg/apperr"
)

// parseAnalysis converts a backend response into a ClassificationResult,
// enforcing the structural contract. Anything short of valid enum values for
// a non-spam result is a structural failure that sends the analyzer to the
// next stage. Semantically questionable but valid values are trusted
// verbatim; the pipeline does not second-guess the backend's choice.
func parseAnalysis(raw *out.RawAnalysis, source domain.ClassificationSource) (*domain.ClassificationResult, error) {
	if raw == nil {
		return nil, apperr.StructuralValidation("backend returned no analysis")
	}

	spam, ok := domain.ParseSpamFlag(raw.IsSpam)
	if !ok {
		return nil, apperr.StructuralValidation("unparseable is_spam value").WithDetail("value", raw.IsSpam)
	}

	result := &domain.ClassificationResult{
		Spam:          spam,
		Source:        source,
		CalendarEvent: raw.CalendarEvent,
		Reminder:      raw.Reminder,
		Task:          raw.Task,
		Reasoning:     raw.Reasoning,
	}

	if spam == domain.Spam {
		// Spam results may omit category/priority; keep them only when
		// they happen to be valid.
		if c, ok := domain.ParseCategory(raw.Category); ok {
			result.Category = c
		}
		if p, ok := domain.ParsePriority(raw.Priority); ok {
			result.Priority = p
		}
	} else {
		category, ok := domain.ParseCategory(raw.Category)
		if !ok {
			return nil, apperr.StructuralValidation("unparseable category value").WithDetail("value", raw.Category)
		}
		priority, ok := domain.ParsePriority(raw.Priority)
		if !ok {
			return nil, apperr.StructuralValidation("unparseable priority value").WithDetail("value", raw.Priority)
		}
		result.Category = category
		result.Priority = priority
	}

	for _, tool := range raw.RequiredTools {
		switch domain.ToolAction(tool) {
		case domain.ToolCalendar, domain.ToolReminder, domain.ToolTask:
			result.RequiredTools = append(result.RequiredTools, domain.ToolAction(tool))
		case domain.ToolNone:
			// explicit no-op request, drop it
		}
	}

	result.Complete = result.StructurallyComplete()
	return result, nil
}

// truncateBody bounds the text sent to the backend.
func truncateBody(body string, maxChars int) string {
	if maxChars <= 0 || len(body) <= maxChars {
		return body
	}
	return body[:maxChars]
}
