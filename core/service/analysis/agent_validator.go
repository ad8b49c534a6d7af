package analysis

import (
	"agent_server/core/domain"
	"agent_server/pkg/apperr"
)

// Validator is the completeness gate between the analyzer and anything with
// side effects. It recomputes completeness from the fields instead of
// trusting the analyzer's self-report, so a stage that lies about
// completeness still cannot push an incomplete result downstream.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate returns nil when the result may proceed to disposition. Every
// failure is a structural-validation error: the message is routed to the
// pending disposition and retried on a later run, never silently dropped.
func (v *Validator) Validate(result *domain.ClassificationResult) error {
	if result == nil {
		return apperr.StructuralValidation("no classification result")
	}
	if !result.Spam.Valid() {
		return apperr.StructuralValidation("spam flag is not a valid enum value").
			WithDetail("value", string(result.Spam))
	}
	if !result.Source.Valid() {
		return apperr.StructuralValidation("classification source is not set").
			WithDetail("value", string(result.Source))
	}

	complete := result.StructurallyComplete()
	if result.Complete != complete {
		return apperr.StructuralValidation("completeness flag disagrees with fields").
			WithDetail("reported", result.Complete).
			WithDetail("recomputed", complete)
	}

	if result.Spam == domain.Spam {
		return nil
	}

	if !result.Category.Valid() {
		return apperr.StructuralValidation("non-spam result missing valid category").
			WithDetail("value", string(result.Category))
	}
	if !result.Priority.Valid() {
		return apperr.StructuralValidation("non-spam result missing valid priority").
			WithDetail("value", string(result.Priority))
	}
	return nil
}
