package resilience

import (
	"context"
	"errors"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

// ClassifyDomainError retries only what the domain marks temporary. Caller mistakes
// and invalid model output neither retry nor count against the breaker.
func ClassifyDomainError(err error) ErrorClassification {
	switch {
	case err == nil:
		return ErrorClassification{}
	case errors.Is(err, context.Canceled):
		return ErrorClassification{Retryable: false, RecordFailure: false}
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorClassification{Retryable: false, RecordFailure: true}
	case domain.IsUserError(err), domain.IsKind(err, domain.ErrSchemaValidation):
		return ErrorClassification{Retryable: false, RecordFailure: false}
	case domain.IsKind(err, domain.ErrTemporary):
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return ErrorClassification{Retryable: false, RecordFailure: true}
}

func temporary(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	return domain.WrapError(domain.ErrTemporary, operation, err)
}
