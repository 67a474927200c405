package httpadapter

import (
	"net/http"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrInsufficientCredits),
		domain.IsKind(err, domain.ErrPaymentNotVerified):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case isNotFound(err):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrGenerationInProgress),
		domain.IsKind(err, domain.ErrPaymentAlreadyApplied):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrInvalidFileType):
		return http.StatusUnsupportedMediaType
	case domain.IsKind(err, domain.ErrExtraction):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTemporary),
		domain.IsKind(err, domain.ErrEnqueueFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// mapCommandErrorToHTTPStatus is used by generate, cost and payment verification, where a
// missing document or user is a malformed request rather than a missing resource.
func mapCommandErrorToHTTPStatus(err error) int {
	if isNotFound(err) {
		return http.StatusBadRequest
	}
	return mapErrorToHTTPStatus(err)
}

func isNotFound(err error) bool {
	return domain.IsKind(err, domain.ErrDocumentNotFound) ||
		domain.IsKind(err, domain.ErrUserNotFound) ||
		domain.IsKind(err, domain.ErrArtifactNotFound) ||
		domain.IsKind(err, domain.ErrStudyPackNotFound) ||
		domain.IsKind(err, domain.ErrRunNotFound)
}

func triggerOutcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case domain.IsKind(err, domain.ErrInsufficientCredits):
		return "insufficient_credits"
	case domain.IsKind(err, domain.ErrGenerationInProgress):
		return "in_progress"
	case isNotFound(err):
		return "not_found"
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid"
	case domain.IsKind(err, domain.ErrEnqueueFailed):
		return "enqueue_failed"
	default:
		return "error"
	}
}

func paymentOutcome(err error) string {
	switch {
	case err == nil:
		return "credited"
	case domain.IsKind(err, domain.ErrPaymentAlreadyApplied):
		return "duplicate"
	case domain.IsKind(err, domain.ErrPaymentNotVerified):
		return "not_verified"
	default:
		return "error"
	}
}
