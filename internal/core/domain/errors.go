package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrTemporary         = errors.New("temporary failure")
	ErrInvalidTransition = errors.New("invalid status transition")

	ErrDocumentNotFound    = errors.New("document not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrArtifactNotFound    = errors.New("artifact not found")
	ErrRunNotFound         = errors.New("pipeline run not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrStudyPackNotFound   = errors.New("study pack not found")

	ErrInsufficientCredits  = errors.New("insufficient credits")
	ErrGenerationInProgress = errors.New("generation already in progress")
	ErrEnqueueFailed        = errors.New("enqueue failed")

	ErrInvalidFileType = errors.New("invalid file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrExtraction      = errors.New("text extraction failed")

	ErrSchemaValidation = errors.New("model output failed schema validation")
	ErrRunTimedOut      = errors.New("pipeline run exceeded max duration")

	ErrPaymentNotVerified    = errors.New("payment not verified")
	ErrPaymentAlreadyApplied = errors.New("payment already applied")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsUserError reports whether err is caused by the caller and must not be retried.
func IsUserError(err error) bool {
	for _, kind := range []error{
		ErrInvalidInput,
		ErrDocumentNotFound,
		ErrUserNotFound,
		ErrArtifactNotFound,
		ErrStudyPackNotFound,
		ErrInsufficientCredits,
		ErrGenerationInProgress,
		ErrInvalidFileType,
		ErrFileTooLarge,
		ErrPaymentNotVerified,
		ErrPaymentAlreadyApplied,
		ErrUnauthorized,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
