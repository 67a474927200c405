package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// StatusError is a non-2xx reply from an upstream HTTP API.
type StatusError struct {
	Upstream   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s: status %d", e.Upstream, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Upstream, e.StatusCode, body)
}

// ReadStatusError drains at most 2KiB of the body into a StatusError.
func ReadStatusError(upstream string, resp *http.Response) *StatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &StatusError{Upstream: upstream, StatusCode: resp.StatusCode, Body: string(raw)}
}

// RetryableStatus reports throttling and server-side failures.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= 500 && code != http.StatusNotImplemented
}

// ClassifyHTTPError is the classifier for outbound HTTP clients. A 4xx reply is the
// caller's problem and does not trip the breaker.
func ClassifyHTTPError(err error) ErrorClassification {
	if err == nil {
		return ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return ErrorClassification{}
	}
	if IsCircuitOpen(err) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		retryable := RetryableStatus(statusErr.StatusCode)
		return ErrorClassification{Retryable: retryable, RecordFailure: retryable}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return ErrorClassification{Retryable: false, RecordFailure: true}
}

// TemporaryIfRetryable marks errors the classifier would retry as ErrTemporary so
// callers upstream can release work instead of failing it.
func TemporaryIfRetryable(operation string, err error, classify ErrorClassifier) error {
	if err == nil {
		return nil
	}
	if classify(err).Retryable {
		return temporary(operation, err)
	}
	return err
}
