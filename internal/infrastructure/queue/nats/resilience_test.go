package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/infrastructure/resilience"
)

func TestClassifyNATSError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{name: "no servers", err: fmt.Errorf("nats publish: %w", nats.ErrNoServers), retryable: true, record: true},
		{name: "reconnecting", err: nats.ErrConnectionReconnecting, retryable: true, record: true},
		{name: "circuit open", err: gobreaker.ErrOpenState, retryable: true, record: true},
		{name: "canceled", err: context.Canceled, retryable: false, record: false},
		{name: "bad subject", err: nats.ErrBadSubject, retryable: false, record: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyNATSError(tt.err)
			if got.Retryable != tt.retryable || got.RecordFailure != tt.record {
				t.Fatalf("classifyNATSError(%v) = %+v", tt.err, got)
			}
		})
	}
}

func TestPublishErrorsBecomeTemporaryOnlyWhenTransient(t *testing.T) {
	if err := resilience.TemporaryIfRetryable("nats publish", nats.ErrTimeout, classifyNATSError); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("timeout must be temporary, got %v", err)
	}
	permanent := errors.New("payload too large")
	if err := resilience.TemporaryIfRetryable("nats publish", permanent, classifyNATSError); domain.IsKind(err, domain.ErrTemporary) || !errors.Is(err, permanent) {
		t.Fatalf("permanent error must pass through, got %v", err)
	}
}
