package paystack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/infrastructure/resilience"
)

func TestVerifySuccessfulTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/ref-123" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"status":true,"message":"Verification successful","data":{"status":"success","reference":"ref-123","amount":1000,"currency":"NGN"}}`))
	}))
	defer server.Close()

	got, err := New(server.URL, "sk_test", Options{}).Verify(context.Background(), "ref-123")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got.AmountMinor != 1000 || got.Currency != "NGN" || got.Reference != "ref-123" {
		t.Fatalf("unexpected verification %+v", got)
	}
}

func TestVerifyRejectsAbandonedTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"message":"Verification successful","data":{"status":"abandoned","reference":"ref-1","amount":1000,"currency":"NGN"}}`))
	}))
	defer server.Close()

	_, err := New(server.URL, "sk_test", Options{}).Verify(context.Background(), "ref-1")
	if !domain.IsKind(err, domain.ErrPaymentNotVerified) {
		t.Fatalf("expected ErrPaymentNotVerified, got %v", err)
	}
}

func TestVerifyUnknownReference(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":false,"message":"Transaction reference not found"}`))
	}))
	defer server.Close()

	_, err := New(server.URL, "sk_test", Options{}).Verify(context.Background(), "nope")
	if !domain.IsKind(err, domain.ErrPaymentNotVerified) {
		t.Fatalf("expected ErrPaymentNotVerified, got %v", err)
	}
}

func TestVerifyRetriesProviderOutage(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
			return
		}
		_, _ = w.Write([]byte(`{"status":true,"data":{"status":"success","reference":"ref-2","amount":500,"currency":"NGN"}}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	})
	got, err := New(server.URL, "sk_test", Options{ResilienceExecutor: exec}).Verify(context.Background(), "ref-2")
	if err != nil || got.AmountMinor != 500 {
		t.Fatalf("Verify() = %+v, %v", got, err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestVerifyPersistentOutageIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := New(server.URL, "sk_test", Options{}).Verify(context.Background(), "ref-3")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}
