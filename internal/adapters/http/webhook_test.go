package httpadapter

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/kirillkom/studyforge/internal/config"
	"github.com/kirillkom/studyforge/internal/core/domain"
)

var testWebhookSecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("identity-webhook-test-secret-32b"))

type identityFake struct {
	events []domain.IdentityEvent
}

func (f *identityFake) HandleIdentityEvent(_ context.Context, event domain.IdentityEvent) (*domain.User, error) {
	f.events = append(f.events, event)
	return &domain.User{ID: "user-1", ExternalID: event.ExternalID, Email: event.Email}, nil
}

func signedWebhookRequest(t *testing.T, secret string, payload []byte) *http.Request {
	t.Helper()
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		t.Fatalf("NewWebhook() error = %v", err)
	}
	now := time.Now()
	signature, err := wh.Sign("msg_1", now, payload)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/identity", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("svix-id", "msg_1")
	req.Header.Set("svix-timestamp", strconv.FormatInt(now.Unix(), 10))
	req.Header.Set("svix-signature", signature)
	return req
}

func TestIdentityWebhookAppliesSignedEvent(t *testing.T) {
	identity := &identityFake{}
	handler := newTestRouter(t, config.Config{IdentityWebhookSecret: testWebhookSecret}, Services{Identity: identity})

	payload := []byte(`{"type":"user.created","data":{"id":"user_2abc","email_addresses":[{"email_address":"ada@example.com"}]}}`)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, signedWebhookRequest(t, testWebhookSecret, payload))

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", res.Code, res.Body.String())
	}
	if len(identity.events) != 1 {
		t.Fatalf("expected one event, got %d", len(identity.events))
	}
	got := identity.events[0]
	if got.Type != domain.IdentityUserCreated || got.ExternalID != "user_2abc" || got.Email != "ada@example.com" {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestIdentityWebhookRejectsBadSignature(t *testing.T) {
	identity := &identityFake{}
	handler := newTestRouter(t, config.Config{IdentityWebhookSecret: testWebhookSecret}, Services{Identity: identity})

	otherSecret := "whsec_" + base64.StdEncoding.EncodeToString([]byte("some-other-secret-of-enough-size"))
	payload := []byte(`{"type":"user.deleted","data":{"id":"user_2abc"}}`)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, signedWebhookRequest(t, otherSecret, payload))

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if len(identity.events) != 0 {
		t.Fatalf("unsigned event must not be applied")
	}
}

func TestIdentityWebhookIgnoresOtherEvents(t *testing.T) {
	identity := &identityFake{}
	handler := newTestRouter(t, config.Config{IdentityWebhookSecret: testWebhookSecret}, Services{Identity: identity})

	payload := []byte(`{"type":"session.created","data":{"id":"sess_1"}}`)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, signedWebhookRequest(t, testWebhookSecret, payload))

	if res.Code != http.StatusNoContent || len(identity.events) != 0 {
		t.Fatalf("expected ignored event, got %d with %d events", res.Code, len(identity.events))
	}
}

func TestIdentityWebhookDisabledWithoutSecret(t *testing.T) {
	handler := newTestRouter(t, config.Config{}, Services{})

	payload := []byte(`{"type":"user.created","data":{"id":"user_2abc"}}`)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, signedWebhookRequest(t, testWebhookSecret, payload))

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a configured secret, got %d", res.Code)
	}
}
