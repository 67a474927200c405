package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

const maxWebhookBytes = 1 << 20

// identityWebhookEvent is the subset of the identity provider's user event envelope we read.
type identityWebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		ID             string `json:"id"`
		EmailAddresses []struct {
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	} `json:"data"`
}

func (rt *Router) identityWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, domain.WrapError(domain.ErrInvalidInput, "identity webhook", err))
		return
	}
	if err := rt.webhook.Verify(payload, r.Header); err != nil {
		slog.Warn("identity_webhook_rejected", "request_id", requestIDFromContext(r.Context()), "error", err)
		writeError(w, r, http.StatusBadRequest, domain.WrapError(domain.ErrInvalidInput, "identity webhook", errors.New("signature verification failed")))
		return
	}

	var event identityWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		writeError(w, r, http.StatusBadRequest, domain.WrapError(domain.ErrInvalidInput, "identity webhook", err))
		return
	}

	eventType := domain.IdentityEventType(event.Type)
	switch eventType {
	case domain.IdentityUserCreated, domain.IdentityUserUpdated, domain.IdentityUserDeleted:
	default:
		slog.Info("identity_event_ignored", "type", event.Type)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var email string
	if len(event.Data.EmailAddresses) > 0 {
		email = strings.TrimSpace(event.Data.EmailAddresses[0].EmailAddress)
	}
	if _, err := rt.services.Identity.HandleIdentityEvent(r.Context(), domain.IdentityEvent{
		Type:       eventType,
		ExternalID: event.Data.ID,
		Email:      email,
	}); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
