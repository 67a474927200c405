package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/studyforge/internal/core/domain"
	"github.com/kirillkom/studyforge/internal/core/ports"
)

// IdentityUseCase mirrors identity-provider users. Every event is idempotent on the
// external id.
type IdentityUseCase struct {
	users          ports.UserRepository
	ledger         *CreditLedger
	namespace      uuid.UUID
	initialCredits domain.Credits
}

func NewIdentityUseCase(users ports.UserRepository, ledger *CreditLedger, namespace uuid.UUID, initialCredits domain.Credits) *IdentityUseCase {
	return &IdentityUseCase{
		users:          users,
		ledger:         ledger,
		namespace:      namespace,
		initialCredits: initialCredits,
	}
}

func (uc *IdentityUseCase) HandleIdentityEvent(ctx context.Context, event domain.IdentityEvent) (*domain.User, error) {
	externalID := strings.TrimSpace(event.ExternalID)
	if externalID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "handle identity event", errors.New("external id is required"))
	}
	userID := domain.UserIDFromExternal(uc.namespace, externalID)

	switch event.Type {
	case domain.IdentityUserCreated, domain.IdentityUserUpdated:
		return uc.upsert(ctx, event.Type, userID, externalID, strings.TrimSpace(event.Email))
	case domain.IdentityUserDeleted:
		if err := uc.users.DeleteUser(ctx, userID); err != nil {
			return nil, fmt.Errorf("delete user: %w", err)
		}
		slog.Info("identity_user_deleted", "user_id", userID)
		return &domain.User{ID: userID, ExternalID: externalID}, nil
	}
	return nil, domain.WrapError(domain.ErrInvalidInput, "handle identity event", fmt.Errorf("unknown event type %q", event.Type))
}

func (uc *IdentityUseCase) upsert(ctx context.Context, eventType domain.IdentityEventType, userID, externalID, email string) (*domain.User, error) {
	_, getErr := uc.users.GetUser(ctx, userID)
	isNew := domain.IsKind(getErr, domain.ErrUserNotFound)
	if getErr != nil && !isNew {
		return nil, fmt.Errorf("load user: %w", getErr)
	}

	user := &domain.User{ID: userID, ExternalID: externalID, Email: email}
	if err := uc.users.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	// Redelivery of the create event finds the user and skips the grant.
	if isNew && uc.initialCredits > 0 {
		reference := "signup:" + userID
		_, err := uc.ledger.AddCredits(ctx, userID, uc.initialCredits, reference, "Sign-up credits")
		switch {
		case err == nil:
			user.Credits += uc.initialCredits
		case !domain.IsKind(err, domain.ErrPaymentAlreadyApplied):
			return nil, fmt.Errorf("grant initial credits: %w", err)
		}
	}

	slog.Info("identity_user_synced", "user_id", userID, "event", string(eventType), "created", isNew)
	return user, nil
}
