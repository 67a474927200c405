package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

type subjectContextKey struct{}

// authMiddleware validates an HS256 bearer token and stores its subject for
// authorizeUser. It is a no-op while no secret is configured. Health endpoints and the
// signed identity webhook bypass it.
func (rt *Router) authMiddleware(next http.Handler) http.Handler {
	secret := []byte(strings.TrimSpace(rt.cfg.AuthJWTSecret))
	if len(secret) == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isHealthPath(r.URL.Path) || r.URL.Path == "/v1/webhooks/identity" {
			next.ServeHTTP(w, r)
			return
		}

		subject, err := parseBearerSubject(r.Header.Get("Authorization"), secret)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err)
			return
		}
		if info := requestInfoFromContext(r.Context()); info != nil {
			info.subject = subject
		}
		ctx := context.WithValue(r.Context(), subjectContextKey{}, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func parseBearerSubject(header string, secret []byte) (string, error) {
	const bearerPrefix = "Bearer "
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", domain.WrapError(domain.ErrUnauthorized, "authenticate", errors.New("missing bearer token"))
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", domain.WrapError(domain.ErrUnauthorized, "authenticate", errors.New("invalid token"))
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return "", domain.WrapError(domain.ErrUnauthorized, "authenticate", errors.New("token has no subject"))
	}
	return subject, nil
}

// authorizeUser checks that the authenticated subject acts on its own account.
// Without auth configured every user id is accepted.
func (rt *Router) authorizeUser(r *http.Request, userID string) error {
	if strings.TrimSpace(rt.cfg.AuthJWTSecret) == "" {
		return nil
	}
	subject, _ := r.Context().Value(subjectContextKey{}).(string)
	if subject == "" || subject != strings.TrimSpace(userID) {
		return domain.WrapError(domain.ErrUnauthorized, "authorize", errors.New("token subject does not match user_id"))
	}
	return nil
}
