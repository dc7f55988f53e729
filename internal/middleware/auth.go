package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/consultrelay/consult-relay-go/internal/audit"
	apperrors "github.com/consultrelay/consult-relay-go/internal/errors"
	"github.com/consultrelay/consult-relay-go/internal/model"
	"github.com/consultrelay/consult-relay-go/internal/util"
)

const UserContextKey contextKey = "user"

func GetUser(ctx context.Context) *model.User {
	if user, ok := ctx.Value(UserContextKey).(*model.User); ok {
		return user
	}
	return nil
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// UserFinder resolves an API token hash to its user.
type UserFinder interface {
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.User, error)
}

type AuthMiddleware struct {
	users UserFinder
}

func NewAuthMiddleware(users UserFinder) *AuthMiddleware {
	return &AuthMiddleware{users: users}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"reason": "missing_token"},
			})
			writeError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		user, err := m.users.FindByTokenHash(r.Context(), util.HashToken(token))
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("auth middleware: database error")
			writeError(w, apperrors.Database(err))
			return
		}

		if user == nil {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"reason": "invalid_token"},
			})
			writeError(w, apperrors.Unauthorized("Invalid token"))
			return
		}

		ctx := WithUser(r.Context(), user)
		if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
			sub := l.With().Str("userId", user.ID).Logger()
			ctx = sub.WithContext(ctx)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken reads a bearer token. The query form exists for
// EventSource, which cannot set headers.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return r.URL.Query().Get("token")
}
