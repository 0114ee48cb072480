package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pribylovaa/auth-system/internal/models"
	"github.com/pribylovaa/auth-system/internal/pkg/log"
	"github.com/pribylovaa/auth-system/internal/token"
	apierrors "github.com/pribylovaa/auth-system/internal/transport/http/errors"
)

// Authenticator проверяет access-токен защищённого запроса.
// Реализуется service.Service.
type Authenticator interface {
	Authenticate(accessToken string) (*token.Claims, error)
}

type claimsKey struct{}

// ClaimsFrom возвращает claims, положенные Authenticate, или nil.
func ClaimsFrom(ctx context.Context) *token.Claims {
	c, _ := ctx.Value(claimsKey{}).(*token.Claims)
	return c
}

// WithClaims кладёт claims в контекст.
func WithClaims(ctx context.Context, c *token.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// Authenticate требует заголовок "Authorization: Bearer <token>" с действующим
// access-токеном. Без заголовка запрос получает 401/unauthenticated,
// с непрошедшим проверку токеном 401 с кодом причины.
func Authenticate(a Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
				return
			}

			claims, err := a.Authenticate(raw)
			if err != nil {
				log.From(r.Context()).Info("bearer_rejected",
					slog.String("path", r.URL.Path),
					slog.String("err", err.Error()),
				)
				apierrors.WriteError(w, r, err)
				return
			}

			ctx := WithClaims(r.Context(), claims)
			ctx = log.With(ctx, slog.String("user_id", claims.Subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole пропускает только пользователей с одной из ролей.
// Ставится после Authenticate.
func RequireRole(roles ...models.Role) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFrom(r.Context())
			if claims == nil {
				apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
				return
			}

			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			apierrors.WriteError(w, r, fmt.Errorf("role %q: %w", claims.Role, apierrors.ErrPermissionDenied))
		})
	}
}

// bearerToken достаёт "сырой" токен из заголовка Authorization.
func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "

	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}

	raw := strings.TrimSpace(auth[len(prefix):])
	return raw, raw != ""
}
