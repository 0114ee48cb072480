package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// errRequestTimeout — причина отмены контекста по дедлайну запроса.
var errRequestTimeout = errors.New("request timeout")

// Timeout ограничивает время обработки запроса значением d.
// Более ранний дедлайн родительского контекста остаётся в силе; d<=0 отключает мидлвар.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeoutCause(r.Context(), d, errRequestTimeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
