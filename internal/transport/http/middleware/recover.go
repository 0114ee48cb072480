package middleware

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pribylovaa/auth-system/internal/pkg/log"
	apierrors "github.com/pribylovaa/auth-system/internal/transport/http/errors"
)

// Recover перехватывает panic и отвечает 500/internal.
// Детали паники не уходят клиенту.
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}

					log.From(r.Context()).
						LogAttrs(r.Context(), slog.LevelError, "panic",
							slog.String("path", r.URL.Path),
							slog.Any("reason", rec),
						)
					apierrors.WriteError(w, r, fmt.Errorf("panic: %v", rec))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
