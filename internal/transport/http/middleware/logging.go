package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pribylovaa/auth-system/internal/pkg/log"
)

// Logging кладёт request-scoped логгер в контекст и пишет одну запись
// на каждый завершённый запрос.
func Logging(l *slog.Logger) Middleware {
	if l == nil {
		l = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := l
			if rid := RequestIDFrom(r.Context()); rid != "" {
				reqLogger = reqLogger.With(slog.String("request_id", rid))
			}
			r = r.WithContext(log.Into(r.Context(), reqLogger))

			rw := wrapResponseWriter(w)
			start := time.Now()
			next.ServeHTTP(rw, r)
			dur := time.Since(start)

			level := slog.LevelInfo
			if rw.Status() >= http.StatusInternalServerError {
				level = slog.LevelError
			}

			reqLogger.LogAttrs(r.Context(), level, "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.Status()),
				slog.Duration("dur", dur),
				slog.Int("bytes", rw.written),
			)
		})
	}
}
