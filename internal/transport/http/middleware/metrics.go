package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pribylovaa/auth-system/internal/metrics"
)

// unmatchedRoute — метка для запросов, не попавших ни в один маршрут.
const unmatchedRoute = "unmatched"

// Metrics учитывает запросы по шаблону маршрута chi.
// Сырой путь в метки не попадает.
func Metrics(m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := wrapResponseWriter(w)
			start := time.Now()
			next.ServeHTTP(rw, r)

			m.ObserveHTTP(r.Method, routePattern(r), rw.Status(), time.Since(start))
		})
	}
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}

	if p := rctx.RoutePattern(); p != "" {
		return p
	}
	return unmatchedRoute
}
