package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pribylovaa/auth-system/internal/metrics"
	"github.com/pribylovaa/auth-system/internal/models"
	"github.com/pribylovaa/auth-system/internal/transport/http/handlers"
	"github.com/pribylovaa/auth-system/internal/transport/http/middleware"
)

// DefaultBasePath — префикс публичных маршрутов.
const DefaultBasePath = "/api"

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics // может быть nil
	Timeout  time.Duration
	BasePath string // например, "/api"; если пустой — роуты регистрируются на корне.
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
// auth проверяет bearer-токены защищённых маршрутов.
func NewRouter(svc handlers.AuthService, auth middleware.Authenticator, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),
		middleware.RequestID(), // до логирования: id попадает в логгер запроса
		middleware.Logging(opts.Logger),
		middleware.Metrics(opts.Metrics),
		middleware.Timeout(opts.Timeout),
	)

	h := handlers.New(svc)
	bearer := middleware.Authenticate(auth)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, bearer)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, bearer)
	return root
}

// registerRoutes — единая точка регистрации REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, bearer middleware.Middleware) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.LoginUser)
		r.Post("/register", h.RegisterUser)
		r.Post("/refresh-token", h.RefreshToken)

		// Защищённые маршруты: bearer всегда внешний, проверки роли за ним.
		protected := func(next http.HandlerFunc, mws ...middleware.Middleware) http.Handler {
			return middleware.Chain(next, append([]middleware.Middleware{bearer}, mws...)...)
		}

		r.Method(http.MethodPost, "/logout", protected(h.Logout))
		r.Method(http.MethodGet, "/authenticated-only", protected(h.AuthenticatedOnly))
		r.Method(http.MethodGet, "/admin-only", protected(h.AdminOnly, middleware.RequireRole(models.RoleAdmin)))
	})
}
