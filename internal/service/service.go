// service содержит бизнес-логику аутентификации: вход по e-mail и паролю,
// регистрацию и ротацию пары токенов.
//
// Service не хранит состояние запроса и безопасен для конкурентного
// использования, если потокобезопасно хранилище под CredentialStore.
// Ошибки возвращаются обёрнутыми в op-префикс; транспорт сопоставляет
// их с HTTP-кодами через errors.Is.
package service

import (
	"context"
	"errors"

	"github.com/pribylovaa/auth-system/internal/config"
	"github.com/pribylovaa/auth-system/internal/metrics"
	"github.com/pribylovaa/auth-system/internal/token"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/pribylovaa/auth-system/internal/service"

var (
	// ErrInvalidCredentials — пользователь не найден или пароль неверен.
	// Оба случая неразличимы снаружи. HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrDuplicateEmail — e-mail уже зарегистрирован. HTTP 409.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrInvalidToken — access-токен не прошёл проверку при обновлении
	// или в нём нет корректного идентификатора пользователя. HTTP 401.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — срок access-токена истёк (защищённые маршруты). HTTP 401.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidRefreshToken — refresh-токен не совпадает с сохранённым,
	// истёк или пользователь не найден. HTTP 401.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrInvalidEmail — e-mail не является корректным адресом. HTTP 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword — пароль не удовлетворяет политике. HTTP 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой. HTTP 400.
	ErrEmptyPassword = errors.New("password is empty")
)

// Service реализует сценарии Login/Register/RefreshToken/Logout.
type Service struct {
	creds   *CredentialStore
	tokens  *token.Authority
	policy  config.PasswordConfig
	metrics *metrics.Metrics // может быть nil
	tracer  trace.Tracer
}

// New создаёт Service поверх хранилища учётных данных и выпускающего токены.
func New(creds *CredentialStore, tokens *token.Authority, policy config.PasswordConfig) *Service {
	return &Service{
		creds:  creds,
		tokens: tokens,
		policy: policy,
		tracer: otel.Tracer(tracerName),
	}
}

// SetMetrics подключает счётчики исходов (опционально).
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetTracerProvider заменяет провайдера трейсов (по умолчанию глобальный).
func (s *Service) SetTracerProvider(tp trace.TracerProvider) {
	s.tracer = tp.Tracer(tracerName)
}

// Credentials возвращает хранилище учётных данных.
func (s *Service) Credentials() *CredentialStore {
	return s.creds
}

// startFlow открывает span сценария.
func (s *Service) startFlow(ctx context.Context, flow string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "service."+flow)
}

// endFlow закрывает span и учитывает исход сценария в метриках.
func (s *Service) endFlow(span trace.Span, flow string, err error) {
	outcome := outcomeOf(err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
	s.metrics.ObserveFlow(flow, outcome)
}

// outcomeOf сводит ошибку к метке исхода с ограниченной кардинальностью.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrDuplicateEmail):
		return "duplicate_email"
	case errors.Is(err, ErrInvalidRefreshToken):
		return "invalid_refresh_token"
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
		return "invalid_token"
	case errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrWeakPassword), errors.Is(err, ErrEmptyPassword):
		return "invalid_input"
	default:
		return "error"
	}
}
