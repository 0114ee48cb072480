// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход принимает доменную ошибку сервиса или проверки токена,
// на выход даёт HTTP-статус и короткое безопасное сообщение.
//
// Маппинг идёт через errors.Is, поэтому op-префиксы и обёртки
// сервисного слоя не мешают сопоставлению.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/pribylovaa/auth-system/internal/service"
	"github.com/pribylovaa/auth-system/internal/token"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// Ошибки, которые порождает сам транспорт.
var (
	// ErrInvalidArgument — тело запроса не разобрано или не прошло валидацию.
	ErrInvalidArgument = stderrors.New("invalid argument")

	// ErrUnauthenticated — заголовок Authorization отсутствует или не Bearer.
	ErrUnauthenticated = stderrors.New("unauthenticated")

	// ErrPermissionDenied — роль пользователя не допускает операцию.
	ErrPermissionDenied = stderrors.New("permission denied")
)

// APIError — единый формат для клиента.
// Code — короткий стабильный код для машиночитаемой обработки.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует ошибку в HTTP-статус и унифицированный ответ.
//
// err == nil считается программной ошибкой вызова и даёт 500/internal,
// чтобы не замаскировать баг ответом 200 с телом ошибки.
func ToHTTP(err error) (int, ErrorResponse) {
	status, code, msg := classify(err)

	return status, ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: msg,
		},
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет статус и тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// classify — таблица доменных ошибок.
// Порядок важен: при обновлении сервис оборачивает ошибку проверки токена
// в service.ErrInvalidToken, и клиент должен увидеть именно invalid_token.
func classify(err error) (int, string, string) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, "internal", "internal error"

	case stderrors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid email or password"
	case stderrors.Is(err, service.ErrDuplicateEmail):
		return http.StatusConflict, "duplicate_email", "email already registered"
	case stderrors.Is(err, service.ErrInvalidRefreshToken):
		return http.StatusUnauthorized, "invalid_refresh_token", "invalid refresh token"
	case stderrors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid_token", "invalid token"
	case stderrors.Is(err, service.ErrTokenExpired):
		return http.StatusUnauthorized, "token_expired", "token expired"
	case stderrors.Is(err, token.ErrMalformedToken):
		return http.StatusUnauthorized, "malformed_token", "malformed token"
	case stderrors.Is(err, token.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid_token", "invalid token"

	case stderrors.Is(err, service.ErrInvalidEmail):
		return http.StatusBadRequest, "invalid_email", "invalid email format"
	case stderrors.Is(err, service.ErrEmptyPassword):
		return http.StatusBadRequest, "empty_password", "password is empty"
	case stderrors.Is(err, service.ErrWeakPassword):
		return http.StatusBadRequest, "weak_password", "password does not satisfy the policy"
	case stderrors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument", "invalid argument"

	case stderrors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated", "unauthenticated"
	case stderrors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied", "permission denied"

	case stderrors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled", "canceled"
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"

	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}
