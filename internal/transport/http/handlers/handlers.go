package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pribylovaa/auth-system/internal/models"
	apierrors "github.com/pribylovaa/auth-system/internal/transport/http/errors"
)

// maxBodyBytes ограничивает размер JSON-тела запроса.
const maxBodyBytes = 1 << 20

// AuthService — сценарии аутентификации, которые обслуживает HTTP-слой.
// Реализуется service.Service.
type AuthService interface {
	LoginUser(ctx context.Context, email, password string) (*models.TokenPair, uuid.UUID, error)
	RegisterUser(ctx context.Context, email, password string) (*models.TokenPair, uuid.UUID, error)
	RefreshToken(ctx context.Context, accessToken, refreshToken string) (*models.TokenPair, uuid.UUID, error)
	Logout(ctx context.Context, userID uuid.UUID) error
}

// Handlers агрегирует зависимости хендлеров.
type Handlers struct {
	Auth     AuthService
	validate *validator.Validate
}

func New(auth AuthService) *Handlers {
	return &Handlers{
		Auth:     auth,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля
// и всё, что идёт после первого объекта.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(value); err != nil {
		return fmt.Errorf("%w: %w", apierrors.ErrInvalidArgument, err)
	}

	if dec.More() {
		return fmt.Errorf("%w: trailing data", apierrors.ErrInvalidArgument)
	}

	return nil
}

// validateStruct прогоняет теги validate; ошибка сводится к ErrInvalidArgument.
func (h *Handlers) validateStruct(value any) error {
	if err := h.validate.Struct(value); err != nil {
		return fmt.Errorf("%w: %w", apierrors.ErrInvalidArgument, err)
	}

	return nil
}
