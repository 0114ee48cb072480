package handlers

import (
	"net/http"

	apierrors "github.com/pribylovaa/auth-system/internal/transport/http/errors"
	"github.com/pribylovaa/auth-system/internal/transport/http/middleware"
)

// messageResponse — ответ защищённых маршрутов.
type messageResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	Role    string `json:"role"`
}

// Logout очищает refresh-слот владельца access-токена.
// Маршрут должен стоять за middleware.Authenticate.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())
	if claims == nil {
		apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
		return
	}

	userID, err := claims.UserID()
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.Auth.Logout(r.Context(), userID); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) AuthenticatedOnly(w http.ResponseWriter, r *http.Request) {
	h.writeMessage(w, r, "This is accessible by any authenticated user")
}

func (h *Handlers) AdminOnly(w http.ResponseWriter, r *http.Request) {
	h.writeMessage(w, r, "This is accessible only by Admin")
}

func (h *Handlers) writeMessage(w http.ResponseWriter, r *http.Request, msg string) {
	claims := middleware.ClaimsFrom(r.Context())
	if claims == nil {
		apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: msg,
		UserID:  claims.Subject,
		Role:    string(claims.Role),
	})
}
