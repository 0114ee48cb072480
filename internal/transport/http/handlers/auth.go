package handlers

import (
	"net/http"
	"time"

	"github.com/pribylovaa/auth-system/internal/models"
	apierrors "github.com/pribylovaa/auth-system/internal/transport/http/errors"
)

// loginRequest — тело входа. Формат не проверяется: любые неверные
// данные дают invalid_credentials.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// registerRequest — тело регистрации.
type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password"`
}

// refreshRequest — просроченный access-токен и текущий refresh-токен.
type refreshRequest struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// authResponse — ответ входа, регистрации и обновления.
// Expiration — момент истечения access-токена.
type authResponse struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	Expiration   time.Time `json:"expiration"`
}

func toAuthResponse(p *models.TokenPair) authResponse {
	return authResponse{
		Token:        p.AccessToken,
		RefreshToken: p.RefreshToken,
		Expiration:   p.AccessExpiresAt,
	}
}

func (h *Handlers) LoginUser(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	pair, _, err := h.Auth.LoginUser(r.Context(), in.Email, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(pair))
}

func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.validateStruct(in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	pair, _, err := h.Auth.RegisterUser(r.Context(), in.Email, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(pair))
}

func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	pair, _, err := h.Auth.RefreshToken(r.Context(), in.Token, in.RefreshToken)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(pair))
}
