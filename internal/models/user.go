package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role — роль пользователя (закрытый набор значений).
type Role string

const (
	// RoleUser — роль по умолчанию, выдаётся при регистрации.
	RoleUser Role = "User"
	// RoleAdmin — административная роль; назначается только вне auth-потоков.
	RoleAdmin Role = "Admin"
)

// Valid сообщает, входит ли роль в допустимый набор.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ErrUnknownRole — в хранилище лежит роль вне допустимого набора.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole разбирает сохранённое значение роли.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// User — учётная запись пользователя.
//
// Описание:
//   - ID и Email неизменны после создания, Email уникален (точное совпадение);
//   - PasswordHash — bcrypt-хэш (соль и cost внутри строки);
//   - RefreshToken и RefreshTokenExpiresAt либо оба nil, либо оба заданы:
//     у пользователя ровно один действующий refresh-токен.
type User struct {
	ID                    uuid.UUID
	Email                 string
	PasswordHash          string
	Role                  Role
	RefreshToken          *string
	RefreshTokenExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// HasRefreshToken сообщает, заполнен ли слот refresh-токена.
func (u *User) HasRefreshToken() bool {
	return u.RefreshToken != nil && u.RefreshTokenExpiresAt != nil
}

// SetRefreshToken перезаписывает слот refresh-токена целиком.
func (u *User) SetRefreshToken(token string, expiresAt time.Time) {
	exp := expiresAt.UTC()
	u.RefreshToken = &token
	u.RefreshTokenExpiresAt = &exp
}

// ClearRefreshToken очищает слот refresh-токена.
func (u *User) ClearRefreshToken() {
	u.RefreshToken = nil
	u.RefreshTokenExpiresAt = nil
}
