package models

import "time"

// TokenPair — пара токенов, выдаваемая при входе/регистрации/обновлении.
//
// Описание:
//   - AccessToken — короткоживущий JWT (HS256) для доступа к API;
//   - RefreshToken — случайный непрозрачный секрет для выпуска новой пары;
//   - AccessExpiresAt — момент истечения access-токена (UTC), отдаётся клиенту;
//   - RefreshExpiresAt — момент истечения refresh-токена, наружу не отдаётся,
//     сохраняется на записи пользователя.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
