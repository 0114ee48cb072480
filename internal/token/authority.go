// token выпускает и проверяет токены: подписанные HS256 access-токены (JWT)
// и случайные непрозрачные refresh-токены.
//
// Authority не хранит состояния запроса и безопасен для конкурентного
// использования. Секрет читается один раз при создании.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pribylovaa/auth-system/internal/config"
	"github.com/pribylovaa/auth-system/internal/models"
)

var (
	// ErrMalformedToken — строка не является JWT (число сегментов, base64, JSON).
	ErrMalformedToken = errors.New("malformed token")

	// ErrInvalidToken — подпись, издатель или алгоритм не прошли проверку.
	ErrInvalidToken = errors.New("invalid token")
)

// refreshTokenBytes — энтропия refresh-токена.
const refreshTokenBytes = 32

// Claims — полезная нагрузка access-токена.
// sub содержит ID пользователя, exp/iat/iss/jti — зарегистрированные поля.
type Claims struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
	jwt.RegisteredClaims
}

// UserID разбирает sub как UUID.
func (c *Claims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("token.authority.UserID: %w: %w", ErrInvalidToken, err)
	}

	return id, nil
}

// Expired сообщает, истёк ли токен к моменту now. Токен без exp считается истёкшим.
// Допуска на рассинхронизацию часов нет.
func (c *Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return true
	}

	return !now.Before(c.ExpiresAt.Time)
}

// Option настраивает Authority.
type Option func(*Authority)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		a.now = now
	}
}

// Authority выпускает и проверяет токены.
type Authority struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// New создаёт Authority из конфигурации.
// Неполная конфигурация (пустой секрет, неположительные сроки) — ошибка.
func New(cfg config.AuthConfig, opts ...Option) (*Authority, error) {
	const op = "token.authority.New"

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	a := &Authority{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTokenTTL(),
		refreshTTL: cfg.RefreshTokenTTL(),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Now возвращает текущее время по часам Authority (UTC).
func (a *Authority) Now() time.Time { return a.now().UTC() }

// IssueAccessToken подписывает access-токен для пользователя
// и возвращает его вместе с моментом истечения.
func (a *Authority) IssueAccessToken(user *models.User) (string, time.Time, error) {
	return a.issueAccessToken(user, a.Now())
}

func (a *Authority) issueAccessToken(user *models.User, now time.Time) (string, time.Time, error) {
	const op = "token.authority.IssueAccessToken"

	if user == nil {
		return "", time.Time{}, fmt.Errorf("%s: nil user", op)
	}

	expiresAt := now.Add(a.accessTTL)

	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	// NumericDate хранит секунды: возвращаем ровно то, что записано в exp.
	return signed, claims.ExpiresAt.Time.UTC(), nil
}

// IssueRefreshToken возвращает 32 случайных байта в стандартном base64.
func (a *Authority) IssueRefreshToken() (string, error) {
	const op = "token.authority.IssueRefreshToken"

	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return base64.StdEncoding.EncodeToString(b), nil
}

// IssueTokenPair выпускает access- и refresh-токен для пользователя.
// Срок refresh-токена отсчитывается от того же момента, что и access.
func (a *Authority) IssueTokenPair(user *models.User) (*models.TokenPair, error) {
	const op = "token.authority.IssueTokenPair"

	now := a.Now()

	access, accessExp, err := a.issueAccessToken(user, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refresh, err := a.IssueRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: now.Add(a.refreshTTL),
	}, nil
}

// Validate проверяет подпись, алгоритм (только HS256) и издателя.
// Срок действия здесь не проверяется: для этого есть Claims.Expired.
func (a *Authority) Validate(tokenStr string) (*Claims, error) {
	const op = "token.authority.Validate"

	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	tok, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}

		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrMalformedToken, err)
		}

		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	if !tok.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if claims.Issuer != a.issuer {
		return nil, fmt.Errorf("%s: %w: unexpected issuer", op, ErrInvalidToken)
	}

	return claims, nil
}
