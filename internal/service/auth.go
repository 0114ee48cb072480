package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pribylovaa/auth-system/internal/models"
	"github.com/pribylovaa/auth-system/internal/pkg/log"
	"github.com/pribylovaa/auth-system/internal/pkg/redact"
	"github.com/pribylovaa/auth-system/internal/storage"
	"github.com/pribylovaa/auth-system/internal/token"
	"go.opentelemetry.io/otel/attribute"
)

// Названия сценариев для метрик и трейсов.
const (
	flowLogin    = "login"
	flowRegister = "register"
	flowRefresh  = "refresh"
	flowLogout   = "logout"
)

// LoginUser выполняет вход по e-mail и паролю.
// Неизвестный e-mail и неверный пароль дают одну и ту же ErrInvalidCredentials.
func (s *Service) LoginUser(ctx context.Context, email, password string) (_ *models.TokenPair, _ uuid.UUID, err error) {
	const op = "service.auth.LoginUser"

	ctx, span := s.startFlow(ctx, flowLogin)
	defer func() { s.endFlow(span, flowLogin, err) }()

	lg := log.From(ctx)

	user, err := s.creds.FindByEmail(ctx, email)
	if err != nil {
		lg.Error("login_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if !s.creds.VerifyPassword(user, password) {
		lg.Warn("login_failed",
			slog.String("op", op),
			slog.String("email", redact.Email(email)),
		)
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	return s.issueTokenPair(ctx, user)
}

// RegisterUser регистрирует пользователя и сразу выполняет вход.
func (s *Service) RegisterUser(ctx context.Context, email, password string) (_ *models.TokenPair, _ uuid.UUID, err error) {
	const op = "service.auth.RegisterUser"

	ctx, span := s.startFlow(ctx, flowRegister)
	defer func() { s.endFlow(span, flowRegister, err) }()

	lg := log.From(ctx)

	if err := validateEmail(email); err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.validatePassword(password); err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	existing, err := s.creds.FindByEmail(ctx, email)
	if err != nil {
		lg.Error("register_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if existing != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrDuplicateEmail)
	}

	// Гонку двух регистраций разрешает уникальный индекс хранилища.
	user, err := s.creds.Create(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			lg.Info("register_duplicate_email",
				slog.String("op", op),
				slog.String("email", redact.Email(email)),
			)
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
		}

		if !errors.Is(err, ErrWeakPassword) {
			lg.Error("register_create_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		}
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("user_registered",
		slog.String("op", op),
		slog.String("user_id", user.ID.String()),
		slog.String("email", redact.Email(email)),
	)

	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	return s.issueTokenPair(ctx, user)
}

// RefreshToken обменивает пару (access, refresh) на новую.
//
// Access-токен может быть просрочен, но обязан иметь верные подпись, алгоритм
// и издателя. Refresh-токен обязан совпадать с сохранённым у того же
// пользователя и не быть истёкшим. При успехе оба токена заменяются.
func (s *Service) RefreshToken(ctx context.Context, accessToken, refreshToken string) (_ *models.TokenPair, _ uuid.UUID, err error) {
	const op = "service.auth.RefreshToken"

	ctx, span := s.startFlow(ctx, flowRefresh)
	defer func() { s.endFlow(span, flowRefresh, err) }()

	lg := log.From(ctx)

	claims, err := s.tokens.Validate(accessToken)
	if err != nil {
		lg.Warn("refresh_access_rejected",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, uuid.Nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	span.SetAttributes(attribute.String("user.id", userID.String()))

	user, err := s.creds.FindByID(ctx, userID)
	if err != nil {
		lg.Error("refresh_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if !s.refreshMatches(user, refreshToken) {
		lg.Warn("refresh_rejected",
			slog.String("op", op),
			slog.String("user_id", userID.String()),
			slog.String("refresh", redact.Fingerprint(refreshToken)),
		)
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
	}

	return s.issueTokenPair(ctx, user)
}

// Logout очищает refresh-слот пользователя: дальнейшие обновления невозможны
// до следующего входа. Выданные access-токены действуют до истечения.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) (err error) {
	const op = "service.auth.Logout"

	ctx, span := s.startFlow(ctx, flowLogout)
	defer func() { s.endFlow(span, flowLogout, err) }()

	span.SetAttributes(attribute.String("user.id", userID.String()))

	if err := s.creds.ClearRefreshToken(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		log.From(ctx).Error("logout_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("user_logged_out",
		slog.String("op", op),
		slog.String("user_id", userID.String()),
	)

	return nil
}

// Authenticate проверяет access-токен защищённого запроса,
// включая срок действия (без допуска на рассинхронизацию часов).
func (s *Service) Authenticate(accessToken string) (*token.Claims, error) {
	const op = "service.auth.Authenticate"

	claims, err := s.tokens.Validate(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if claims.Expired(s.tokens.Now()) {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return claims, nil
}

// refreshMatches сообщает, совпадает ли предъявленный refresh-токен
// с действующим сохранённым у пользователя.
func (s *Service) refreshMatches(user *models.User, presented string) bool {
	if user == nil || !user.HasRefreshToken() || presented == "" {
		return false
	}

	if subtle.ConstantTimeCompare([]byte(*user.RefreshToken), []byte(presented)) != 1 {
		return false
	}

	return s.tokens.Now().Before(*user.RefreshTokenExpiresAt)
}

// issueTokenPair выпускает новую пару и сохраняет refresh-токен
// до того, как пара будет возвращена вызывающему.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.issueTokenPair"

	lg := log.From(ctx)

	pair, err := s.tokens.IssueTokenPair(user)
	if err != nil {
		lg.Error("token_issue_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.creds.UpdateRefreshToken(ctx, user, pair.RefreshToken, pair.RefreshExpiresAt); err != nil {
		lg.Error("refresh_persist_failed",
			slog.String("op", op),
			slog.String("user_id", user.ID.String()),
			slog.String("err", err.Error()),
		)
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user.ID, nil
}

// validateEmail проверяет, что строка целиком является адресом вида local@domain.
// Регистр и пробелы не нормализуются: e-mail хранится ровно так, как введён.
func validateEmail(email string) error {
	const op = "service.auth.validateEmail"

	if email == "" {
		return fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return nil
}

// validatePassword применяет политику паролей из конфигурации.
func (s *Service) validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if pw == "" {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if utf8.RuneCountInString(pw) < s.policy.MinLength {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}

	if (s.policy.RequireLower && !hasLower) ||
		(s.policy.RequireUpper && !hasUpper) ||
		(s.policy.RequireDigit && !hasDigit) ||
		(s.policy.RequireSymbol && !hasSymbol) {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}
