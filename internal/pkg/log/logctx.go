// log переносит request-scoped логгер через context.Context:
// транспорт кладёт логгер с request_id, сервис и хранилища его достают.
package log

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// Into кладёт логгер в контекст.
func Into(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// From достаёт логгер из контекста (или возвращает slog.Default()).
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}

	return slog.Default()
}

// With дополняет логгер контекста атрибутами, например user_id
// после проверки bearer-токена, и возвращает новый контекст.
func With(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}

	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}

	return Into(ctx, From(ctx).With(args...))
}
