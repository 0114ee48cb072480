// middleware — net/http мидлвары публичного API: восстановление после паники,
// корреляция запросов, логирование, метрики, дедлайн и bearer-аутентификация.
package middleware

import (
	"net/http"
)

// Middleware — стандартный net/http мидлвар; совместим с chi.Router.Use.
type Middleware func(http.Handler) http.Handler

// Chain оборачивает h так, что первый мидлвар выполняется первым.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// responseWriter запоминает код ответа и число записанных байт.
// Один экземпляр разделяют Logging и Metrics.
type responseWriter struct {
	http.ResponseWriter
	status  int
	written int
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(p []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}

	n, err := rw.ResponseWriter.Write(p)
	rw.written += n
	return n, err
}

// Unwrap открывает исходный writer для http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Status — итоговый код; 200, если обработчик ничего не записал.
func (rw *responseWriter) Status() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}
