// metrics — Prometheus-метрики сервиса: исходы auth-сценариев,
// HTTP-запросы и работа очистки истёкших refresh-токенов.
//
// Все методы безопасны для nil-получателя: компоненты, собранные без метрик
// (например, в тестах), просто ничего не учитывают.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "auth"

// Metrics хранит зарегистрированные коллекторы.
type Metrics struct {
	flowOutcomes   *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	janitorCleared prometheus.Counter
	janitorErrors  prometheus.Counter
}

// New создаёт коллекторы и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		flowOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_outcomes_total",
			Help:      "Outcomes of login, register, refresh and logout flows.",
		}, []string{"flow", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		janitorCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_tokens_cleared_total",
			Help:      "Expired refresh tokens cleared by the janitor.",
		}),
		janitorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_janitor_errors_total",
			Help:      "Failed janitor runs.",
		}),
	}

	reg.MustRegister(m.flowOutcomes, m.httpRequests, m.httpDuration, m.janitorCleared, m.janitorErrors)

	return m
}

// ObserveFlow учитывает исход сценария.
func (m *Metrics) ObserveFlow(flow, outcome string) {
	if m == nil {
		return
	}

	m.flowOutcomes.WithLabelValues(flow, outcome).Inc()
}

// ObserveHTTP учитывает завершённый HTTP-запрос.
// route — шаблон маршрута chi, а не сырой путь.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}

	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveJanitor учитывает прогон очистки.
func (m *Metrics) ObserveJanitor(cleared int64, err error) {
	if m == nil {
		return
	}

	if err != nil {
		m.janitorErrors.Inc()
		return
	}

	m.janitorCleared.Add(float64(cleared))
}
