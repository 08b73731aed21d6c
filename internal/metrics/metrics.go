// Package metrics публикует метрики Prometheus: HTTP-запросы и доменные события
// программы лояльности.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "loyalty"

// Metrics содержит собственный реестр и счётчики сервиса. Нулевой указатель
// допустим: все методы записи становятся пустыми.
type Metrics struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec

	points       *prometheus.CounterVec
	tasks        *prometheus.CounterVec
	redemptions  *prometheus.CounterVec
	settlements  *prometheus.CounterVec
	notification *prometheus.CounterVec
	tierUpgrades *prometheus.CounterVec
}

// New регистрирует метрики в новом реестре.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests processed.",
		}, []string{"route", "method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_total",
			Help:      "Points moved, by transaction kind.",
		}, []string{"kind"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_completions_total",
			Help:      "Task completion attempts, by task and outcome.",
		}, []string{"task", "outcome"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redemptions_total",
			Help:      "Redemption attempts, by reward type and outcome.",
		}, []string{"type", "outcome"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Resolved pending transactions, by final status.",
		}, []string{"status"}),
		notification: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications created, by type.",
		}, []string{"type"}),
		tierUpgrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_upgrades_total",
			Help:      "Tier upgrades, by reached tier.",
		}, []string{"tier"}),
	}

	m.registry.MustRegister(
		m.requests, m.durations,
		m.points, m.tasks, m.redemptions, m.settlements, m.notification, m.tierUpgrades,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry возвращает реестр метрик.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler отдаёт метрики в формате Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware считает запросы и их длительность по шаблону маршрута chi.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.durations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// Points учитывает перемещение очков.
func (m *Metrics) Points(kind string, amount int64) {
	if m == nil {
		return
	}
	if amount < 0 {
		amount = -amount
	}
	m.points.WithLabelValues(kind).Add(float64(amount))
}

// TaskCompletion учитывает попытку выполнения задания.
func (m *Metrics) TaskCompletion(taskID, outcome string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(taskID, outcome).Inc()
}

// Redemption учитывает попытку обмена.
func (m *Metrics) Redemption(rewardType, outcome string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(rewardType, outcome).Inc()
}

// Settlement учитывает разрешение ожидающей операции.
func (m *Metrics) Settlement(status string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(status).Inc()
}

// Notification учитывает созданное уведомление.
func (m *Metrics) Notification(typ string) {
	if m == nil {
		return
	}
	m.notification.WithLabelValues(typ).Inc()
}

// TierUpgrade учитывает переход на уровень.
func (m *Metrics) TierUpgrade(tier string) {
	if m == nil {
		return
	}
	m.tierUpgrades.WithLabelValues(tier).Inc()
}
