package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	RecommendationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recommendations_total",
		Help: "Количество запросов рекомендаций по политике и исходу",
	}, []string{"policy", "status"})

	RatingsSaved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ratings_saved_total",
		Help: "Сохранённые оценки фильмов",
	})

	CatalogUpserts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "catalog_upserts_total",
		Help: "Количество upsert фильмов в каталог",
	})

	SessionTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conversation_transitions_total",
		Help: "Переходы диалоговой машины состояний",
	}, []string{"from", "to"})

	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "conversation_sessions_active",
		Help: "Открытые диалоговые сессии",
	})

	GenreCacheRefresh = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "genre_cache_refresh_total",
		Help: "Обновления кэша жанров",
	}, []string{"status"})

	GenreCacheSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "genre_cache_size",
		Help: "Количество жанров в кэше",
	})

	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Состояние circuit breaker (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})

	CircuitBreakerRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_requests_total",
		Help: "Запросы через circuit breaker",
	}, []string{"name", "result"})

	BotUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_updates_total",
		Help: "Входящие апдейты бота",
	}, []string{"kind"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		NetworkRequestDuration,
		NetworkRequestTotal,
		RecommendationsTotal,
		RatingsSaved,
		CatalogUpserts,
		SessionTransitions,
		SessionsActive,
		GenreCacheRefresh,
		GenreCacheSize,
		CircuitBreakerState,
		CircuitBreakerRequests,
		BotUpdatesTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncRecommendation учитывает запрос рекомендаций.
func IncRecommendation(policy, status string) {
	RecommendationsTotal.WithLabelValues(policy, status).Inc()
}

// ObserveTransition учитывает переход диалога.
func ObserveTransition(from, to string) {
	if from == to {
		return
	}
	SessionTransitions.WithLabelValues(from, to).Inc()
}
