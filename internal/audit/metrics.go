package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько заняла доставка (сериализация + handler + fallback)
	DispatchDuration *prometheus.HistogramVec

	// Traffic/Errors: исходы по типу события (simple, extended, merged)
	DispatchTotal *prometheus.CounterVec

	// Сколько раз сработал запасной LoggingHandler
	FallbackTotal *prometheus.CounterVec

	// Saturation: заполненность очереди пула (backpressure)
	QueueDepth prometheus.Gauge

	// Состояние Circuit Breaker приемника (0 - закрыт, 1 - полуоткрыт, 2 - открыт)
	CircuitBreakerState *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		DispatchDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audit_dispatch_duration_seconds",
			Help:    "Histogram of audit dispatch latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"event_kind"}),

		DispatchTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "audit_dispatch_total",
			Help: "Total number of audit dispatches by outcome.",
		}, []string{"event_kind", "result"}), // result: success, disabled, failure

		FallbackTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "audit_fallback_total",
			Help: "Total number of events written through the logging fallback.",
		}, []string{"event_kind"}),

		QueueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "audit_queue_depth",
			Help: "Current number of dispatch jobs waiting in the queue.",
		}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "audit_circuit_breaker_state",
			Help: "Current state of the datastream circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"handler"}),
	}
}

// Методы ниже допускают nil-получателя, чтобы метрики были опциональны.

func (m *Metrics) observe(kind string, res AuditResult, seconds float64) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(kind, res.Kind.String()).Inc()
	if res.Kind != ResultDisabled {
		m.DispatchDuration.WithLabelValues(kind).Observe(seconds)
	}
}

func (m *Metrics) fallback(kind string) {
	if m == nil {
		return
	}
	m.FallbackTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// SetBreakerState вызывается приемником при смене состояния предохранителя.
func (m *Metrics) SetBreakerState(handler string, state float64) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(handler).Set(state)
}
