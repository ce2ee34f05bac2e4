package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: полное время обработки admission-запроса (включая lookups)
	DecisionDuration *prometheus.HistogramVec

	// Traffic: решения по исходу (accepted/rejected)
	DecisionsTotal *prometheus.CounterVec

	// Причины отказов по кодам — видно, какой предикат "горит"
	RejectReasons *prometheus.CounterVec

	// Аукцион: принятые ставки и расчеты
	BidsTotal        prometheus.Counter
	SettlementsTotal *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker внешних адаптеров (0 - ок, 1 - выбило)
	CircuitBreakerState *prometheus.GaugeVec

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern: без регистратора метрики живут в локальном реестре
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		DecisionDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lendgate_decision_duration_seconds",
			Help:    "Histogram of admission decision latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"outcome"}),

		DecisionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lendgate_decisions_total",
			Help: "Total number of admission decisions by outcome.",
		}, []string{"outcome"}),

		RejectReasons: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lendgate_reject_reasons_total",
			Help: "Total number of failed admission predicates by reason code.",
		}, []string{"reason"}),

		BidsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "lendgate_bids_total",
			Help: "Total number of accepted auction bids.",
		}),

		SettlementsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "lendgate_settlements_total",
			Help: "Total number of auction settlements by result.",
		}, []string{"result"}), // funded, contended, holdback, no_bids

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "lendgate_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open).",
		}, []string{"connector"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "lendgate_audit_buffer_utilization",
			Help: "Current number of events in the audit buffer.",
		}),
	}
}
