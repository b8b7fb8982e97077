package triage

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/deskside/internal/category"
	"github.com/linnemanlabs/deskside/internal/retrieval"
	"github.com/linnemanlabs/deskside/internal/ticket"
)

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	DecisionsTotal      *prometheus.CounterVec
	DecisionDuration    *prometheus.HistogramVec
	GuardTotal          prometheus.Counter
	ModelCallsTotal     *prometheus.CounterVec
	ModelCallDuration   *prometheus.HistogramVec
	FallbacksTotal      *prometheus.CounterVec
	CacheReloadsTotal   prometheus.Counter
	CacheArticles       prometheus.Gauge
	CacheReloadDuration prometheus.Histogram
	TicketsCreatedTotal *prometheus.CounterVec
	NotificationsTotal  *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskside_triage_decisions_total",
			Help: "Total triage decisions by kind.",
		}, []string{"kind"}),
		DecisionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deskside_triage_duration_seconds",
			Help:    "Duration of triage decisions in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms .. ~10s
		}, []string{"kind"}),
		GuardTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deskside_triage_short_message_guard_total",
			Help: "Messages the short low-confidence guard turned conversational.",
		}),
		ModelCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskside_model_calls_total",
			Help: "Total model calls by component and outcome.",
		}, []string{"component", "outcome"}),
		ModelCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deskside_model_call_duration_seconds",
			Help:    "Duration of individual model calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}, []string{"component"}),
		FallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskside_fallbacks_total",
			Help: "Degraded-path activations by kind.",
		}, []string{"kind"}),
		CacheReloadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deskside_embedding_cache_reloads_total",
			Help: "Total embedding cache loads.",
		}),
		CacheArticles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deskside_embedding_cache_articles",
			Help: "Embedded articles in the current cache snapshot.",
		}),
		CacheReloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "deskside_embedding_cache_reload_duration_seconds",
			Help:    "Duration of embedding cache loads in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms .. ~5s
		}),
		TicketsCreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskside_tickets_created_total",
			Help: "Total tickets created by source and category.",
		}, []string{"source", "category"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deskside_notifications_total",
			Help: "Ticket notifications by event and result.",
		}, []string{"event", "result"}),
	}

	reg.MustRegister(
		m.DecisionsTotal,
		m.DecisionDuration,
		m.GuardTotal,
		m.ModelCallsTotal,
		m.ModelCallDuration,
		m.FallbacksTotal,
		m.CacheReloadsTotal,
		m.CacheArticles,
		m.CacheReloadDuration,
		m.TicketsCreatedTotal,
		m.NotificationsTotal,
	)

	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Hooks returns pipeline Hooks that update the decision metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnDecision: func(kind Kind, duration float64) {
			m.DecisionsTotal.WithLabelValues(string(kind)).Inc()
			m.DecisionDuration.WithLabelValues(string(kind)).Observe(duration)
		},
		OnGuard: func() {
			m.GuardTotal.Inc()
		},
	}
}

// CategoryHooks returns category.Hooks that record classifier calls and
// model fallbacks.
func (m *Metrics) CategoryHooks() category.Hooks {
	return category.Hooks{
		OnScore: func(duration float64, err error) {
			m.ModelCallsTotal.WithLabelValues("classifier", outcome(err)).Inc()
			m.ModelCallDuration.WithLabelValues("classifier").Observe(duration)
		},
		OnDegraded: func(string) {
			m.FallbacksTotal.WithLabelValues("model_fallback").Inc()
		},
	}
}

// RetrievalHooks returns retrieval.Hooks that record embedder calls, cache
// loads and search fallbacks.
func (m *Metrics) RetrievalHooks() retrieval.Hooks {
	return retrieval.Hooks{
		OnFallback: func(kind string) {
			m.FallbacksTotal.WithLabelValues(kind).Inc()
		},
		OnReload: func(articles int, duration float64) {
			m.CacheReloadsTotal.Inc()
			m.CacheArticles.Set(float64(articles))
			m.CacheReloadDuration.Observe(duration)
		},
		OnEmbed: func(duration float64, err error) {
			m.ModelCallsTotal.WithLabelValues("embedder", outcome(err)).Inc()
			m.ModelCallDuration.WithLabelValues("embedder").Observe(duration)
		},
	}
}

// TicketHooks returns ticket.ServiceHooks that count tickets and
// notification results.
func (m *Metrics) TicketHooks() ticket.ServiceHooks {
	return ticket.ServiceHooks{
		OnCreated: func(t ticket.Ticket) {
			m.TicketsCreatedTotal.WithLabelValues(string(t.Source), string(t.Category)).Inc()
		},
		OnNotify: func(event string, err error) {
			m.NotificationsTotal.WithLabelValues(event, outcome(err)).Inc()
		},
	}
}
