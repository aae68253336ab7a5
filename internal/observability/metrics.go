package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/yungbote/bookrec-backend/internal/platform/envutil"
	"github.com/yungbote/bookrec-backend/internal/platform/logger"
)

const namespace = "bookrec"

// Metrics owns a private registry so several instances (tests, CLI) can
// coexist. Every method is safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	cacheLookups *prometheus.CounterVec
	cacheWrites  *prometheus.CounterVec

	eventsPublished *prometheus.CounterVec
	eventsCoalesced prometheus.Counter
	queueDepth      *prometheus.GaugeVec

	workerProcessed *prometheus.CounterVec
	workerLatency   prometheus.Histogram

	pipelineLatency *prometheus.HistogramVec
	pipelineSource  *prometheus.CounterVec

	feedback      *prometheus.CounterVec
	decayDecision *prometheus.CounterVec

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmFallback *prometheus.CounterVec

	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec

	pgStats   *prometheus.GaugeVec
	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		apiInflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "api_inflight_requests",
			Help: "In-flight API requests.",
		}),

		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_lookups_total",
			Help: "Recommendation cache lookups by tier and outcome (hit, miss, stale, expired, error).",
		}, []string{"tier", "outcome"}),
		cacheWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_writes_total",
			Help: "Recommendation cache writes and invalidations by tier, op and result.",
		}, []string{"tier", "op", "result"}),

		eventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_published_total",
			Help: "Invalidation events by type and delivery path (pubsub, queue).",
		}, []string{"event_type", "path"}),
		eventsCoalesced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "click_events_coalesced_total",
			Help: "Click events absorbed by the per-user accumulator without emitting.",
		}),
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "event_queue_depth",
			Help: "Pending invalidation events per queue lane.",
		}, []string{"lane"}),

		workerProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "worker_events_total",
			Help: "Events handled by the recompute worker by result.",
		}, []string{"result"}),
		workerLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "worker_event_duration_seconds",
			Help:    "Time spent recomputing one event.",
			Buckets: prometheus.DefBuckets,
		}),

		pipelineLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "pipeline_duration_seconds",
			Help:    "Recommendation pipeline latency by outcome (cache, computed).",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30},
		}, []string{"outcome"}),
		pipelineSource: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pipeline_items_total",
			Help: "Served recommendation items by candidate source.",
		}, []string{"source"}),

		feedback: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "negative_feedback_total",
			Help: "Negative feedback records written by type and origin (explicit, implicit).",
		}, []string{"feedback_type", "origin"}),
		decayDecision: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "feedback_decay_total",
			Help: "Decay sweep outcomes per feedback record (kept, unblacklisted, deactivated).",
		}, []string{"decision"}),

		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_requests_total",
			Help: "LLM rerank requests by model and status.",
		}, []string{"model", "status"}),
		llmLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "llm_request_duration_seconds",
			Help:    "LLM rerank latency by model and status.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
		}, []string{"model", "status"}),
		llmFallback: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_fallbacks_total",
			Help: "Reranks served by passthrough instead of the LLM, by reason.",
		}, []string{"reason"}),

		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"name"}),
		breakerTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions.",
		}, []string{"name", "from_state", "to_state"}),

		pgStats: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "db_pool",
			Help: "database/sql pool statistics.",
		}, []string{"stat"}),
		redisUp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "redis_up",
			Help: "1 when the last redis ping succeeded.",
		}),
		redisPing: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "redis_ping_seconds",
			Help: "Latency of the last redis ping.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveCacheLookup(tier, outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(tier, outcome).Inc()
}

func (m *Metrics) ObserveCacheWrite(tier, op string, ok bool) {
	if m == nil {
		return
	}
	m.cacheWrites.WithLabelValues(tier, op, resultLabel(ok)).Inc()
}

func (m *Metrics) IncEventPublished(eventType, path string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType, path).Inc()
}

func (m *Metrics) IncEventCoalesced() {
	if m == nil {
		return
	}
	m.eventsCoalesced.Inc()
}

func (m *Metrics) SetQueueDepth(lane string, depth int64) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(lane).Set(float64(depth))
}

func (m *Metrics) ObserveWorkerEvent(result string, dur time.Duration) {
	if m == nil {
		return
	}
	m.workerProcessed.WithLabelValues(result).Inc()
	if dur > 0 {
		m.workerLatency.Observe(dur.Seconds())
	}
}

func (m *Metrics) ObservePipeline(outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.pipelineLatency.WithLabelValues(outcome).Observe(dur.Seconds())
}

func (m *Metrics) IncPipelineSource(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	if source == "" {
		source = "unknown"
	}
	m.pipelineSource.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) IncFeedback(feedbackType, origin string) {
	if m == nil {
		return
	}
	m.feedback.WithLabelValues(feedbackType, origin).Inc()
}

func (m *Metrics) IncDecayDecision(decision string) {
	if m == nil {
		return
	}
	m.decayDecision.WithLabelValues(decision).Inc()
}

func (m *Metrics) ObserveLLMRequest(model, status string, dur time.Duration) {
	if m == nil {
		return
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.llmRequests.WithLabelValues(model, status).Inc()
	if dur > 0 {
		m.llmLatency.WithLabelValues(model, status).Observe(dur.Seconds())
	}
}

func (m *Metrics) IncLLMFallback(reason string) {
	if m == nil {
		return
	}
	m.llmFallback.WithLabelValues(reason).Inc()
}

// SetBreakerState records a breaker state as 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(state)
}

func (m *Metrics) IncBreakerTransition(name, from, to string) {
	if m == nil {
		return
	}
	m.breakerTransitions.WithLabelValues(name, from, to).Inc()
}

func scrapeInterval() time.Duration {
	d := envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 15*time.Second)
	if d <= 0 {
		return 15 * time.Second
	}
	return d
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
				m.pgStats.WithLabelValues("in_use").Set(float64(stats.InUse))
				m.pgStats.WithLabelValues("idle").Set(float64(stats.Idle))
				m.pgStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
				m.pgStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
				m.pgStats.WithLabelValues("max_open_connections").Set(float64(stats.MaxOpenConnections))
			}
		}
	}()
}

// Pinger is the slice of the key-value store the redis collector needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, p Pinger) {
	if m == nil || p == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := p.Ping(ctx); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

// StartQueueCollector polls depth for the event queue lanes.
func (m *Metrics) StartQueueCollector(ctx context.Context, log *logger.Logger, depth func(ctx context.Context) (map[string]int64, error)) {
	if m == nil || depth == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				lanes, err := depth(ctx)
				if err != nil {
					if log != nil {
						log.Warn("metrics: queue depth query failed", "error", err)
					}
					continue
				}
				for lane, n := range lanes {
					m.SetQueueDepth(lane, n)
				}
			}
		}
	}()
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
