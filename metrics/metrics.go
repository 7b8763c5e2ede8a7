// Package metrics exposes Prometheus instrumentation for the engine and the
// HTTP surface. A Collector owns its own registry so tests can assert on
// gathered samples without global state.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cardassist/cardassist/engine"
)

// Collector bundles the CardAssist Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	agentRuns     *prometheus.CounterVec
	agentDuration *prometheus.HistogramVec
	agentErrors   *prometheus.CounterVec
	stateChanges  prometheus.Counter

	chatQueries    *prometheus.CounterVec
	chatConfidence prometheus.Histogram
	escalations    *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	mu     sync.Mutex
	starts map[string]time.Time // invocationID/agent -> start
}

// NewCollector creates the metric set on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	c := &Collector{
		registry: reg,
		starts:   make(map[string]time.Time),
		agentRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardassist_agent_runs_total",
			Help: "Agent executions by agent name and outcome.",
		}, []string{"agent", "status"}),
		agentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cardassist_agent_duration_seconds",
			Help:    "Agent execution duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"agent"}),
		agentErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardassist_agent_errors_total",
			Help: "Errors raised during agent execution.",
		}, []string{"agent"}),
		stateChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardassist_state_changes_total",
			Help: "Session state delta applications.",
		}),
		chatQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardassist_chat_queries_total",
			Help: "Chat queries by classified intent and primary agent.",
		}, []string{"intent", "agent"}),
		chatConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cardassist_chat_confidence",
			Help:    "Routing confidence score distribution.",
			Buckets: []float64{0.25, 0.5, 0.7, 0.75, 0.8, 0.9, 0.95, 1},
		}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardassist_escalations_total",
			Help: "Escalation tickets by type and priority.",
		}, []string{"type", "priority"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardassist_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cardassist_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.agentRuns, c.agentDuration, c.agentErrors, c.stateChanges,
		c.chatQueries, c.chatConfidence, c.escalations,
		c.httpRequests, c.httpDuration,
	)
	return c
}

// Handler serves the /metrics endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Register wires the collector into the engine callback lifecycle.
func (c *Collector) Register(cm *engine.CallbackManager) {
	cm.RegisterCallback(engine.NewFunctionCallback(engine.CallbackBeforeAgent, c.beforeAgent))
	cm.RegisterCallback(engine.NewFunctionCallback(engine.CallbackAfterAgent, c.afterAgent))
	cm.RegisterCallback(engine.NewFunctionCallback(engine.CallbackOnError, c.onError))
	cm.RegisterCallback(engine.NewFunctionCallback(engine.CallbackOnStateChange, c.onStateChange))
}

func (c *Collector) runKey(cb *engine.CallbackContext) string {
	key := cb.AgentID
	if cb.RunContext != nil {
		key = cb.RunContext.RunID + "/" + key
	}
	return key
}

func (c *Collector) beforeAgent(_ context.Context, cb *engine.CallbackContext) error {
	c.mu.Lock()
	c.starts[c.runKey(cb)] = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *Collector) afterAgent(_ context.Context, cb *engine.CallbackContext) error {
	key := c.runKey(cb)
	c.mu.Lock()
	start, ok := c.starts[key]
	delete(c.starts, key)
	c.mu.Unlock()

	c.agentRuns.WithLabelValues(cb.AgentID, "ok").Inc()
	if ok {
		c.agentDuration.WithLabelValues(cb.AgentID).Observe(time.Since(start).Seconds())
	}
	return nil
}

func (c *Collector) onError(_ context.Context, cb *engine.CallbackContext) error {
	c.agentRuns.WithLabelValues(cb.AgentID, "error").Inc()
	c.agentErrors.WithLabelValues(cb.AgentID).Inc()
	return nil
}

func (c *Collector) onStateChange(_ context.Context, _ *engine.CallbackContext) error {
	c.stateChanges.Inc()
	return nil
}

// ObserveChat records routing metrics for a completed chat turn.
func (c *Collector) ObserveChat(intent, agent string, confidence float64) {
	c.chatQueries.WithLabelValues(intent, agent).Inc()
	c.chatConfidence.Observe(confidence)
}

// ObserveEscalation records a created escalation ticket.
func (c *Collector) ObserveEscalation(escalationType, priority string) {
	c.escalations.WithLabelValues(escalationType, priority).Inc()
}

// statusRecorder captures the response code for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments HTTP handlers with request count and latency. The
// route label should be the registered pattern, not the raw path, to keep
// cardinality bounded.
func (c *Collector) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			c.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
			c.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}
