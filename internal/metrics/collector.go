package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Strategy labels for routing decision counts.
const (
	StrategyStandard   = "standard"
	StrategyTrustAware = "trust_aware"
	StrategyCache      = "cache"
)

// Path labels for delegation counts.
const (
	PathLocal    = "local"
	PathFallback = "fallback"
)

// Outcome labels for delegation counts.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeRefused = "refused"
)

// Collector holds the prometheus vectors for the whole system.
type Collector struct {
	// Delegation metrics.
	delegationsTotal   *prometheus.CounterVec
	delegationDuration *prometheus.HistogramVec

	// Routing metrics.
	routingDecisionsTotal *prometheus.CounterVec
	cacheHits             *prometheus.CounterVec
	cacheMisses           *prometheus.CounterVec

	// Trust and risk gauges.
	trustScore          *prometheus.GaugeVec
	riskScore           *prometheus.GaugeVec
	riskDetectionsTotal *prometheus.CounterVec

	// Pool gauge.
	agentsRegistered prometheus.Gauge

	// HTTP metrics.
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector creates the collector and registers every vector under
// namespace with the default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.delegationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delegations_total",
			Help:      "Total number of task delegations",
		},
		[]string{"path", "outcome"},
	)

	c.delegationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delegation_duration_seconds",
			Help:      "Task delegation duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"path"},
	)

	c.routingDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Total number of routing decisions",
		},
		[]string{"strategy"},
	)

	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	c.trustScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trust_score",
			Help:      "Current trust score per agent",
		},
		[]string{"agent_id"},
	)

	c.riskScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Current risk score per agent",
		},
		[]string{"agent_id"},
	)

	c.riskDetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_detections_total",
			Help:      "Total number of risk detections",
		},
		[]string{"type"},
	)

	c.agentsRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents_registered",
			Help:      "Number of agents currently registered",
		},
	)

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordDelegation records one completed delegation.
func (c *Collector) RecordDelegation(path, outcome string, duration time.Duration) {
	c.delegationsTotal.WithLabelValues(path, outcome).Inc()
	c.delegationDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// RecordRefusal records a delegation refused before routing.
func (c *Collector) RecordRefusal() {
	c.delegationsTotal.WithLabelValues("none", OutcomeRefused).Inc()
}

// RecordRoutingDecision records one routing decision by strategy.
func (c *Collector) RecordRoutingDecision(strategy string) {
	c.routingDecisionsTotal.WithLabelValues(strategy).Inc()
}

// RecordCacheHit records a cache hit.
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// SetTrustScore sets the trust gauge for one agent.
func (c *Collector) SetTrustScore(agentID string, score float64) {
	c.trustScore.WithLabelValues(agentID).Set(score)
}

// SetRiskScore sets the risk gauge for one agent.
func (c *Collector) SetRiskScore(agentID string, score float64) {
	c.riskScore.WithLabelValues(agentID).Set(score)
}

// RecordRiskDetection records one raised risk detection.
func (c *Collector) RecordRiskDetection(riskType string) {
	c.riskDetectionsTotal.WithLabelValues(riskType).Inc()
}

// SetAgentsRegistered sets the pool size gauge.
func (c *Collector) SetAgentsRegistered(count int) {
	c.agentsRegistered.Set(float64(count))
}

// RecordHTTPRequest records one HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// statusCode buckets an HTTP status code for the status label.
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
