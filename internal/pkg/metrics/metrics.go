package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "routepulse",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "routepulse",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "routepulse",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Ingestion metrics
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "routepulse",
		Subsystem: "ingest",
		Name:      "events_total",
		Help:      "Total route events stored from upstream polls",
	}, []string{"route"})

	UpstreamPollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "routepulse",
		Subsystem: "ingest",
		Name:      "poll_duration_seconds",
		Help:      "Duration of upstream route-event polls",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"route"})

	UpstreamPollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "routepulse",
		Subsystem: "ingest",
		Name:      "poll_errors_total",
		Help:      "Total upstream poll errors",
	}, []string{"route"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "routepulse",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "routepulse",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "routepulse",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	dbPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "routepulse",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	dbPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "routepulse",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	dbPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "routepulse",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})

	dbPoolEmptyAcquires = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "routepulse",
		Subsystem: "db",
		Name:      "pool_empty_acquires_total",
		Help:      "Total times a connection had to be established when acquiring from pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving the Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics publishes pgx pool stats as gauges.
func UpdateDBPoolMetrics(stat *pgxpool.Stat) {
	dbPoolConnsOpen.Set(float64(stat.TotalConns()))
	dbPoolConnsAcquired.Set(float64(stat.AcquiredConns()))
	dbPoolConnsIdle.Set(float64(stat.IdleConns()))
	dbPoolEmptyAcquires.Set(float64(stat.EmptyAcquireCount()))
}
