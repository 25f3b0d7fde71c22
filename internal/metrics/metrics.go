// Package metrics provides Prometheus instrumentation for the connect platform.
package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "connect",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "connect",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// NotificationsTotal counts notifications created by type.
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "connect",
			Name:      "notifications_total",
			Help:      "Total notifications ingested by event type.",
		},
		[]string{"type"},
	)

	// DeliveriesTotal counts delivery attempts by result.
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "connect",
			Name:      "deliveries_total",
			Help:      "Total delivery attempts by result (sent, transient, permanent, skipped).",
		},
		[]string{"result"},
	)

	// DeliveryDuration observes channel sender latency.
	DeliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "connect",
			Name:      "delivery_duration_seconds",
			Help:      "Channel sender call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// ManualRetriesTotal counts operator-triggered retries.
	ManualRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "connect",
			Name:      "manual_retries_total",
			Help:      "Total manual retry requests accepted.",
		},
	)

	// TrialExpirationsTotal counts tenants deactivated by the trial sweep.
	TrialExpirationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "connect",
			Name:      "trial_expirations_total",
			Help:      "Total tenants deactivated by the trial expiry sweep.",
		},
	)

	// PlanUpgradesTotal counts plan upgrades by target plan.
	PlanUpgradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "connect",
			Name:      "plan_upgrades_total",
			Help:      "Total plan upgrades by target plan.",
		},
		[]string{"plan"},
	)

	// PendingNotifications tracks notifications awaiting delivery.
	PendingNotifications = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "connect",
			Name:      "pending_notifications",
			Help:      "Number of notifications currently pending or retry-eligible.",
		},
	)

	// ActiveWebSocketClients tracks connected live-feed clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "connect",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "connect", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "connect", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		NotificationsTotal,
		DeliveriesTotal,
		DeliveryDuration,
		ManualRetriesTotal,
		TrialExpirationsTotal,
		PlanUpgradesTotal,
		PendingNotifications,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
	)
}

// Middleware returns a gin middleware recording request counts and latency.
// Paths are recorded by route pattern (":id" not the actual value) to keep
// label cardinality bounded.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, statusBucket(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// statusBucket collapses status codes into classes to bound cardinality.
func statusBucket(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

// Handler returns the /metrics endpoint handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// CollectDBStats starts a goroutine that periodically exports database
// pool gauges until ctx is cancelled.
func CollectDBStats(ctx context.Context, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := db.Stats()
				DBOpenConnections.Set(float64(stats.OpenConnections))
				DBIdleConnections.Set(float64(stats.Idle))
			}
		}
	}()
}
