package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var latencyBuckets = []float64{
	0.001, // 1ms
	0.005, // 5ms
	0.01,  // 10ms
	0.025, // 25ms
	0.05,  // 50ms
	0.1,   // 100ms
	0.25,  // 250ms
	0.5,   // 500ms
	1.0,   // 1s
	2.5,   // 2.5s
	5.0,   // 5s
	10.0,  // 10s
}

var (
	// PledgeDuration tracks how long creating a pledge takes, payment capture included
	PledgeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pledgr_pledge_duration_seconds",
			Help:    "Duration of pledge creation in seconds",
			Buckets: latencyBuckets,
		},
		[]string{"status"}, // completed, pending or failed
	)

	SettlementsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pledgr_settlements_created_total",
			Help: "Number of fee settlements recorded",
		},
	)

	PlatformFeeCents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pledgr_platform_fee_cents_total",
			Help: "Platform fees recorded, in cents",
		},
	)

	LoginFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pledgr_login_failures_total",
			Help: "Failed logins by reason",
		},
		[]string{"reason"}, // credentials or locked
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pledgr_rate_limited_total",
			Help: "Requests rejected by a rate limiter",
		},
		[]string{"limiter"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pledgr_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: latencyBuckets,
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pledgr_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		},
	)
)

// RecordPledgeDuration records the duration of a pledge request
func RecordPledgeDuration(status string, duration float64) {
	PledgeDuration.WithLabelValues(status).Observe(duration)
}

func RecordSettlement(feeCents int64) {
	SettlementsCreated.Inc()
	PlatformFeeCents.Add(float64(feeCents))
}

func RecordLoginFailure(reason string) {
	LoginFailures.WithLabelValues(reason).Inc()
}

func RecordRateLimited(limiter string) {
	RateLimited.WithLabelValues(limiter).Inc()
}

// Middleware observes every request under its route template, so /api/campaigns/:id
// is one series regardless of the id.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
