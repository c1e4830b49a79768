package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label for operations that succeeded.
const OutcomeOK = "ok"

var (
	claimOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saveserve_claims_total",
			Help: "Claim requests by outcome",
		},
		[]string{"outcome"},
	)

	bookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saveserve_booking_transitions_total",
			Help: "Booking status transitions",
		},
		[]string{"from", "to"},
	)

	verifyOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saveserve_collection_verifications_total",
			Help: "Collection verifications by outcome",
		},
		[]string{"outcome"},
	)

	sweepItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saveserve_sweep_items_total",
			Help: "Items handled by the expiry sweeper",
		},
		[]string{"kind"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "saveserve_sweep_duration_seconds",
			Help:    "Duration of expiry sweeps",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	quantityDrift = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "saveserve_reconcile_corrections_total",
			Help: "Listings whose remaining quantity was corrected by reconciliation",
		},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saveserve_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func TrackClaim(outcome string) {
	claimOutcomes.WithLabelValues(outcome).Inc()
}

func TrackTransition(from, to string) {
	bookingTransitions.WithLabelValues(from, to).Inc()
}

func TrackVerify(outcome string) {
	verifyOutcomes.WithLabelValues(outcome).Inc()
}

// TrackSweep records one sweep pass.
func TrackSweep(deactivated, expiredPending, expiredApproved int, d time.Duration) {
	sweepItems.WithLabelValues("listing_deactivated").Add(float64(deactivated))
	sweepItems.WithLabelValues("pending_expired").Add(float64(expiredPending))
	sweepItems.WithLabelValues("approved_expired").Add(float64(expiredApproved))
	sweepDuration.Observe(d.Seconds())
}

func TrackReconcileCorrection() {
	quantityDrift.Inc()
}

// GinMiddleware observes request durations labelled by route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
