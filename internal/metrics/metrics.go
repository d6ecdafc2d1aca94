package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reservationCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "barbershop",
			Name:      "reservation_create_total",
			Help:      "Count of reservation attempts by result code.",
		},
		[]string{"code"},
	)

	reservationWrite = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "barbershop",
			Name:      "reservation_write_total",
			Help:      "Count of versioned reservation writes by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	transientRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "barbershop",
			Name:      "storage_retry_total",
			Help:      "Count of retries after transient storage errors.",
		},
	)

	snapshotCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "barbershop",
			Name:      "snapshot_cache_total",
			Help:      "Constraint snapshot cache lookups by result.",
		},
		[]string{"result"},
	)

	invalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "barbershop",
			Name:      "constraint_invalidation_total",
			Help:      "Constraint invalidations received by reason.",
		},
		[]string{"reason"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "barbershop",
			Name:      "http_requests_total",
			Help:      "HTTP API requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	createLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "barbershop",
			Name:      "reservation_create_seconds",
			Help:      "Latency of reservation creation including retries.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(reservationCreated, reservationWrite, transientRetries, snapshotCache, invalidations, httpRequests, createLatency)
	})
}

func IncReservationCreate(code string) {
	reservationCreated.WithLabelValues(code).Inc()
}

// IncReservationWrite counts a cancel or update; outcome is "changed", "stale" or "error".
func IncReservationWrite(op, outcome string) {
	reservationWrite.WithLabelValues(op, outcome).Inc()
}

func IncTransientRetry() {
	transientRetries.Inc()
}

func IncSnapshotCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	snapshotCache.WithLabelValues(result).Inc()
}

func IncInvalidation(reason string) {
	invalidations.WithLabelValues(reason).Inc()
}

func ObserveCreate(d time.Duration) {
	createLatency.Observe(d.Seconds())
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
