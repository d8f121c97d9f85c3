package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/go-post-scheduler/internal/repo"
)

// Publish attempt outcomes used as the "outcome" label.
const (
	outcomePublished = "published"
	outcomeRetry     = "retry"
	outcomeFailed    = "failed"
	outcomeStoreErr  = "store_error"
)

var (
	ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_ticks_total",
		Help: "Number of daemon ticks run.",
	})

	tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_tick_duration_seconds",
		Help:    "Duration of a daemon tick in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	publishAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_publish_attempts_total",
		Help: "Publish attempts by outcome.",
	}, []string{"outcome"})

	duePosts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_due_posts",
		Help: "Records found due at the start of the last tick.",
	})

	postsByStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scheduled_posts",
		Help: "Scheduled posts by status.",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(ticksTotal, tickDuration, publishAttempts, duePosts, postsByStatus)
}

// RecordCounts publishes per-status counts to the scheduled_posts gauge.
func RecordCounts(c repo.StatusCounts) {
	for status, n := range c {
		postsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}
