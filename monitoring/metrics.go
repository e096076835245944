package monitoring

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	purchases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_purchases_total",
			Help: "Ticket purchase attempts by outcome",
		},
		[]string{"outcome"},
	)

	releases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_releases_total",
			Help: "Per-ticket escrow release results",
		},
		[]string{"outcome"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "release_sweep_duration_seconds",
			Help:    "Duration of one release sweep",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	paymentSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_sessions_total",
			Help: "Payment session events by status",
		},
		[]string{"status"},
	)

	ticketHoldDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticket_hold_duration_seconds",
			Help:    "Time between placing and clearing a checkout hold",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	activeHolds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ticket_holds_active",
			Help: "Current number of tickets held for checkout",
		},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)
)

func TrackPurchase(outcome string) {
	purchases.WithLabelValues(outcome).Inc()
}

func TrackRelease(outcome string) {
	releases.WithLabelValues(outcome).Inc()
}

func ObserveSweep(d time.Duration) {
	sweepDuration.Observe(d.Seconds())
}

func TrackPaymentSession(status string) {
	paymentSessions.WithLabelValues(status).Inc()
}

func TrackTicketHold(d time.Duration) {
	ticketHoldDuration.Observe(d.Seconds())
}

// Monitor periodically samples gauges that have no natural update point.
type Monitor struct {
	redis     redis.Cmdable
	holdMatch string
	interval  time.Duration
}

func NewMonitor(redisClient redis.Cmdable, holdKeyPattern string) *Monitor {
	return &Monitor{redis: redisClient, holdMatch: holdKeyPattern, interval: 30 * time.Second}
}

// Run collects until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collect(ctx)
		}
	}
}

func (m *Monitor) collect(ctx context.Context) {
	goroutineCount.Set(float64(runtime.NumGoroutine()))

	n, err := m.CountHolds(ctx)
	if err != nil {
		slog.Warn("Failed to count ticket holds", "error", err)
		return
	}
	activeHolds.Set(float64(n))
}

// CountHolds walks the hold keyspace with SCAN.
func (m *Monitor) CountHolds(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := m.redis.Scan(ctx, cursor, m.holdMatch, 100).Result()
		if err != nil {
			return 0, err
		}
		total += len(keys)
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}
