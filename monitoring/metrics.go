package monitoring

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const rosterKeyPattern = "race:roster:*"

var (
	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "race_sessions_active",
			Help: "Race sessions currently held in memory",
		},
	)

	cachedRosters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "race_rosters_cached",
			Help: "Lobby rosters currently cached in Redis",
		},
	)

	raceOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "race_operations_total",
			Help: "Total race coordinator operations",
		},
		[]string{"operation", "status"},
	)

	countdowns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "race_countdowns_total",
			Help: "Countdowns started, by trigger",
		},
		[]string{"trigger"},
	)

	racesStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "races_started_total",
			Help: "Races that reached the running state",
		},
	)

	finishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "race_finish_duration_seconds",
			Help:    "Time from race start to a player typing the last word",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)

// Monitor records coordinator metrics. A nil *Monitor is valid and records
// nothing.
type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	return &Monitor{redis: redisClient}
}

// Run samples Redis-backed gauges until ctx is done.
func (m *Monitor) Run(ctx context.Context, every time.Duration) {
	if m == nil || m.redis == nil {
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.CountCachedRosters(ctx)
			if err != nil {
				slog.Warn("Failed to count cached rosters", "error", err)
				continue
			}
			cachedRosters.Set(float64(n))
		}
	}
}

func (m *Monitor) CountCachedRosters(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := m.redis.Scan(ctx, cursor, rosterKeyPattern, 100).Result()
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

func (m *Monitor) TrackOperation(operation, status string) {
	if m == nil {
		return
	}
	raceOperations.WithLabelValues(operation, status).Inc()
}

func (m *Monitor) TrackCountdown(trigger string) {
	if m == nil {
		return
	}
	countdowns.WithLabelValues(trigger).Inc()
}

func (m *Monitor) TrackRaceStarted() {
	if m == nil {
		return
	}
	racesStarted.Inc()
}

func (m *Monitor) TrackFinish(elapsed time.Duration) {
	if m == nil {
		return
	}
	finishDuration.Observe(elapsed.Seconds())
}

func (m *Monitor) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	activeSessions.Set(float64(n))
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
