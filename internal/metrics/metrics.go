package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the swing engine.
type Metrics struct {
	CandlesTotal     *prometheus.CounterVec // labels: timeframe, result
	IngestErrors     *prometheus.CounterVec // labels: timeframe
	OrderingErrors   *prometheus.CounterVec // labels: timeframe
	AlertsTotal      *prometheus.CounterVec // labels: timeframe, formation, direction
	ChainsBroken     *prometheus.CounterVec // labels: timeframe
	NotifyErrors     *prometheus.CounterVec // labels: channel
	RecorderDrops    prometheus.Counter
	TickDuration     *prometheus.HistogramVec // labels: timeframe
	PendingChains    prometheus.Gauge
	LastTickUnixTime *prometheus.GaugeVec // labels: timeframe
}

// New creates all metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swing_candles_total",
			Help: "Candles offered to the window store (by timeframe and result)",
		}, []string{"timeframe", "result"}),
		IngestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swing_ingest_errors_total",
			Help: "Failed or malformed fetches",
		}, []string{"timeframe"}),
		OrderingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swing_ordering_errors_total",
			Help: "Candles rejected for being older than the newest stored bar",
		}, []string{"timeframe"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swing_alerts_total",
			Help: "Alert events emitted",
		}, []string{"timeframe", "formation", "direction"}),
		ChainsBroken: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swing_chains_broken_total",
			Help: "Pending chains terminated by a non-extending bar",
		}, []string{"timeframe"}),
		NotifyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swing_notify_errors_total",
			Help: "Alert deliveries that failed after retries",
		}, []string{"channel"}),
		RecorderDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swing_recorder_drops_total",
			Help: "Writes dropped because the recorder queue was full",
		}),
		TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swing_tick_duration_seconds",
			Help:    "Wall time of one scheduler tick",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"timeframe"}),
		PendingChains: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swing_pending_chains",
			Help: "Keys with an active swing chain",
		}),
		LastTickUnixTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "swing_last_tick_timestamp_seconds",
			Help: "Unix time of the last completed tick",
		}, []string{"timeframe"}),
	}

	reg.MustRegister(
		m.CandlesTotal,
		m.IngestErrors,
		m.OrderingErrors,
		m.AlertsTotal,
		m.ChainsBroken,
		m.NotifyErrors,
		m.RecorderDrops,
		m.TickDuration,
		m.PendingChains,
		m.LastTickUnixTime,
	)
	return m
}

// HealthStatus tracks liveness for the status endpoint.
type HealthStatus struct {
	mu        sync.RWMutex
	startedAt time.Time
	lastTick  map[string]time.Time
	ticks     map[string]int64
}

// HealthSnapshot is the JSON view of HealthStatus.
type HealthSnapshot struct {
	StartedAt     time.Time            `json:"started_at"`
	UptimeSeconds int64                `json:"uptime_seconds"`
	LastTick      map[string]time.Time `json:"last_tick"`
	Ticks         map[string]int64     `json:"ticks"`
}

// NewHealthStatus returns a status with StartedAt set to now.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		startedAt: time.Now(),
		lastTick:  map[string]time.Time{},
		ticks:     map[string]int64{},
	}
}

// MarkTick records a completed tick for timeframe.
func (h *HealthStatus) MarkTick(timeframe string, at time.Time) {
	h.mu.Lock()
	h.lastTick[timeframe] = at
	h.ticks[timeframe]++
	h.mu.Unlock()
}

// Snapshot returns a copy safe to serialize.
func (h *HealthStatus) Snapshot() HealthSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := HealthSnapshot{
		StartedAt:     h.startedAt,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		LastTick:      make(map[string]time.Time, len(h.lastTick)),
		Ticks:         make(map[string]int64, len(h.ticks)),
	}
	for k, v := range h.lastTick {
		s.LastTick[k] = v
	}
	for k, v := range h.ticks {
		s.Ticks[k] = v
	}
	return s
}
