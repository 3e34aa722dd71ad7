package server

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crystal-mush/profstats/pkg/command"
	"github.com/crystal-mush/profstats/pkg/stats"
)

// Metrics holds Prometheus metric descriptors for the service.
type Metrics struct {
	startTime time.Time
	gatherer  prometheus.Gatherer

	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	storeErrors     *prometheus.CounterVec
	sessions        *prometheus.GaugeVec
	uptimeSeconds   prometheus.Gauge
	memoryHeapBytes prometheus.Gauge
	goroutines      prometheus.Gauge
}

// NewMetrics creates metrics and registers them with a fresh registry.
func NewMetrics(startTime time.Time) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		startTime: startTime,
		gatherer:  reg,
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profstats_commands_total",
			Help: "Commands dispatched, by command and outcome.",
		}, []string{"command", "outcome"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "profstats_command_duration_seconds",
			Help:    "Time spent dispatching a command.",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profstats_store_errors_total",
			Help: "Stat store reads that failed as unavailable, by operation.",
		}, []string{"op"}),
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "profstats_sessions",
			Help: "Logged-in sessions by transport.",
		}, []string{"transport"}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profstats_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profstats_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profstats_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	reg.MustRegister(
		m.commandsTotal,
		m.commandDuration,
		m.storeErrors,
		m.sessions,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
	)
	return m
}

// ObserveDispatch implements command.Observer.
func (m *Metrics) ObserveDispatch(cmd string, outcome command.Outcome, elapsed time.Duration) {
	if outcome == command.OutcomeUnknown {
		cmd = "unknown"
	}
	m.commandsTotal.WithLabelValues(cmd, outcome.String()).Inc()
	m.commandDuration.WithLabelValues(cmd).Observe(elapsed.Seconds())
}

// SessionOpened and SessionClosed track logged-in sessions.
func (m *Metrics) SessionOpened(transport string) { m.sessions.WithLabelValues(transport).Inc() }
func (m *Metrics) SessionClosed(transport string) { m.sessions.WithLabelValues(transport).Dec() }

// Update refreshes the process gauges.
func (m *Metrics) Update() {
	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	inner := promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		inner.ServeHTTP(w, r)
	})
}

// InstrumentStore counts unavailable errors from s.
func (m *Metrics) InstrumentStore(s stats.Store) stats.Store {
	return &instrumentedStore{Store: s, errors: m.storeErrors}
}

type instrumentedStore struct {
	stats.Store
	errors *prometheus.CounterVec
}

func (s *instrumentedStore) AllStats(ctx context.Context, player string) (map[string]string, error) {
	all, err := s.Store.AllStats(ctx, player)
	s.count("all_stats", err)
	return all, err
}

func (s *instrumentedStore) Stat(ctx context.Context, player, key string) (string, error) {
	v, err := s.Store.Stat(ctx, player, key)
	s.count("stat", err)
	return v, err
}

func (s *instrumentedStore) count(op string, err error) {
	if err != nil && !errors.Is(err, stats.ErrNotFound) {
		s.errors.WithLabelValues(op).Inc()
	}
}
