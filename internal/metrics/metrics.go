// file: internal/metrics/metrics.go

package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for installsTotal
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics collects install run metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	installsTotal     *prometheus.CounterVec
	installDuration   *prometheus.HistogramVec
	sinkFailuresTotal *prometheus.CounterVec
	tokenExpiry       prometheus.Gauge
	lastSuccess       prometheus.Gauge

	goroutines  prometheus.Gauge
	memoryBytes prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with registry
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		registry: registry,

		installsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "install_credentials_runs_total",
				Help: "Total number of install runs by credential source and result",
			},
			[]string{"source", "result"},
		),
		installDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "install_credentials_run_duration_seconds",
				Help:    "Duration of install runs by credential source",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		sinkFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "install_credentials_sink_failures_total",
				Help: "Total number of failed credential writes by sink",
			},
			[]string{"sink"},
		),
		tokenExpiry: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "install_credentials_token_expiry_timestamp_seconds",
				Help: "Unix time at which the installed token expires (0 if unknown)",
			},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "install_credentials_last_success_timestamp_seconds",
				Help: "Unix time of the last successful install run",
			},
		),

		goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "install_credentials_goroutines",
				Help: "Current number of goroutines",
			},
		),
		memoryBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "install_credentials_memory_bytes",
				Help: "Bytes of allocated heap objects",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.installsTotal,
		m.installDuration,
		m.sinkFailuresTotal,
		m.tokenExpiry,
		m.lastSuccess,
		m.goroutines,
		m.memoryBytes,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// GetRegistry returns the registry used for exposition and pushes
func (m *Metrics) GetRegistry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveInstall records the outcome of one run
func (m *Metrics) ObserveInstall(source string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.installsTotal.WithLabelValues(source, result).Inc()
	m.installDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func (m *Metrics) IncSinkFailure(sink string) {
	if m == nil {
		return
	}
	m.sinkFailuresTotal.WithLabelValues(sink).Inc()
}

// SetTokenInstalled records the expiry of the token just written and the time
// it was written. A zero expiry (fixed tokens) is reported as 0.
func (m *Metrics) SetTokenInstalled(expiresAt, now time.Time) {
	if m == nil {
		return
	}
	if expiresAt.IsZero() {
		m.tokenExpiry.Set(0)
	} else {
		m.tokenExpiry.Set(float64(expiresAt.Unix()))
	}
	m.lastSuccess.Set(float64(now.Unix()))
}

// UpdateSystemMetrics samples goroutine count and heap usage
func (m *Metrics) UpdateSystemMetrics() {
	if m == nil {
		return
	}
	m.goroutines.Set(float64(runtime.NumGoroutine()))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	m.memoryBytes.Set(float64(memStats.Alloc))
}
