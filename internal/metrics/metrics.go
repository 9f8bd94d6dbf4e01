package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ufwinspector/pkg/models"
)

const namespace = "ufwinspector"

// Metrics holds the Prometheus metrics of one analysis run. Each run gets
// its own registry so repeated runs in one process do not accumulate.
type Metrics struct {
	registry *prometheus.Registry

	LinesTotal         prometheus.Counter
	EventsTotal        *prometheus.CounterVec
	SkippedLinesTotal  prometheus.Counter
	IndeterminateTotal prometheus.Counter
	PrivateHitsTotal   prometheus.Counter
	PublicAddresses    prometheus.Gauge
	ResolutionsTotal   *prometheus.CounterVec
	ISPLookupsTotal    prometheus.Counter
	RuleMatchesTotal   prometheus.Counter
	RunDuration        prometheus.Gauge
}

// New creates a Metrics instance with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		LinesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_total",
			Help:      "Total number of input lines read",
		}),
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Parsed events by UFW action",
		}, []string{"type"}),
		SkippedLinesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_lines_total",
			Help:      "Lines that could not be parsed",
		}),
		IndeterminateTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indeterminate_addresses_total",
			Help:      "Address fields that could not be classified",
		}),
		PrivateHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "private_address_hits_total",
			Help:      "Address fields excluded as non-public",
		}),
		PublicAddresses: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "public_addresses",
			Help:      "Distinct public addresses in the run",
		}),
		ResolutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Reverse lookups by outcome",
		}, []string{"status"}),
		ISPLookupsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "isp_lookups_total",
			Help:      "ISP lookups performed",
		}),
		RuleMatchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_matches_total",
			Help:      "Rule matches across all events",
		}),
		RunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the analysis run",
		}),
	}
}

// Registry returns the run's registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStats records the final run counters.
func (m *Metrics) ObserveStats(stats models.Stats) {
	m.LinesTotal.Add(float64(stats.TotalLines))
	m.SkippedLinesTotal.Add(float64(stats.SkippedLines))
	m.IndeterminateTotal.Add(float64(stats.IndeterminateAddresses))
	m.PrivateHitsTotal.Add(float64(stats.PrivateAddressHits))
	m.PublicAddresses.Set(float64(stats.PublicAddresses))
}

// ObserveResolution counts one lookup outcome.
func (m *Metrics) ObserveResolution(status models.ResolutionStatus) {
	m.ResolutionsTotal.WithLabelValues(string(status)).Inc()
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
