package backplane

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"backplane-go/services/backplane/internal/core"
	"backplane-go/services/backplane/internal/resource"
)

const metricsNamespace = "backplane"

// Metrics are the scan loop collectors. NewMetrics registers them on the
// given registerer so tests can use a private registry.
type Metrics struct {
	Ticks           prometheus.Counter
	TickSeconds     prometheus.Histogram
	CycleFailures   prometheus.Counter
	DegradedModules prometheus.Gauge
	GPIOs           *prometheus.GaugeVec
	ResourceUsages  *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "scan",
			Name:      "ticks_total",
			Help:      "Scan ticks run",
		}),
		TickSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "scan",
			Name:      "tick_seconds",
			Help:      "Wall time of one scan tick",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		CycleFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "scan",
			Name:      "cycle_failures_total",
			Help:      "Module cycles that returned an error",
		}),
		DegradedModules: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "degraded_modules",
			Help:      "Attached modules with at least one failed lifecycle step",
		}),
		GPIOs: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "gpio_lines",
			Help:      "Output table lines by state",
		}, []string{"state"}),
		ResourceUsages: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "resource_usages",
			Help:      "Current usages of each registered resource",
		}, []string{"type", "index"}),
	}
}

// observeTables records table and pool occupancy.
func (m *Metrics) observeTables(sys *core.System) {
	m.GPIOs.WithLabelValues("provided").Set(float64(sys.ProvidedGPIOs()))
	m.GPIOs.WithLabelValues("used").Set(float64(sys.UsedGPIOs()))
	sys.Pool().Each(func(i int, r resource.Resource) {
		m.ResourceUsages.WithLabelValues(r.Type().String(), strconv.Itoa(i)).Set(float64(r.Usages()))
	})
	degraded := 0
	for _, mod := range sys.Modules() {
		if core.State(mod).Degraded() {
			degraded++
		}
	}
	m.DegradedModules.Set(float64(degraded))
}
