package scanner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the scanner's prometheus collectors for one coin.
type Metrics struct {
	height        prometheus.Gauge
	notes         prometheus.Counter
	blockDuration prometheus.Histogram
}

// NewMetrics creates the scanner collectors labelled with coin and registers
// them with reg.
func NewMetrics(reg prometheus.Registerer, coin string) (*Metrics, error) {
	labels := prometheus.Labels{"coin": coin}
	m := &Metrics{
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "warpwallet",
			Subsystem:   "scanner",
			Name:        "height",
			Help:        "Height of the last scanned block.",
			ConstLabels: labels,
		}),
		notes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "warpwallet",
			Subsystem:   "scanner",
			Name:        "outputs_found_total",
			Help:        "Notes and transparent outputs discovered.",
			ConstLabels: labels,
		}),
		blockDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "warpwallet",
			Subsystem:   "scanner",
			Name:        "block_duration_seconds",
			Help:        "Time to apply one block.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
	for _, c := range []prometheus.Collector{m.height, m.notes, m.blockDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// startBlock starts timing a block. The returned func records the result.
// A nil Metrics records nothing.
func (m *Metrics) startBlock() func(height uint32, found int) {
	if m == nil {
		return func(uint32, int) {}
	}
	start := time.Now()
	return func(height uint32, found int) {
		m.blockDuration.Observe(time.Since(start).Seconds())
		m.height.Set(float64(height))
		m.notes.Add(float64(found))
	}
}
