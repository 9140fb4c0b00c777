// Package metrics exports pipeline telemetry to Prometheus.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records conversion outcomes and per-variant encode/write cost.
type Metrics struct {
	conversions     *prometheus.CounterVec
	variantDuration *prometheus.HistogramVec
	variantBytes    *prometheus.CounterVec
	variantErrors   *prometheus.CounterVec
	staleRemoved    prometheus.Counter
}

// New registers the pipeline metrics on reg.
func New(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = "image_converter"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Conversion requests by route and outcome.",
		}, []string{"route", "outcome"}),
		variantDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "variant_duration_seconds",
			Help:      "Time to resize, encode, write and clean one variant.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"class", "format"}),
		variantBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "variant_bytes_total",
			Help:      "Encoded bytes written per variant class.",
		}, []string{"class", "format"}),
		variantErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "variant_errors_total",
			Help:      "Variants that failed to encode or write.",
		}, []string{"class", "format"}),
		staleRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_variants_removed_total",
			Help:      "Superseded variant files deleted by the cleaner.",
		}),
	}

	collectors := []prometheus.Collector{m.conversions, m.variantDuration, m.variantBytes, m.variantErrors, m.staleRemoved}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register pipeline metric: %w", err)
		}
	}

	return m, nil
}

// ObserveConversion counts one finished request.
func (m *Metrics) ObserveConversion(route, outcome string) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(route, outcome).Inc()
}

// ObserveVariant records one variant written (or failed) by the fan-out.
func (m *Metrics) ObserveVariant(class, format string, size, removed int, d time.Duration, err error) {
	if m == nil {
		return
	}

	m.variantDuration.WithLabelValues(class, format).Observe(d.Seconds())
	if err != nil {
		m.variantErrors.WithLabelValues(class, format).Inc()
		return
	}

	m.variantBytes.WithLabelValues(class, format).Add(float64(size))
	m.staleRemoved.Add(float64(removed))
}
