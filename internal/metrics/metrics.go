// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes pipeline runs as Prometheus metrics. A batch run
// has no scrape endpoint, so the registry is written to a node-exporter
// textfile when the run ends.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pdiddy/coating-patents/internal/classify"
	"github.com/pdiddy/coating-patents/internal/pipeline"
	"github.com/pdiddy/coating-patents/pkg/types"
)

const namespace = "coating_patents"

// RunMetrics implements pipeline.Observer.
type RunMetrics struct {
	registry *prometheus.Registry
	now      func() time.Time

	stageTransitions *prometheus.CounterVec
	classified       *prometheus.CounterVec
	unclassified     *prometheus.CounterVec
	attempts         prometheus.Histogram
	records          *prometheus.GaugeVec
	duration         prometheus.Gauge
	lastRun          *prometheus.GaugeVec
}

// New registers the run metrics on a private registry.
func New() *RunMetrics {
	registry := prometheus.NewRegistry()

	stageTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_transitions_total",
			Help:      "Stages entered by pipeline runs.",
		},
		[]string{"stage"},
	)
	classified := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "records_classified_total",
			Help:      "Records assigned a coating label, by label.",
		},
		[]string{"label"},
	)
	unclassified := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "records_unclassified_total",
			Help:      "Records left without a label, by reason.",
		},
		[]string{"reason"},
	)
	attempts := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "attempts_per_record",
			Help:      "Model calls made per classified record.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
	)
	records := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "records",
			Help:      "Record counts of the last run, by outcome.",
		},
		[]string{"outcome"},
	)
	duration := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Wall time of the last run.",
		},
	)
	lastRun := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_finished_timestamp_seconds",
			Help:      "Unix time the last run finished, by final stage.",
		},
		[]string{"stage"},
	)

	registry.MustRegister(stageTransitions, classified, unclassified, attempts, records, duration, lastRun)

	return &RunMetrics{
		registry:         registry,
		now:              time.Now,
		stageTransitions: stageTransitions,
		classified:       classified,
		unclassified:     unclassified,
		attempts:         attempts,
		records:          records,
		duration:         duration,
		lastRun:          lastRun,
	}
}

// Registry returns the registry holding the run metrics.
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *RunMetrics) StageEntered(stage pipeline.Stage) {
	m.stageTransitions.WithLabelValues(string(stage)).Inc()
}

func (m *RunMetrics) RecordClassified(_ types.Record, res classify.Result) {
	if res.Attempts > 0 {
		m.attempts.Observe(float64(res.Attempts))
	}
	if res.OK() {
		m.classified.WithLabelValues(string(res.Label)).Inc()
		return
	}
	m.unclassified.WithLabelValues(string(res.Reason)).Inc()
}

func (m *RunMetrics) RunFinished(s pipeline.Stats) {
	m.records.WithLabelValues("extracted").Set(float64(s.Extracted))
	m.records.WithLabelValues("deduplicated").Set(float64(s.Deduplicated))
	m.records.WithLabelValues("classified").Set(float64(s.Classified))
	m.records.WithLabelValues("unclassified").Set(float64(s.UnclassifiedTotal()))
	m.records.WithLabelValues("skipped").Set(float64(s.Skipped))
	m.records.WithLabelValues("emitted").Set(float64(s.Emitted))
	m.duration.Set(s.Duration.Seconds())
	m.lastRun.WithLabelValues(string(s.Stage)).Set(float64(m.now().Unix()))
}

// WriteTextfile writes the registry in the text exposition format.
func (m *RunMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
