package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the collectors the upload workflow reports to. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Registry          *prometheus.Registry
	uploads           *prometheus.CounterVec
	inferenceDuration *prometheus.HistogramVec
	deletes           *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "personnage_uploads_total",
				Help: "Upload attempts by the stage they reached (persisted on success).",
			}, []string{"stage"},
		),
		inferenceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "personnage_inference_duration_seconds",
				Help:    "Duration of calls to the inference service.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 180},
			}, []string{"outcome"},
		),
		deletes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "personnage_deletes_total",
				Help: "Delete requests by outcome.",
			}, []string{"outcome"},
		),
	}
	m.Registry.MustRegister(
		m.uploads,
		m.inferenceDuration,
		m.deletes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// UploadFinished records how far an upload got, e.g. "persisted" or the
// stage it failed to reach.
func (m *Metrics) UploadFinished(stage string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(stage).Inc()
}

func (m *Metrics) InferenceObserved(started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.inferenceDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
}

func (m *Metrics) DeleteFinished(outcome string) {
	if m == nil {
		return
	}
	m.deletes.WithLabelValues(outcome).Inc()
}
