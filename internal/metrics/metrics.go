// Package metrics holds the Prometheus collectors for the analysis pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	OnsetsDetected  prometheus.Counter
	Classifications *prometheus.CounterVec
	RemoteFailures  prometheus.Counter
	AnalysisTime    prometheus.Histogram
	AnalysisErrors  *prometheus.CounterVec
	HTTPResponses   *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg skips
// registration, which is handy in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OnsetsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beatsketch_onsets_detected_total",
			Help: "Onsets found across all analysis runs.",
		}),
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beatsketch_classifications_total",
			Help: "Classified onsets by sound and classifier source.",
		}, []string{"sound", "source"}),
		RemoteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beatsketch_remote_failures_total",
			Help: "Remote classifications that fell back to the local heuristic.",
		}),
		AnalysisTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "beatsketch_analysis_seconds",
			Help:    "Wall time of complete analysis runs.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		AnalysisErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beatsketch_analysis_errors_total",
			Help: "Analysis runs that ended in an error, by reason.",
		}, []string{"reason"}),
		HTTPResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beatsketch_http_responses_total",
			Help: "HTTP API responses by action, method and status code.",
		}, []string{"action", "method", "statusCode"}),
	}
	if reg != nil {
		reg.MustRegister(m.OnsetsDetected, m.Classifications, m.RemoteFailures, m.AnalysisTime, m.AnalysisErrors, m.HTTPResponses)
	}
	return m
}

func (m *Metrics) ObserveOnsets(n int) {
	if m == nil {
		return
	}
	m.OnsetsDetected.Add(float64(n))
}

func (m *Metrics) ObserveClassification(sound, source string) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(sound, source).Inc()
}

func (m *Metrics) ObserveRemoteFailure() {
	if m == nil {
		return
	}
	m.RemoteFailures.Inc()
}

func (m *Metrics) ObserveAnalysis(d time.Duration) {
	if m == nil {
		return
	}
	m.AnalysisTime.Observe(d.Seconds())
}

func (m *Metrics) ObserveError(reason string) {
	if m == nil {
		return
	}
	m.AnalysisErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveResponse(action, method string, statusCode int) {
	if m == nil {
		return
	}
	m.HTTPResponses.WithLabelValues(action, method, strconv.Itoa(statusCode)).Inc()
}
