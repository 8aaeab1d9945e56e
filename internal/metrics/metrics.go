package metrics

import "github.com/prometheus/client_golang/prometheus"

// AnalysisMetrics exposes counters/histograms for the analysis and chat flows.
type AnalysisMetrics struct {
	analysisTotal  *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	modelLatency   *prometheus.HistogramVec
	dosageWarnings prometheus.Counter
}

func NewAnalysisMetrics(reg prometheus.Registerer) *AnalysisMetrics {
	m := &AnalysisMetrics{
		analysisTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rxreader",
			Name:      "analysis_total",
			Help:      "Completed prescription analyses by outcome",
		}, []string{"outcome", "reason"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rxreader",
			Name:      "errors_total",
			Help:      "Classified failures by stage and kind",
		}, []string{"stage", "kind"}),
		modelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rxreader",
			Name:      "model_call_seconds",
			Help:      "Latency of external model calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"stage"}),
		dosageWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rxreader",
			Name:      "dosage_warnings_total",
			Help:      "Dosage warnings attached to extracted medications",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.analysisTotal, m.errorsTotal, m.modelLatency, m.dosageWarnings)
	return m
}

// ObserveAnalysis records a finished analysis. An empty reason means the
// prescription was read.
func (m *AnalysisMetrics) ObserveAnalysis(unreadable bool, reason string) {
	if m == nil {
		return
	}
	outcome := "readable"
	if unreadable {
		outcome = "unreadable"
	}
	m.analysisTotal.WithLabelValues(outcome, reason).Inc()
}

func (m *AnalysisMetrics) ObserveError(stage, kind string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(stage, kind).Inc()
}

func (m *AnalysisMetrics) ObserveModelCall(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.modelLatency.WithLabelValues(stage).Observe(seconds)
}

func (m *AnalysisMetrics) ObserveDosageWarnings(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dosageWarnings.Add(float64(n))
}
