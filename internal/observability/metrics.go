package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	gradeSavesTotal       *prometheus.CounterVec
	gradeSaveLatency      *prometheus.HistogramVec
	gradeSessionsActive   prometheus.Gauge
	studentsImportedTotal *prometheus.CounterVec
	exportsGeneratedTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		gradeSavesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grade_saves_total",
			Help: "Grade batches handed to storage, by trigger and outcome.",
		}, []string{"trigger", "outcome"})

		gradeSaveLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grade_save_latency_seconds",
			Help:    "Time spent persisting a grade batch.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"trigger"})

		gradeSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grade_sessions_active",
			Help: "Number of open grade entry sessions.",
		})

		studentsImportedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "students_imported_total",
			Help: "Rows processed by the student CSV import, by result.",
		}, []string{"result"})

		exportsGeneratedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exports_generated_total",
			Help: "Generated exports by type.",
		}, []string{"type"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			gradeSavesTotal,
			gradeSaveLatency,
			gradeSessionsActive,
			studentsImportedTotal,
			exportsGeneratedTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// GradeSaves exposes the grade batch counter.
func GradeSaves() *prometheus.CounterVec {
	RegisterMetrics()
	return gradeSavesTotal
}

// GradeSaveLatency exposes the grade batch latency histogram.
func GradeSaveLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return gradeSaveLatency
}

// GradeSessionsActive exposes the open session gauge.
func GradeSessionsActive() prometheus.Gauge {
	RegisterMetrics()
	return gradeSessionsActive
}

// StudentsImported exposes the import row counter.
func StudentsImported() *prometheus.CounterVec {
	RegisterMetrics()
	return studentsImportedTotal
}

// ExportsGenerated exposes the export counter.
func ExportsGenerated() *prometheus.CounterVec {
	RegisterMetrics()
	return exportsGeneratedTotal
}
