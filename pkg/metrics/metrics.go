package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	memoryInspector = "memory_inspector"

	forensicJobsTotal       = "forensic_jobs_total"
	toolInvocationsTotal    = "tool_invocations_total"
	acquisitionDuration     = "image_acquisition_duration_seconds"
	symbolResolutionsTotal  = "symbol_resolutions_total"
	activeJobsCount         = "active_jobs_count"
	reportGenerationsFailed = "report_generations_failed_total"

	// Labels
	jobStatusLabel      = "status"
	toolNameLabel       = "tool"
	toolStatusLabel     = "status"
	symbolStrategyLabel = "strategy"
)

/**
* Metrics definition
**/
var forensicJobsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: memoryInspector,
		Name:      forensicJobsTotal,
		Help:      "number of forensic jobs reaching each terminal status",
	},
	[]string{jobStatusLabel},
)

var toolInvocationsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: memoryInspector,
		Name:      toolInvocationsTotal,
		Help:      "number of analysis tool invocations by tool and outcome",
	},
	[]string{toolNameLabel, toolStatusLabel},
)

var acquisitionDurationMetric = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Subsystem: memoryInspector,
		Name:      acquisitionDuration,
		Help:      "time spent capturing a guest memory image",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
	},
)

var symbolResolutionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: memoryInspector,
		Name:      symbolResolutionsTotal,
		Help:      "number of symbol table resolutions by winning strategy",
	},
	[]string{symbolStrategyLabel},
)

var activeJobsCountMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: memoryInspector,
		Name:      activeJobsCount,
		Help:      "number of jobs currently executing",
	},
)

var reportGenerationsFailedMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: memoryInspector,
		Name:      reportGenerationsFailed,
		Help:      "number of report render failures on otherwise completed jobs",
	},
)

func IncreaseForensicJobsTotalMetric(status string) {
	forensicJobsTotalMetric.With(prometheus.Labels{jobStatusLabel: status}).Inc()
}

func IncreaseToolInvocationsTotalMetric(tool, status string) {
	toolInvocationsTotalMetric.With(prometheus.Labels{toolNameLabel: tool, toolStatusLabel: status}).Inc()
}

func ObserveAcquisitionDurationMetric(d time.Duration) {
	acquisitionDurationMetric.Observe(d.Seconds())
}

func IncreaseSymbolResolutionsTotalMetric(strategy string) {
	symbolResolutionsTotalMetric.With(prometheus.Labels{symbolStrategyLabel: strategy}).Inc()
}

func UpdateActiveJobsCountMetric(count int) {
	activeJobsCountMetric.Set(float64(count))
}

func IncreaseReportGenerationsFailedMetric() {
	reportGenerationsFailedMetric.Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(forensicJobsTotalMetric)
	prometheus.MustRegister(toolInvocationsTotalMetric)
	prometheus.MustRegister(acquisitionDurationMetric)
	prometheus.MustRegister(symbolResolutionsTotalMetric)
	prometheus.MustRegister(activeJobsCountMetric)
	prometheus.MustRegister(reportGenerationsFailedMetric)
}
