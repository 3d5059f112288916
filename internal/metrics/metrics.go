package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"carprep/internal/etl"
)

// Recorder holds the run metrics of the pipeline in its own registry, so
// the text file only carries carprep series.
type Recorder struct {
	registry          *prometheus.Registry
	runs              *prometheus.CounterVec
	rowsLoaded        prometheus.Gauge
	duplicatesRemoved prometheus.Gauge
	valuesImputed     *prometheus.GaugeVec
	rowsWritten       prometheus.Gauge
	duration          prometheus.Gauge
	lastSuccess       prometheus.Gauge
}

// NewRecorder registers every carprep metric on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carprep_runs_total",
			Help: "Pipeline runs by final status.",
		}, []string{"status"}),
		rowsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "carprep_rows_loaded",
			Help: "Raw rows loaded by the last run.",
		}),
		duplicatesRemoved: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "carprep_duplicates_removed",
			Help: "Duplicate rows removed by the last run.",
		}),
		valuesImputed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "carprep_values_imputed",
			Help: "Missing values filled with the median by the last run.",
		}, []string{"field"}),
		rowsWritten: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "carprep_rows_written",
			Help: "Rows written to the output by the last run.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "carprep_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "carprep_last_success_timestamp_seconds",
			Help: "Unix time the last successful run finished.",
		}),
	}
	r.registry.MustRegister(
		r.runs, r.rowsLoaded, r.duplicatesRemoved, r.valuesImputed,
		r.rowsWritten, r.duration, r.lastSuccess,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observe records one run. Failed runs only bump the run counter and
// duration; the row gauges keep describing the last successful output.
func (r *Recorder) Observe(res *etl.RunResult) {
	r.runs.WithLabelValues(res.Status).Inc()
	r.duration.Set(res.Duration.Seconds())
	if res.Status != etl.StatusSuccess {
		return
	}
	r.rowsLoaded.Set(float64(res.RowsRead))
	r.duplicatesRemoved.Set(float64(res.DuplicatesRemoved))
	for field, n := range res.Imputed {
		r.valuesImputed.WithLabelValues(field).Set(float64(n))
	}
	r.rowsWritten.Set(float64(res.RowsWritten))
	r.lastSuccess.Set(float64(res.FinishedAt.Unix()))
}

// WriteTextfile writes all metrics in the Prometheus text format, for the
// node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
