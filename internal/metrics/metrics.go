// Package metrics exposes sync run statistics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/02loveslollipop/eco-monitor/internal/ingest"
)

// Recorder implements ingest.Recorder on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	duration      prometheus.Summary
	stations      *prometheus.CounterVec
	measurements  *prometheus.CounterVec
	exceedances   *prometheus.CounterVec
	lastSuccessTS prometheus.Gauge
}

// New builds a Recorder with Go runtime and process collectors registered
// next to the sync metrics.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eco",
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Number of sync runs by final state",
	}, []string{"state"})
	r.duration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: "eco",
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "Wall time of a sync run including the feed fetch",
	})
	r.stations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eco",
		Subsystem: "sync",
		Name:      "stations_total",
		Help:      "Stations handled by sync runs by outcome",
	}, []string{"outcome"})
	r.measurements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eco",
		Subsystem: "sync",
		Name:      "measurements_total",
		Help:      "Measurements handled by sync runs by outcome",
	}, []string{"outcome"})
	r.exceedances = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eco",
		Subsystem: "sync",
		Name:      "exceedances_total",
		Help:      "Threshold exceedances found in new measurements",
	}, []string{"pollutant", "severity"})
	r.lastSuccessTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "eco",
		Subsystem: "sync",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last completed sync run",
	})

	r.registry.MustRegister(
		r.runs, r.duration, r.stations, r.measurements, r.exceedances, r.lastSuccessTS,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveRun records one finished run. A nil result means the run failed
// before any station was processed.
func (r *Recorder) ObserveRun(res *ingest.Result, err error, elapsed time.Duration) {
	r.duration.Observe(elapsed.Seconds())
	if err != nil || res == nil {
		r.runs.WithLabelValues(string(ingest.StateFailed)).Inc()
		return
	}
	r.runs.WithLabelValues(string(ingest.StateCompleted)).Inc()
	r.lastSuccessTS.Set(float64(res.FinishedAt.Unix()))

	r.stations.WithLabelValues("created").Add(float64(res.StationsCreated))
	r.stations.WithLabelValues("updated").Add(float64(res.StationsUpdated))
	r.stations.WithLabelValues("failed").Add(float64(len(res.Errors)))
	r.measurements.WithLabelValues("created").Add(float64(res.MeasurementsCreated))
	r.measurements.WithLabelValues("skipped").Add(float64(res.MeasurementsSkipped))

	for _, report := range res.Exceedances {
		for _, e := range report.Exceedances {
			r.exceedances.WithLabelValues(string(e.Pollutant), string(e.Severity)).Inc()
		}
	}
}

// Handler serves the registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
