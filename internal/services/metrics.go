package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kubev2v/hypervisor-collector/internal/models"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics records one collector run. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	collectionsTotal   *prometheus.CounterVec
	collectionDuration *prometheus.HistogramVec
	hosts              *prometheus.GaugeVec
	vms                *prometheus.GaugeVec
	uploadsTotal       *prometheus.CounterVec
	runDuration        prometheus.Gauge
	lastRun            prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		collectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hypervisor_collector_collections_total",
				Help: "Total number of backend collections",
			},
			[]string{"type", "outcome"},
		),
		collectionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hypervisor_collector_collection_duration_seconds",
				Help:    "Backend collection latency in seconds",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"type"},
		),
		hosts: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hypervisor_collector_hosts",
				Help: "Number of hypervisor hosts collected per backend",
			},
			[]string{"backend"},
		),
		vms: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hypervisor_collector_vms",
				Help: "Number of virtual machines collected per backend",
			},
			[]string{"backend"},
		),
		uploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hypervisor_collector_uploads_total",
				Help: "Total number of uploads to SCC",
			},
			[]string{"outcome"},
		),
		runDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "hypervisor_collector_run_duration_seconds",
				Help: "Duration of the last collection run",
			},
		),
		lastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "hypervisor_collector_last_run_timestamp_seconds",
				Help: "Unix time the last collection run completed",
			},
		),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveCollection(r models.CollectionResult) {
	if m == nil {
		return
	}

	outcome := outcomeSuccess
	if !r.Succeeded() {
		outcome = outcomeFailure
	}
	m.collectionsTotal.WithLabelValues(r.Backend.Type, outcome).Inc()
	m.collectionDuration.WithLabelValues(r.Backend.Type).Observe(r.Duration.Seconds())

	if r.Succeeded() {
		vms := 0
		for _, h := range r.Details {
			vms += len(h.VMs)
		}
		m.hosts.WithLabelValues(r.Backend.ID).Set(float64(len(r.Details)))
		m.vms.WithLabelValues(r.Backend.ID).Set(float64(vms))
	}
}

func (m *Metrics) ObserveUpload(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.uploadsTotal.WithLabelValues(outcomeFailure).Inc()
		return
	}
	m.uploadsTotal.WithLabelValues(outcomeSuccess).Inc()
}

func (m *Metrics) ObserveRun(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Set(d.Seconds())
	m.lastRun.SetToCurrentTime()
}

// WriteToTextfile exports the metrics for the node exporter textfile collector.
func (m *Metrics) WriteToTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
