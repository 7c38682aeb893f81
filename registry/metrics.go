package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	opened       prometheus.Counter
	created      prometheus.Counter
	saved        prometheus.Counter
	saveFailures prometheus.Counter
	evicted      prometheus.Counter
	open         prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		opened: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "brres_registry_opened_total",
			Help: "Total number of container files decoded.",
		}),
		created: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "brres_registry_created_total",
			Help: "Total number of containers created for missing files.",
		}),
		saved: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "brres_registry_saved_total",
			Help: "Total number of modified containers saved.",
		}),
		saveFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "brres_registry_save_failures_total",
			Help: "Total number of failed container saves.",
		}),
		evicted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "brres_registry_evicted_total",
			Help: "Total number of containers evicted to stay within capacity.",
		}),
		open: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "brres_registry_open_containers",
			Help: "Number of containers currently held.",
		}),
	}
}
