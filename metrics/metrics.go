// Package metrics exports process-wide counters for the bus engine and the
// persistence driver.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BusCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pinshadow_bus_cycles_total",
		Help: "Bus cycles dispatched by the classifier, by kind",
	}, []string{"kind"})

	BusGlitches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pinshadow_bus_glitches_total",
		Help: "Strobe edges rejected by the settle re-check",
	})

	BackupChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pinshadow_backup_chunks_total",
		Help: "Shadow chunks persisted by the backup loop",
	})

	BackupSweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pinshadow_backup_sweeps_total",
		Help: "Completed full sweeps of the shadow region, by trigger",
	}, []string{"trigger"})

	TransportErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pinshadow_fram_transport_errors_total",
		Help: "Failed exchanges with the FRAM, by operation",
	}, []string{"op"})

	RestoreDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pinshadow_restore_duration_seconds",
		Help:    "Time to restore the shadow region from FRAM",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	ChecksumRepairs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pinshadow_checksum_repairs_total",
		Help: "Boot-time checksum fields rewritten",
	})

	Faults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pinshadow_faults_total",
		Help: "Fatal boot faults latched, by fault",
	}, []string{"fault"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
