package content

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cascadeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medq_cascade_total",
		Help: "Cascade deletes by target kind and outcome",
	}, []string{"kind", "outcome"})

	cascadeDeletedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medq_cascade_deleted_records_total",
		Help: "Records removed by committed cascades, by kind",
	}, []string{"kind"})

	cascadeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "medq_cascade_duration_seconds",
		Help:    "Duration of cascade deletes in seconds",
		Buckets: prometheus.DefBuckets,
	})

	renameTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medq_rename_total",
		Help: "Identifier renames by kind and result",
	}, []string{"kind", "result"})

	treeBuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "medq_tree_build_duration_seconds",
		Help:    "Duration of tree materialisation in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"variant"})

	writeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medq_write_errors_total",
		Help: "Rejected or failed content writes by error code",
	}, []string{"code"})
)

func recordWriteError(err error) {
	if ce, ok := AsError(err); ok {
		writeErrorsTotal.WithLabelValues(string(ce.Code)).Inc()
		return
	}
	writeErrorsTotal.WithLabelValues("internal").Inc()
}
