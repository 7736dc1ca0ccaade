package errorlog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errorsink_errors_recorded_total",
			Help: "Error reports successfully recorded, by severity and category",
		},
		[]string{"severity", "category"},
	)

	recordFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "errorsink_record_failures_total",
			Help: "Error reports dropped because persistence failed",
		},
	)

	retentionDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "errorsink_retention_deleted_total",
			Help: "Resolved records removed by the retention sweep",
		},
	)
)
