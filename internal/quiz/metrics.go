package quiz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medq_quiz_submissions_total",
		Help: "Quiz submissions by result",
	}, []string{"result"})

	scorePercent = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "medq_quiz_score_percent",
		Help:    "Distribution of graded quiz scores in percent",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})
)
