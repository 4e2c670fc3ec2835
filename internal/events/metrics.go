package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medq_events_broadcast_total",
		Help: "Content changes broadcast to local subscribers, by operation",
	}, []string{"op"})

	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medq_events_dropped_total",
		Help: "Changes dropped because a subscriber was too slow",
	})

	subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "medq_events_subscribers",
		Help: "Connected change subscribers",
	})
)
