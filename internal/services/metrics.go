package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	feedRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_requests_total",
		Help: "Feed requests served, by endpoint",
	}, []string{"endpoint"})

	feedAssemblyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_assembly_duration_seconds",
		Help:    "Time spent assembling a feed",
		Buckets: prometheus.DefBuckets,
	})

	trackingFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "activity_tracking_failures_total",
		Help: "Activity cache writes that failed",
	})

	activitiesFlushed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "activities_flushed_total",
		Help: "Activity rows drained into the relational store",
	})

	catalogSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "catalog_size",
		Help: "Entities in the current catalog snapshot",
	}, []string{"entity"})

	catalogReloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_reloads_total",
		Help: "Catalog reload attempts, by result",
	}, []string{"result"})
)

// ObserveFeedRequest counts one served feed request and its assembly
// time.
func ObserveFeedRequest(endpoint string, duration float64) {
	feedRequests.WithLabelValues(endpoint).Inc()
	feedAssemblyDuration.Observe(duration)
}

var registerMetricsOnce sync.Once

func registerMetrics(logger *logrus.Logger) {
	registerMetricsOnce.Do(func() {
		collectors := []prometheus.Collector{
			feedRequests, feedAssemblyDuration, trackingFailures,
			activitiesFlushed, catalogSize, catalogReloads,
		}
		for _, c := range collectors {
			if err := prometheus.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					logger.WithError(err).Warn("Failed to register metric")
				}
			}
		}
	})
}
