package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	entriesSaved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "photostamp",
		Name:      "entries_saved_total",
		Help:      "Number of entries persisted.",
	})
	entriesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "photostamp",
		Name:      "entries_deleted_total",
		Help:      "Number of entries removed by id or by clearing the store.",
	})
	locationUnavailable = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "photostamp",
		Name:      "location_unavailable_total",
		Help:      "Saves that finished without device coordinates.",
	})
	geocodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "photostamp",
		Name:      "geocode_empty_total",
		Help:      "Reverse lookups that produced no address.",
	})
	annotationFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "photostamp",
		Name:      "annotation_fallbacks_total",
		Help:      "Saves that stored the raw photo because annotation failed.",
	})
	saveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "photostamp",
		Name:      "save_duration_seconds",
		Help:      "Time spent in a complete save flow.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})
)
