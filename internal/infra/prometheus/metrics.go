package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TrackOutcomes counts ingest submissions by their terminal outcome.
var TrackOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "beacon_track_outcomes_total",
	Help: "Click submissions by outcome (tracked, duplicate, rate_limited, ...).",
}, []string{"outcome"})
