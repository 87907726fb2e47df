// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package subject

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for subject resolution.
var (
	// resolutionDuration tracks the latency of calculated-subject
	// lookups by operation.
	resolutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "permcore_resolution_duration_seconds",
		Help:    "Histogram of permission/option/parent resolution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// contextRecomputations counts active-context cache misses, i.e.
	// how often calculators actually ran.
	contextRecomputations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "permcore_context_recomputations_total",
		Help: "Total number of active-context set recomputations",
	})

	// updateConflicts counts optimistic update retries by subject type.
	updateConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "permcore_update_conflicts_total",
		Help: "Total number of subject data compare-and-swap conflicts",
	}, []string{"subject_type"})
)

// Operation labels for resolution timing.
const (
	opPermission     = "permission"
	opOption         = "option"
	opParents        = "parents"
	opActiveContexts = "active_contexts"
)

// recordResolution records a completed lookup's duration.
func recordResolution(operation string, start time.Time) {
	resolutionDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func recordContextRecomputation() {
	contextRecomputations.Inc()
}

func recordUpdateConflict(subjectType string) {
	updateConflicts.WithLabelValues(subjectType).Inc()
}
