// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the agent.
//
// # Description
//
// Counters cover the two orchestration cores: build pipeline executions,
// attempt loop runs, individual attempts, review verdicts, and
// notification delivery retries. All metrics carry the "forgeline"
// namespace and are exposed on /metrics.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "forgeline"

var (
	// tasksAcceptedTotal counts build requests that passed validation
	// and were queued.
	tasksAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "tasks_accepted_total",
		Help:      "Total build requests accepted and queued for processing",
	})

	// tasksRejectedTotal counts build requests refused at the door.
	// Labels: reason (auth, validation, queue_full)
	tasksRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "tasks_rejected_total",
		Help:      "Total build requests rejected before queuing, by reason",
	}, []string{"reason"})

	// pipelineRunsTotal counts completed pipeline executions.
	// Labels: status (success, error)
	pipelineRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "pipeline_runs_total",
		Help:      "Total build pipeline executions by terminal status",
	}, []string{"status"})

	// loopRunsTotal counts attempt loop runs by terminal outcome.
	// Labels: outcome (success, exhausted, fatal)
	loopRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "loop_runs_total",
		Help:      "Total attempt loop runs by terminal outcome",
	}, []string{"outcome"})

	// attemptsTotal counts individual generate/publish/review attempts.
	attemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "attempts_total",
		Help:      "Total individual attempts started across all loop runs",
	})

	// verdictsTotal counts verdicts observed at the end of each attempt.
	// Labels: verdict (APPROVED, CHANGES_REQUESTED, PENDING, ERROR)
	verdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "verdicts_total",
		Help:      "Total review verdicts observed, by verdict",
	}, []string{"verdict"})

	// notifyAttemptsTotal counts notification delivery attempts.
	// Labels: status (success, retry, exhausted)
	notifyAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "notify_attempts_total",
		Help:      "Total notification delivery attempts by status",
	}, []string{"status"})

	// queueDepth tracks tasks waiting in the worker queue.
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "queue_depth",
		Help:      "Number of tasks currently waiting in the worker queue",
	})
)

// RecordTaskAccepted records a build request that was queued.
func RecordTaskAccepted() {
	tasksAcceptedTotal.Inc()
}

// RecordTaskRejected records a build request refused before queuing.
func RecordTaskRejected(reason string) {
	tasksRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordPipeline records a completed pipeline execution.
func RecordPipeline(status string) {
	pipelineRunsTotal.WithLabelValues(status).Inc()
}

// RecordLoopOutcome records a terminal attempt loop outcome.
func RecordLoopOutcome(outcome string) {
	loopRunsTotal.WithLabelValues(outcome).Inc()
}

// RecordAttempt records the start of one attempt.
func RecordAttempt() {
	attemptsTotal.Inc()
}

// RecordVerdict records the verdict that ended an attempt.
func RecordVerdict(verdict string) {
	verdictsTotal.WithLabelValues(verdict).Inc()
}

// RecordNotifyAttempt records one notification delivery attempt.
func RecordNotifyAttempt(status string) {
	notifyAttemptsTotal.WithLabelValues(status).Inc()
}

// SetQueueDepth updates the worker queue depth gauge.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}
