/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package generator

import (
	"context"
	"log/slog"
	"time"

	"chainguard.dev/snowblower/stage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "chainguard.dev/snowblower/generator"

var (
	releaseCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snowblower_releases_total",
			Help: "Releases processed, by outcome",
		},
		[]string{"branch", "outcome"},
	)

	stageCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snowblower_stage_runs_total",
			Help: "Stage runs, by stage and cache outcome",
		},
		[]string{"stage", "outcome"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snowblower_stage_duration_seconds",
			Help:    "Time spent in a stage, including cache checks",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"stage"},
	)

	pushCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snowblower_pushes_total",
			Help: "Successful pushes to the remote",
		},
		[]string{"branch"},
	)
)

// Release outcomes.
const (
	outcomeCommitted = "committed"
	outcomeUnchanged = "unchanged"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

// instruments mirrors the Prometheus series as OpenTelemetry counters for
// runs that export through a meter provider.
type instruments struct {
	releases metric.Int64Counter
	stages   metric.Int64Counter
}

func newInstruments() *instruments {
	meter := otel.Meter(meterName)

	releases, err := meter.Int64Counter("snowblower.releases",
		metric.WithDescription("Releases processed"),
		metric.WithUnit("{releases}"))
	if err != nil {
		slog.Warn("Failed to create release counter, metrics will be disabled", "error", err)
		releases = noop.Int64Counter{}
	}

	stages, err := meter.Int64Counter("snowblower.stage.runs",
		metric.WithDescription("Stage runs"),
		metric.WithUnit("{runs}"))
	if err != nil {
		slog.Warn("Failed to create stage counter, metrics will be disabled", "error", err)
		stages = noop.Int64Counter{}
	}

	return &instruments{releases: releases, stages: stages}
}

func (m *instruments) release(ctx context.Context, branch, outcome string) {
	releaseCounter.WithLabelValues(branch, outcome).Inc()
	m.releases.Add(ctx, 1, metric.WithAttributes(
		attribute.String("branch", branch),
		attribute.String("outcome", outcome),
	))
}

// observe is installed as the stage runner's observer.
func (m *instruments) observe(ctx context.Context, name string, outcome stage.Outcome, elapsed time.Duration) {
	stageCounter.WithLabelValues(name, string(outcome)).Inc()
	stageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	m.stages.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", name),
		attribute.String("outcome", string(outcome)),
	))
}

func (m *instruments) pushed(branch string, n int) {
	pushCounter.WithLabelValues(branch).Add(float64(n))
}

// WriteMetrics writes the process metrics in the Prometheus text format to
// path, for collection by a node exporter textfile collector.
func WriteMetrics(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
