// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// tracerName names the engine's spans.
const tracerName = "nodequery.engine"

var meter = otel.Meter("nodequery.engine")

// Metrics for query commits.
var (
	commitLatency   metric.Float64Histogram
	commitTotal     metric.Int64Counter
	nodesVisited    metric.Int64Counter
	recordsProduced metric.Int64Counter
	nodeFailures    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		commitLatency, err = meter.Float64Histogram(
			"engine_commit_duration_seconds",
			metric.WithDescription("Duration of query commits"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		commitTotal, err = meter.Int64Counter(
			"engine_commit_total",
			metric.WithDescription("Total number of query commits"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesVisited, err = meter.Int64Counter(
			"engine_nodes_visited_total",
			metric.WithDescription("Nodes visited by query traversals"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		recordsProduced, err = meter.Int64Counter(
			"engine_records_total",
			metric.WithDescription("Records produced by query traversals"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodeFailures, err = meter.Int64Counter(
			"engine_node_failures_total",
			metric.WithDescription("Query failures scoped to a single node"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordCommitMetrics records metrics for one commit.
func recordCommitMetrics(ctx context.Context, duration time.Duration, stats commitStats, failures int, completed bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("completed", completed))

	commitLatency.Record(ctx, duration.Seconds(), attrs)
	commitTotal.Add(ctx, 1, attrs)
	nodesVisited.Add(ctx, int64(stats.nodes))
	recordsProduced.Add(ctx, int64(stats.records))
	if failures > 0 {
		nodeFailures.Add(ctx, int64(failures))
	}
}
