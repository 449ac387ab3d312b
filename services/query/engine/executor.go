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
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/nodequery/services/query/node"
	"github.com/AleutianAI/nodequery/services/query/telemetry"
)

// contextCheckInterval is how often, in visited nodes, the traversal
// checks its context.
const contextCheckInterval = 256

// commitOptions configures a Commit.
type commitOptions struct {
	keepData   bool
	keepQueued bool
}

// CommitOption is a functional option for Commit.
type CommitOption func(*commitOptions)

// KeepData returns the accumulator by alias instead of handing over a copy
// and clearing it, so later commits keep adding to the same results.
func KeepData() CommitOption {
	return func(o *commitOptions) {
		o.keepData = true
	}
}

// KeepQueued leaves the queue (and the open batch) in place after the
// commit, so the same queries can be committed again.
func KeepQueued() CommitOption {
	return func(o *commitOptions) {
		o.keepQueued = true
	}
}

// commitStats summarizes one traversal.
type commitStats struct {
	nodes   int
	records int
}

// levelNode is a BFS queue entry.
type levelNode struct {
	n     node.Node
	level int
}

// Commit runs every queued query in one breadth-first pass.
//
// Description:
//
//	Visits the tree level by level from the root, executing each queued
//	descriptor at each node and appending produced records under the
//	descriptor's item key. After the traversal, each descriptor's records
//	are ordered, then limited.
//
//	A failing (descriptor, node) pair produces no record; the traversal
//	continues and the failure is reported in an *ExecutionError returned
//	alongside the results.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	opts - KeepData, KeepQueued.
//
// Outputs:
//
//	ResultSet - A copy of the accumulator (which is then cleared), or the
//	accumulator itself with KeepData.
//	error - ErrNoRoot, a wrapped context error (no results are merged), or
//	*ExecutionError.
//
// Example:
//
//	b.Start()
//	b.SelectNames("text").From("title").Get(ctx)
//	b.SelectNames("children").From("content").Get(ctx)
//	rs, err := b.Commit(ctx)
func (b *Builder) Commit(ctx context.Context, opts ...CommitOption) (ResultSet, error) {
	var o commitOptions
	for _, opt := range opts {
		opt(&o)
	}
	if b.root == nil {
		return nil, ErrNoRoot
	}

	runID := uuid.NewString()
	queries := len(b.queued)
	ctx, span := telemetry.StartSpan(ctx, tracerName, "engine.Builder.Commit",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.Int("queries", queries),
		),
	)
	defer span.End()
	start := time.Now()

	collected := make(ResultSet)
	var failures []*NodeError
	var stats commitStats
	if len(b.queued) > 0 {
		perQuery, nodeStats, nodeFailures, err := b.traverse(ctx)
		stats, failures = nodeStats, nodeFailures
		if err != nil {
			err = fmt.Errorf("commit %s canceled after %d nodes: %w", runID, stats.nodes, err)
			telemetry.RecordError(span, err)
			recordCommitMetrics(ctx, time.Since(start), stats, len(failures), false)
			return nil, err
		}
		for i, d := range b.queued {
			if records := finish(d, perQuery[i]); len(records) > 0 {
				collected[d.from] = append(collected[d.from], records...)
			}
		}
	}

	if b.data == nil {
		b.data = make(ResultSet)
	}
	b.data.Merge(collected)

	if !o.keepQueued {
		b.queued = nil
		b.batching = false
	}

	out := b.data
	if !o.keepData {
		b.data = make(ResultSet)
	}

	duration := time.Since(start)
	recordCommitMetrics(ctx, duration, stats, len(failures), true)
	span.SetAttributes(
		attribute.Int("nodes_visited", stats.nodes),
		attribute.Int("records", stats.records),
		attribute.Int("failures", len(failures)),
	)
	telemetry.LoggerWithTrace(ctx, b.logger).Debug("query commit complete",
		"run_id", runID,
		"queries", queries,
		"nodes_visited", stats.nodes,
		"records", stats.records,
		"failures", len(failures),
		"keep_data", o.keepData,
		"duration_ms", duration.Milliseconds(),
	)

	if len(failures) > 0 {
		execErr := &ExecutionError{Failures: failures}
		telemetry.RecordError(span, execErr)
		return out, execErr
	}
	telemetry.SetSpanOK(span)
	return out, nil
}

// traverse runs the queued descriptors over the tree breadth-first. The
// records of b.queued[i] are returned in perQuery[i], in visit order.
func (b *Builder) traverse(ctx context.Context) ([][]Record, commitStats, []*NodeError, error) {
	var stats commitStats
	var failures []*NodeError
	perQuery := make([][]Record, len(b.queued))

	queue := []levelNode{{n: b.root}}
	for len(queue) > 0 {
		if stats.nodes%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, failures, err
			}
		}

		cur := queue[0]
		queue = queue[1:]
		stats.nodes++

		for i, d := range b.queued {
			rec, ok, err := d.Execute(cur.n)
			if err != nil {
				failures = append(failures, &NodeError{
					Item:  d.from,
					Node:  cur.n.NodeName(),
					Level: cur.level,
					Err:   err,
				})
				continue
			}
			if ok {
				perQuery[i] = append(perQuery[i], rec)
				stats.records++
			}
		}

		for _, child := range cur.n.Children() {
			if child != nil {
				queue = append(queue, levelNode{n: child, level: cur.level + 1})
			}
		}
	}
	return perQuery, stats, failures, nil
}

// finish orders, then limits, the records one descriptor produced. Records
// from other queries and from earlier commits are never touched.
func finish(d Descriptor, records []Record) []Record {
	if ob, ok := d.Order(); ok {
		orderRecords(records, ob)
	}
	if limit, ok := d.Limit(); ok {
		records = limitRecords(records, limit)
	}
	return records
}
