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
	"log/slog"

	"github.com/AleutianAI/nodequery/services/query/node"
)

// Builder is a fluent query session over one tree.
//
// Description:
//
//	The builder accumulates one query at a time (the current descriptor)
//	and either runs it immediately on Get or, after Start, queues it so
//	several queries share one traversal at Commit.
//
//	The builder owns an accumulator. A plain Get merges into it and returns
//	it by alias, so repeated Gets build on each other until a clearing
//	Commit (or Reset) hands the data back and starts over.
//
// Thread Safety:
//
//	Not safe for concurrent use.
type Builder struct {
	root     node.Node
	current  *Descriptor
	queued   []Descriptor
	batching bool
	data     ResultSet
	logger   *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger used for commit diagnostics.
// Default: slog.Default().
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBuilder creates a builder bound to root. Root may be nil and bound
// later with Using or Reset.
func NewBuilder(root node.Node, opts ...BuilderOption) *Builder {
	b := &Builder{
		root:   root,
		data:   make(ResultSet),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// cur returns the current descriptor, creating it on first use.
func (b *Builder) cur() *Descriptor {
	if b.current == nil {
		d := NewDescriptor()
		b.current = &d
	}
	return b.current
}

// Select sets the fields of the current query.
func (b *Builder) Select(fields ...Field) *Builder {
	d := b.cur()
	*d = d.WithSelect(fields...)
	return b
}

// SelectNames sets the fields of the current query by name.
func (b *Builder) SelectNames(names ...string) *Builder {
	return b.Select(Names(names...)...)
}

// From sets the item key of the current query.
func (b *Builder) From(item string) *Builder {
	d := b.cur()
	*d = d.WithFrom(item)
	return b
}

// Where adds the comparison "field op value" to the current query.
func (b *Builder) Where(field, op string, value float64) *Builder {
	return b.WherePredicate(Compare(Ref(field), op, value))
}

// WhereRef adds a comparison over an arbitrary reference.
func (b *Builder) WhereRef(ref Reference, op string, value float64) *Builder {
	return b.WherePredicate(Compare(ref, op, value))
}

// WhereFunc adds a custom predicate.
func (b *Builder) WhereFunc(fn func(node.Node) bool) *Builder {
	return b.WherePredicate(Custom(fn))
}

// WhereAtLeastOne adds "field >= 1".
func (b *Builder) WhereAtLeastOne(field string) *Builder {
	return b.Where(field, string(OpGte), 1)
}

// WherePredicate adds p to the current query.
func (b *Builder) WherePredicate(p Predicate) *Builder {
	d := b.cur()
	*d = d.WithWhere(p)
	return b
}

// OrderBy sets the ordering of the current query.
func (b *Builder) OrderBy(field string, mode OrderMode) *Builder {
	d := b.cur()
	*d = d.WithOrderBy(OrderBy{Field: field, Mode: mode})
	return b
}

// Limit sets the per-item limit of the current query. Negative removes it.
func (b *Builder) Limit(n int) *Builder {
	d := b.cur()
	*d = d.WithLimit(n)
	return b
}

// Start opens a batch: subsequent Gets queue their query until Commit.
func (b *Builder) Start() *Builder {
	b.batching = true
	if b.queued == nil {
		b.queued = []Descriptor{}
	}
	return b
}

// Batching reports whether a batch is open.
func (b *Builder) Batching() bool {
	return b.batching
}

// Pending returns the queued descriptors.
func (b *Builder) Pending() []Descriptor {
	return append([]Descriptor(nil), b.queued...)
}

// Current returns the query being built, if any.
func (b *Builder) Current() (Descriptor, bool) {
	if b.current == nil {
		return Descriptor{}, false
	}
	return *b.current, true
}

// Using rebinds the tree root without clearing any state.
func (b *Builder) Using(root node.Node) *Builder {
	b.root = root
	return b
}

// Reset clears the accumulator, the queue, the batch and the current query,
// and binds root (which may be nil).
func (b *Builder) Reset(root node.Node) *Builder {
	b.root = root
	b.data = make(ResultSet)
	b.queued = nil
	b.batching = false
	b.current = nil
	return b
}

// Get finalizes the current query.
//
// Description:
//
//	An optional limit overrides the query's limit. Then:
//	  - inside a batch, the query is queued and Get returns (nil, nil);
//	    a query without an item key is queued once per known item.
//	  - otherwise, a query without an item key is expanded once per known
//	    item and committed with clearing: the accumulator is returned and
//	    emptied.
//	  - otherwise, the query is committed without clearing: its records
//	    are merged into the accumulator, which is returned by alias.
//
//	The current query is discarded in every case.
//
// Outputs:
//
//	ResultSet - Results, or nil when the query was queued.
//	error - ErrNoRoot, a context error, or an *ExecutionError next to a
//	partial ResultSet.
func (b *Builder) Get(ctx context.Context, limit ...int) (ResultSet, error) {
	d := *b.cur()
	b.current = nil
	if len(limit) > 0 {
		d = d.WithLimit(limit[0])
	}

	if _, ok := d.From(); !ok {
		if b.root == nil {
			return nil, ErrNoRoot
		}
		b.queued = append(b.queued, expand(d, b.root.Items())...)
		if b.batching {
			return nil, nil
		}
		return b.Commit(ctx)
	}

	if b.batching {
		b.queued = append(b.queued, d)
		return nil, nil
	}

	b.queued = []Descriptor{d}
	return b.Commit(ctx, KeepData())
}

// First returns the earliest record per item, preferring records that
// have field.
func (b *Builder) First(ctx context.Context, field string) (ResultSet, error) {
	return b.OrderBy(field, First).Get(ctx, 1)
}

// Last returns the latest record per item, preferring records that have
// field.
func (b *Builder) Last(ctx context.Context, field string) (ResultSet, error) {
	return b.OrderBy(field, Last).Get(ctx, 1)
}

// Min returns the record with the smallest numeric field per item.
func (b *Builder) Min(ctx context.Context, field string) (ResultSet, error) {
	return b.extremum(ctx, field, Min)
}

// Max returns the record with the largest numeric field per item.
func (b *Builder) Max(ctx context.Context, field string) (ResultSet, error) {
	return b.extremum(ctx, field, Max)
}

func (b *Builder) extremum(ctx context.Context, field string, mode OrderMode) (ResultSet, error) {
	if field == "" {
		b.current = nil
		return nil, ErrMissingAggregate
	}
	return b.OrderBy(field, mode).Get(ctx, 1)
}
