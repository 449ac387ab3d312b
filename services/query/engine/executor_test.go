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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/nodequery/services/query/node"
)

func TestCommit_RecordPerVisitedNode(t *testing.T) {
	root := buildScoredTree(t)
	n := countNodes(root)

	rs, err := NewBuilder(root).SelectNames("nodeName").From("content").Get(context.Background())
	require.NoError(t, err)
	require.Len(t, rs["content"], n)

	names := fieldValues(rs["content"], "nodeName")
	assert.Equal(t, []any{"body", "h1", "p", "p", "ul", "li", "li"}, names, "level order")
}

func TestCommit_ContradictionYieldsNothing(t *testing.T) {
	root := buildScoredTree(t)

	rs, err := NewBuilder(root).
		SelectNames("text").
		From("content").
		Where("children", "<", 2).
		Where("children", ">=", 2).
		Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rs["content"])
}

func TestCommit_EndToEnd(t *testing.T) {
	root := node.NewElement("h1").AppendText("Hello").AddItem("title")

	rs, err := NewBuilder(root).SelectNames("text").From("title").Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResultSet{"title": []Record{{"text": "Hello"}}}, rs)
}

func TestCommit_OrderAndLimit(t *testing.T) {
	root := buildScoredTree(t)

	rs, err := NewBuilder(root).
		Select(Col("text"), DataPoint("score")).
		From("content").
		WherePredicate(HasItem("content")).
		OrderBy("score", Descending).
		Limit(2).
		Get(context.Background())
	require.NoError(t, err)
	require.Len(t, rs["content"], 2)
	assert.Equal(t, []any{"alpha", "one"}, fieldValues(rs["content"], "text"))
}

func TestCommit_BatchEquivalence(t *testing.T) {
	ctx := context.Background()
	q1 := func(b *Builder) *Builder {
		return b.SelectNames("text").From("title").Where("title.score", ">", 0)
	}
	q2 := func(b *Builder) *Builder {
		return b.Select(DataPoint("score")).From("content").OrderBy("score", Ascending).Limit(2)
	}

	root := buildScoredTree(t)

	r1, err := q1(NewBuilder(root)).Get(ctx)
	require.NoError(t, err)
	r2, err := q2(NewBuilder(root)).Get(ctx)
	require.NoError(t, err)
	want := r1.Clone()
	want.Merge(r2)

	b := NewBuilder(root).Start()
	rs, err := q1(b).Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, rs, "queued queries return nothing")
	rs, err = q2(b).Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, rs)
	assert.Len(t, b.Pending(), 2)

	got, err := b.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.False(t, b.Batching())
	assert.Empty(t, b.Pending())
}

func TestCommit_BatchEquivalenceSharedItem(t *testing.T) {
	ctx := context.Background()
	lowest := func(b *Builder) *Builder {
		return b.Select(DataPoint("score")).
			From("content").
			WherePredicate(HasItem("content")).
			OrderBy("score", Ascending).
			Limit(1)
	}
	texts := func(b *Builder) *Builder {
		return b.SelectNames("text").From("content").WherePredicate(HasItem("content"))
	}

	root := buildScoredTree(t)

	r1, err := lowest(NewBuilder(root)).Get(ctx)
	require.NoError(t, err)
	r2, err := texts(NewBuilder(root)).Get(ctx)
	require.NoError(t, err)
	want := r1.Clone()
	want.Merge(r2)
	require.Len(t, want["content"], 4)

	b := NewBuilder(root).Start()
	_, err = lowest(b).Get(ctx)
	require.NoError(t, err)
	_, err = texts(b).Get(ctx)
	require.NoError(t, err)

	got, err := b.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, []Record{
		{"score": float64(2)},
		{"text": "alpha"},
		{"text": "beta"},
		{"text": "one"},
	}, got["content"])
}

func TestCommit_LimitLeavesKeptRecords(t *testing.T) {
	root := buildScoredTree(t)
	ctx := context.Background()
	b := NewBuilder(root)

	rs, err := b.SelectNames("text").From("content").WherePredicate(HasItem("content")).Get(ctx)
	require.NoError(t, err)
	require.Len(t, rs["content"], 3)

	rs, err = b.SelectNames("text").From("content").WherePredicate(HasItem("content")).Limit(1).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"alpha", "beta", "one", "alpha"}, fieldValues(rs["content"], "text"))
}

func TestCommit_InvalidReference(t *testing.T) {
	root := buildScoredTree(t)

	rs, err := NewBuilder(root).
		SelectNames("text").
		From("content").
		Where("bogus.nowhere", ">", 0).
		Get(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidReference))
	assert.Empty(t, rs["content"], "no default records on failure")

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Len(t, execErr.Failures, countNodes(root))
	assert.Equal(t, "body", execErr.Failures[0].Node)
	assert.Equal(t, 0, execErr.Failures[0].Level)
	assert.Equal(t, 2, execErr.Failures[len(execErr.Failures)-1].Level)
}

func TestCommit_FailureIsScopedToQuery(t *testing.T) {
	root := buildScoredTree(t)
	ctx := context.Background()

	b := NewBuilder(root).Start()
	_, _ = b.SelectNames("text").From("broken").Where("x", "!=", 1).Get(ctx)
	_, _ = b.SelectNames("text").From("title").WherePredicate(HasItem("title")).Get(ctx)

	rs, err := b.Commit(ctx)
	require.ErrorIs(t, err, ErrInvalidCriteria)
	assert.Empty(t, rs["broken"])
	assert.Equal(t, []Record{{"text": "Hello"}}, rs["title"])
}

func TestCommit_NoRoot(t *testing.T) {
	_, err := NewBuilder(nil).SelectNames("text").From("x").Get(context.Background())
	assert.ErrorIs(t, err, ErrNoRoot)

	_, err = NewBuilder(nil).SelectNames("text").Get(context.Background())
	assert.ErrorIs(t, err, ErrNoRoot)
}

func TestCommit_Canceled(t *testing.T) {
	root := buildScoredTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBuilder(root).Start()
	_, err := b.SelectNames("text").From("title").Get(ctx)
	require.NoError(t, err)

	rs, err := b.Commit(ctx)
	assert.Nil(t, rs)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, b.Pending(), 1, "a canceled commit leaves the queue in place")
	assert.True(t, b.Batching())
}

func TestCommit_KeepQueued(t *testing.T) {
	root := buildScoredTree(t)
	ctx := context.Background()

	b := NewBuilder(root).Start()
	_, err := b.SelectNames("text").From("title").WherePredicate(HasItem("title")).Get(ctx)
	require.NoError(t, err)

	first, err := b.Commit(ctx, KeepQueued())
	require.NoError(t, err)
	assert.True(t, b.Batching())

	second, err := b.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.False(t, b.Batching())
}

func TestCommit_KeepData(t *testing.T) {
	root := buildScoredTree(t)
	ctx := context.Background()
	b := NewBuilder(root)

	rs, err := b.SelectNames("text").From("title").WherePredicate(HasItem("title")).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"title"}, rs.Items())

	rs, err = b.SelectNames("text").From("content").WherePredicate(HasItem("content")).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"content", "title"}, rs.Items(), "direct gets accumulate")

	handed, err := b.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, handed.Len())

	empty, err := b.Commit(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
