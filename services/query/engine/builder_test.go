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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_GetDiscardsCurrent(t *testing.T) {
	b := NewBuilder(buildScoredTree(t)).Start()
	b.SelectNames("text").From("title").Where("title.score", ">", 0)

	d, ok := b.Current()
	require.True(t, ok)
	assert.Len(t, d.Where(), 1)

	_, err := b.Get(context.Background())
	require.NoError(t, err)
	_, ok = b.Current()
	assert.False(t, ok)

	_, err = b.From("content").Get(context.Background())
	require.NoError(t, err)
	pending := b.Pending()
	require.Len(t, pending, 2)
	assert.Empty(t, pending[1].Where(), "a new query starts clean")
}

func TestBuilder_GetLimitOverride(t *testing.T) {
	b := NewBuilder(buildScoredTree(t)).Start()
	_, err := b.SelectNames("text").From("content").Limit(5).Get(context.Background(), 1)
	require.NoError(t, err)

	limit, ok := b.Pending()[0].Limit()
	require.True(t, ok)
	assert.Equal(t, 1, limit)
}

func TestBuilder_GetWithoutFromExpands(t *testing.T) {
	root := buildScoredTree(t)
	n := countNodes(root)

	t.Run("committed immediately", func(t *testing.T) {
		rs, err := NewBuilder(root).SelectNames("nodeName").Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"content", "title"}, rs.Items())
		assert.Len(t, rs["content"], n)
		assert.Len(t, rs["title"], n)
	})

	t.Run("queued inside a batch", func(t *testing.T) {
		b := NewBuilder(root).Start()
		rs, err := b.SelectNames("nodeName").Get(context.Background())
		require.NoError(t, err)
		assert.Nil(t, rs)
		assert.Len(t, b.Pending(), 2)
	})
}

func TestBuilder_FirstLast(t *testing.T) {
	root := buildScoredTree(t)
	ctx := context.Background()

	rs, err := NewBuilder(root).Select(Col("text"), DataPoint("score")).From("content").First(ctx, "score")
	require.NoError(t, err)
	assert.Equal(t, []Record{{"text": "alpha", "score": 7.0}}, rs["content"])

	rs, err = NewBuilder(root).Select(Col("text"), DataPoint("score")).From("content").Last(ctx, "score")
	require.NoError(t, err)
	assert.Equal(t, []Record{{"text": "one", "score": 5.0}}, rs["content"])
}

func TestBuilder_MinMax(t *testing.T) {
	root := buildScoredTree(t)
	ctx := context.Background()

	rs, err := NewBuilder(root).Select(Col("text"), DataPoint("score")).From("content").Min(ctx, "score")
	require.NoError(t, err)
	assert.Equal(t, []Record{{"text": "beta", "score": 2.0}}, rs["content"])

	rs, err = NewBuilder(root).Select(Col("text"), DataPoint("score")).From("content").Max(ctx, "score")
	require.NoError(t, err)
	assert.Equal(t, []Record{{"text": "alpha", "score": 7.0}}, rs["content"])

	b := NewBuilder(root)
	_, err = b.SelectNames("text").From("content").Max(ctx, "")
	assert.ErrorIs(t, err, ErrMissingAggregate)
	_, ok := b.Current()
	assert.False(t, ok)
}

func TestBuilder_Reset(t *testing.T) {
	root := buildScoredTree(t)
	b := NewBuilder(root).Start()
	_, err := b.SelectNames("text").From("title").Get(context.Background())
	require.NoError(t, err)
	b.SelectNames("text")

	b.Reset(nil)
	assert.False(t, b.Batching())
	assert.Empty(t, b.Pending())
	_, ok := b.Current()
	assert.False(t, ok)

	_, err = b.SelectNames("text").From("title").Get(context.Background())
	assert.ErrorIs(t, err, ErrNoRoot)

	rs, err := b.Using(root).SelectNames("text").From("title").WherePredicate(HasItem("title")).Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, rs["title"], 1)
}

func TestBuilder_WhereAtLeastOne(t *testing.T) {
	b := NewBuilder(nil).WhereAtLeastOne("children")
	d, ok := b.Current()
	require.True(t, ok)
	require.Len(t, d.Where(), 1)
	assert.Equal(t, "children >= 1", d.Where()[0].String())
}
