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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/nodequery/services/query/node"
)

func TestReference_Kind(t *testing.T) {
	tests := []struct {
		ref  Reference
		want RefKind
	}{
		{Ref("content.score"), KindDataPoint},
		{Ref("children"), KindCount},
		{Ref("previousAll"), KindCount},
		{Ref("first"), KindBoundary},
		{Ref("last"), KindBoundary},
		{Ref("attr"), KindAttr},
		{Ref("text"), KindCapability},
		{Ref("nodeName"), KindCapability},
		{RefFunc("depth", func(node.Node) any { return 1 }), KindFunc},
		{Ref("bogus"), KindUnknown},
		{Ref(".score"), KindUnknown},
		{Ref(""), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.ref.Token(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ref.Kind())
		})
	}
}

func TestResolve_DataPoint(t *testing.T) {
	root := buildScoredTree(t)
	alpha := root.Elements()[1]
	ul := root.Elements()[3]

	t.Run("present", func(t *testing.T) {
		v, err := resolve(alpha, Ref("content.score"))
		require.NoError(t, err)
		assert.True(t, v.present)
		assert.True(t, v.numeric)
		assert.Equal(t, 7.0, v.num)
	})

	t.Run("node without the item is absent", func(t *testing.T) {
		v, err := resolve(ul, Ref("content.score"))
		require.NoError(t, err)
		assert.False(t, v.present)
	})

	t.Run("unknown item", func(t *testing.T) {
		_, err := resolve(alpha, Ref("bogus.nowhere"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidReference))

		var refErr *ReferenceError
		require.True(t, errors.As(err, &refErr))
		assert.Equal(t, "bogus.nowhere", refErr.Token)
	})

	t.Run("unknown data point of a known item", func(t *testing.T) {
		_, err := resolve(alpha, Ref("content.rank"))
		assert.ErrorIs(t, err, ErrInvalidReference)
	})
}

func TestResolve_CountsAndBoundaries(t *testing.T) {
	root := buildScoredTree(t)
	kids := root.Elements()
	h1, ul := kids[0], kids[3]

	v, err := resolve(root, Ref("children"))
	require.NoError(t, err)
	assert.Equal(t, 4.0, v.num)

	v, err = resolve(h1, Ref("nextAll"))
	require.NoError(t, err)
	assert.Equal(t, 3.0, v.num)

	v, err = resolve(h1, Ref("first"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.num)

	v, err = resolve(h1, Ref("last"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.num)

	v, err = resolve(ul, Ref("last"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.num)
}

func TestResolve_Attr(t *testing.T) {
	el := node.NewElement("input", node.Attr{Key: "value", Val: " 12 "})
	v, err := resolve(el, Ref("attr"))
	require.NoError(t, err)
	assert.True(t, v.present)
	assert.Equal(t, 12.0, v.num)

	v, err = resolve(node.NewElement("input"), Ref("attr"))
	require.NoError(t, err)
	assert.False(t, v.present)
}

func TestResolve_Capability(t *testing.T) {
	num := node.NewElement("span").AppendText(" 42 ")
	v, err := resolve(num, Ref("text"))
	require.NoError(t, err)
	assert.True(t, v.numeric)
	assert.Equal(t, 42.0, v.num)

	word := node.NewElement("span").AppendText("hello")
	v, err = resolve(word, Ref("text"))
	require.NoError(t, err)
	assert.False(t, v.numeric)
	assert.Equal(t, "hello", v.str)
}

func TestResolve_Func(t *testing.T) {
	el := node.NewElement("div")

	v, err := resolve(el, RefFunc("n", func(node.Node) any { return int64(3) }))
	require.NoError(t, err)
	assert.Equal(t, 3.0, v.num)

	v, err = resolve(el, RefFunc("n", func(node.Node) any { return nil }))
	require.NoError(t, err)
	assert.False(t, v.present)

	_, err = resolve(el, RefFunc("n", func(node.Node) any { return struct{}{} }))
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestResolve_FuncNamedLikeBuiltin(t *testing.T) {
	el := node.NewElement("div").AppendText("words")
	el.SetDataPoint("content", "score", 1)
	seven := func(node.Node) any { return 7 }

	for _, name := range []string{"text", "children", "first", "content.score", "attr"} {
		t.Run(name, func(t *testing.T) {
			ref := RefFunc(name, seven)
			assert.Equal(t, KindFunc, ref.Kind())

			v, err := resolve(el, ref)
			require.NoError(t, err)
			assert.Equal(t, 7.0, v.num)
			assert.True(t, v.numeric)
		})
	}
}

func TestResolve_Unknown(t *testing.T) {
	_, err := resolve(node.NewElement("div"), Ref("bogus"))
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"3", 3, true},
		{" 2.5 ", 2.5, true},
		{"-1", -1, true},
		{"", 0, false},
		{"   ", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseNumber(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
