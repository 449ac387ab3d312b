// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package format

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/nodequery/services/query/engine"
)

func sampleResults() engine.ResultSet {
	return engine.ResultSet{
		"title": {
			{"text": "Hello", "score": 3.0},
		},
		"content": {
			{"text": "alpha", "score": 7.0},
			{"text": "beta", "attrs": map[string]string{"id": "b", "class": "x"}},
		},
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"json":  JSON,
		"YAML":  YAML,
		"yml":   YAML,
		"table": Table,
		" csv ": Pivot,
		"pivot": Pivot,
	}
	for in, want := range cases {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("xml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	rs := engine.ResultSet{"title": {{"text": "Hello"}}}
	require.NoError(t, Render(&buf, rs, JSON))
	assert.JSONEq(t, `{"title":[{"text":"Hello"}]}`, buf.String())
	assert.Contains(t, buf.String(), "\n  \"title\"")
}

func TestRender_NilIsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, nil, JSON))
	assert.JSONEq(t, `{}`, buf.String())
}

func TestRender_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleResults(), YAML))

	var back map[string][]map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	require.Len(t, back["content"], 2)
	assert.Equal(t, "alpha", back["content"][0]["text"])
	assert.Equal(t, "Hello", back["title"][0]["text"])
}

func TestRender_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleResults(), Table))
	out := buf.String()

	for _, want := range []string{"content (2)", "title (1)", "attrs", "score", "text", "alpha", "beta", "Hello", "class=x id=b"} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, "content (2)"), strings.Index(out, "title (1)"), "items are sorted")
}

func TestRender_TableEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, engine.ResultSet{}, Table))
	assert.Contains(t, buf.String(), "(no results)")

	buf.Reset()
	require.NoError(t, Render(&buf, engine.ResultSet{"x": {{}}}, Table))
	assert.Contains(t, buf.String(), "(no fields)")
}

func TestRender_Pivot(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleResults(), Pivot))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"item", "index", "field", "value"},
		{"content", "0", "score", "7"},
		{"content", "0", "text", "alpha"},
		{"content", "1", "attrs.class", "x"},
		{"content", "1", "attrs.id", "b"},
		{"content", "1", "text", "beta"},
		{"title", "0", "score", "3"},
		{"title", "0", "text", "Hello"},
	}, rows)
}

func TestRender_UnknownFormat(t *testing.T) {
	err := Render(&bytes.Buffer{}, nil, Format("xml"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestCell(t *testing.T) {
	assert.Equal(t, "", cell(nil))
	assert.Equal(t, "2.5", cell(2.5))
	assert.Equal(t, "4", cell(4))
	assert.Equal(t, "true", cell(true))
	assert.Equal(t, "a=1 b=x", cell(map[string]any{"b": "x", "a": 1.0}))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/json", JSON.ContentType())
	assert.Equal(t, "application/yaml", YAML.ContentType())
	assert.Equal(t, "text/csv; charset=utf-8", Pivot.ContentType())
}
