// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/nodequery/services/query/format"
)

const (
	testPage    = `<html><body><h1>Hello</h1><p>alpha words</p></body></html>`
	testQueries = `
queries:
  - from: title
    select:
      - text
      - {name: score, data_point: true}
    where:
      - has_item: title
`
	testRules = `
rules:
  - item: title
    match:
      names: [h1]
    points:
      score: 3
`
	testConfig = `
logging:
  quiet: true
telemetry:
  trace_exporter: none
  metric_exporter: none
`
)

type fixture struct {
	dir     string
	config  string
	queries string
	rules   string
	page    string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:     dir,
		config:  filepath.Join(dir, "nodequery.yaml"),
		queries: filepath.Join(dir, "queries.yaml"),
		rules:   filepath.Join(dir, "rules.yaml"),
		page:    filepath.Join(dir, "page.html"),
	}
	write := func(path, content string) {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write(f.config, testConfig)
	write(f.queries, testQueries)
	write(f.rules, testRules)
	write(f.page, testPage)
	return f
}

func (f fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func execute(t *testing.T, stdin io.Reader, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	a := newApp(stdin, &stdout, &stderr)
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.Execute()
	a.close()
	return stdout.String(), stderr.String(), err
}

func TestRun_JSON(t *testing.T) {
	f := newFixture(t)
	stdout, stderr, err := execute(t, nil, "run", "--config", f.config, "-q", f.queries, "--rules", f.rules, f.page)
	require.NoError(t, err, stderr)

	assert.JSONEq(t, `{"title":[{"text":"Hello","score":3}]}`, stdout)
	assert.Contains(t, stderr, "SUMMARY: input="+f.page+" items=1 records=1 failures=0")
}

func TestRun_RulesFromConfig(t *testing.T) {
	f := newFixture(t)
	cfg := f.write(t, "with-rules.yaml", testConfig+"scoring:\n  rules: "+f.rules+"\n")

	stdout, _, err := execute(t, nil, "run", "--config", cfg, "-q", f.queries, f.page)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":[{"text":"Hello","score":3}]}`, stdout)
}

func TestRun_MultipleInputsPivot(t *testing.T) {
	f := newFixture(t)
	second := f.write(t, "second.html", `<html><body><h1>Bye</h1></body></html>`)

	stdout, _, err := execute(t, nil, "run", "--config", f.config, "-q", f.queries, "--rules", f.rules, "-o", "pivot", f.page, second)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(stdout)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"item", "index", "field", "value"},
		{"title", "0", "score", "3"},
		{"title", "0", "text", "Hello"},
		{"item", "index", "field", "value"},
		{"title", "0", "score", "3"},
		{"title", "0", "text", "Bye"},
	}, rows, "results are written in input order")
}

func TestRun_Stdin(t *testing.T) {
	f := newFixture(t)
	stdout, _, err := execute(t, strings.NewReader(testPage),
		"run", "--config", f.config, "-q", f.queries, "--rules", f.rules, "--syntax", "dom")
	require.NoError(t, err)

	var rs map[string][]map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &rs))
	assert.Equal(t, "Hello", rs["title"][0]["text"])
}

func TestRun_SourceCode(t *testing.T) {
	f := newFixture(t)
	src := f.write(t, "main.go", "package main\n\nfunc alpha() {}\n\nfunc beta() {}\n")
	rules := f.write(t, "funcs.yaml", `
rules:
  - item: func
    match:
      names: [function_declaration]
    measures:
      line: position
`)
	queries := f.write(t, "funcs-q.yaml", `
queries:
  - from: func
    select: [text]
    where:
      - has_item: func
`)

	stdout, _, err := execute(t, nil, "run", "--config", f.config, "-q", queries, "--rules", rules, src)
	require.NoError(t, err)

	var rs map[string][]map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &rs))
	require.Len(t, rs["func"], 2)
	assert.Contains(t, rs["func"][0]["text"], "alpha")
	assert.Contains(t, rs["func"][1]["text"], "beta")
}

func TestRun_FailOnErrors(t *testing.T) {
	f := newFixture(t)
	queries := f.write(t, "bad.yaml", `
queries:
  - from: title
    select: [text]
    where:
      - {field: missing.score, op: ">", value: 1}
`)

	_, stderr, err := execute(t, nil, "run", "--config", f.config, "-q", queries, f.page)
	require.NoError(t, err, "node failures alone do not fail the run")
	assert.Contains(t, stderr, "WARN: ")

	_, _, err = execute(t, nil, "run", "--config", f.config, "-q", queries, "--fail-on-errors", f.page)
	assert.ErrorIs(t, err, errNodeFailures)
}

func TestRun_Errors(t *testing.T) {
	f := newFixture(t)

	_, _, err := execute(t, nil, "run", "--config", f.config, f.page)
	assert.Error(t, err, "--query is required")

	_, _, err = execute(t, nil, "run", "--config", f.config, "-q", f.queries, "-o", "xml", f.page)
	assert.ErrorIs(t, err, format.ErrUnknownFormat)

	_, _, err = execute(t, nil, "run", "--config", f.config, "-q", f.queries, "--watch", "-")
	assert.Error(t, err)

	_, _, err = execute(t, nil, "run", "--config", filepath.Join(f.dir, "absent.yaml"), "-q", f.queries, f.page)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, _, err = execute(t, nil, "run", "--config", f.config, "-q", f.queries, filepath.Join(f.dir, "absent.html"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, nil, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "nodequery dev (commit none"), stdout)
}

func TestOutputFormat(t *testing.T) {
	a := newApp(nil, &bytes.Buffer{}, &bytes.Buffer{})

	got, err := a.outputFormat("")
	require.NoError(t, err)
	assert.Equal(t, format.JSON, got, "non-terminal stdout defaults to json")

	a.cfg.Output.Format = "yaml"
	got, err = a.outputFormat("")
	require.NoError(t, err)
	assert.Equal(t, format.YAML, got)

	got, err = a.outputFormat("table")
	require.NoError(t, err)
	assert.Equal(t, format.Table, got, "flag wins over config")
}

func TestNewServer_Overrides(t *testing.T) {
	f := newFixture(t)
	a := newApp(nil, &bytes.Buffer{}, &bytes.Buffer{})
	a.configPath = f.config
	require.NoError(t, a.setup(context.Background()))
	defer a.close()

	cmd := &cobra.Command{}
	cmd.Flags().Bool("allow-remote", false, "")
	require.NoError(t, cmd.Flags().Set("allow-remote", "true"))

	srv, err := a.newServer(cmd, serveOptions{addr: ":0", rulesPath: f.rules, allowRemote: true})
	require.NoError(t, err)
	assert.NotNil(t, srv.Handler())
	assert.Equal(t, ":0", a.cfg.Server.Addr)
	assert.True(t, a.cfg.Server.AllowRemote)
}

func TestLocalInputs(t *testing.T) {
	got := localInputs([]string{"a.html", "-", "https://x/y", "file:///tmp/z.go", "gs://b/o"})
	assert.Equal(t, []string{"a.html", "/tmp/z.go"}, got)
	assert.True(t, containsStdin([]string{"a", "-"}))
	assert.False(t, containsStdin([]string{"a"}))
}
