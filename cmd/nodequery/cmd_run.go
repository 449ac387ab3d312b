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
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/nodequery/pkg/ux"
	"github.com/AleutianAI/nodequery/services/query/format"
	"github.com/AleutianAI/nodequery/services/query/querydoc"
	"github.com/AleutianAI/nodequery/services/query/source"
	"github.com/AleutianAI/nodequery/services/query/watch"
)

// maxListedFailures caps how many node failures are printed per input.
const maxListedFailures = 5

// errNodeFailures is returned by run --fail-on-errors when any query failed
// on a node.
var errNodeFailures = errors.New("queries failed on some nodes")

type runOptions struct {
	queryPath    string
	rulesPath    string
	format       string
	syntax       string
	startTag     string
	strict       bool
	watch        bool
	failOnErrors bool
	concurrency  int
}

func newRunCmd(a *app) *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run [input...]",
		Short: "Run a query document over one or more inputs",
		Long: `Run parses each input, applies the scoring rules and runs the query
document over the resulting tree. Inputs are local paths, "-" for stdin,
http(s) URLs or gs://bucket/object references. Without inputs stdin is read.

Results go to stdout; status lines and logs go to stderr. With several inputs
json and yaml output is a stream of one document per input, in input order.`,
		Example: `  nodequery run -q queries.yaml page.html
  nodequery run -q queries.yaml --rules rules.yaml -o pivot a.html b.html
  cat main.go | nodequery run -q funcs.yaml --syntax go
  nodequery run -q queries.yaml --watch page.html`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"-"}
			}
			return a.runQueries(cmd.Context(), opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.queryPath, "query", "q", "", "query document (YAML or JSON)")
	f.StringVar(&opts.rulesPath, "rules", "", "scoring rules file (default from config)")
	f.StringVarP(&opts.format, "output", "o", "", "output format: json, yaml, table or pivot (default table on a terminal, json otherwise)")
	f.StringVar(&opts.syntax, "syntax", "", `force the parser: "dom" or a tree-sitter language`)
	f.StringVar(&opts.startTag, "start-tag", "", "root HTML trees at this element (default from config)")
	f.BoolVar(&opts.strict, "strict", false, "reject source code with syntax errors")
	f.BoolVarP(&opts.watch, "watch", "w", false, "re-run when a local input, the query document or the rules change")
	f.BoolVar(&opts.failOnErrors, "fail-on-errors", false, "exit non-zero when a query fails on any node")
	f.IntVarP(&opts.concurrency, "jobs", "j", 4, "inputs processed concurrently")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}

// outputFormat resolves the flag, then the config, then the terminal check.
func (a *app) outputFormat(flag string) (format.Format, error) {
	name := flag
	if name == "" {
		name = a.cfg.Output.Format
	}
	if name != "" {
		return format.ParseFormat(name)
	}
	if ux.IsTerminal(a.stdout) {
		return format.Table, nil
	}
	return format.JSON, nil
}

func (a *app) runQueries(ctx context.Context, opts runOptions, inputs []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out, err := a.outputFormat(opts.format)
	if err != nil {
		return err
	}
	if opts.watch && containsStdin(inputs) {
		return errors.New("--watch cannot be used with stdin input")
	}

	loader := a.newLoader()
	defer loader.Close()

	err = a.runPass(ctx, opts, inputs, loader, out)
	if !opts.watch {
		return err
	}
	if err != nil {
		a.printer.Error("%v", err)
	}
	return a.watchLoop(ctx, opts, inputs, loader, out)
}

// runPass loads the document and rules, runs every input and writes the
// results.
func (a *app) runPass(ctx context.Context, opts runOptions, inputs []string, loader *source.Loader, out format.Format) error {
	doc, err := querydoc.Load(opts.queryPath)
	if err != nil {
		return err
	}
	rules, _, err := a.loadRules(opts.rulesPath)
	if err != nil {
		return err
	}

	startTag := opts.startTag
	if startTag == "" {
		startTag = a.cfg.Source.StartTag
	}
	br := &batchRun{
		doc:    doc,
		rules:  rules,
		loader: loader,
		parse: source.ParseOptions{
			Syntax:   opts.syntax,
			StartTag: startTag,
			Strict:   opts.strict || a.cfg.Source.Strict,
			MaxSize:  int(a.cfg.Source.MaxSize),
		},
		concurrency: opts.concurrency,
	}

	results, err := br.run(ctx, inputs)
	if err != nil {
		return err
	}

	failed := false
	for _, r := range results {
		if len(results) > 1 && out == format.Table {
			fmt.Fprintln(a.stdout, ux.Styles.Bold.Render("== "+r.Location))
		}
		if err := format.Render(a.stdout, r.Results, out); err != nil {
			return fmt.Errorf("render %s: %w", r.Location, err)
		}
		a.printer.Summary(r.Location, len(r.Results), r.Results.Len(), len(r.Failures))
		for i, f := range r.Failures {
			if i == maxListedFailures {
				a.printer.Warning("... and %d more failures", len(r.Failures)-maxListedFailures)
				break
			}
			a.printer.Warning("%v", f)
		}
		if len(r.Failures) > 0 {
			failed = true
		}
	}
	if failed && opts.failOnErrors {
		return errNodeFailures
	}
	return nil
}

// watchLoop re-runs the pass on every debounced change until interrupted.
func (a *app) watchLoop(ctx context.Context, opts runOptions, inputs []string, loader *source.Loader, out format.Format) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths := append(localInputs(inputs), opts.queryPath)
	if _, rulesPath, err := a.loadRules(opts.rulesPath); err == nil && rulesPath != "" {
		paths = append(paths, rulesPath)
	}

	triggers := make(chan []watch.Change, 1)
	w, err := watch.New(paths, func(changes []watch.Change) {
		select {
		case triggers <- changes:
		default:
		}
	}, nil)
	if err != nil {
		return err
	}
	defer w.Stop()
	if err := w.Start(ctx); err != nil {
		return err
	}
	a.printer.Info("Watching %d files, press Ctrl+C to stop", len(paths))

	for {
		select {
		case <-ctx.Done():
			return nil
		case changes := <-triggers:
			names := make([]string, len(changes))
			for i, c := range changes {
				names[i] = c.Path
			}
			a.printer.Info("Change detected: %s", strings.Join(names, ", "))
			if err := a.runPass(ctx, opts, inputs, loader, out); err != nil {
				a.printer.Error("%v", err)
			}
		}
	}
}

func containsStdin(inputs []string) bool {
	for _, in := range inputs {
		if in == "-" {
			return true
		}
	}
	return false
}

// localInputs returns the inputs that are local paths.
func localInputs(inputs []string) []string {
	var out []string
	for _, in := range inputs {
		if in == "-" {
			continue
		}
		if strings.Contains(in, "://") {
			if p, ok := strings.CutPrefix(in, "file://"); ok {
				out = append(out, p)
			}
			continue
		}
		out = append(out, in)
	}
	return out
}
