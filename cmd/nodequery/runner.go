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
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/nodequery/services/query/engine"
	"github.com/AleutianAI/nodequery/services/query/querydoc"
	"github.com/AleutianAI/nodequery/services/query/scoring"
	"github.com/AleutianAI/nodequery/services/query/source"
)

// inputResult is the outcome of running a document over one input.
type inputResult struct {
	Location string
	Results  engine.ResultSet
	Failures []*engine.NodeError
	Scored   int
}

// batchRun holds everything one pass over the inputs needs.
type batchRun struct {
	doc         *querydoc.Document
	rules       *scoring.RuleSet
	loader      *source.Loader
	parse       source.ParseOptions
	concurrency int
}

// run processes every input concurrently, one builder per input, and
// returns the results in input order. The first load, parse or query error
// cancels the remaining inputs.
func (br *batchRun) run(ctx context.Context, inputs []string) ([]inputResult, error) {
	results := make([]inputResult, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	if br.concurrency > 0 {
		g.SetLimit(br.concurrency)
	}
	for i, loc := range inputs {
		g.Go(func() error {
			r, err := br.runInput(gctx, loc)
			if err != nil {
				return fmt.Errorf("%s: %w", loc, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (br *batchRun) runInput(ctx context.Context, location string) (inputResult, error) {
	in, err := br.loader.Load(ctx, location)
	if err != nil {
		return inputResult{}, err
	}
	root, err := source.Parse(ctx, in, br.parse)
	if err != nil {
		return inputResult{}, err
	}

	res := inputResult{Location: location}
	if br.rules != nil {
		stats, err := br.rules.Apply(ctx, root)
		if err != nil {
			return inputResult{}, err
		}
		for _, n := range stats.Matched {
			res.Scored += n
		}
	}

	logger := slog.Default().With("input", location)
	rs, err := br.doc.Run(ctx, engine.NewBuilder(root, engine.WithLogger(logger)))
	var execErr *engine.ExecutionError
	switch {
	case err == nil:
	case errors.As(err, &execErr):
		res.Failures = execErr.Failures
	default:
		return inputResult{}, err
	}
	res.Results = rs
	logger.Debug("input processed",
		"items", len(rs),
		"records", rs.Len(),
		"failures", len(res.Failures),
		"scored", res.Scored)
	return res, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
