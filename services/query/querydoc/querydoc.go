// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package querydoc reads query documents and runs them on an engine.Builder.
//
// A query document lists queries in YAML or JSON:
//
//	batch: true
//	queries:
//	  - name: titles
//	    from: title
//	    select: [text]
//	  - from: content
//	    select:
//	      - text
//	      - {name: score, data_point: true}
//	      - {name: attr, args: [href]}
//	    where:
//	      - {field: content.score, op: ">=", value: 2}
//	      - {has_item: content}
//	    order_by: {field: score, direction: desc}
//	    limit: 5
//	  - from: content
//	    aggregate: max
//	    field: score
//
// A where entry without op compares with ">=", and without value compares
// against 1. Batched documents (the default) run in one traversal.
package querydoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/nodequery/services/query/engine"
)

// ErrInvalidDocument is returned when a document fails validation.
var ErrInvalidDocument = errors.New("invalid query document")

// Document is a list of queries.
type Document struct {
	// Batch runs every query in one traversal. Default true.
	Batch *bool `yaml:"batch" json:"batch,omitempty"`

	Queries []Query `yaml:"queries" json:"queries" validate:"required,min=1,dive"`
}

// Query is one select/from/where/order/limit query.
type Query struct {
	// Name labels the query in logs and errors.
	Name string `yaml:"name" json:"name,omitempty"`

	// From is the item key. Empty runs the query once per item of the tree.
	From string `yaml:"from" json:"from,omitempty" validate:"omitempty,excludes=."`

	Select  []FieldSpec `yaml:"select" json:"select,omitempty" validate:"dive"`
	Where   []Condition `yaml:"where" json:"where,omitempty" validate:"dive"`
	OrderBy *Order      `yaml:"order_by" json:"order_by,omitempty"`
	Limit   *int        `yaml:"limit" json:"limit,omitempty" validate:"omitempty,gte=0"`

	// Aggregate is first, last, min or max; Field names the record field
	// it orders by.
	Aggregate string `yaml:"aggregate" json:"aggregate,omitempty" validate:"omitempty,oneof=first last min max"`
	Field     string `yaml:"field" json:"field,omitempty" validate:"required_if=Aggregate min,required_if=Aggregate max"`
}

// FieldSpec is one selected field. In YAML it may be written as a plain
// name.
type FieldSpec struct {
	Name      string   `yaml:"name" json:"name" validate:"required"`
	Args      []string `yaml:"args" json:"args,omitempty"`
	DataPoint bool     `yaml:"data_point" json:"data_point,omitempty"`
}

// UnmarshalYAML accepts a scalar name or a mapping.
func (f *FieldSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		f.Name = value.Value
		return nil
	}
	type plain FieldSpec
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*f = FieldSpec(p)
	return nil
}

// Condition is one where entry: a comparison, or a has_item test.
type Condition struct {
	Field   string   `yaml:"field" json:"field,omitempty" validate:"required_without=HasItem"`
	Op      string   `yaml:"op" json:"op,omitempty" validate:"omitempty,operator"`
	Value   *float64 `yaml:"value" json:"value,omitempty"`
	HasItem string   `yaml:"has_item" json:"has_item,omitempty" validate:"excluded_with=Field"`
}

// Order is an order_by clause.
type Order struct {
	Field     string `yaml:"field" json:"field" validate:"required"`
	Direction string `yaml:"direction" json:"direction,omitempty" validate:"omitempty,direction"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("operator", func(fl validator.FieldLevel) bool {
		_, ok := engine.ParseOperator(fl.Field().String())
		return ok
	})
	_ = validate.RegisterValidation("direction", func(fl validator.FieldLevel) bool {
		_, err := engine.ParseOrderMode(fl.Field().String())
		return err == nil
	})
}

// Parse decodes a YAML or JSON document and validates it. Unknown keys
// are rejected.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidDocument)
		}
		return nil, fmt.Errorf("decode query document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Load reads and parses a document file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read query document: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Validate checks the document, wrapping failures in ErrInvalidDocument.
func (d *Document) Validate() error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
}

// Batched reports whether the document runs in one traversal.
func (d *Document) Batched() bool {
	return d.Batch == nil || *d.Batch
}

// Run executes the document on b.
//
// Description:
//
//	Batched documents open a batch, queue every query and commit once.
//	Otherwise each query runs on its own traversal. Either way the
//	returned ResultSet holds every query's records exactly once and the
//	builder's accumulator is left empty.
//
//	Per-node failures do not stop the run; they are returned as one
//	*engine.ExecutionError next to the results.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	b - A builder bound to the tree, with no open batch or queued queries.
//
// Outputs:
//
//	engine.ResultSet - Records by item key.
//	error - A query error, or *engine.ExecutionError with partial results.
func (d *Document) Run(ctx context.Context, b *engine.Builder) (engine.ResultSet, error) {
	var failures []*engine.NodeError
	collect := func(err error) error {
		var execErr *engine.ExecutionError
		if errors.As(err, &execErr) {
			failures = append(failures, execErr.Failures...)
			return nil
		}
		return err
	}

	out := make(engine.ResultSet)

	if d.Batched() {
		b.Start()
		for i, q := range d.Queries {
			if _, err := q.get(ctx, b); err != nil {
				return nil, fmt.Errorf("query %s: %w", q.label(i), err)
			}
		}
		rs, err := b.Commit(ctx)
		if err := collect(err); err != nil {
			return nil, err
		}
		out.Merge(rs)
	} else {
		for i, q := range d.Queries {
			rs, err := q.get(ctx, b)
			if err := collect(err); err != nil {
				return nil, fmt.Errorf("query %s: %w", q.label(i), err)
			}
			if q.From == "" {
				out.Merge(rs)
			}
		}
		rest, err := b.Commit(ctx)
		if err := collect(err); err != nil {
			return nil, err
		}
		out.Merge(rest)
	}

	if len(failures) > 0 {
		return out, &engine.ExecutionError{Failures: failures}
	}
	return out, nil
}

func (q Query) label(i int) string {
	if q.Name != "" {
		return fmt.Sprintf("%d (%s)", i, q.Name)
	}
	return fmt.Sprint(i)
}

// build loads the query into b's current descriptor.
func (q Query) build(b *engine.Builder) {
	fields := make([]engine.Field, 0, len(q.Select))
	for _, f := range q.Select {
		if f.DataPoint {
			fields = append(fields, engine.DataPoint(f.Name))
			continue
		}
		fields = append(fields, engine.Col(f.Name, f.Args...))
	}
	b.Select(fields...)
	if q.From != "" {
		b.From(q.From)
	}
	for _, c := range q.Where {
		b.WherePredicate(c.predicate())
	}
	if q.OrderBy != nil {
		mode, _ := engine.ParseOrderMode(q.OrderBy.Direction)
		b.OrderBy(q.OrderBy.Field, mode)
	}
	if q.Limit != nil {
		b.Limit(*q.Limit)
	}
}

func (q Query) get(ctx context.Context, b *engine.Builder) (engine.ResultSet, error) {
	q.build(b)
	switch q.Aggregate {
	case "first":
		return b.First(ctx, q.Field)
	case "last":
		return b.Last(ctx, q.Field)
	case "min":
		return b.Min(ctx, q.Field)
	case "max":
		return b.Max(ctx, q.Field)
	}
	return b.Get(ctx)
}

func (c Condition) predicate() engine.Predicate {
	if c.HasItem != "" {
		return engine.HasItem(c.HasItem)
	}
	op := c.Op
	if op == "" {
		op = string(engine.OpGte)
	}
	value := 1.0
	if c.Value != nil {
		value = *c.Value
	}
	return engine.Compare(engine.Ref(c.Field), op, value)
}
