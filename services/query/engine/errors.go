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
	"fmt"
	"strings"
)

// Sentinel errors for query execution.
var (
	// ErrInvalidCriteria is returned when a where entry is neither a
	// comparison with a known operator nor a predicate function.
	ErrInvalidCriteria = errors.New("invalid criteria")

	// ErrInvalidReference is returned when a select or where field cannot be
	// resolved against a node.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrNoRoot is returned when a query is committed before a root node
	// has been bound with NewBuilder, Using, or Reset.
	ErrNoRoot = errors.New("no root node bound")

	// ErrMissingAggregate is returned by Min and Max when no aggregate field
	// is given to order by.
	ErrMissingAggregate = errors.New("min/max require an aggregate field")
)

// ReferenceError describes a field token that could not be resolved.
type ReferenceError struct {
	// Token is the unresolved field reference as written.
	Token string

	// Reason says which resolution step rejected it.
	Reason string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrInvalidReference, e.Token, e.Reason)
}

func (e *ReferenceError) Unwrap() error {
	return ErrInvalidReference
}

// CriteriaError describes a malformed where entry.
type CriteriaError struct {
	// Index is the position of the entry in the where list.
	Index int

	// Reason describes what is wrong with it.
	Reason string
}

func (e *CriteriaError) Error() string {
	return fmt.Sprintf("%s at where[%d]: %s", ErrInvalidCriteria, e.Index, e.Reason)
}

func (e *CriteriaError) Unwrap() error {
	return ErrInvalidCriteria
}

// NodeError is a failure scoped to one query on one node.
type NodeError struct {
	// Item is the item key of the query that failed.
	Item string

	// Node is the name of the node it failed on.
	Node string

	// Level is the BFS level of the node (root is 0).
	Level int

	// Err is the underlying error.
	Err error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("from %q at <%s> (level %d): %v", e.Item, e.Node, e.Level, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// ExecutionError collects the per-node failures of one commit.
//
// The ResultSet returned next to it is complete except for the records of
// the failed (query, node) pairs.
type ExecutionError struct {
	Failures []*NodeError
}

func (e *ExecutionError) Error() string {
	if len(e.Failures) == 1 {
		return "query execution failed: " + e.Failures[0].Error()
	}
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("query execution failed on %d nodes: %s", len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap exposes every failure to errors.Is and errors.As.
func (e *ExecutionError) Unwrap() []error {
	out := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f
	}
	return out
}
