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
	"fmt"
	"strings"

	"github.com/AleutianAI/nodequery/services/query/node"
)

// Operator is a normalized comparison operator.
type Operator string

const (
	OpLt  Operator = "<"
	OpLte Operator = "<="
	OpGt  Operator = ">"
	OpGte Operator = ">="
)

// ParseOperator normalizes an operator, accepting the aliases
// "=>", "gte", "=<", "lte", "lt" and "gt".
func ParseOperator(op string) (Operator, bool) {
	switch strings.ToLower(strings.TrimSpace(op)) {
	case ">=", "=>", "gte":
		return OpGte, true
	case "<=", "=<", "lte":
		return OpLte, true
	case "<", "lt":
		return OpLt, true
	case ">", "gt":
		return OpGt, true
	}
	return "", false
}

type predicateKind int

const (
	predicateInvalid predicateKind = iota
	predicateComparison
	predicateCustom
)

// Predicate is one where entry: a comparison of a reference against a
// number, or a custom function of the node.
//
// The zero Predicate is invalid and fails with ErrInvalidCriteria when
// evaluated.
type Predicate struct {
	kind  predicateKind
	ref   Reference
	op    string
	value float64
	fn    func(node.Node) bool
}

// Compare creates a comparison predicate. The operator is validated when
// the predicate is evaluated, not here.
func Compare(ref Reference, op string, value float64) Predicate {
	return Predicate{kind: predicateComparison, ref: ref, op: op, value: value}
}

// Custom creates a predicate from a function of the node.
func Custom(fn func(node.Node) bool) Predicate {
	if fn == nil {
		return Predicate{}
	}
	return Predicate{kind: predicateCustom, fn: fn}
}

// HasItem accepts nodes that carry item.
//
// Queries visit every node of the tree; use HasItem to keep only the nodes
// that were scored for the query's item.
func HasItem(item string) Predicate {
	return Custom(func(n node.Node) bool {
		_, ok := n.Item(item)
		return ok
	})
}

// IsComparison reports whether p is a comparison predicate.
func (p Predicate) IsComparison() bool {
	return p.kind == predicateComparison
}

// String describes the predicate for logs.
func (p Predicate) String() string {
	switch p.kind {
	case predicateComparison:
		return fmt.Sprintf("%s %s %s", p.ref.Token(), p.op, formatNumber(p.value))
	case predicateCustom:
		return "func(node)"
	}
	return "invalid"
}

// eval applies p to n. idx is the predicate's position, used in errors.
func (p Predicate) eval(n node.Node, idx int) (bool, error) {
	switch p.kind {
	case predicateCustom:
		return p.fn(n), nil
	case predicateComparison:
		op, ok := ParseOperator(p.op)
		if !ok {
			return false, &CriteriaError{Index: idx, Reason: fmt.Sprintf("unknown operator %q", p.op)}
		}
		val, err := resolve(n, p.ref)
		if err != nil {
			return false, err
		}
		return compareOperand(val, op, p.value), nil
	}
	return false, &CriteriaError{Index: idx, Reason: "neither a comparison nor a predicate function"}
}

// compareOperand compares numerically when the operand is numeric and
// lexically otherwise. Only capability values (nodeName, text, html) and
// function results can be non-numeric.
func compareOperand(v operand, op Operator, value float64) bool {
	if !v.present {
		return false
	}
	var c int
	if v.numeric {
		switch {
		case v.num < value:
			c = -1
		case v.num > value:
			c = 1
		}
	} else {
		c = strings.Compare(v.str, formatNumber(value))
	}
	switch op {
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	}
	return false
}
