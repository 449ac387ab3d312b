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
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/AleutianAI/nodequery/services/query/node"
)

// RefKind is the resolution step a where reference is handled by.
type RefKind int

const (
	// KindUnknown is a reference no step can resolve.
	KindUnknown RefKind = iota

	// KindDataPoint is a dotted "<item>.<datapoint>" reference.
	KindDataPoint

	// KindCount is a navigation name resolved to the size of its collection.
	KindCount

	// KindBoundary is "first" or "last": 1 when the node has no preceding
	// (following) siblings, else 0.
	KindBoundary

	// KindAttr is "attr": the node's "value" attribute.
	KindAttr

	// KindCapability is a content accessor: nodeName, text, or html.
	KindCapability

	// KindFunc is a caller-supplied function of the node.
	KindFunc
)

// String returns the name of the kind.
func (k RefKind) String() string {
	switch k {
	case KindDataPoint:
		return "datapoint"
	case KindCount:
		return "count"
	case KindBoundary:
		return "boundary"
	case KindAttr:
		return "attr"
	case KindCapability:
		return "capability"
	case KindFunc:
		return "func"
	default:
		return "unknown"
	}
}

// Navigation names that resolve to a count.
const (
	NavChildren    = "children"
	NavSiblings    = "siblings"
	NavParents     = "parents"
	NavNextAll     = "nextAll"
	NavPreviousAll = "previousAll"
)

// Content accessor names.
const (
	CapNodeName  = "nodeName"
	CapText      = "text"
	CapHTML      = "html"
	CapAttr      = "attr"
	CapAttribute = "attribute"
)

// Boundary aliases.
const (
	BoundaryFirst = "first"
	BoundaryLast  = "last"
)

// valueAttribute is the attribute read by the "attr" reference.
const valueAttribute = "value"

// Reference is a where-field: a token resolved against each node, or a
// function of the node.
type Reference struct {
	token string
	fn    func(node.Node) any
}

// Ref creates a reference from a field token such as "title.score",
// "children", "first", "attr", or "text".
func Ref(token string) Reference {
	return Reference{token: token}
}

// RefFunc creates a reference whose value is computed by fn.
//
// The name labels the reference in errors.
func RefFunc(name string, fn func(node.Node) any) Reference {
	return Reference{token: name, fn: fn}
}

// Token returns the reference as written.
func (r Reference) Token() string {
	return r.token
}

// Kind classifies the reference in resolution precedence order.
//
// A reference built by RefFunc is always KindFunc; its name only labels
// errors.
func (r Reference) Kind() RefKind {
	if r.fn != nil {
		return KindFunc
	}
	if _, _, ok := splitDotted(r.token); ok {
		return KindDataPoint
	}
	switch r.token {
	case NavChildren, NavSiblings, NavParents, NavNextAll, NavPreviousAll:
		return KindCount
	case BoundaryFirst, BoundaryLast:
		return KindBoundary
	case CapAttr:
		return KindAttr
	case CapNodeName, CapText, CapHTML:
		return KindCapability
	}
	return KindUnknown
}

// operand is a resolved reference value ready for comparison.
type operand struct {
	num     float64
	str     string
	numeric bool
	present bool
}

func numericOperand(v float64) operand {
	return operand{num: v, numeric: true, present: true}
}

func stringOperand(s string) operand {
	return operand{str: s, present: true}
}

// resolve evaluates r against n.
//
// An absent operand (the node lacks the data point or attribute, or a
// function returned nil) never satisfies a comparison. Errors are always
// *ReferenceError.
func resolve(n node.Node, r Reference) (operand, error) {
	switch r.Kind() {
	case KindDataPoint:
		item, key, _ := splitDotted(r.token)
		if !n.KnowsItem(item) {
			return operand{}, &ReferenceError{Token: r.token, Reason: fmt.Sprintf("no item %q in tree", item)}
		}
		if !n.KnowsDataPoint(item, key) {
			return operand{}, &ReferenceError{Token: r.token, Reason: fmt.Sprintf("item %q has no data point %q", item, key)}
		}
		v, ok := n.DataPoint(item, key)
		if !ok {
			return operand{}, nil
		}
		return numericOperand(v), nil

	case KindCount:
		return numericOperand(float64(navigate(n, r.token).Len())), nil

	case KindBoundary:
		var edge node.Collection
		if r.token == BoundaryFirst {
			edge = n.PreviousAll()
		} else {
			edge = n.NextAll()
		}
		if edge.Len() == 0 {
			return numericOperand(1), nil
		}
		return numericOperand(0), nil

	case KindAttr:
		v, ok := n.Attribute(valueAttribute)
		if !ok {
			return operand{}, nil
		}
		return numericOperand(cast.ToFloat64(strings.TrimSpace(v))), nil

	case KindCapability:
		s := capability(n, r.token)
		if f, ok := parseNumber(s); ok {
			return operand{num: f, str: s, numeric: true, present: true}, nil
		}
		return stringOperand(s), nil

	case KindFunc:
		return funcOperand(n, r)
	}
	return operand{}, &ReferenceError{Token: r.token, Reason: "not a data point, navigation count, boundary, attribute, capability or function"}
}

func funcOperand(n node.Node, r Reference) (operand, error) {
	v := r.fn(n)
	if v == nil {
		return operand{}, nil
	}
	if s, ok := v.(string); ok {
		if f, ok := parseNumber(s); ok {
			return operand{num: f, str: s, numeric: true, present: true}, nil
		}
		return stringOperand(s), nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return operand{}, &ReferenceError{Token: r.token, Reason: fmt.Sprintf("function returned non-numeric %T", v)}
	}
	return numericOperand(f), nil
}

// navigate returns the collection for a navigation name.
func navigate(n node.Node, name string) node.Collection {
	switch name {
	case NavChildren:
		return n.Children()
	case NavSiblings:
		return n.Siblings()
	case NavParents:
		return n.Parents()
	case NavNextAll:
		return n.NextAll()
	case NavPreviousAll:
		return n.PreviousAll()
	}
	return nil
}

// capability returns a content accessor value.
func capability(n node.Node, name string) string {
	switch name {
	case CapNodeName:
		return n.NodeName()
	case CapText:
		return n.Text()
	case CapHTML:
		return n.HTML()
	}
	return ""
}

// splitDotted splits "item.key" at the first dot. Both halves must be non-empty.
func splitDotted(token string) (item, key string, ok bool) {
	item, key, found := strings.Cut(token, ".")
	if !found || item == "" || key == "" {
		return "", "", false
	}
	return item, key, true
}

// parseNumber reports whether s is a number once surrounding space is trimmed.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := cast.ToFloat64E(s)
	if err != nil {
		return 0, false
	}
	return f, true
}

// formatNumber renders a comparison value for string comparison.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
