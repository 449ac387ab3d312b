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
	"github.com/AleutianAI/nodequery/services/query/node"
)

// Field is one select entry.
//
// Resolution order against a node:
//  1. a content accessor or navigation count named Name
//  2. the field's function, if any
//  3. for data point fields, the data point Name of the query's item
//  4. the node's data points for the item named Name
//  5. the node's extra value named Name
//  6. nil
type Field struct {
	name      string
	args      []string
	fn        func(node.Node) any
	dataPoint bool
}

// Col selects a field by name. Args are passed to accessors that take
// them: Col("attribute", "href").
func Col(name string, args ...string) Field {
	return Field{name: name, args: append([]string(nil), args...)}
}

// DataPoint selects the named data point of the query's item.
func DataPoint(name string) Field {
	return Field{name: name, args: []string{name}, dataPoint: true}
}

// Computed selects the value fn computes for each node.
func Computed(name string, fn func(node.Node) any) Field {
	return Field{name: name, fn: fn}
}

// Names converts plain names to fields.
func Names(names ...string) []Field {
	out := make([]Field, len(names))
	for i, name := range names {
		out[i] = Col(name)
	}
	return out
}

// Name returns the record key the field is stored under.
func (f Field) Name() string {
	return f.name
}

// Args returns the accessor arguments.
func (f Field) Args() []string {
	return append([]string(nil), f.args...)
}

// selfReferential reports the data point sentinel: a field whose only
// argument is its own name.
func (f Field) selfReferential() bool {
	return f.dataPoint || (len(f.args) == 1 && f.args[0] == f.name)
}

// selectValue resolves f against n for a query over item.
func (f Field) selectValue(n node.Node, item string) (any, error) {
	if f.name == "" {
		return nil, &ReferenceError{Token: f.name, Reason: "empty select field"}
	}

	switch f.name {
	case CapNodeName, CapText, CapHTML:
		return capability(n, f.name), nil
	case NavChildren, NavSiblings, NavParents, NavNextAll, NavPreviousAll:
		return navigate(n, f.name).Len(), nil
	case CapAttr, CapAttribute:
		if !f.selfReferential() {
			return attributes(n, f.args), nil
		}
	}

	if f.fn != nil {
		return f.fn(n), nil
	}

	if f.selfReferential() && item != "" {
		if v, ok := n.DataPoint(item, f.name); ok {
			return v, nil
		}
	}

	if points, ok := n.Item(f.name); ok {
		return points, nil
	}

	if v, ok := n.Extra(f.name); ok {
		return v, nil
	}

	return nil, nil
}

// attributes reads one attribute as a string, several as a map, and the
// "value" attribute when none are named. Missing attributes are nil.
func attributes(n node.Node, names []string) any {
	switch len(names) {
	case 0:
		return attrValue(n, valueAttribute)
	case 1:
		return attrValue(n, names[0])
	}
	out := make(map[string]any, len(names))
	for _, name := range names {
		out[name] = attrValue(n, name)
	}
	return out
}

func attrValue(n node.Node, name string) any {
	if v, ok := n.Attribute(name); ok {
		return v
	}
	return nil
}
