// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package node defines the tree capability contract the query engine reads
// and an in-memory implementation of it.
//
// # Contract
//
// The engine never owns a tree. It only navigates it (Children, Siblings,
// Parents, NextAll, PreviousAll), reads content (Text, HTML, NodeName,
// Attribute) and reads scores: every node may carry named items, and every
// item carries named numeric data points. Items are the "tables" a query
// selects from; data points are the numeric "columns" it filters on.
//
// # Registry
//
// Items() and DataPoints() answer for the whole tree, not for the single
// node they are called on. That is what lets the engine expand a query with
// no item key into one query per item, and what lets it tell a reference to
// an item that exists somewhere in the tree from a reference to nothing.
//
// # Thread Safety
//
// Element trees are NOT safe for concurrent mutation. Once built and scored
// they may be read from multiple goroutines.
package node

// Node is the capability surface of a tree element.
type Node interface {
	// Children returns the direct element children in document order.
	Children() Collection

	// Siblings returns the other children of the parent, in document order.
	Siblings() Collection

	// Parents returns the ancestors, nearest first.
	Parents() Collection

	// NextAll returns the following siblings in document order.
	NextAll() Collection

	// PreviousAll returns the preceding siblings, nearest first.
	PreviousAll() Collection

	// Text returns the concatenated text content of the node and its descendants.
	Text() string

	// HTML returns the inner markup of the node.
	HTML() string

	// NodeName returns the tag or node type name.
	NodeName() string

	// Attribute returns the named attribute and whether it is present.
	Attribute(name string) (string, bool)

	// DataPoint returns the value of key for item on this node.
	DataPoint(item, key string) (float64, bool)

	// Item returns a copy of the data points this node carries for item.
	Item(item string) (map[string]float64, bool)

	// Items returns every item key known to the tree, sorted.
	Items() []string

	// DataPoints returns every data point key known to the tree for item, sorted.
	DataPoints(item string) []string

	// KnowsItem reports whether item is known to the tree.
	KnowsItem(item string) bool

	// KnowsDataPoint reports whether key is known to the tree for item.
	KnowsDataPoint(item, key string) bool

	// Extra returns a value from the node's side store.
	Extra(name string) (any, bool)
}

// Collection is an ordered set of nodes returned by navigation.
type Collection []Node

// Len returns the number of nodes in the collection.
func (c Collection) Len() int {
	return len(c)
}

// First returns the first node, or nil when the collection is empty.
func (c Collection) First() Node {
	if len(c) == 0 {
		return nil
	}
	return c[0]
}
