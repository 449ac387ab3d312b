// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package node

import (
	"html"
	"strings"
)

// Attr is a single element attribute.
type Attr struct {
	Key string
	Val string
}

// segment is one piece of an element's content: either text or a child.
type segment struct {
	text  string
	child *Element
}

// Element is the in-memory Node implementation.
//
// Description:
//
//	An Element has a name, ordered attributes, mixed text and element
//	content, scored items, and a side store of extra values. Parsers in
//	sibling packages (htmltree, sittertree) produce Element trees; tests and
//	callers may also build them by hand.
//
// Example:
//
//	root := node.NewElement("article")
//	title := node.NewElement("h1")
//	title.AppendText("Hello")
//	root.AppendChild(title)
//	title.SetDataPoint("title", "score", 3)
type Element struct {
	name     string
	attrs    []Attr
	segments []segment
	children []*Element
	parent   *Element
	markup   string
	hasMark  bool

	items    map[string]map[string]float64
	extras   map[string]any
	registry *Registry
}

// NewElement creates a detached element that owns a fresh registry.
func NewElement(name string, attrs ...Attr) *Element {
	return &Element{
		name:     name,
		attrs:    append([]Attr(nil), attrs...),
		registry: NewRegistry(),
	}
}

// AppendChild adds child as the last child of e and returns child.
//
// The child subtree joins e's tree: its registry is merged into e's and
// every element of the subtree is repointed at it. A child that already
// has a parent is detached from it first.
func (e *Element) AppendChild(child *Element) *Element {
	if child.parent != nil {
		child.parent.removeChild(child)
	}
	child.parent = e
	e.children = append(e.children, child)
	e.segments = append(e.segments, segment{child: child})

	reg := e.registry
	reg.merge(child.registry)
	child.Walk(func(el *Element) bool {
		el.registry = reg
		return true
	})
	return child
}

// AppendText appends a text run to e's content.
func (e *Element) AppendText(text string) *Element {
	if text == "" {
		return e
	}
	e.segments = append(e.segments, segment{text: text})
	return e
}

// SetAttr sets or replaces an attribute.
func (e *Element) SetAttr(key, val string) *Element {
	for i := range e.attrs {
		if e.attrs[i].Key == key {
			e.attrs[i].Val = val
			return e
		}
	}
	e.attrs = append(e.attrs, Attr{Key: key, Val: val})
	return e
}

// SetMarkup overrides the inner markup returned by HTML.
//
// Parsers set this to the exact source of the element so HTML reflects the
// input rather than a re-rendering.
func (e *Element) SetMarkup(markup string) *Element {
	e.markup = markup
	e.hasMark = true
	return e
}

// AddItem marks e as carrying item, with no data points yet.
func (e *Element) AddItem(item string) *Element {
	if e.items == nil {
		e.items = make(map[string]map[string]float64)
	}
	if _, ok := e.items[item]; !ok {
		e.items[item] = make(map[string]float64)
	}
	e.registry.AddItem(item)
	return e
}

// SetDataPoint sets a data point of an item on e.
func (e *Element) SetDataPoint(item, key string, value float64) *Element {
	e.AddItem(item)
	e.items[item][key] = value
	e.registry.AddDataPoint(item, key)
	return e
}

// SetExtra stores a value in e's side store.
func (e *Element) SetExtra(name string, value any) *Element {
	if e.extras == nil {
		e.extras = make(map[string]any)
	}
	e.extras[name] = value
	return e
}

// Parent returns the parent element, or nil for a root.
func (e *Element) Parent() *Element {
	return e.parent
}

// Elements returns the direct element children.
func (e *Element) Elements() []*Element {
	return e.children
}

// Attrs returns a copy of the attributes.
func (e *Element) Attrs() []Attr {
	return append([]Attr(nil), e.attrs...)
}

// Depth returns the number of ancestors.
func (e *Element) Depth() int {
	depth := 0
	for p := e.parent; p != nil; p = p.parent {
		depth++
	}
	return depth
}

// Registry returns the registry shared by e's tree.
func (e *Element) Registry() *Registry {
	return e.registry
}

// Walk visits e and its descendants depth-first in document order.
// Returning false from fn skips the element's descendants.
func (e *Element) Walk(fn func(*Element) bool) {
	if !fn(e) {
		return
	}
	for _, child := range e.children {
		child.Walk(fn)
	}
}

// Children implements Node.
func (e *Element) Children() Collection {
	return toCollection(e.children)
}

// Siblings implements Node.
func (e *Element) Siblings() Collection {
	if e.parent == nil {
		return Collection{}
	}
	out := make(Collection, 0, len(e.parent.children))
	for _, sib := range e.parent.children {
		if sib != e {
			out = append(out, sib)
		}
	}
	return out
}

// Parents implements Node.
func (e *Element) Parents() Collection {
	out := Collection{}
	for p := e.parent; p != nil; p = p.parent {
		out = append(out, p)
	}
	return out
}

// NextAll implements Node.
func (e *Element) NextAll() Collection {
	idx := e.index()
	if idx < 0 {
		return Collection{}
	}
	return toCollection(e.parent.children[idx+1:])
}

// PreviousAll implements Node.
func (e *Element) PreviousAll() Collection {
	idx := e.index()
	if idx <= 0 {
		return Collection{}
	}
	out := make(Collection, 0, idx)
	for i := idx - 1; i >= 0; i-- {
		out = append(out, e.parent.children[i])
	}
	return out
}

// Text implements Node.
func (e *Element) Text() string {
	var sb strings.Builder
	e.writeText(&sb)
	return sb.String()
}

// HTML implements Node.
func (e *Element) HTML() string {
	if e.hasMark {
		return e.markup
	}
	var sb strings.Builder
	for _, seg := range e.segments {
		if seg.child != nil {
			seg.child.writeOuter(&sb)
			continue
		}
		sb.WriteString(html.EscapeString(seg.text))
	}
	return sb.String()
}

// NodeName implements Node.
func (e *Element) NodeName() string {
	return e.name
}

// Attribute implements Node.
func (e *Element) Attribute(name string) (string, bool) {
	for _, a := range e.attrs {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// DataPoint implements Node.
func (e *Element) DataPoint(item, key string) (float64, bool) {
	points, ok := e.items[item]
	if !ok {
		return 0, false
	}
	v, ok := points[key]
	return v, ok
}

// Item implements Node.
func (e *Element) Item(item string) (map[string]float64, bool) {
	points, ok := e.items[item]
	if !ok {
		return nil, false
	}
	out := make(map[string]float64, len(points))
	for k, v := range points {
		out[k] = v
	}
	return out, true
}

// Items implements Node.
func (e *Element) Items() []string {
	return e.registry.Items()
}

// DataPoints implements Node.
func (e *Element) DataPoints(item string) []string {
	return e.registry.DataPoints(item)
}

// KnowsItem implements Node.
func (e *Element) KnowsItem(item string) bool {
	return e.registry.HasItem(item)
}

// KnowsDataPoint implements Node.
func (e *Element) KnowsDataPoint(item, key string) bool {
	return e.registry.HasDataPoint(item, key)
}

// Extra implements Node.
func (e *Element) Extra(name string) (any, bool) {
	v, ok := e.extras[name]
	return v, ok
}

func (e *Element) index() int {
	if e.parent == nil {
		return -1
	}
	for i, sib := range e.parent.children {
		if sib == e {
			return i
		}
	}
	return -1
}

func (e *Element) removeChild(child *Element) {
	for i, c := range e.children {
		if c == child {
			e.children = append(e.children[:i:i], e.children[i+1:]...)
			break
		}
	}
	for i, seg := range e.segments {
		if seg.child == child {
			e.segments = append(e.segments[:i:i], e.segments[i+1:]...)
			break
		}
	}
	child.parent = nil
}

func (e *Element) writeText(sb *strings.Builder) {
	for _, seg := range e.segments {
		if seg.child != nil {
			seg.child.writeText(sb)
			continue
		}
		sb.WriteString(seg.text)
	}
}

func (e *Element) writeOuter(sb *strings.Builder) {
	sb.WriteByte('<')
	sb.WriteString(e.name)
	for _, a := range e.attrs {
		sb.WriteByte(' ')
		sb.WriteString(a.Key)
		sb.WriteString(`="`)
		sb.WriteString(html.EscapeString(a.Val))
		sb.WriteByte('"')
	}
	sb.WriteByte('>')
	sb.WriteString(e.HTML())
	sb.WriteString("</")
	sb.WriteString(e.name)
	sb.WriteByte('>')
}

func toCollection(els []*Element) Collection {
	out := make(Collection, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out
}
