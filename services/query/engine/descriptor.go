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

// Descriptor is one query: the item it reads from, the fields it selects,
// its predicates, ordering and limit.
//
// Descriptor is an immutable value. Every With method returns a modified
// copy and never shares slices with the receiver, so clones (one per item
// when a query has no item key) are independent.
type Descriptor struct {
	from     string
	hasFrom  bool
	selects  []Field
	where    []Predicate
	order    OrderBy
	hasOrder bool
	limit    int
	hasLimit bool
}

// NewDescriptor returns an empty descriptor: no item, no fields, no
// predicates, insertion order, unlimited.
func NewDescriptor() Descriptor {
	return Descriptor{}
}

// From returns the item key and whether one is set.
func (d Descriptor) From() (string, bool) {
	return d.from, d.hasFrom
}

// Select returns a copy of the selected fields.
func (d Descriptor) Select() []Field {
	return append([]Field(nil), d.selects...)
}

// Where returns a copy of the predicates.
func (d Descriptor) Where() []Predicate {
	return append([]Predicate(nil), d.where...)
}

// Order returns the ordering and whether one is set.
func (d Descriptor) Order() (OrderBy, bool) {
	return d.order, d.hasOrder
}

// Limit returns the limit and whether one is set.
func (d Descriptor) Limit() (int, bool) {
	return d.limit, d.hasLimit
}

// WithFrom returns a copy reading from item.
func (d Descriptor) WithFrom(item string) Descriptor {
	c := d.clone()
	c.from = item
	c.hasFrom = true
	return c
}

// WithSelect returns a copy selecting fields, replacing any prior selection.
func (d Descriptor) WithSelect(fields ...Field) Descriptor {
	c := d.clone()
	c.selects = append([]Field(nil), fields...)
	return c
}

// WithWhere returns a copy with p appended to the predicates.
func (d Descriptor) WithWhere(p Predicate) Descriptor {
	c := d.clone()
	c.where = append(c.where, p)
	return c
}

// WithOrderBy returns a copy ordered by ob.
func (d Descriptor) WithOrderBy(ob OrderBy) Descriptor {
	c := d.clone()
	c.order = ob
	c.hasOrder = true
	return c
}

// WithLimit returns a copy limited to n records per item. A negative n
// removes the limit.
func (d Descriptor) WithLimit(n int) Descriptor {
	c := d.clone()
	if n < 0 {
		c.limit, c.hasLimit = 0, false
		return c
	}
	c.limit, c.hasLimit = n, true
	return c
}

// Execute runs the descriptor against one node.
//
// Description:
//
//	Evaluates the predicates in order and stops at the first one that
//	rejects the node or fails. When all accept, resolves every selected
//	field into a Record.
//
//	A descriptor with no selected fields records the node's data points for
//	its item; nodes without the item produce no record.
//
// Outputs:
//
//	Record - The projected record, nil when not produced.
//	bool - True when a record was produced.
//	error - *CriteriaError or *ReferenceError; no record is produced.
func (d Descriptor) Execute(n node.Node) (Record, bool, error) {
	for i, p := range d.where {
		ok, err := p.eval(n, i)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
	}

	if len(d.selects) == 0 {
		points, ok := n.Item(d.from)
		if !ok || len(points) == 0 {
			return nil, false, nil
		}
		rec := make(Record, len(points))
		for k, v := range points {
			rec[k] = v
		}
		return rec, true, nil
	}

	rec := make(Record, len(d.selects))
	for _, f := range d.selects {
		v, err := f.selectValue(n, d.from)
		if err != nil {
			return nil, false, err
		}
		rec[f.name] = v
	}
	return rec, true, nil
}

func (d Descriptor) clone() Descriptor {
	c := d
	c.selects = append([]Field(nil), d.selects...)
	c.where = append([]Predicate(nil), d.where...)
	return c
}

// expand returns one clone of d per item key.
func expand(d Descriptor, items []string) []Descriptor {
	out := make([]Descriptor, 0, len(items))
	for _, item := range items {
		out = append(out, d.WithFrom(item))
	}
	return out
}
