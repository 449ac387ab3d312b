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

import "sort"

// Record is the projection of one query onto one node: field name to value.
type Record map[string]any

// ResultSet maps an item key to its ordered records.
type ResultSet map[string][]Record

// Items returns the item keys, sorted.
func (rs ResultSet) Items() []string {
	out := make([]string, 0, len(rs))
	for item := range rs {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// Len returns the total number of records across all items.
func (rs ResultSet) Len() int {
	n := 0
	for _, records := range rs {
		n += len(records)
	}
	return n
}

// Clone returns a copy whose record slices and records are not shared
// with rs. Record values themselves are copied shallowly.
func (rs ResultSet) Clone() ResultSet {
	out := make(ResultSet, len(rs))
	for item, records := range rs {
		cp := make([]Record, len(records))
		for i, r := range records {
			rc := make(Record, len(r))
			for k, v := range r {
				rc[k] = v
			}
			cp[i] = rc
		}
		out[item] = cp
	}
	return out
}

// Merge appends the records of other to rs, item by item.
func (rs ResultSet) Merge(other ResultSet) {
	for item, records := range other {
		rs[item] = append(rs[item], records...)
	}
}
