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

import "sort"

// Registry records every item key and data point key set anywhere in a tree.
//
// A Registry is shared by all elements of one tree. Elements moved between
// trees via AppendChild are merged into the receiving tree's registry.
type Registry struct {
	items map[string]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]map[string]struct{})}
}

// AddItem registers an item key.
func (r *Registry) AddItem(item string) {
	if _, ok := r.items[item]; !ok {
		r.items[item] = make(map[string]struct{})
	}
}

// AddDataPoint registers a data point key for an item.
func (r *Registry) AddDataPoint(item, key string) {
	r.AddItem(item)
	r.items[item][key] = struct{}{}
}

// HasItem reports whether the item key is known.
func (r *Registry) HasItem(item string) bool {
	_, ok := r.items[item]
	return ok
}

// HasDataPoint reports whether key is known for item.
func (r *Registry) HasDataPoint(item, key string) bool {
	keys, ok := r.items[item]
	if !ok {
		return false
	}
	_, ok = keys[key]
	return ok
}

// Items returns the known item keys, sorted.
func (r *Registry) Items() []string {
	out := make([]string, 0, len(r.items))
	for item := range r.items {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// DataPoints returns the known data point keys for item, sorted.
func (r *Registry) DataPoints(item string) []string {
	keys := r.items[item]
	out := make([]string, 0, len(keys))
	for key := range keys {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// merge folds other into r.
func (r *Registry) merge(other *Registry) {
	if other == nil || other == r {
		return
	}
	for item, keys := range other.items {
		r.AddItem(item)
		for key := range keys {
			r.items[item][key] = struct{}{}
		}
	}
}
