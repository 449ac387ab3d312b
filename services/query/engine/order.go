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
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// OrderMode is the direction or boundary sentinel of an ordering.
type OrderMode int

const (
	// Ascending orders by the field, smallest first.
	Ascending OrderMode = iota

	// Descending orders by the field, largest first.
	Descending

	// First keeps traversal order, earliest first.
	First

	// Last reverses traversal order, latest first.
	Last

	// Min orders by the numeric aggregate field, smallest first.
	Min

	// Max orders by the numeric aggregate field, largest first.
	Max
)

// String returns the mode name.
func (m OrderMode) String() string {
	switch m {
	case Ascending:
		return "asc"
	case Descending:
		return "desc"
	case First:
		return "first"
	case Last:
		return "last"
	case Min:
		return "min"
	case Max:
		return "max"
	}
	return "unknown"
}

// ParseOrderMode parses "asc", "desc", "first", "last", "min" or "max"
// (case-insensitive; "ascending" and "descending" are accepted too).
func ParseOrderMode(s string) (OrderMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	case "first":
		return First, nil
	case "last":
		return Last, nil
	case "min":
		return Min, nil
	case "max":
		return Max, nil
	}
	return Ascending, fmt.Errorf("unknown order direction %q", s)
}

// OrderBy orders the records of one item by a record field.
type OrderBy struct {
	// Field is the record key to order by. For Min and Max it is the
	// aggregate field. For First and Last it is optional; when set, records
	// lacking it still go last.
	Field string

	// Mode is the direction or boundary sentinel.
	Mode OrderMode
}

// orderRecords sorts records in place. Records without a value for the
// order field always follow the records that have one.
func orderRecords(records []Record, ob OrderBy) {
	if len(records) < 2 {
		return
	}

	switch ob.Mode {
	case First, Last:
		if ob.Mode == Last {
			for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
				records[i], records[j] = records[j], records[i]
			}
		}
		if ob.Field == "" {
			return
		}
		sort.SliceStable(records, func(i, j int) bool {
			return hasValue(records[i], ob.Field) && !hasValue(records[j], ob.Field)
		})

	case Min, Max:
		sort.SliceStable(records, func(i, j int) bool {
			a, aok := numericValue(records[i], ob.Field)
			b, bok := numericValue(records[j], ob.Field)
			if aok != bok {
				return aok
			}
			if !aok {
				return false
			}
			if ob.Mode == Max {
				return a > b
			}
			return a < b
		})

	default:
		if ob.Field == "" {
			return
		}
		sort.SliceStable(records, func(i, j int) bool {
			ai, bi := hasValue(records[i], ob.Field), hasValue(records[j], ob.Field)
			if ai != bi {
				return ai
			}
			if !ai {
				return false
			}
			c := compareValues(records[i][ob.Field], records[j][ob.Field])
			if ob.Mode == Descending {
				return c > 0
			}
			return c < 0
		})
	}
}

// limitRecords keeps at most limit records from the front.
func limitRecords(records []Record, limit int) []Record {
	if limit < 0 || len(records) <= limit {
		return records
	}
	return records[:limit]
}

func hasValue(r Record, field string) bool {
	v, ok := r[field]
	return ok && v != nil
}

func numericValue(r Record, field string) (float64, bool) {
	v, ok := r[field]
	if !ok {
		return 0, false
	}
	return toNumber(v)
}

func toNumber(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	if s, isStr := v.(string); isStr {
		return parseNumber(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

// compareValues orders numbers before non-numeric values. Two numbers
// compare numerically and two non-numbers by their string forms, which
// keeps the ordering total.
func compareValues(a, b any) int {
	fa, aok := toNumber(a)
	fb, bok := toNumber(b)
	switch {
	case aok && bok:
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case aok:
		return -1
	case bok:
		return 1
	}
	return strings.Compare(cast.ToString(a), cast.ToString(b))
}
