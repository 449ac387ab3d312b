// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package format renders engine result sets in the shapes the CLI and the
// HTTP API offer: indented JSON, YAML, terminal tables and a flattened pivot.
package format

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/nodequery/pkg/ux"
	"github.com/AleutianAI/nodequery/services/query/engine"
)

// Format names an output shape.
type Format string

const (
	JSON  Format = "json"
	YAML  Format = "yaml"
	Table Format = "table"
	Pivot Format = "pivot"
)

// ErrUnknownFormat is returned for a format name that is not supported.
var ErrUnknownFormat = errors.New("unknown output format")

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{JSON, YAML, Table, Pivot}
}

// ParseFormat maps a case-insensitive name to a Format. "yml" and "csv" are
// accepted as aliases of yaml and pivot.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "table":
		return Table, nil
	case "pivot", "csv":
		return Pivot, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType returns the MIME type used when f is served over HTTP.
func (f Format) ContentType() string {
	switch f {
	case YAML:
		return "application/yaml"
	case Table:
		return "text/plain; charset=utf-8"
	case Pivot:
		return "text/csv; charset=utf-8"
	default:
		return "application/json"
	}
}

// Render writes rs to w in format f.
//
// Description:
//
//	json and yaml keep the result set's natural shape: item key to list of
//	records. table prints one table per item key with the union of the
//	records' field names as columns. pivot writes CSV rows of
//	item,index,field,value; map-valued fields are flattened to field.key.
//
// Inputs:
//
//	w  - Destination.
//	rs - Result set; nil renders as empty.
//	f  - Output format.
//
// Outputs:
//
//	error - ErrUnknownFormat, or the first write/encode error.
func Render(w io.Writer, rs engine.ResultSet, f Format) error {
	if rs == nil {
		rs = engine.ResultSet{}
	}
	switch f {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rs)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rs); err != nil {
			return err
		}
		return enc.Close()
	case Table:
		return renderTables(w, rs)
	case Pivot:
		return renderPivot(w, rs)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
}

func renderTables(w io.Writer, rs engine.ResultSet) error {
	items := rs.Items()
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, ux.Styles.Muted.Render("(no results)"))
		return err
	}
	for i, item := range items {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		records := rs[item]
		heading := fmt.Sprintf("%s (%d)", item, len(records))
		if _, err := fmt.Fprintln(w, ux.Styles.Title.Render(heading)); err != nil {
			return err
		}
		columns := columnsOf(records)
		if len(columns) == 0 {
			if _, err := fmt.Fprintln(w, ux.Styles.Muted.Render("(no fields)")); err != nil {
				return err
			}
			continue
		}
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(ux.Styles.Border).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return ux.Styles.Header
				}
				return ux.Styles.Cell
			}).
			Headers(columns...)
		for _, r := range records {
			row := make([]string, len(columns))
			for c, col := range columns {
				row[c] = cell(r[col])
			}
			t.Row(row...)
		}
		if _, err := fmt.Fprintln(w, t.Render()); err != nil {
			return err
		}
	}
	return nil
}

func renderPivot(w io.Writer, rs engine.ResultSet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"item", "index", "field", "value"}); err != nil {
		return err
	}
	for _, item := range rs.Items() {
		for i, r := range rs[item] {
			idx := strconv.Itoa(i)
			for _, field := range sortedKeys(r) {
				for _, kv := range flatten(field, r[field]) {
					if err := cw.Write([]string{item, idx, kv[0], kv[1]}); err != nil {
						return err
					}
				}
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// flatten expands map values into one field.key pair per entry.
func flatten(field string, v any) [][2]string {
	switch m := v.(type) {
	case map[string]string:
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([][2]string, len(keys))
		for i, k := range keys {
			out[i] = [2]string{field + "." + k, m[k]}
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([][2]string, len(keys))
		for i, k := range keys {
			out[i] = [2]string{field + "." + k, cell(m[k])}
		}
		return out
	}
	return [][2]string{{field, cell(v)}}
}

func columnsOf(records []engine.Record) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedKeys(r engine.Record) []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// cell renders a single record value as text. Absent values are empty.
func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case map[string]string, map[string]any:
		pairs := flatten("", t)
		parts := make([]string, len(pairs))
		for i, p := range pairs {
			parts[i] = strings.TrimPrefix(p[0], ".") + "=" + p[1]
		}
		return strings.Join(parts, " ")
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}
