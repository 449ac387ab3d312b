// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"encoding/json"

	"github.com/AleutianAI/nodequery/services/query/engine"
)

// ServiceVersion is the API version reported by the health endpoint.
const ServiceVersion = "1.0.0"

// RunRequest is the body of POST /v1/query/run.
type RunRequest struct {
	// Document is a query document in JSON (or a JSON string holding YAML).
	Document json.RawMessage `json:"document" binding:"required"`

	// Content is the input to query. Exactly one of Content and Location
	// must be set.
	Content string `json:"content,omitempty"`

	// Location is an http(s) URL or gs://bucket/object to load the input
	// from. Only accepted when remote inputs are enabled.
	Location string `json:"location,omitempty"`

	// Name is used for syntax detection of Content, e.g. "main.go".
	Name string `json:"name,omitempty"`

	// Syntax forces the parser: "dom" or a tree-sitter language.
	Syntax string `json:"syntax,omitempty"`

	// StartTag roots HTML trees at this element. Default "html".
	StartTag string `json:"start_tag,omitempty"`

	// Rules are scoring rules applied before the queries run. When empty
	// the server's configured rules are used.
	Rules json.RawMessage `json:"rules,omitempty"`
}

// ValidateRequest is the body of POST /v1/query/validate.
type ValidateRequest struct {
	Document json.RawMessage `json:"document" binding:"required"`
}

// RunResponse is the JSON result of a run.
type RunResponse struct {
	RequestID string           `json:"request_id"`
	Results   engine.ResultSet `json:"results"`
	Failures  []Failure        `json:"failures,omitempty"`
	Stats     RunStats         `json:"stats"`
}

// Failure is one per-node query failure.
type Failure struct {
	Item  string `json:"item"`
	Node  string `json:"node"`
	Level int    `json:"level"`
	Error string `json:"error"`
}

// RunStats summarizes a run.
type RunStats struct {
	Items      int   `json:"items"`
	Records    int   `json:"records"`
	Scored     int   `json:"scored"`
	DurationMs int64 `json:"duration_ms"`
}

// ValidateResponse reports a valid document.
type ValidateResponse struct {
	Valid   bool `json:"valid"`
	Queries int  `json:"queries"`
	Batched bool `json:"batched"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code,omitempty"`
}
