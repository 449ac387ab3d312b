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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/nodequery/services/query/engine"
	"github.com/AleutianAI/nodequery/services/query/format"
	"github.com/AleutianAI/nodequery/services/query/htmltree"
	"github.com/AleutianAI/nodequery/services/query/querydoc"
	"github.com/AleutianAI/nodequery/services/query/scoring"
	"github.com/AleutianAI/nodequery/services/query/sittertree"
	"github.com/AleutianAI/nodequery/services/query/source"
	"github.com/AleutianAI/nodequery/services/query/telemetry"
)

// Handlers contains the HTTP handlers of the query API.
type Handlers struct {
	loader       *source.Loader
	rules        *scoring.RuleSet
	allowRemote  bool
	runTimeout   time.Duration
	maxInputSize int
}

// NewHandlers creates handlers that load remote inputs with loader.
func NewHandlers(loader *source.Loader) *Handlers {
	if loader == nil {
		loader = source.NewLoader()
	}
	return &Handlers{loader: loader, runTimeout: 30 * time.Second}
}

// WithRules sets the scoring rules used when a request brings none.
func (h *Handlers) WithRules(rules *scoring.RuleSet) *Handlers {
	h.rules = rules
	return h
}

// WithRemoteInputs allows requests to name an http(s) or gs:// location
// instead of posting content.
func (h *Handlers) WithRemoteInputs(allow bool) *Handlers {
	h.allowRemote = allow
	return h
}

// WithRunTimeout bounds a single run. Non-positive values keep the default.
func (h *Handlers) WithRunTimeout(d time.Duration) *Handlers {
	if d > 0 {
		h.runTimeout = d
	}
	return h
}

// WithMaxInputSize bounds source code inputs given to tree-sitter.
func (h *Handlers) WithMaxInputSize(n int) *Handlers {
	h.maxInputSize = n
	return h
}

// RegisterRoutes registers the query endpoints.
//
// Description:
//
//	Registers all /query/* endpoints with the given router group. The group
//	should already have any required middleware applied.
//
// Endpoints:
//
//	POST /query/run      - Run a query document over posted or remote content
//	POST /query/validate - Validate a query document
//	GET  /query/health   - Health check
//
// Example:
//
//	handlers := server.NewHandlers(source.NewLoader())
//	v1 := router.Group("/v1")
//	server.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	q := rg.Group("/query")
	{
		q.POST("/run", h.HandleRun)
		q.POST("/validate", h.HandleValidate)
		q.GET("/health", h.HandleHealth)
	}
}

// HandleHealth handles GET /v1/query/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: ServiceVersion})
}

// HandleValidate handles POST /v1/query/validate.
func (h *Handlers) HandleValidate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := telemetry.LoggerWithTrace(c.Request.Context(), slog.Default()).With("request_id", requestID, "handler", "HandleValidate")

	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
		return
	}
	doc, err := parseDocument(req.Document)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_DOCUMENT"})
		return
	}
	c.JSON(http.StatusOK, ValidateResponse{Valid: true, Queries: len(doc.Queries), Batched: doc.Batched()})
}

// HandleRun handles POST /v1/query/run.
//
// Description:
//
//	Parses the posted content (or loads the remote location), applies the
//	scoring rules and runs the query document on the resulting tree. Per
//	node failures do not fail the request; they are listed next to the
//	partial results.
//
// Query Parameters:
//
//	format - json (default), yaml, table or pivot.
//
// Response:
//
//	200 OK: RunResponse, or the rendered results for non-json formats
//	400 Bad Request: invalid body, document, rules, syntax or location
//	413 Request Entity Too Large: input over the size limit
//	422 Unprocessable Entity: input could not be parsed
//	502 Bad Gateway: remote input could not be fetched
//	504 Gateway Timeout: the run exceeded its deadline
func (h *Handlers) HandleRun(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := telemetry.LoggerWithTrace(c.Request.Context(), slog.Default()).With("request_id", requestID, "handler", "HandleRun")
	start := time.Now()

	outFormat := format.JSON
	if f := c.Query("format"); f != "" {
		parsed, err := format.ParseFormat(f)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_FORMAT"})
			return
		}
		outFormat = parsed
	}

	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
		return
	}
	if (req.Content == "") == (req.Location == "") {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "exactly one of content and location is required", Code: "INVALID_REQUEST"})
		return
	}

	doc, err := parseDocument(req.Document)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_DOCUMENT"})
		return
	}
	rules := h.rules
	if len(req.Rules) > 0 {
		rules, err = parseRules(req.Rules)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_RULES"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.runTimeout)
	defer cancel()

	in, status, code, err := h.input(ctx, req)
	if err != nil {
		logger.Warn("Input failed", "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	root, err := source.Parse(ctx, in, source.ParseOptions{
		Syntax:   req.Syntax,
		StartTag: req.StartTag,
		MaxSize:  h.maxInputSize,
	})
	if err != nil {
		status, code := parseErrorStatus(err)
		logger.Warn("Parse failed", "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	var scored int
	if rules != nil {
		stats, err := rules.Apply(ctx, root)
		if err != nil {
			c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: err.Error(), Code: "RUN_TIMEOUT"})
			return
		}
		for _, n := range stats.Matched {
			scored += n
		}
	}

	b := engine.NewBuilder(root, engine.WithLogger(telemetry.LoggerWithTrace(ctx, slog.Default())))
	results, err := doc.Run(ctx, b)
	var execErr *engine.ExecutionError
	switch {
	case err == nil:
	case errors.As(err, &execErr):
		logger.Warn("Run finished with node failures", "failures", len(execErr.Failures))
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: err.Error(), Code: "RUN_TIMEOUT"})
		return
	default:
		logger.Error("Run failed", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "RUN_FAILED"})
		return
	}

	resp := RunResponse{
		RequestID: requestID,
		Results:   results,
		Stats: RunStats{
			Items:      len(results),
			Records:    results.Len(),
			Scored:     scored,
			DurationMs: time.Since(start).Milliseconds(),
		},
	}
	if execErr != nil {
		for _, f := range execErr.Failures {
			resp.Failures = append(resp.Failures, Failure{Item: f.Item, Node: f.Node, Level: f.Level, Error: f.Err.Error()})
		}
	}

	logger.Info("Run complete",
		"items", resp.Stats.Items,
		"records", resp.Stats.Records,
		"failures", len(resp.Failures),
		"duration_ms", resp.Stats.DurationMs)

	if outFormat == format.JSON {
		c.JSON(http.StatusOK, resp)
		return
	}
	var buf bytes.Buffer
	if err := format.Render(&buf, results, outFormat); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "RENDER_FAILED"})
		return
	}
	c.Data(http.StatusOK, outFormat.ContentType(), buf.Bytes())
}

// input returns the request's input along with the status and code to use
// when it cannot be produced.
func (h *Handlers) input(ctx context.Context, req RunRequest) (*source.Input, int, string, error) {
	if req.Content != "" {
		return &source.Input{
			Location: "request",
			Kind:     source.KindStdin,
			Name:     req.Name,
			Content:  []byte(req.Content),
		}, 0, "", nil
	}

	if !h.allowRemote {
		return nil, http.StatusBadRequest, "REMOTE_DISABLED", errors.New("remote inputs are disabled")
	}
	loc := strings.ToLower(req.Location)
	if !strings.HasPrefix(loc, "http://") && !strings.HasPrefix(loc, "https://") && !strings.HasPrefix(loc, "gs://") {
		return nil, http.StatusBadRequest, "LOCATION_NOT_ALLOWED", errors.New("location must be an http(s) or gs:// URL")
	}

	in, err := h.loader.Load(ctx, req.Location)
	switch {
	case err == nil:
		return in, 0, "", nil
	case errors.Is(err, source.ErrTooLarge):
		return nil, http.StatusRequestEntityTooLarge, "INPUT_TOO_LARGE", err
	case errors.Is(err, source.ErrFetch), errors.Is(err, source.ErrCredentials):
		return nil, http.StatusBadGateway, "FETCH_FAILED", err
	case errors.Is(err, context.DeadlineExceeded):
		return nil, http.StatusGatewayTimeout, "RUN_TIMEOUT", err
	default:
		return nil, http.StatusBadRequest, "INVALID_LOCATION", err
	}
}

func parseErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, source.ErrUnknownSyntax), errors.Is(err, sittertree.ErrUnsupportedLanguage):
		return http.StatusBadRequest, "UNKNOWN_SYNTAX"
	case errors.Is(err, sittertree.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "INPUT_TOO_LARGE"
	case errors.Is(err, sittertree.ErrSyntax), errors.Is(err, htmltree.ErrNoElement):
		return http.StatusUnprocessableEntity, "PARSE_FAILED"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "RUN_TIMEOUT"
	}
	return http.StatusUnprocessableEntity, "PARSE_FAILED"
}

// parseDocument accepts a JSON document or a JSON string holding YAML.
func parseDocument(raw json.RawMessage) (*querydoc.Document, error) {
	data, err := unquote(raw)
	if err != nil {
		return nil, err
	}
	return querydoc.Parse(data)
}

func parseRules(raw json.RawMessage) (*scoring.RuleSet, error) {
	data, err := unquote(raw)
	if err != nil {
		return nil, err
	}
	return scoring.Parse(data)
}

func unquote(raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return []byte(s), nil
	}
	return trimmed, nil
}

func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	requestID := c.GetHeader(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header(requestIDHeader, requestID)
	c.Set(requestIDKey, requestID)
	return requestID
}
