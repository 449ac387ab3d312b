// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes the query engine over HTTP.
//
// Clients post a query document together with the content to query (or a
// remote location) and receive the result set. The router carries request
// ids, OpenTelemetry tracing, per-client rate limiting and a Prometheus
// /metrics endpoint.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/nodequery/services/query/telemetry"
)

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address. Default ":8088".
	Addr string `yaml:"addr" validate:"required"`

	// ServiceName names the server in traces.
	ServiceName string `yaml:"service_name"`

	// RateLimit is the allowed requests per second per client; 0 disables
	// limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`

	// Burst is the rate limiter burst.
	Burst int `yaml:"burst" validate:"gte=0"`

	// MaxBodyBytes bounds request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes" validate:"gte=0"`

	// RunTimeout bounds a single run.
	RunTimeout time.Duration `yaml:"run_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AllowRemote lets requests name http(s) and gs:// locations.
	AllowRemote bool `yaml:"allow_remote"`

	// Debug enables gin debug mode and request logging.
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8088",
		ServiceName:     "nodequery",
		RateLimit:       20,
		Burst:           40,
		MaxBodyBytes:    10 * 1024 * 1024,
		RunTimeout:      30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// NewRouter builds the gin engine with middleware, /metrics and the /v1
// query routes.
func NewRouter(cfg Config, h *Handlers) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Debug {
		router.Use(gin.Logger())
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "nodequery"
	}
	router.Use(otelgin.Middleware(serviceName))
	router.Use(RequestID())
	if cfg.MaxBodyBytes > 0 {
		limit := cfg.MaxBodyBytes
		router.Use(func(c *gin.Context) {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
			c.Next()
		})
	}

	if metrics := telemetry.MetricsHandler(); metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := router.Group("/v1")
	if cfg.RateLimit > 0 {
		v1.Use(NewRateLimiter(cfg.RateLimit, cfg.Burst, 15*time.Minute).Middleware())
	}
	RegisterRoutes(v1, h.WithRunTimeout(cfg.RunTimeout).WithRemoteInputs(cfg.AllowRemote))
	return router
}

// Server is the HTTP server.
type Server struct {
	cfg  Config
	http *http.Server
}

// New creates a Server for handlers.
func New(cfg Config, h *Handlers) *Server {
	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewRouter(cfg, h),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting query server", "addr", s.cfg.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	slog.Info("Shutting down query server")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
