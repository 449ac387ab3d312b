// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/nodequery/services/query/server"
)

type serveOptions struct {
	addr        string
	rulesPath   string
	allowRemote bool
	debug       bool
}

func newServeCmd(a *app) *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API over HTTP",
		Long: `Serve starts the HTTP API:

  POST /v1/query/run       run a query document over posted or remote content
  POST /v1/query/validate  validate a query document
  GET  /v1/query/health    health check
  GET  /metrics            Prometheus metrics (with the prometheus exporter)`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			srv, err := a.newServer(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			a.printer.Title("nodequery API")
			a.printer.Info("Listening on %s", a.cfg.Server.Addr)
			if err := srv.Run(ctx); err != nil {
				return err
			}
			a.printer.Success("Server stopped")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", "", "listen address (default from config)")
	f.StringVar(&opts.rulesPath, "rules", "", "default scoring rules (default from config)")
	f.BoolVar(&opts.allowRemote, "allow-remote", false, "allow requests to name http(s) and gs:// inputs")
	f.BoolVar(&opts.debug, "debug", false, "enable gin debug mode and request logging")
	return cmd
}

// newServer applies flag overrides to the server configuration and builds
// the server.
func (a *app) newServer(cmd *cobra.Command, opts serveOptions) (*server.Server, error) {
	if opts.addr != "" {
		a.cfg.Server.Addr = opts.addr
	}
	if cmd.Flags().Changed("allow-remote") {
		a.cfg.Server.AllowRemote = opts.allowRemote
	}
	if opts.debug {
		a.cfg.Server.Debug = true
	}

	rules, _, err := a.loadRules(opts.rulesPath)
	if err != nil {
		return nil, err
	}
	h := server.NewHandlers(a.newLoader()).
		WithRules(rules).
		WithMaxInputSize(int(a.cfg.Source.MaxSize))
	return server.New(a.cfg.Server, h), nil
}
