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
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/nodequery/cmd/nodequery/config"
	"github.com/AleutianAI/nodequery/pkg/logging"
	"github.com/AleutianAI/nodequery/pkg/ux"
	"github.com/AleutianAI/nodequery/services/query/scoring"
	"github.com/AleutianAI/nodequery/services/query/source"
	"github.com/AleutianAI/nodequery/services/query/telemetry"
)

// app carries what every subcommand shares once the root command's
// pre-run has loaded the configuration.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
	quiet      bool

	cfg      config.NodeQueryConfig
	logger   *logging.Logger
	printer  *ux.Printer
	shutdown func(context.Context) error
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{stdin: stdin, stdout: stdout, stderr: stderr}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "nodequery",
		Short: "Query HTML documents and source code trees",
		Long: `nodequery runs select/from/where/order/limit queries over node trees.

Inputs are HTML documents or source files (parsed with tree-sitter), read from
local paths, stdin, http(s) URLs or gs:// objects. Scoring rules attach items
and data points to nodes; query documents select records from them.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.nodequery/nodequery.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	root.PersistentFlags().BoolVar(&a.quiet, "quiet", false, "suppress status lines and stderr logs")

	root.AddCommand(newRunCmd(a), newServeCmd(a), newVersionCmd(a))
	return root
}

// setup loads the configuration and installs logging and telemetry.
func (a *app) setup(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, created, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if a.logLevel != "" {
		lvl, err := logging.ParseLevel(a.logLevel)
		if err != nil {
			return err
		}
		a.cfg.Logging.Level = lvl
	}
	if a.quiet {
		a.cfg.Logging.Quiet = true
	}
	logCfg := a.cfg.Logging
	logCfg.Output = a.stderr
	a.logger = logging.New(logCfg)
	slog.SetDefault(a.logger.Slog())

	if a.quiet {
		a.printer = ux.NewPlainPrinter(io.Discard)
	} else {
		a.printer = ux.NewPrinter(a.stderr)
	}
	if created {
		path, _ := config.DefaultPath()
		a.printer.Info("First run detected, created the config at %s", path)
	}

	shutdown, err := telemetry.Init(ctx, a.cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	a.shutdown = shutdown
	return nil
}

// close flushes telemetry and closes the log file.
func (a *app) close() {
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
		cancel()
		a.shutdown = nil
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

// newLoader builds an input loader from the source configuration.
func (a *app) newLoader() *source.Loader {
	sc := a.cfg.Source
	opts := []source.Option{
		source.WithStdin(a.stdin),
		source.WithMaxSize(sc.MaxSize),
		source.WithUserAgent(sc.UserAgent),
		source.WithCredentialsFile(sc.CredentialsFile),
		source.WithLogger(slog.Default()),
	}
	if sc.Timeout > 0 {
		opts = append(opts, source.WithHTTPClient(newHTTPClient(sc.Timeout)))
	}
	return source.NewLoader(opts...)
}

// loadRules loads the rule file named by flag, falling back to the
// configured one. No file means no scoring.
func (a *app) loadRules(flag string) (*scoring.RuleSet, string, error) {
	path := flag
	if path == "" {
		path = a.cfg.Scoring.Rules
	}
	if path == "" {
		return nil, "", nil
	}
	rules, err := scoring.Load(path)
	if err != nil {
		return nil, "", err
	}
	return rules, path, nil
}
