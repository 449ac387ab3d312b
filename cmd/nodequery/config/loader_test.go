// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/nodequery/pkg/logging"
)

func TestLoad_CreatesDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, created, err := Load("")
	require.NoError(t, err)
	assert.True(t, created)
	assert.FileExists(t, filepath.Join(home, ".nodequery", "nodequery.yaml"))
	assert.Equal(t, DefaultConfig().Server.Addr, cfg.Server.Addr)
	assert.Equal(t, logging.LevelInfo, cfg.Logging.Level)

	_, created, err = Load("")
	require.NoError(t, err)
	assert.False(t, created, "second run reuses the file")
}

func TestLoad_DefaultRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, _, err := Load("")
	require.NoError(t, err)

	want := DefaultConfig()
	assert.Equal(t, want.Source, cfg.Source)
	assert.Equal(t, want.Server, cfg.Server)
	assert.Equal(t, want.Telemetry, cfg.Telemetry)
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(`
logging:
  level: debug
  json: true
server:
  addr: ":9999"
  run_timeout: 5s
output:
  format: table
source:
  timeout: 2s
scoring:
  rules: ~/rules.yaml
`))
	require.NoError(t, err)
	assert.Equal(t, logging.LevelDebug, cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.RunTimeout)
	assert.Equal(t, 2*time.Second, cfg.Source.Timeout)
	assert.Equal(t, "table", cfg.Output.Format)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "rules.yaml"), cfg.Scoring.Rules)

	assert.Equal(t, DefaultConfig().Server.Burst, cfg.Server.Burst, "unset keys keep defaults")
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad format":       "output: {format: xml}",
		"empty addr":       "server: {addr: ''}",
		"negative limit":   "server: {rate_limit: -1}",
		"negative size":    "source: {max_size: -5}",
		"bad sample ratio": "telemetry: {sample_ratio: 2}",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := Parse([]byte("logging: {level: loud}"))
	assert.ErrorIs(t, err, logging.ErrUnknownLevel)
}
