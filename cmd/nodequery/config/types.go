// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the nodequery CLI configuration file.
package config

import (
	"time"

	"github.com/AleutianAI/nodequery/pkg/logging"
	"github.com/AleutianAI/nodequery/services/query/server"
	"github.com/AleutianAI/nodequery/services/query/source"
	"github.com/AleutianAI/nodequery/services/query/telemetry"
)

// NodeQueryConfig is the content of nodequery.yaml.
type NodeQueryConfig struct {
	Logging   logging.Config   `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Server    server.Config    `yaml:"server"`
	Scoring   ScoringConfig    `yaml:"scoring"`
	Output    OutputConfig     `yaml:"output"`
	Source    SourceConfig     `yaml:"source"`
}

// ScoringConfig points at the default scoring rules.
type ScoringConfig struct {
	// Rules is a rule file applied to every input. "~" expands to the home
	// directory. Empty means no scoring unless --rules is given.
	Rules string `yaml:"rules"`
}

// OutputConfig controls result rendering.
type OutputConfig struct {
	// Format is json, yaml, table or pivot. Empty picks table on a terminal
	// and json otherwise.
	Format string `yaml:"format" validate:"omitempty,oneof=json yaml yml table pivot csv"`
}

// SourceConfig controls input loading.
type SourceConfig struct {
	// MaxSize bounds a single input in bytes.
	MaxSize int64 `yaml:"max_size" validate:"gte=0"`

	// Timeout bounds an http(s) fetch.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`

	// UserAgent is sent with http(s) fetches.
	UserAgent string `yaml:"user_agent"`

	// CredentialsFile is a service account key for gs:// inputs. Empty uses
	// application default credentials.
	CredentialsFile string `yaml:"credentials_file"`

	// StartTag roots HTML trees at this element.
	StartTag string `yaml:"start_tag"`

	// Strict rejects source code with syntax errors.
	Strict bool `yaml:"strict"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() NodeQueryConfig {
	return NodeQueryConfig{
		Logging: logging.Config{
			Level:   logging.LevelInfo,
			Service: "nodequery",
		},
		Telemetry: telemetry.DefaultConfig(),
		Server:    server.DefaultConfig(),
		Source: SourceConfig{
			MaxSize:   source.DefaultMaxSize,
			Timeout:   source.DefaultTimeout,
			UserAgent: "nodequery/1.0",
			StartTag:  "html",
		},
	}
}
