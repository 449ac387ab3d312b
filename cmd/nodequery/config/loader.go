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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/nodequery/services/query/format"
)

// ErrInvalidConfig is returned when the configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// DefaultPath returns ~/.nodequery/nodequery.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".nodequery", "nodequery.yaml"), nil
}

// Load reads the configuration.
//
// Description:
//
//	With an empty path the default location is used and a default file is
//	created there on first run. An explicit path must exist. Keys missing
//	from the file keep their default values.
//
// Outputs:
//
//	NodeQueryConfig - The validated configuration.
//	bool            - True when a default file was created.
//	error           - Read, decode or ErrInvalidConfig errors.
func Load(path string) (NodeQueryConfig, bool, error) {
	created := false
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return NodeQueryConfig{}, false, err
		}
		path = p
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := createDefault(path); err != nil {
				return NodeQueryConfig{}, false, err
			}
			created = true
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return NodeQueryConfig{}, false, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return NodeQueryConfig{}, false, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, created, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (NodeQueryConfig, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return NodeQueryConfig{}, fmt.Errorf("failed to parse the config: %w", err)
	}
	cfg.Scoring.Rules = expandHome(cfg.Scoring.Rules)
	cfg.Source.CredentialsFile = expandHome(cfg.Source.CredentialsFile)
	if err := cfg.Validate(); err != nil {
		return NodeQueryConfig{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c NodeQueryConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Output.Format != "" {
		if _, err := format.ParseFormat(c.Output.Format); err != nil {
			return fmt.Errorf("%w: output.format: %v", ErrInvalidConfig, err)
		}
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("%w: telemetry.sample_ratio %v not in [0, 1]", ErrInvalidConfig, r)
	}
	return nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
