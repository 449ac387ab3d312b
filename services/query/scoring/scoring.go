// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scoring attaches items and data points to parsed trees from
// declarative YAML rules.
//
// A rule names an item and matches elements by name, attributes, text and
// depth. Every matched element receives the item with the rule's constant
// points plus any measured points:
//
//	rules:
//	  - item: title
//	    match:
//	      names: [h1, h2]
//	    points:
//	      score: 3
//	  - item: content
//	    match:
//	      names: [p]
//	      text: '\w{3,}'
//	    measures:
//	      length: text_length
//	      words: word_count
//
// Rules apply in order; a later rule for the same item and point
// overwrites the earlier value.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/nodequery/services/query/node"
)

// ErrInvalidRules is returned when a rule file fails validation.
var ErrInvalidRules = errors.New("invalid scoring rules")

// Measure names a computed data point.
type Measure string

const (
	// MeasureTextLength is the number of characters of Text().
	MeasureTextLength Measure = "text_length"

	// MeasureWordCount is the number of whitespace-separated words of Text().
	MeasureWordCount Measure = "word_count"

	// MeasureChildCount is the number of child elements.
	MeasureChildCount Measure = "child_count"

	// MeasureDepth is the distance from the root (root is 0).
	MeasureDepth Measure = "depth"

	// MeasurePosition is the 1-based position among siblings.
	MeasurePosition Measure = "position"
)

var knownMeasures = []Measure{
	MeasureTextLength, MeasureWordCount, MeasureChildCount, MeasureDepth, MeasurePosition,
}

// RuleSet is a rule file.
type RuleSet struct {
	Rules []Rule `yaml:"rules" validate:"required,min=1,dive"`
}

// Rule attaches one item to matching elements.
type Rule struct {
	// Item is the item key to attach.
	Item string `yaml:"item" validate:"required,excludes=."`

	// Match selects elements. An empty Match selects every element.
	Match Match `yaml:"match"`

	// Points are constant data points.
	Points map[string]float64 `yaml:"points" validate:"omitempty,dive,keys,required,excludes=.,endkeys"`

	// Measures are data points computed per element.
	Measures map[string]Measure `yaml:"measures" validate:"omitempty,dive,keys,required,excludes=.,endkeys,measure"`
}

// Match is the element filter of a rule. All set conditions must hold.
type Match struct {
	// Names lists accepted element names.
	Names []string `yaml:"names" validate:"omitempty,dive,required"`

	// Attrs requires attributes with exact values; "*" accepts any value.
	Attrs map[string]string `yaml:"attrs"`

	// Text is a regular expression searched in Text().
	Text string `yaml:"text" validate:"omitempty,regexp"`

	// MinDepth and MaxDepth bound the depth; MaxDepth 0 is unbounded.
	MinDepth int `yaml:"min_depth" validate:"gte=0"`
	MaxDepth int `yaml:"max_depth" validate:"gte=0"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("regexp", validateRegexp)
	_ = validate.RegisterValidation("measure", validateMeasure)
}

func validateRegexp(fl validator.FieldLevel) bool {
	_, err := regexp.Compile(fl.Field().String())
	return err == nil
}

func validateMeasure(fl validator.FieldLevel) bool {
	return slices.Contains(knownMeasures, Measure(fl.Field().String()))
}

// Parse decodes and validates a YAML rule set.
func Parse(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("decode scoring rules: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// Load reads and parses a rule file.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scoring rules: %w", err)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// Validate checks the rule set, wrapping failures in ErrInvalidRules.
func (rs *RuleSet) Validate() error {
	if err := validate.Struct(rs); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidRules, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	for i, r := range rs.Rules {
		if r.Match.MaxDepth > 0 && r.Match.MaxDepth < r.Match.MinDepth {
			return fmt.Errorf("%w: rule %d (%s): max_depth %d below min_depth %d",
				ErrInvalidRules, i, r.Item, r.Match.MaxDepth, r.Match.MinDepth)
		}
	}
	return nil
}

// Stats reports what Apply did.
type Stats struct {
	// Visited is the number of elements examined.
	Visited int

	// Matched counts matched elements per item.
	Matched map[string]int
}

// Apply scores every element under root.
//
// Description:
//
//	Walks root depth-first and, for each element, applies every rule whose
//	Match holds. A matched element always carries the rule's item, even
//	when the rule defines no points.
//
// Inputs:
//
//	ctx - Checked between elements.
//	root - The tree to score. Modified in place.
//
// Outputs:
//
//	Stats - Counts of visited and matched elements.
//	error - A context error; elements visited so far stay scored.
func (rs *RuleSet) Apply(ctx context.Context, root *node.Element) (Stats, error) {
	stats := Stats{Matched: make(map[string]int)}
	if root == nil {
		return stats, nil
	}

	compiled := make([]*regexp.Regexp, len(rs.Rules))
	for i, r := range rs.Rules {
		if r.Match.Text != "" {
			re, err := regexp.Compile(r.Match.Text)
			if err != nil {
				return stats, fmt.Errorf("%w: rule %d: %v", ErrInvalidRules, i, err)
			}
			compiled[i] = re
		}
	}

	var err error
	root.Walk(func(el *node.Element) bool {
		if err = ctx.Err(); err != nil {
			return false
		}
		stats.Visited++
		for i, r := range rs.Rules {
			if !r.Match.matches(el, compiled[i]) {
				continue
			}
			el.AddItem(r.Item)
			for key, v := range r.Points {
				el.SetDataPoint(r.Item, key, v)
			}
			for key, m := range r.Measures {
				el.SetDataPoint(r.Item, key, measure(el, m))
			}
			stats.Matched[r.Item]++
		}
		return true
	})
	if err != nil {
		return stats, fmt.Errorf("apply scoring rules: %w", err)
	}
	return stats, nil
}

func (m Match) matches(el *node.Element, text *regexp.Regexp) bool {
	if len(m.Names) > 0 && !slices.Contains(m.Names, el.NodeName()) {
		return false
	}
	depth := el.Depth()
	if depth < m.MinDepth || (m.MaxDepth > 0 && depth > m.MaxDepth) {
		return false
	}
	for key, want := range m.Attrs {
		got, ok := el.Attribute(key)
		if !ok || (want != "*" && got != want) {
			return false
		}
	}
	if text != nil && !text.MatchString(el.Text()) {
		return false
	}
	return true
}

func measure(el *node.Element, m Measure) float64 {
	switch m {
	case MeasureTextLength:
		return float64(len([]rune(el.Text())))
	case MeasureWordCount:
		return float64(len(strings.Fields(el.Text())))
	case MeasureChildCount:
		return float64(len(el.Elements()))
	case MeasureDepth:
		return float64(el.Depth())
	case MeasurePosition:
		return float64(el.PreviousAll().Len() + 1)
	}
	return 0
}
