// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sittertree parses source code with tree-sitter into node.Element
// trees, so queries can run over syntax trees.
//
// Every named syntax node becomes an Element named after its grammar type
// (function_declaration, identifier, ...). Anonymous tokens and the text
// between nodes become element content, so Text() of any Element returns
// its exact source span and HTML() returns it unescaped.
//
// Each Element carries the attributes:
//
//	field       the field name in its parent, when the grammar names one
//	start_line  1-based first line
//	end_line    1-based last line
//	start_byte  byte offset of the start
//	end_byte    byte offset of the end
//	error       "true" on ERROR and MISSING nodes
//
// # Thread Safety
//
// Parse is safe for concurrent use; each call creates its own parser.
package sittertree

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/css"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/html"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/yaml"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/nodequery/services/query/node"
	"github.com/AleutianAI/nodequery/services/query/telemetry"
)

// DefaultMaxSize is the largest input Parse accepts unless overridden (10MB).
const DefaultMaxSize = 10 * 1024 * 1024

const contextCheckInterval = 1024

var (
	// ErrUnsupportedLanguage is returned for a language with no grammar.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrTooLarge is returned when the input exceeds the size limit.
	ErrTooLarge = errors.New("input too large")

	// ErrSyntax is returned in strict mode when the tree has errors.
	ErrSyntax = errors.New("syntax error")
)

// Language names a supported grammar.
type Language string

const (
	Go         Language = "go"
	Python     Language = "python"
	JavaScript Language = "javascript"
	HTML       Language = "html"
	CSS        Language = "css"
	Bash       Language = "bash"
	YAML       Language = "yaml"
)

// Languages returns the supported languages.
func Languages() []Language {
	return []Language{Bash, CSS, Go, HTML, JavaScript, Python, YAML}
}

var extensions = map[string]Language{
	".go":   Go,
	".py":   Python,
	".pyi":  Python,
	".js":   JavaScript,
	".mjs":  JavaScript,
	".cjs":  JavaScript,
	".jsx":  JavaScript,
	".html": HTML,
	".htm":  HTML,
	".css":  CSS,
	".sh":   Bash,
	".bash": Bash,
	".yaml": YAML,
	".yml":  YAML,
}

// LanguageForPath picks a language by file extension.
func LanguageForPath(path string) (Language, bool) {
	lang, ok := extensions[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// ParseLanguage parses a language name; "golang", "js" and "sh" are
// accepted as aliases.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "go", "golang":
		return Go, nil
	case "python", "py":
		return Python, nil
	case "javascript", "js":
		return JavaScript, nil
	case "html":
		return HTML, nil
	case "css":
		return CSS, nil
	case "bash", "sh", "shell":
		return Bash, nil
	case "yaml", "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, s)
}

func grammar(lang Language) (*sitter.Language, error) {
	switch lang {
	case Go:
		return golang.GetLanguage(), nil
	case Python:
		return python.GetLanguage(), nil
	case JavaScript:
		return javascript.GetLanguage(), nil
	case HTML:
		return html.GetLanguage(), nil
	case CSS:
		return css.GetLanguage(), nil
	case Bash:
		return bash.GetLanguage(), nil
	case YAML:
		return yaml.GetLanguage(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
}

type options struct {
	maxSize int
	strict  bool
}

// Option configures Parse.
type Option func(*options)

// WithMaxSize overrides DefaultMaxSize. Non-positive disables the limit.
func WithMaxSize(n int) Option {
	return func(o *options) {
		o.maxSize = n
	}
}

// WithStrict makes Parse fail with ErrSyntax when the tree contains
// ERROR or MISSING nodes. By default such trees are returned with those
// nodes flagged.
func WithStrict() Option {
	return func(o *options) {
		o.strict = true
	}
}

// Parse parses content as lang and converts the syntax tree.
//
// Description:
//
//	Runs tree-sitter over content, then converts the syntax tree into
//	Elements depth-first. The root Element is the grammar's root node
//	(source_file, module, program, document, ...).
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	content - Source bytes. Not retained.
//	lang - The grammar to use.
//	opts - WithMaxSize, WithStrict.
//
// Outputs:
//
//	*node.Element - The root element.
//	error - ErrUnsupportedLanguage, ErrTooLarge, ErrSyntax, or a parse or
//	context error.
func Parse(ctx context.Context, content []byte, lang Language, opts ...Option) (*node.Element, error) {
	o := options{maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := telemetry.StartSpan(ctx, "nodequery.sittertree", "sittertree.Parse",
		trace.WithAttributes(
			attribute.String("language", string(lang)),
			attribute.Int("bytes", len(content)),
		),
	)
	defer span.End()

	fail := func(err error) (*node.Element, error) {
		telemetry.RecordError(span, err)
		return nil, err
	}

	gram, err := grammar(lang)
	if err != nil {
		return fail(err)
	}
	if o.maxSize > 0 && len(content) > o.maxSize {
		return fail(fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(content), o.maxSize))
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(gram)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return fail(fmt.Errorf("parse %s: %w", lang, err))
	}
	defer tree.Close()

	root := tree.RootNode()
	if o.strict && root.HasError() {
		return fail(fmt.Errorf("%w in %s source", ErrSyntax, lang))
	}

	c := converter{ctx: ctx, src: content}
	el, err := c.convert(root, "")
	if err != nil {
		return fail(err)
	}

	span.SetAttributes(attribute.Int("elements", c.count))
	telemetry.SetSpanOK(span)
	return el, nil
}

type converter struct {
	ctx   context.Context
	src   []byte
	count int
}

// convert builds the Element for a named node. Text between named children
// (including anonymous tokens) is kept as content.
func (c *converter) convert(n *sitter.Node, field string) (*node.Element, error) {
	c.count++
	if c.count%contextCheckInterval == 0 {
		if err := c.ctx.Err(); err != nil {
			return nil, fmt.Errorf("convert syntax tree: %w", err)
		}
	}

	start, end := n.StartByte(), n.EndByte()
	attrs := make([]node.Attr, 0, 6)
	if field != "" {
		attrs = append(attrs, node.Attr{Key: "field", Val: field})
	}
	attrs = append(attrs,
		node.Attr{Key: "start_line", Val: strconv.Itoa(int(n.StartPoint().Row) + 1)},
		node.Attr{Key: "end_line", Val: strconv.Itoa(int(n.EndPoint().Row) + 1)},
		node.Attr{Key: "start_byte", Val: strconv.Itoa(int(start))},
		node.Attr{Key: "end_byte", Val: strconv.Itoa(int(end))},
	)
	if n.IsError() || n.IsMissing() {
		attrs = append(attrs, node.Attr{Key: "error", Val: "true"})
	}

	el := node.NewElement(n.Type(), attrs...)
	el.SetMarkup(string(c.src[start:end]))

	cursor := start
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || !child.IsNamed() {
			continue
		}
		if child.StartByte() > cursor {
			el.AppendText(string(c.src[cursor:child.StartByte()]))
		}
		sub, err := c.convert(child, n.FieldNameForChild(i))
		if err != nil {
			return nil, err
		}
		el.AppendChild(sub)
		if child.EndByte() > cursor {
			cursor = child.EndByte()
		}
	}
	if end > cursor {
		el.AppendText(string(c.src[cursor:end]))
	}
	return el, nil
}
