// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package htmltree parses HTML documents into node.Element trees.
//
// Parsing follows the HTML5 algorithm (golang.org/x/net/html), so missing
// html, head and body elements are implied. Element nodes become Elements
// with their attributes; text becomes element content. Comments, doctypes
// and, by default, script and style elements are dropped.
package htmltree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"

	"github.com/AleutianAI/nodequery/services/query/node"
	"github.com/AleutianAI/nodequery/services/query/telemetry"
)

// ErrNoElement is returned when the document has no element with the
// requested start tag.
var ErrNoElement = errors.New("start element not found")

// contextCheckInterval is how often, in converted nodes, Parse checks its
// context.
const contextCheckInterval = 512

var defaultSkip = []string{"script", "style", "noscript", "template"}

type options struct {
	startTag       string
	skip           map[string]bool
	keepWhitespace bool
	renderMarkup   bool
}

// Option configures Parse.
type Option func(*options)

// WithStartTag roots the tree at the first element named tag (document
// order). Default: "html".
func WithStartTag(tag string) Option {
	return func(o *options) {
		if tag != "" {
			o.startTag = strings.ToLower(tag)
		}
	}
}

// WithSkipTags replaces the set of elements dropped with their content.
// Default: script, style, noscript, template.
func WithSkipTags(tags ...string) Option {
	return func(o *options) {
		o.skip = make(map[string]bool, len(tags))
		for _, t := range tags {
			o.skip[strings.ToLower(t)] = true
		}
	}
}

// WithKeepWhitespace keeps whitespace-only text between elements.
func WithKeepWhitespace() Option {
	return func(o *options) {
		o.keepWhitespace = true
	}
}

// WithRenderedMarkup stores each element's inner markup as rendered by the
// HTML5 serializer, so HTML() matches html.Render exactly (void elements,
// raw text). Costs one render per element.
func WithRenderedMarkup() Option {
	return func(o *options) {
		o.renderMarkup = true
	}
}

// Parse reads an HTML document from r and converts it.
//
// Description:
//
//	Parses the whole document, finds the start element, then converts its
//	subtree into Elements. All Elements share one registry, so scores set
//	later on any of them are visible tree-wide.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	r - The document.
//	opts - WithStartTag, WithSkipTags, WithKeepWhitespace, WithRenderedMarkup.
//
// Outputs:
//
//	*node.Element - The root element.
//	error - A parse error, ErrNoElement, or a context error.
func Parse(ctx context.Context, r io.Reader, opts ...Option) (*node.Element, error) {
	o := options{startTag: "html"}
	WithSkipTags(defaultSkip...)(&o)
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := telemetry.StartSpan(ctx, "nodequery.htmltree", "htmltree.Parse",
		trace.WithAttributes(attribute.String("start_tag", o.startTag)),
	)
	defer span.End()

	doc, err := html.Parse(r)
	if err != nil {
		err = fmt.Errorf("parse html: %w", err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	start := findElement(doc, o.startTag)
	if start == nil {
		err := fmt.Errorf("%w: <%s>", ErrNoElement, o.startTag)
		telemetry.RecordError(span, err)
		return nil, err
	}

	c := converter{ctx: ctx, opts: o}
	root := c.element(start)
	if err := c.walk(start, root); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("elements", c.count))
	telemetry.SetSpanOK(span)
	return root, nil
}

// ParseString parses an HTML document held in a string.
func ParseString(ctx context.Context, s string, opts ...Option) (*node.Element, error) {
	return Parse(ctx, strings.NewReader(s), opts...)
}

// findElement returns the first element named tag in document order.
func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

type converter struct {
	ctx   context.Context
	opts  options
	count int
}

func (c *converter) element(n *html.Node) *node.Element {
	attrs := make([]node.Attr, 0, len(n.Attr))
	for _, a := range n.Attr {
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + a.Key
		}
		attrs = append(attrs, node.Attr{Key: key, Val: a.Val})
	}
	el := node.NewElement(n.Data, attrs...)
	if c.opts.renderMarkup {
		el.SetMarkup(innerHTML(n))
	}
	c.count++
	return el
}

// walk converts the children of src into children and content of dst.
func (c *converter) walk(src *html.Node, dst *node.Element) error {
	for ch := src.FirstChild; ch != nil; ch = ch.NextSibling {
		switch ch.Type {
		case html.TextNode:
			if !c.opts.keepWhitespace && strings.TrimSpace(ch.Data) == "" {
				continue
			}
			dst.AppendText(ch.Data)

		case html.ElementNode:
			if c.opts.skip[ch.Data] {
				continue
			}
			if c.count%contextCheckInterval == 0 {
				if err := c.ctx.Err(); err != nil {
					return fmt.Errorf("convert html: %w", err)
				}
			}
			child := c.element(ch)
			dst.AppendChild(child)
			if err := c.walk(ch, child); err != nil {
				return err
			}
		}
	}
	return nil
}

func innerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		_ = html.Render(&buf, ch)
	}
	return buf.String()
}
