// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package source

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/nodequery/services/query/htmltree"
	"github.com/AleutianAI/nodequery/services/query/node"
	"github.com/AleutianAI/nodequery/services/query/sittertree"
)

// SyntaxDOM selects the HTML document parser, which yields element nodes
// with attributes rather than a concrete syntax tree.
const SyntaxDOM = "dom"

// ParseOptions tunes how an input becomes a tree.
type ParseOptions struct {
	// Syntax forces a parser: "dom" for HTML documents or a tree-sitter
	// language name. Empty means detect.
	Syntax string
	// StartTag is the HTML element the DOM tree is rooted at.
	StartTag string
	// Strict rejects source code with syntax errors.
	Strict bool
	// MaxSize bounds tree-sitter inputs. Zero keeps the parser default.
	MaxSize int
}

// DetectSyntax names the parser for in: SyntaxDOM or a tree-sitter
// language.
//
// HTML documents go to the DOM parser. Otherwise the file extension picks a
// grammar. Inputs without a usable extension fall back to the content type
// and finally to sniffing for markup.
func DetectSyntax(in *Input) (string, error) {
	ext := strings.ToLower(filepath.Ext(in.Name))
	switch ext {
	case ".html", ".htm", ".xhtml":
		return SyntaxDOM, nil
	}
	if lang, ok := sittertree.LanguageForPath(in.Name); ok {
		return string(lang), nil
	}
	if in.ContentType != "" {
		if mt, _, err := mime.ParseMediaType(in.ContentType); err == nil {
			switch mt {
			case "text/html", "application/xhtml+xml":
				return SyntaxDOM, nil
			case "text/css":
				return string(sittertree.CSS), nil
			case "text/javascript", "application/javascript":
				return string(sittertree.JavaScript), nil
			case "application/yaml", "text/yaml", "application/x-yaml":
				return string(sittertree.YAML), nil
			}
		}
	}
	if bytes.HasPrefix(bytes.TrimSpace(in.Content), []byte("<")) {
		return SyntaxDOM, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownSyntax, in.Location)
}

// Parse turns in into a tree using the parser chosen by opts.Syntax or by
// DetectSyntax.
func Parse(ctx context.Context, in *Input, opts ParseOptions) (*node.Element, error) {
	syntax := opts.Syntax
	if syntax == "" {
		detected, err := DetectSyntax(in)
		if err != nil {
			return nil, err
		}
		syntax = detected
	}

	if strings.EqualFold(syntax, SyntaxDOM) {
		var hopts []htmltree.Option
		if opts.StartTag != "" {
			hopts = append(hopts, htmltree.WithStartTag(opts.StartTag))
		}
		root, err := htmltree.Parse(ctx, bytes.NewReader(in.Content), hopts...)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", in.Location, err)
		}
		return root, nil
	}

	lang, err := sittertree.ParseLanguage(syntax)
	if err != nil {
		return nil, err
	}
	var sopts []sittertree.Option
	if opts.Strict {
		sopts = append(sopts, sittertree.WithStrict())
	}
	if opts.MaxSize > 0 {
		sopts = append(sopts, sittertree.WithMaxSize(opts.MaxSize))
	}
	root, err := sittertree.Parse(ctx, in.Content, lang, sopts...)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", in.Location, err)
	}
	return root, nil
}
