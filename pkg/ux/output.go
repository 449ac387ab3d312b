// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides styled terminal output for the nodequery CLI.
//
// Output is either rich (colors and icons) or plain. Plain mode is chosen
// automatically when the writer is not a terminal so that piped output stays
// parseable.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette, brightest to darkest.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#2C4A54")
)

// Styles provides pre-configured lipgloss styles shared by the CLI and the
// table renderer.
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style

	// Table pieces.
	Header lipgloss.Style
	Cell   lipgloss.Style
	Border lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),

	Header: lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary).Padding(0, 1),
	Cell:   lipgloss.NewStyle().Padding(0, 1),
	Border: lipgloss.NewStyle().Foreground(ColorTealDeep),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
)

// Render returns the icon with its status color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// Printer writes status lines to a writer.
//
// Description:
//
//	In plain mode every line is prefixed with an upper-case tag (OK:, WARN:,
//	ERROR:) and carries no escape sequences. In rich mode lines get icons and
//	colors.
//
// Thread Safety: Safe for concurrent use; lines are written atomically.
type Printer struct {
	mu    sync.Mutex
	out   io.Writer
	plain bool
}

// NewPrinter returns a Printer for w. Plain mode is selected when w is not a
// terminal.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{out: w, plain: !IsTerminal(w)}
}

// NewPlainPrinter returns a Printer that never emits styling.
func NewPlainPrinter(w io.Writer) *Printer {
	return &Printer{out: w, plain: true}
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Plain reports whether the printer is in plain mode.
func (p *Printer) Plain() bool { return p.plain }

func (p *Printer) line(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, s)
}

// Title prints a heading. Plain printers skip it.
func (p *Printer) Title(text string) {
	if p.plain {
		return
	}
	p.line(Styles.Title.Render(text))
}

// Success prints a success line.
func (p *Printer) Success(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if p.plain {
		p.line("OK: " + text)
		return
	}
	p.line(IconSuccess.Render() + " " + Styles.Success.Render(text))
}

// Warning prints a warning line.
func (p *Printer) Warning(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if p.plain {
		p.line("WARN: " + text)
		return
	}
	p.line(IconWarning.Render() + " " + Styles.Warning.Render(text))
}

// Error prints an error line.
func (p *Printer) Error(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if p.plain {
		p.line("ERROR: " + text)
		return
	}
	p.line(IconError.Render() + " " + Styles.Error.Render(text))
}

// Info prints an informational line.
func (p *Printer) Info(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if p.plain {
		p.line(text)
		return
	}
	p.line(Styles.Muted.Render("│") + " " + text)
}

// Summary prints commit counts for one input.
func (p *Printer) Summary(input string, items, records, failures int) {
	if p.plain {
		p.line(fmt.Sprintf("SUMMARY: input=%s items=%d records=%d failures=%d", input, items, records, failures))
		return
	}
	status := IconSuccess.Render()
	if failures > 0 {
		status = IconWarning.Render()
	}
	p.line(strings.Join([]string{
		status,
		Styles.Bold.Render(input),
		string(IconArrow),
		Styles.Success.Render(fmt.Sprint(items)), Styles.Muted.Render("items"),
		Styles.Success.Render(fmt.Sprint(records)), Styles.Muted.Render("records"),
		Styles.Warning.Render(fmt.Sprint(failures)), Styles.Muted.Render("failures"),
	}, " "))
}
