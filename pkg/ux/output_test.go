// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestIcon_Render(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconArrow} {
		if !strings.Contains(icon.Render(), string(icon)) {
			t.Errorf("Render() of %q lost the glyph", icon)
		}
	}
}

func TestNewPrinter_BufferIsPlain(t *testing.T) {
	p := NewPrinter(&bytes.Buffer{})
	if !p.Plain() {
		t.Error("expected plain mode for a non-terminal writer")
	}
}

func TestPrinter_Plain(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)

	p.Title("ignored")
	p.Success("done %d", 3)
	p.Warning("careful")
	p.Error("broke: %s", "x")
	p.Info("fyi")
	p.Summary("page.html", 2, 5, 1)

	want := "OK: done 3\n" +
		"WARN: careful\n" +
		"ERROR: broke: x\n" +
		"fyi\n" +
		"SUMMARY: input=page.html items=2 records=5 failures=1\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestPrinter_Rich(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{out: &buf}

	p.Title("Results")
	p.Success("ok")
	p.Summary("in", 1, 1, 0)

	out := buf.String()
	for _, want := range []string{"Results", "ok", string(IconSuccess), "in", "records"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "OK:") {
		t.Error("rich output should not carry plain tags")
	}
}

func TestPrinter_ConcurrentLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Info("line")
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 50 {
		t.Fatalf("expected 50 lines, got %d", len(lines))
	}
	for _, l := range lines {
		if l != "line" {
			t.Fatalf("interleaved line %q", l)
		}
	}
}
