// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command nodequery runs select/from/where queries over HTML documents and
// source code trees.
//
// Usage:
//
//	nodequery run -q queries.yaml page.html
//	nodequery run -q queries.yaml --rules rules.yaml -o table https://example.com/
//	nodequery run -q queries.yaml --watch src/main.go
//	nodequery serve --addr :8088
//	nodequery version
package main

import (
	"os"
)

func main() {
	a := newApp(os.Stdin, os.Stdout, os.Stderr)
	err := newRootCmd(a).Execute()
	a.close()
	if err != nil {
		os.Exit(1)
	}
}
