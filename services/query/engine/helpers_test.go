// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"testing"

	"github.com/AleutianAI/nodequery/services/query/node"
)

// buildScoredTree builds:
//
//	body
//	├── h1 "Hello"        title{score: 3}
//	├── p "alpha"         content{score: 7}
//	├── p "beta"          content{score: 2}
//	└── ul
//	    ├── li "one"      content{score: 5}
//	    └── li "two"
//
// BFS order: body, h1, p, p, ul, li, li.
func buildScoredTree(t *testing.T) *node.Element {
	t.Helper()
	root := node.NewElement("body")
	root.AppendChild(node.NewElement("h1")).AppendText("Hello").SetDataPoint("title", "score", 3)
	root.AppendChild(node.NewElement("p")).AppendText("alpha").SetDataPoint("content", "score", 7)
	root.AppendChild(node.NewElement("p")).AppendText("beta").SetDataPoint("content", "score", 2)
	ul := root.AppendChild(node.NewElement("ul"))
	ul.AppendChild(node.NewElement("li")).AppendText("one").SetDataPoint("content", "score", 5)
	ul.AppendChild(node.NewElement("li")).AppendText("two")
	return root
}

func countNodes(root *node.Element) int {
	n := 0
	root.Walk(func(*node.Element) bool {
		n++
		return true
	})
	return n
}
