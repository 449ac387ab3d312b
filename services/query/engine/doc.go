// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine runs SQL-like queries over a scored node tree.
//
// A query selects fields from the nodes of a tree, keyed by an item (the
// "table"), filters them with AND-combined predicates over data points and
// node capabilities, then orders and limits the collected records. Several
// queries can be batched so they share a single breadth-first traversal.
//
// # Usage
//
//	b := engine.NewBuilder(root)
//	rs, err := b.SelectNames("text").From("title").
//	    Where("title.score", ">=", 2).
//	    OrderBy("text", engine.Ascending).
//	    Get(ctx)
//
// Batching:
//
//	b.Start()
//	b.SelectNames("text").From("title").Get(ctx)
//	b.SelectNames("children").From("content").Get(ctx)
//	rs, err := b.Commit(ctx)
//
// # Errors
//
// Builder calls never fail. Malformed predicates (ErrInvalidCriteria) and
// unresolvable references (ErrInvalidReference) surface from Get and Commit.
// A failure only drops the record for the node and query it occurred on;
// the traversal continues and the failures are returned together as an
// *ExecutionError next to the partial ResultSet.
//
// # Thread Safety
//
// A Builder is NOT safe for concurrent use. Use one Builder per goroutine.
// Descriptors are immutable values and may be shared freely.
package engine
