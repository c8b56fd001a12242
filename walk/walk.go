// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package walk is the graph traversal/mutation layer (C8): lazy,
// restartable traversal with visit-once semantics, plus the mutation
// primitives (Replace, InsertParent, Remove) that rewrite links in place.
package walk

import (
	"errors"
	"iter"

	"github.com/blockfmt/engine/blockio"
	"github.com/blockfmt/engine/value"
)

// Order selects pre-order (a block before its children) or post-order (a
// block after its children) traversal.
type Order int

const (
	// PreOrder visits a block before its children.
	PreOrder Order = iota
	// PostOrder visits a block after its children.
	PostOrder
)

// ErrInvalidated names the condition of a graph mutated during a Walk; per
// spec.md §4.6, traversal is lazy and restartable but not safe under
// concurrent mutation. A Walk sequence carries blocks only, so Walk never
// returns this error: the sequence simply ends early.
var ErrInvalidated = errors.New("walk: graph mutated during traversal")

// Roots returns g's root blocks, in declared order.
func Roots(g *blockio.Graph) []*blockio.Block {
	idxs := g.Roots()
	out := make([]*blockio.Block, len(idxs))
	for i, idx := range idxs {
		out[i] = g.Block(idx)
	}
	return out
}

// Walk returns a lazy, visit-once sequence over every block reachable from
// g's roots, in the given order, optionally following weak links as well
// as strong ones. The identity set backing visit-once tracking is keyed by
// arena index; every block keeps its index for its lifetime (Replace
// retargets links to a block with its own index). Iteration stops (the sequence simply ends) if g is
// mutated mid-walk — callers that need to detect this explicitly should
// compare g.Generation() before and after consuming the sequence.
func Walk(g *blockio.Graph, order Order, visitWeak bool) iter.Seq[*blockio.Block] {
	startGen := g.Generation()
	return func(yield func(*blockio.Block) bool) {
		visited := make(map[int]bool)
		var visit func(b *blockio.Block) bool // returns false to stop
		visit = func(b *blockio.Block) bool {
			if b == nil || visited[b.Index] {
				return true
			}
			if g.Generation() != startGen {
				return false
			}
			visited[b.Index] = true

			if order == PreOrder {
				if !yield(b) {
					return false
				}
			}
			ok := true
			children(b, visitWeak, func(child *blockio.Block) bool {
				ok = visit(child)
				return ok
			})
			if !ok {
				return false
			}
			if order == PostOrder {
				if !yield(b) {
					return false
				}
			}
			return true
		}
		for _, r := range Roots(g) {
			if !visit(r) {
				return
			}
		}
	}
}

// Find filters Walk's sequence by a caller-supplied predicate over a
// block's type name.
func Find(g *blockio.Graph, order Order, visitWeak bool, pred func(typeName string) bool) iter.Seq[*blockio.Block] {
	return func(yield func(*blockio.Block) bool) {
		for b := range Walk(g, order, visitWeak) {
			if pred(b.TypeName()) {
				if !yield(b) {
					return
				}
			}
		}
	}
}

// children invokes visit for each block b links to, strong links always and
// weak links only when visitWeak is true, in field declaration order.
func children(b *blockio.Block, visitWeak bool, visit func(*blockio.Block) bool) {
	walkLinks(b.Instance, func(link *value.Link) bool {
		if !link.Strong && !visitWeak {
			return true
		}
		target, ok := link.Target.(*blockio.Block)
		if !ok || target == nil {
			return true
		}
		return visit(target)
	})
}

// walkLinks invokes fn for every Link slot reachable from inst (recursing
// through sub-instances and arrays), in field order, stopping early if fn
// returns false.
func walkLinks(inst *value.Instance, fn func(*value.Link) bool) bool {
	for i := range inst.Compound.Fields {
		slot := inst.Slots[i]
		switch slot.Kind {
		case value.SlotLink:
			link, _ := slot.LinkVal()
			if !fn(link) {
				return false
			}
		case value.SlotInstance:
			sub, _ := slot.Instance()
			if !walkLinks(sub, fn) {
				return false
			}
		case value.SlotArray:
			arr, _ := slot.ArrayVal()
			if !walkArrayLinks(arr, fn) {
				return false
			}
		}
	}
	return true
}

// Replace rewrites every strong and weak link in g that targets old so it
// targets replacement instead, preserving each link's own strength, and
// substitutes replacement for old in the root list if old was a root.
// replacement must already belong to g (see blockio.Graph.AddBlock).
func Replace(g *blockio.Graph, old, replacement *blockio.Block) {
	blockio.Replace(g, old, replacement)
}

// InsertParent moves every strong link currently targeting child so it
// targets newParent instead, then makes newParent strong-link child through
// the field named parentLinkField. newParent must already belong to g and
// declare a ref field by that name whose target type accepts child.
func InsertParent(g *blockio.Graph, child, newParent *blockio.Block, parentLinkField string) error {
	return blockio.InsertParent(g, child, newParent, parentLinkField)
}

// Remove nulls every link in g that targets block and drops block from the
// root list if it was one. If cascade is true, blocks that become
// strong-unreachable as a result also have their own outgoing links nulled;
// this is hygiene only, since an unreachable block is already excluded from
// Walk and from Save regardless of cascade.
func Remove(g *blockio.Graph, block *blockio.Block, cascade bool) {
	blockio.Remove(g, block, cascade)
}

func walkArrayLinks(arr *value.Array, fn func(*value.Link) bool) bool {
	visit := func(s value.Slot) bool {
		switch s.Kind {
		case value.SlotLink:
			link, _ := s.LinkVal()
			return fn(link)
		case value.SlotInstance:
			sub, _ := s.Instance()
			return walkLinks(sub, fn)
		}
		return true
	}
	if arr.Jagged {
		for _, row := range arr.Rows {
			for _, s := range row {
				if !visit(s) {
					return false
				}
			}
		}
		return true
	}
	for _, s := range arr.Elem {
		if !visit(s) {
			return false
		}
	}
	return true
}
