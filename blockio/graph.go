// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package blockio is the block graph loader (C7): format framing (header,
// block type table, optional string table, block section, footer/roots),
// two-pass link resolution, and the reachability-renumbering write path.
package blockio

import (
	"github.com/blockfmt/engine/registry"
	"github.com/blockfmt/engine/schema"
	"github.com/blockfmt/engine/value"
)

// Block is one addressable node in a graph: its arena index, its concrete
// compound type, and its decoded/to-be-encoded value instance.
type Block struct {
	Index    int
	Compound *schema.Compound
	Instance *value.Instance
}

// TypeName returns the block's concrete compound name.
func (b *Block) TypeName() string { return b.Compound.Name }

// Get returns the named field's slot from the block's instance.
func (b *Block) Get(name string) (value.Slot, bool) { return b.Instance.Get(name) }

// Set assigns the named field's slot on the block's instance. It does not
// itself validate the slot's shape against the schema; callers that need
// that guarantee should use the root package's Set, which does.
func (b *Block) Set(name string, s value.Slot) bool { return b.Instance.Set(name, s) }

// Graph is one loaded (or newly built) block graph: an arena of blocks
// addressed by small-integer id, plus the format parameters it was loaded
// with. Per spec.md §5 a Graph is single-owner and must not be shared
// across goroutines without external synchronization; its generation
// counter is bumped by every mutating walk operation so outstanding
// traversals observe themselves invalidated.
type Graph struct {
	Entry       registry.Entry
	Version     uint32
	UserVersion uint32
	Strings     []string // populated only for formats with a string table
	Header      *value.Instance

	blocks     []*Block
	roots      []int
	generation uint64
}

// Blocks returns the graph's arena in index order. The returned slice
// aliases the graph's own storage; callers must not retain it across a
// mutating operation.
func (g *Graph) Blocks() []*Block { return g.blocks }

// Block returns the block at arena index idx, or nil if out of range.
func (g *Graph) Block(idx int) *Block {
	if idx < 0 || idx >= len(g.blocks) {
		return nil
	}
	return g.blocks[idx]
}

// Roots returns the graph's root block indices, in declared order.
func (g *Graph) Roots() []int {
	out := make([]int, len(g.roots))
	copy(out, g.roots)
	return out
}

// Generation returns the graph's current mutation counter; a walk started
// at generation g is invalidated once Generation() no longer equals g.
func (g *Graph) Generation() uint64 { return g.generation }

// bump increments the generation counter; called by every mutating
// operation blockio or walk exposes.
func (g *Graph) bump() { g.generation++ }

// StringAt resolves a string-table index for formats that use one (e.g. a
// name field stored as a uint32 index rather than inline text). Returns ""
// if idx is out of range or the format has no string table.
func (g *Graph) StringAt(idx int) string {
	if idx < 0 || idx >= len(g.Strings) {
		return ""
	}
	return g.Strings[idx]
}
