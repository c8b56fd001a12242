// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package blockio

import (
	"fmt"

	"github.com/blockfmt/engine/schema"
	"github.com/blockfmt/engine/value"
)

// AddBlock appends a freshly-built block to g's arena and returns it. The
// new block starts unreachable (referenced by nothing) until a caller
// links to it or adds it to the roots.
func (g *Graph) AddBlock(c *schema.Compound, inst *value.Instance) *Block {
	b := &Block{Index: len(g.blocks), Compound: c, Instance: inst}
	g.blocks = append(g.blocks, b)
	g.bump()
	return b
}

// AddRoot appends b to the graph's root list.
func (g *Graph) AddRoot(b *Block) {
	g.roots = append(g.roots, b.Index)
	g.bump()
}

// Replace rewrites every strong and weak link in the graph that currently
// targets old so it targets replacement instead, preserving each link's own
// strength. If old was itself a root, replacement takes its place in the
// root list. replacement must already belong to g (added via AddBlock).
func Replace(g *Graph, old, replacement *Block) {
	for _, b := range g.blocks {
		if b == old {
			continue
		}
		retargetInstanceLinks(b.Instance, old, replacement)
	}
	for i, r := range g.roots {
		if r == old.Index {
			g.roots[i] = replacement.Index
		}
	}
	g.bump()
}

func retargetInstanceLinks(inst *value.Instance, old, replacement *Block) {
	for i := range inst.Compound.Fields {
		slot := inst.Slots[i]
		switch slot.Kind {
		case value.SlotLink:
			link, _ := slot.LinkVal()
			if b, ok := link.Target.(*Block); ok && b == old {
				link.Target = replacement
			}
		case value.SlotInstance:
			sub, _ := slot.Instance()
			retargetInstanceLinks(sub, old, replacement)
		case value.SlotArray:
			arr, _ := slot.ArrayVal()
			retargetArrayLinks(arr, old, replacement)
		}
	}
}

func retargetArrayLinks(arr *value.Array, old, replacement *Block) {
	visit := func(s value.Slot) {
		switch s.Kind {
		case value.SlotLink:
			link, _ := s.LinkVal()
			if b, ok := link.Target.(*Block); ok && b == old {
				link.Target = replacement
			}
		case value.SlotInstance:
			sub, _ := s.Instance()
			retargetInstanceLinks(sub, old, replacement)
		}
	}
	if arr.Jagged {
		for _, row := range arr.Rows {
			for _, s := range row {
				visit(s)
			}
		}
		return
	}
	for _, s := range arr.Elem {
		visit(s)
	}
}

// InsertParent moves every strong link currently targeting child so it
// targets newParent instead, then makes newParent strong-link child through
// its field named parentLinkField. newParent must already belong to g
// (added via AddBlock) and declare a KindRef field by that name whose
// target type accepts child's compound.
func InsertParent(g *Graph, child, newParent *Block, parentLinkField string) error {
	f := newParent.Compound.FieldByName(parentLinkField)
	if f == nil || f.Kind != schema.KindRef {
		return fmt.Errorf("blockio: %q has no ref field %q to hold the new strong link", newParent.Compound.Name, parentLinkField)
	}
	slotIdx := -1
	for i, ff := range newParent.Compound.Fields {
		if ff.Name == parentLinkField {
			slotIdx = i
			break
		}
	}

	for _, b := range g.blocks {
		if b == newParent {
			continue
		}
		retargetStrongInstanceLinks(b.Instance, child, newParent)
	}
	for i, r := range g.roots {
		if r == child.Index {
			g.roots[i] = newParent.Index
		}
	}

	newParent.Instance.Slots[slotIdx] = value.NewLinkSlot(&value.Link{
		Strong:   true,
		RawIndex: int32(child.Index),
		Target:   child,
	})
	g.bump()
	return nil
}

func retargetStrongInstanceLinks(inst *value.Instance, old, replacement *Block) {
	for i := range inst.Compound.Fields {
		slot := inst.Slots[i]
		switch slot.Kind {
		case value.SlotLink:
			link, _ := slot.LinkVal()
			if link.Strong {
				if b, ok := link.Target.(*Block); ok && b == old {
					link.Target = replacement
				}
			}
		case value.SlotInstance:
			sub, _ := slot.Instance()
			retargetStrongInstanceLinks(sub, old, replacement)
		case value.SlotArray:
			arr, _ := slot.ArrayVal()
			retargetStrongArrayLinks(arr, old, replacement)
		}
	}
}

func retargetStrongArrayLinks(arr *value.Array, old, replacement *Block) {
	visit := func(s value.Slot) {
		switch s.Kind {
		case value.SlotLink:
			link, _ := s.LinkVal()
			if link.Strong {
				if b, ok := link.Target.(*Block); ok && b == old {
					link.Target = replacement
				}
			}
		case value.SlotInstance:
			sub, _ := s.Instance()
			retargetStrongInstanceLinks(sub, old, replacement)
		}
	}
	if arr.Jagged {
		for _, row := range arr.Rows {
			for _, s := range row {
				visit(s)
			}
		}
		return
	}
	for _, s := range arr.Elem {
		visit(s)
	}
}

// Remove nulls every link in the graph that targets block and, if block was
// a root, drops it from the root list. If cascade is true, any block that
// was reachable only through block (and so is now strong-unreachable) has
// its own outgoing links nulled too — pure hygiene, since an unreachable
// block is already excluded from Walk and from Save's renumbering pass
// regardless of cascade.
func Remove(g *Graph, block *Block, cascade bool) {
	var before map[int]bool
	if cascade {
		before = reachableSet(g)
	}

	for _, b := range g.blocks {
		nullInstanceLinksTo(b.Instance, block)
	}
	newRoots := g.roots[:0:0]
	for _, r := range g.roots {
		if r != block.Index {
			newRoots = append(newRoots, r)
		}
	}
	g.roots = newRoots
	g.bump()

	if cascade {
		after := reachableSet(g)
		for idx := range before {
			if !after[idx] && idx != block.Index {
				nullAllInstanceLinks(g.blocks[idx].Instance)
			}
		}
	}
}

func reachableSet(g *Graph) map[int]bool {
	seen := make(map[int]bool)
	var visit func(idx int)
	visit = func(idx int) {
		if idx < 0 || idx >= len(g.blocks) || seen[idx] {
			return
		}
		seen[idx] = true
		collectStrongTargets(g.blocks[idx].Instance, func(b *Block) { visit(b.Index) })
	}
	for _, r := range g.roots {
		visit(r)
	}
	return seen
}

func collectStrongTargets(inst *value.Instance, fn func(*Block)) {
	for i := range inst.Compound.Fields {
		slot := inst.Slots[i]
		switch slot.Kind {
		case value.SlotLink:
			link, _ := slot.LinkVal()
			if link.Strong {
				if b, ok := link.Target.(*Block); ok {
					fn(b)
				}
			}
		case value.SlotInstance:
			sub, _ := slot.Instance()
			collectStrongTargets(sub, fn)
		case value.SlotArray:
			arr, _ := slot.ArrayVal()
			if arr.Jagged {
				for _, row := range arr.Rows {
					for _, s := range row {
						collectStrongTargetsSlot(s, fn)
					}
				}
			} else {
				for _, s := range arr.Elem {
					collectStrongTargetsSlot(s, fn)
				}
			}
		}
	}
}

func collectStrongTargetsSlot(s value.Slot, fn func(*Block)) {
	switch s.Kind {
	case value.SlotLink:
		link, _ := s.LinkVal()
		if link.Strong {
			if b, ok := link.Target.(*Block); ok {
				fn(b)
			}
		}
	case value.SlotInstance:
		sub, _ := s.Instance()
		collectStrongTargets(sub, fn)
	}
}

func nullInstanceLinksTo(inst *value.Instance, target *Block) {
	for i := range inst.Compound.Fields {
		slot := inst.Slots[i]
		switch slot.Kind {
		case value.SlotLink:
			link, _ := slot.LinkVal()
			if b, ok := link.Target.(*Block); ok && b == target {
				link.Target, link.RawIndex = nil, -1
			}
		case value.SlotInstance:
			sub, _ := slot.Instance()
			nullInstanceLinksTo(sub, target)
		case value.SlotArray:
			arr, _ := slot.ArrayVal()
			nullArrayLinksTo(arr, target)
		}
	}
}

func nullArrayLinksTo(arr *value.Array, target *Block) {
	visit := func(s value.Slot) {
		switch s.Kind {
		case value.SlotLink:
			link, _ := s.LinkVal()
			if b, ok := link.Target.(*Block); ok && b == target {
				link.Target, link.RawIndex = nil, -1
			}
		case value.SlotInstance:
			sub, _ := s.Instance()
			nullInstanceLinksTo(sub, target)
		}
	}
	if arr.Jagged {
		for _, row := range arr.Rows {
			for _, s := range row {
				visit(s)
			}
		}
		return
	}
	for _, s := range arr.Elem {
		visit(s)
	}
}

func nullAllInstanceLinks(inst *value.Instance) {
	for i := range inst.Compound.Fields {
		slot := inst.Slots[i]
		switch slot.Kind {
		case value.SlotLink:
			link, _ := slot.LinkVal()
			link.Target, link.RawIndex = nil, -1
		case value.SlotInstance:
			sub, _ := slot.Instance()
			nullAllInstanceLinks(sub)
		case value.SlotArray:
			arr, _ := slot.ArrayVal()
			if arr.Jagged {
				for _, row := range arr.Rows {
					for _, s := range row {
						nullSlotLinks(s)
					}
				}
			} else {
				for _, s := range arr.Elem {
					nullSlotLinks(s)
				}
			}
		}
	}
}

func nullSlotLinks(s value.Slot) {
	switch s.Kind {
	case value.SlotLink:
		link, _ := s.LinkVal()
		link.Target, link.RawIndex = nil, -1
	case value.SlotInstance:
		sub, _ := s.Instance()
		nullAllInstanceLinks(sub)
	}
}
