// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package blockio

import (
	"fmt"

	"github.com/blockfmt/engine/schema"
	"github.com/blockfmt/engine/value"
)

// resolveLinks runs the second pass of link resolution (spec.md §4.5):
// every block is already materialized, so this walks each block's instance
// tree and turns every Link's RawIndex into a resolved Target, type-checking
// strong and weak links alike against the field's declared target compound.
// A type mismatch aborts the whole load; no partial graph is ever returned.
func resolveLinks(g *Graph) error {
	for _, b := range g.blocks {
		if err := resolveInstanceLinks(g, b.Instance); err != nil {
			return err
		}
	}
	return nil
}

func resolveInstanceLinks(g *Graph, inst *value.Instance) error {
	for i, f := range inst.Compound.Fields {
		slot := inst.Slots[i]
		switch slot.Kind {
		case value.SlotLink:
			link, _ := slot.LinkVal()
			if err := resolveOneLink(g, link, f.Compound); err != nil {
				return fmt.Errorf("field %q: %w", f.Name, err)
			}
		case value.SlotInstance:
			sub, _ := slot.Instance()
			if err := resolveInstanceLinks(g, sub); err != nil {
				return err
			}
		case value.SlotArray:
			arr, _ := slot.ArrayVal()
			if err := resolveArrayLinks(g, arr, f); err != nil {
				return fmt.Errorf("field %q: %w", f.Name, err)
			}
		}
	}
	return nil
}

func resolveArrayLinks(g *Graph, arr *value.Array, f schema.Field) error {
	visit := func(s value.Slot) error {
		switch s.Kind {
		case value.SlotLink:
			link, _ := s.LinkVal()
			return resolveOneLink(g, link, f.Compound)
		case value.SlotInstance:
			sub, _ := s.Instance()
			return resolveInstanceLinks(g, sub)
		}
		return nil
	}
	if arr.Jagged {
		for _, row := range arr.Rows {
			for _, s := range row {
				if err := visit(s); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, s := range arr.Elem {
		if err := visit(s); err != nil {
			return err
		}
	}
	return nil
}

func resolveOneLink(g *Graph, link *value.Link, declaredTarget *schema.Compound) error {
	if link.RawIndex == -1 {
		link.Target = nil
		return nil
	}
	if link.RawIndex < 0 || int(link.RawIndex) >= len(g.blocks) {
		return fmt.Errorf("%w: index %d", ErrLinkOutOfRange, link.RawIndex)
	}
	target := g.blocks[link.RawIndex]
	if declaredTarget != nil && !isSubtype(target.Compound, declaredTarget) {
		return fmt.Errorf("%w: block %d is %q, want %q (or a descendant)", ErrLinkTypeMismatch, link.RawIndex, target.Compound.Name, declaredTarget.Name)
	}
	link.Target = target
	return nil
}

// isSubtype reports whether c is base or inherits from base, transitively.
func isSubtype(c, base *schema.Compound) bool {
	for cur := c; cur != nil; cur = cur.Parent {
		if cur == base || cur.Name == base.Name {
			return true
		}
	}
	return false
}
