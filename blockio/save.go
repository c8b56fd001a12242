// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package blockio

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/blockfmt/engine/binio"
	"github.com/blockfmt/engine/codec"
	"github.com/blockfmt/engine/diag"
	"github.com/blockfmt/engine/expr"
	"github.com/blockfmt/engine/registry"
	"github.com/blockfmt/engine/value"
)

// Save writes g to w: a reachability-renumbering pass (depth-first from
// roots, children before siblings, first-visit wins; spec.md §4.5) followed
// by signature, header, optional string table, block type table, block
// section and footer. Blocks unreachable from any root via a strong link
// are silently dropped. The returned diag.List is this save's diagnostic
// session (spec.md §7); it currently only ever carries
// KindUnreachableWeakLink warnings, raised when a weak link is nulled
// because its target didn't survive the reachability pass.
func Save(g *Graph, w io.Writer) (*diag.List, error) {
	diags := diag.NewList()
	order, newIndex := reachableOrder(g)
	rewriteLinks(order, newIndex, diags)

	bw := binio.NewWriter(g.Entry.Endian)
	bw.WriteBytes(g.Entry.Signature)

	headerScope := expr.NewScope(g.Version, g.UserVersion)
	if err := codec.Encode(bw, g.Header, headerScope); err != nil {
		return diags, err
	}

	body := binio.NewWriter(g.Entry.Endian)
	if g.Entry.StringTable {
		body.WriteU32(uint32(len(g.Strings)))
		for _, s := range g.Strings {
			if err := writeTableString(body, g.Entry.StringEncoding, s); err != nil {
				return diags, err
			}
		}
	}

	typeTable, typeIndexOf := buildTypeTable(order)
	body.WriteU32(uint32(len(typeTable)))
	for _, name := range typeTable {
		body.WriteShortString(name)
	}

	body.WriteU32(uint32(len(order)))
	for _, b := range order {
		body.WriteU16(uint16(typeIndexOf[b.Compound.Name]))
	}
	for _, b := range order {
		scope := expr.NewScope(g.Version, g.UserVersion)
		if err := codec.Encode(body, b.Instance, scope); err != nil {
			return diags, err
		}
	}

	body.WriteU32(uint32(len(g.roots)))
	for _, r := range g.roots {
		body.WriteI32(int32(newIndex[g.blocks[r]]))
	}

	bodyBytes := body.Bytes()
	if g.Entry.Compressed != registry.CompressionNone {
		compressed, err := compress(bodyBytes, g.Entry.Compressed)
		if err != nil {
			return diags, err
		}
		bodyBytes = compressed
	}
	bw.WriteBytes(bodyBytes)

	_, err := bw.WriteTo(w)
	return diags, err
}

// reachableOrder performs the depth-first, children-before-siblings,
// first-visit-wins traversal that determines both which blocks survive a
// save and the order they're renumbered into.
func reachableOrder(g *Graph) ([]*Block, map[*Block]int) {
	visited := make(map[*Block]bool, len(g.blocks))
	var order []*Block

	var visit func(b *Block)
	visit = func(b *Block) {
		if b == nil || visited[b] {
			return
		}
		visited[b] = true
		order = append(order, b)
		walkStrongChildren(b.Instance, func(child *Block) { visit(child) })
	}

	for _, r := range g.roots {
		visit(g.blocks[r])
	}

	newIndex := make(map[*Block]int, len(order))
	for i, b := range order {
		newIndex[b] = i
	}
	return order, newIndex
}

// walkStrongChildren invokes fn for every block a strong link field of inst
// (recursively, through sub-instances and arrays) points to, in field
// declaration order — the order Save's DFS needs for a stable, reproducible
// renumbering.
func walkStrongChildren(inst *value.Instance, fn func(*Block)) {
	for i := range inst.Compound.Fields {
		slot := inst.Slots[i]
		switch slot.Kind {
		case value.SlotLink:
			link, _ := slot.LinkVal()
			if link.Strong && link.Target != nil {
				if b, ok := link.Target.(*Block); ok {
					fn(b)
				}
			}
		case value.SlotInstance:
			sub, _ := slot.Instance()
			walkStrongChildren(sub, fn)
		case value.SlotArray:
			arr, _ := slot.ArrayVal()
			walkArrayStrongChildren(arr, fn)
		}
	}
}

func walkArrayStrongChildren(arr *value.Array, fn func(*Block)) {
	visit := func(s value.Slot) {
		switch s.Kind {
		case value.SlotLink:
			link, _ := s.LinkVal()
			if link.Strong && link.Target != nil {
				if b, ok := link.Target.(*Block); ok {
					fn(b)
				}
			}
		case value.SlotInstance:
			sub, _ := s.Instance()
			walkStrongChildren(sub, fn)
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

// rewriteLinks mutates every link reachable from order's blocks so its
// RawIndex reflects the save's renumbering rather than the graph's original
// (load-time or previously-saved) indices. A link whose target fell outside
// the reachable set — only possible for a weak link, since strong links are
// exactly what defines reachability — is nulled rather than left dangling,
// and raises a KindUnreachableWeakLink warning on diags.
func rewriteLinks(order []*Block, newIndex map[*Block]int, diags *diag.List) {
	for _, b := range order {
		rewriteInstanceLinks(b.Instance, newIndex, diags, b.Index)
	}
}

func rewriteInstanceLinks(inst *value.Instance, newIndex map[*Block]int, diags *diag.List, blockIndex int) {
	for i := range inst.Compound.Fields {
		slot := inst.Slots[i]
		switch slot.Kind {
		case value.SlotLink:
			link, _ := slot.LinkVal()
			rewriteOneLink(link, newIndex, diags, blockIndex, inst.Compound.Fields[i].Name)
		case value.SlotInstance:
			sub, _ := slot.Instance()
			rewriteInstanceLinks(sub, newIndex, diags, blockIndex)
		case value.SlotArray:
			arr, _ := slot.ArrayVal()
			rewriteArrayLinks(arr, newIndex, diags, blockIndex)
		}
	}
}

func rewriteArrayLinks(arr *value.Array, newIndex map[*Block]int, diags *diag.List, blockIndex int) {
	visit := func(s value.Slot) {
		switch s.Kind {
		case value.SlotLink:
			link, _ := s.LinkVal()
			rewriteOneLink(link, newIndex, diags, blockIndex, "")
		case value.SlotInstance:
			sub, _ := s.Instance()
			rewriteInstanceLinks(sub, newIndex, diags, blockIndex)
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

func rewriteOneLink(link *value.Link, newIndex map[*Block]int, diags *diag.List, blockIndex int, fieldName string) {
	if link.Target == nil {
		link.RawIndex = -1
		return
	}
	b, ok := link.Target.(*Block)
	if !ok {
		link.RawIndex = -1
		return
	}
	idx, ok := newIndex[b]
	if !ok {
		link.RawIndex = -1
		if fieldName == "" {
			fieldName = "<array element>"
		}
		diags.Add(diag.KindUnreachableWeakLink, blockIndex, fmt.Sprintf("weak link %q targets block %d, outside the reachable set; nulled on save", fieldName, b.Index))
		return
	}
	link.RawIndex = int32(idx)
}

// writeTableString is Save's counterpart to readTableString: a 4-byte
// length prefix (counting encoded bytes, not code units) followed by s
// transcoded per enc.
func writeTableString(w *binio.Writer, enc registry.StringEncoding, s string) error {
	if enc == registry.StringEncodingUTF8 {
		w.WriteSizedString(s)
		return nil
	}
	raw, err := binio.EncodeUTF16LE(s)
	if err != nil {
		return err
	}
	w.WriteU32(uint32(len(raw)))
	w.WriteBytes(raw)
	return nil
}

func buildTypeTable(order []*Block) ([]string, map[string]int) {
	indexOf := make(map[string]int)
	var table []string
	for _, b := range order {
		if _, ok := indexOf[b.Compound.Name]; !ok {
			indexOf[b.Compound.Name] = len(table)
			table = append(table, b.Compound.Name)
		}
	}
	return table, indexOf
}

func compress(body []byte, c registry.Compression) ([]byte, error) {
	var buf bytes.Buffer
	switch c {
	case registry.CompressionZlib:
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
	case registry.CompressionFlate:
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(body); err != nil {
			return nil, err
		}
		if err := fw.Close(); err != nil {
			return nil, err
		}
	default:
		return body, nil
	}
	return buf.Bytes(), nil
}
