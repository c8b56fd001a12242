// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package blockfmt is the root facade over the block format engine: a
// default registry pre-loaded with the built-in formats, file-backed
// (memory-mapped) and stream-backed Open/Save, and a schema-validating
// Block.Set for callers that want the type-checked write path instead of
// blockio.Block's unchecked one.
package blockfmt

import (
	"bytes"
	"fmt"
	"io"
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/blockfmt/engine/blockio"
	"github.com/blockfmt/engine/diag"
	"github.com/blockfmt/engine/formats/nifkfmcgf"
	"github.com/blockfmt/engine/registry"
	"github.com/blockfmt/engine/schema"
	"github.com/blockfmt/engine/value"
)

// Registry is the process's default frozen registry, pre-loaded with the
// built-in block-graph formats. Formats with no block graph at all (tga,
// dds, egm) read/write directly through codec and are not registered here;
// see each package's own Open/Save (dds does export a Register of its own).
var Registry = buildDefaultRegistry()

func buildDefaultRegistry() *registry.Registry {
	reg := registry.New()
	nifkfmcgf.Register(reg)
	return reg.Freeze()
}

// Open reads a complete block graph from r using the default Registry. The
// returned diag.List is this load's diagnostic session (spec.md §7).
func Open(r io.Reader) (*blockio.Graph, *diag.List, error) {
	return blockio.Open(r, Registry)
}

// Save writes g to w, returning this save's diagnostic session.
func Save(g *blockio.Graph, w io.Writer) (*diag.List, error) {
	return blockio.Save(g, w)
}

// OpenFile memory-maps the file at path and opens it against the default
// Registry, mirroring the teacher's mmap-backed File.New rather than
// buffering the whole file through a plain os.File read. The returned
// mapping is unmapped once decoding completes; the Graph it produces owns
// no reference back into the mapping (codec.Decode copies every scalar,
// string and byte slice it reads).
func OpenFile(path string) (*blockio.Graph, *diag.List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("blockfmt: mmap %s: %w", path, err)
	}
	defer data.Unmap()

	return Open(bytes.NewReader(data))
}

// Set assigns the named field's slot on b's instance, failing with
// value.ErrTypeError if the field isn't declared or s's shape doesn't match
// what the schema declares for it (scalar vs. array vs. sub-instance vs.
// link). Block.Set itself performs no such check; this is the validated
// entry point spec.md §6 describes for callers mutating a graph rather than
// only reading it.
func Set(b *blockio.Block, name string, s value.Slot) error {
	f := b.Compound.FieldByName(name)
	if f == nil {
		return fmt.Errorf("%w: %s has no field %q", value.ErrTypeError, b.TypeName(), name)
	}
	if err := checkSlotKind(f, s); err != nil {
		return fmt.Errorf("%w: field %q of %s: %v", value.ErrTypeError, name, b.TypeName(), err)
	}
	b.Set(name, s)
	return nil
}

func checkSlotKind(f *schema.Field, s value.Slot) error {
	if f.IsArray() {
		if s.Kind != value.SlotArray {
			return fmt.Errorf("expected an array slot, got %v", s.Kind)
		}
		return nil
	}
	switch f.Kind {
	case schema.KindBasic, schema.KindEnum, schema.KindString:
		if s.Kind != value.SlotScalar {
			return fmt.Errorf("expected a scalar slot, got %v", s.Kind)
		}
	case schema.KindCompound:
		if s.Kind != value.SlotInstance {
			return fmt.Errorf("expected a sub-instance slot, got %v", s.Kind)
		}
	case schema.KindRef, schema.KindPtr:
		if s.Kind != value.SlotLink {
			return fmt.Errorf("expected a link slot, got %v", s.Kind)
		}
	}
	return nil
}
