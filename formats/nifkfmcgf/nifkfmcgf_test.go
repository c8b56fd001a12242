// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package nifkfmcgf

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/blockfmt/engine/binio"
	"github.com/blockfmt/engine/registry"
	"github.com/blockfmt/engine/schema"
	"github.com/blockfmt/engine/walk"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	Register(reg)
	return reg
}

// buildFixture hand-assembles a small NKCG stream: a Root NiAVObject
// strong-linking a NiController (which weak-links back to Root), plus an
// independent NiFloatKeys block rooted on its own. The body is zlib
// compressed, exercising the registry's CompressionZlib path.
func buildFixture(t *testing.T) []byte {
	t.Helper()
	out := binio.NewWriter(binio.LittleEndian)
	out.WriteBytes(Signature)
	out.WriteU32(schema.PackVersion(5, 0, 0, 0)) // header.version
	out.WriteU32(0)                              // header.user_version

	body := binio.NewWriter(binio.LittleEndian)
	// string table
	body.WriteU32(2)
	body.WriteSizedString("Root")
	body.WriteSizedString("Anim")

	// type table
	body.WriteU32(3)
	body.WriteShortString("NiAVObject")
	body.WriteShortString("NiController")
	body.WriteShortString("NiFloatKeys")

	body.WriteU32(3) // 3 blocks
	body.WriteU16(0) // block 0: NiAVObject
	body.WriteU16(1) // block 1: NiController
	body.WriteU16(2) // block 2: NiFloatKeys

	// block 0: NiAVObject{nameIndex=0, numChildren=1, children=[1], parent=null}
	body.WriteU32(0)
	body.WriteU32(1)
	body.WriteI32(1)
	body.WriteI32(-1)

	// block 1: NiController{nameIndex=1, numChildren=0, children=[], parent=0 (weak), frequency=30, numExtraFlags=7}
	body.WriteU32(1)
	body.WriteU32(0)
	body.WriteI32(0)
	body.WriteF32(30)
	body.WriteU32(7)

	// block 2: NiFloatKeys{count=3, items=[1,2,3]}
	body.WriteU32(3)
	body.WriteF32(1)
	body.WriteF32(2)
	body.WriteF32(3)

	body.WriteU32(2) // 2 roots
	body.WriteI32(0)
	body.WriteI32(2)

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(body.Bytes()); err != nil {
		t.Fatalf("zlib.Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zlib.Close: %v", err)
	}

	out.WriteBytes(compressed.Bytes())
	return out.Bytes()
}

func TestOpenDecodesCompressedTemplatedWeakAndStrongLinks(t *testing.T) {
	reg := testRegistry(t)
	g, warnings, err := Open(bytes.NewReader(buildFixture(t)), reg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !warnings.Empty() {
		t.Fatalf("unexpected warnings: %v", warnings.Warnings)
	}
	if len(g.Roots()) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(g.Roots()))
	}

	root := g.Block(g.Roots()[0])
	if root.TypeName() != "NiAVObject" {
		t.Fatalf("root type = %s, want NiAVObject", root.TypeName())
	}
	nameSlot, _ := root.Get("nameIndex")
	idx, _ := nameSlot.Uint()
	if g.StringAt(int(idx)) != "Root" {
		t.Fatalf("root name = %q, want Root", g.StringAt(int(idx)))
	}

	childrenSlot, _ := root.Get("children")
	children, err := childrenSlot.ArrayVal()
	if err != nil || children.Len() != 1 {
		t.Fatalf("root.children len = %v (err %v), want 1", children, err)
	}
	controllerLink, err := children.Elem[0].LinkVal()
	if err != nil {
		t.Fatalf("LinkVal: %v", err)
	}
	controller, ok := controllerLink.Target.(interface{ TypeName() string })
	if !ok || controller.TypeName() != "NiController" {
		t.Fatalf("root's child does not resolve to a NiController: %+v", controllerLink.Target)
	}

	ctrlBlock := g.Block(1)
	extraFlagsSlot, ok := ctrlBlock.Get("numExtraFlags")
	if !ok {
		t.Fatal("numExtraFlags should be present for version 5.0.0.0")
	}
	flags, err := extraFlagsSlot.Uint()
	if err != nil || flags != 7 {
		t.Fatalf("numExtraFlags = %v, %v, want 7", flags, err)
	}

	parentSlot, _ := ctrlBlock.Get("parent")
	parentLink, _ := parentSlot.LinkVal()
	if parentLink.Strong {
		t.Fatal("NiController.parent must be a weak link")
	}
	if parentLink.Target != root {
		t.Fatal("NiController.parent does not resolve back to Root")
	}

	keysBlock := g.Block(2)
	if keysBlock.TypeName() != "NiFloatKeys" {
		t.Fatalf("block 2 type = %s, want NiFloatKeys (instantiated template)", keysBlock.TypeName())
	}
	itemsSlot, _ := keysBlock.Get("items")
	items, _ := itemsSlot.ArrayVal()
	if items.Len() != 3 {
		t.Fatalf("NiFloatKeys.items len = %d, want 3", items.Len())
	}
}

func TestSaveRoundTrip(t *testing.T) {
	reg := testRegistry(t)
	original := buildFixture(t)
	g, _, err := Open(bytes.NewReader(original), reg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var out bytes.Buffer
	if _, err := Save(g, &out); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, _, err := Open(bytes.NewReader(out.Bytes()), reg)
	if err != nil {
		t.Fatalf("re-Open after Save: %v", err)
	}
	if len(reopened.Roots()) != 2 {
		t.Fatalf("expected 2 roots after round trip, got %d", len(reopened.Roots()))
	}
}

func TestWalkTraversesTemplatedGraph(t *testing.T) {
	reg := testRegistry(t)
	g, _, err := Open(bytes.NewReader(buildFixture(t)), reg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var typeNames []string
	for b := range walk.Walk(g, walk.PreOrder, true) {
		typeNames = append(typeNames, b.TypeName())
	}
	if len(typeNames) != 3 {
		t.Fatalf("expected to visit all 3 blocks (2 roots, one DAG), got %d: %v", len(typeNames), typeNames)
	}
}
