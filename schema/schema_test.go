// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package schema

import (
	"strings"
	"testing"
)

const testDoc = `<?xml version="1.0"?>
<description>
  <basic name="byte" width="1"/>
  <basic name="uint" width="4"/>
  <basic name="float" width="4" float="true"/>

  <enum name="VertexFlags" storage="uint" bitflags="true">
    <option name="HAS_NORMALS" value="1"/>
    <option name="HAS_COLORS" value="2"/>
  </enum>

  <compound name="Vector3">
    <field name="x" type="float"/>
    <field name="y" type="float"/>
    <field name="z" type="float"/>
  </compound>

  <compound name="Header">
    <field name="version" type="uint"/>
    <field name="num_vertices" type="uint"/>
  </compound>

  <compound name="Mesh" inherit="Header">
    <field name="flags" type="VertexFlags"/>
    <field name="vertices" type="Vector3" length="num_vertices"/>
    <field name="extra" type="byte" cond="version >= 16777216"/>
  </compound>
</description>`

func TestLoadResolvesTypesAndInheritance(t *testing.T) {
	s, warnings, err := Load(strings.NewReader(testDoc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	mesh, ok := s.Compound("Mesh")
	if !ok {
		t.Fatal("Mesh compound not found")
	}
	// inherited fields come first, in the parent's declared order.
	wantOrder := []string{"version", "num_vertices", "flags", "vertices", "extra"}
	if len(mesh.Fields) != len(wantOrder) {
		t.Fatalf("Mesh has %d fields, want %d", len(mesh.Fields), len(wantOrder))
	}
	for i, name := range wantOrder {
		if mesh.Fields[i].Name != name {
			t.Fatalf("field %d = %q, want %q", i, mesh.Fields[i].Name, name)
		}
	}

	verticesField := mesh.FieldByName("vertices")
	if verticesField == nil || verticesField.Kind != KindCompound {
		t.Fatalf("vertices field not resolved to a compound: %+v", verticesField)
	}
	if verticesField.Length1 == nil {
		t.Fatal("vertices field missing compiled length expression")
	}

	extraField := mesh.FieldByName("extra")
	if extraField == nil || extraField.Cond == nil {
		t.Fatal("extra field missing compiled condition expression")
	}
}

func TestLoadUnknownTypeFails(t *testing.T) {
	const doc = `<description>
  <compound name="Bad">
    <field name="thing" type="DoesNotExist"/>
  </compound>
</description>`
	_, _, err := Load(strings.NewReader(doc))
	if err == nil {
		t.Fatal("expected error for unknown type reference")
	}
}

func TestPackVersion(t *testing.T) {
	got := PackVersion(20, 2, 0, 7)
	want := uint32(20)<<24 | uint32(2)<<16 | uint32(0)<<8 | uint32(7)
	if got != want {
		t.Fatalf("PackVersion() = %#x, want %#x", got, want)
	}
}

func TestInstantiateTemplate(t *testing.T) {
	const doc = `<description>
  <basic name="uint" width="4"/>
  <compound name="Vector3">
    <field name="x" type="uint"/>
  </compound>
  <compound name="Array" template="T">
    <field name="item" type="T"/>
  </compound>
</description>`
	s, _, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	generic, ok := s.Compound("Array")
	if !ok || !generic.Generic {
		t.Fatal("Array compound not found or not generic")
	}
	inst, err := s.Instantiate(generic, []string{"Vector3"})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	item := inst.FieldByName("item")
	if item == nil || item.Kind != KindCompound || item.Compound.Name != "Vector3" {
		t.Fatalf("item field not bound to Vector3: %+v", item)
	}

	// Second call with the same args must hit the cache and return the
	// identical instance.
	inst2, err := s.Instantiate(generic, []string{"Vector3"})
	if err != nil {
		t.Fatalf("Instantiate (cached): %v", err)
	}
	if inst != inst2 {
		t.Fatal("expected cached instantiation to return the same *Compound")
	}
}
