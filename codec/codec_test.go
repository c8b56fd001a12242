// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package codec

import (
	"errors"
	"strings"
	"testing"

	"github.com/blockfmt/engine/binio"
	"github.com/blockfmt/engine/expr"
	"github.com/blockfmt/engine/schema"
	"github.com/blockfmt/engine/value"
)

const testDoc = `<?xml version="1.0"?>
<description>
  <basic name="byte" width="1"/>
  <basic name="uint" width="4"/>
  <basic name="float" width="4" float="true"/>

  <compound name="Vector3">
    <field name="x" type="float"/>
    <field name="y" type="float"/>
    <field name="z" type="float"/>
  </compound>

  <compound name="Mesh">
    <field name="version" type="uint"/>
    <field name="num_vertices" type="uint"/>
    <field name="vertices" type="Vector3" length="num_vertices"/>
    <field name="extra" type="byte" vercond="1.0.0.0-"/>
  </compound>
</description>`

func loadTestSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, warns, err := schema.Load(strings.NewReader(testDoc))
	if err != nil {
		t.Fatalf("schema.Load: %v", err)
	}
	if len(warns) != 0 {
		t.Fatalf("unexpected schema warnings: %v", warns)
	}
	return s
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	s := loadTestSchema(t)
	mesh, ok := s.Compound("Mesh")
	if !ok {
		t.Fatal("Mesh not found")
	}

	// version, num_vertices=2, two Vector3, extra (gated in since version
	// >= 0x01000000).
	w := binio.NewWriter(binio.LittleEndian)
	w.WriteU32(0x01000000)
	w.WriteU32(2)
	w.WriteF32(1)
	w.WriteF32(2)
	w.WriteF32(3)
	w.WriteF32(4)
	w.WriteF32(5)
	w.WriteF32(6)
	w.WriteU8(0xAB)
	original := w.Bytes()

	r := binio.NewReader(original, binio.LittleEndian)
	scope := expr.NewScope(0x01000000, 0)
	inst, warns, err := Decode(r, mesh, scope)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	if r.Len() != 0 {
		t.Fatalf("Decode left %d unconsumed bytes", r.Len())
	}

	verticesSlot, ok := inst.Get("vertices")
	if !ok {
		t.Fatal("vertices field missing")
	}
	arr, err := verticesSlot.ArrayVal()
	if err != nil {
		t.Fatalf("ArrayVal: %v", err)
	}
	if arr.Len() != 2 {
		t.Fatalf("array len = %d, want 2", arr.Len())
	}

	w2 := binio.NewWriter(binio.LittleEndian)
	scope2 := expr.NewScope(0x01000000, 0)
	if err := Encode(w2, inst, scope2); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(w2.Bytes()) != string(original) {
		t.Fatalf("round trip mismatch:\n got  % x\n want % x", w2.Bytes(), original)
	}
}

func TestVersionGatedFieldExcludedBeforeMinVersion(t *testing.T) {
	s := loadTestSchema(t)
	mesh, _ := s.Compound("Mesh")

	w := binio.NewWriter(binio.LittleEndian)
	w.WriteU32(0x00010000) // below extra's vercond floor
	w.WriteU32(0)
	data := w.Bytes()

	r := binio.NewReader(data, binio.LittleEndian)
	scope := expr.NewScope(0x00010000, 0)
	inst, _, err := Decode(r, mesh, scope)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	extra, ok := inst.Get("extra")
	if !ok {
		t.Fatal("extra field missing from instance")
	}
	if extra.Kind != 0 { // value.SlotAbsent
		t.Fatalf("extra slot kind = %v, want SlotAbsent", extra.Kind)
	}
	if r.Len() != 0 {
		t.Fatalf("excluded field must not consume bytes, %d left unconsumed", r.Len())
	}
}

func TestUnknownEnumPreservedWithWarning(t *testing.T) {
	const doc = `<description>
  <basic name="uint" width="4"/>
  <enum name="Kind" storage="uint">
    <option name="A" value="1"/>
    <option name="B" value="2"/>
  </enum>
  <compound name="Thing">
    <field name="kind" type="Kind"/>
  </compound>
</description>`
	s, _, err := schema.Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("schema.Load: %v", err)
	}
	thing, _ := s.Compound("Thing")

	w := binio.NewWriter(binio.LittleEndian)
	w.WriteU32(99)
	r := binio.NewReader(w.Bytes(), binio.LittleEndian)

	inst, warns, err := Decode(r, thing, expr.NewScope(0, 0))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(warns) != 1 {
		t.Fatalf("expected 1 warning for unknown enum value, got %d", len(warns))
	}
	kind, _ := inst.Get("kind")
	ev, err := kind.Enum()
	if err != nil {
		t.Fatalf("Enum(): %v", err)
	}
	if ev.Raw != 99 {
		t.Fatalf("raw enum value = %d, want 99 preserved verbatim", ev.Raw)
	}
}

// bitfieldDoc packs a one-byte header into three sub-fields: a 3-bit kind,
// a 4-bit count and a 1-bit flag, in that declared order.
const bitfieldDoc = `<description>
  <basic name="byte" width="1"/>
  <compound name="Header">
    <field name="flags" type="byte"/>
    <field name="kind" type="byte" bitfield-of="flags" bit-offset="0" bit-width="3"/>
    <field name="count" type="byte" bitfield-of="flags" bit-offset="3" bit-width="4"/>
    <field name="flag" type="byte" bitfield-of="flags" bit-offset="7" bit-width="1"/>
  </compound>
</description>`

const bitfieldMSBDoc = `<description>
  <basic name="byte" width="1"/>
  <compound name="Header" bitfield-msb="true">
    <field name="flags" type="byte"/>
    <field name="kind" type="byte" bitfield-of="flags" bit-offset="0" bit-width="3"/>
    <field name="count" type="byte" bitfield-of="flags" bit-offset="3" bit-width="4"/>
    <field name="flag" type="byte" bitfield-of="flags" bit-offset="7" bit-width="1"/>
  </compound>
</description>`

func TestBitfieldLSBFirstRoundTrip(t *testing.T) {
	s, _, err := schema.Load(strings.NewReader(bitfieldDoc))
	if err != nil {
		t.Fatalf("schema.Load: %v", err)
	}
	header, _ := s.Compound("Header")

	// 0b1_0101_011 -> flag=1, count=0101(5), kind=011(3), packed LSB-first
	// as kind in bits 0-2, count in bits 3-6, flag in bit 7: 1_0101_011 = 0xAB.
	w := binio.NewWriter(binio.LittleEndian)
	w.WriteU8(0xAB)
	r := binio.NewReader(w.Bytes(), binio.LittleEndian)

	inst, warns, err := Decode(r, header, expr.NewScope(0, 0))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}

	checkBitfieldSlot(t, inst, "kind", 0x03)
	checkBitfieldSlot(t, inst, "count", 0x05)
	checkBitfieldSlot(t, inst, "flag", 0x01)

	w2 := binio.NewWriter(binio.LittleEndian)
	if err := Encode(w2, inst, expr.NewScope(0, 0)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(w2.Bytes()) != string(w.Bytes()) {
		t.Fatalf("round trip mismatch: got % x, want % x", w2.Bytes(), w.Bytes())
	}
}

func TestBitfieldMSBFirstRoundTrip(t *testing.T) {
	s, _, err := schema.Load(strings.NewReader(bitfieldMSBDoc))
	if err != nil {
		t.Fatalf("schema.Load: %v", err)
	}
	header, _ := s.Compound("Header")

	// Same byte, but bit-offset now counts down from bit 7: kind occupies
	// bits 7-5, count bits 4-1, flag bit 0. 0xAB = 1010_1011 ->
	// kind = 101 (5), count = 0101 (5), flag = 1.
	w := binio.NewWriter(binio.LittleEndian)
	w.WriteU8(0xAB)
	r := binio.NewReader(w.Bytes(), binio.LittleEndian)

	inst, _, err := Decode(r, header, expr.NewScope(0, 0))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	checkBitfieldSlot(t, inst, "kind", 0x05)
	checkBitfieldSlot(t, inst, "count", 0x05)
	checkBitfieldSlot(t, inst, "flag", 0x01)

	w2 := binio.NewWriter(binio.LittleEndian)
	if err := Encode(w2, inst, expr.NewScope(0, 0)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(w2.Bytes()) != string(w.Bytes()) {
		t.Fatalf("round trip mismatch: got % x, want % x", w2.Bytes(), w.Bytes())
	}
}

func TestBitfieldOverflowReturnsErrBitfieldWidth(t *testing.T) {
	const doc = `<description>
  <basic name="byte" width="1"/>
  <compound name="Header">
    <field name="flags" type="byte"/>
    <field name="kind" type="byte" bitfield-of="flags" bit-offset="6" bit-width="3"/>
  </compound>
</description>`
	s, _, err := schema.Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("schema.Load: %v", err)
	}
	header, _ := s.Compound("Header")

	w := binio.NewWriter(binio.LittleEndian)
	w.WriteU8(0xFF)
	r := binio.NewReader(w.Bytes(), binio.LittleEndian)

	_, _, err = Decode(r, header, expr.NewScope(0, 0))
	if !errors.Is(err, ErrBitfieldWidth) {
		t.Fatalf("Decode error = %v, want ErrBitfieldWidth", err)
	}
}

func checkBitfieldSlot(t *testing.T, inst *value.Instance, name string, want int64) {
	t.Helper()
	slot, ok := inst.Get(name)
	if !ok {
		t.Fatalf("%s field missing", name)
	}
	got, err := slot.Int()
	if err != nil {
		t.Fatalf("%s.Int(): %v", name, err)
	}
	if got != want {
		t.Fatalf("%s = %d, want %d", name, got, want)
	}
}
