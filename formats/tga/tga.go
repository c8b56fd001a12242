// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package tga implements the Truevision TGA image format: an 18-byte
// header, optional image-ID and color-map blobs, and a flat pixel payload.
// TGA carries no leading magic (its optional signature, when present, is a
// footer), so unlike the block-graph formats it is read and written
// directly through codec against a single compound rather than through the
// registry/blockio machinery built for signature-probed, multi-block
// formats.
package tga

import (
	"io"
	"strings"

	"github.com/blockfmt/engine/binio"
	"github.com/blockfmt/engine/codec"
	"github.com/blockfmt/engine/diag"
	"github.com/blockfmt/engine/expr"
	"github.com/blockfmt/engine/schema"
	"github.com/blockfmt/engine/value"
)

const schemaDoc = `<?xml version="1.0"?>
<description>
  <basic name="byte" width="1"/>
  <basic name="ushort" width="2"/>

  <compound name="Header">
    <field name="idLength" type="byte"/>
    <field name="colorMapType" type="byte"/>
    <field name="imageType" type="byte"/>
    <field name="colorMapFirstEntry" type="ushort"/>
    <field name="colorMapLength" type="ushort"/>
    <field name="colorMapEntrySize" type="byte"/>
    <field name="xOrigin" type="ushort"/>
    <field name="yOrigin" type="ushort"/>
    <field name="width" type="ushort"/>
    <field name="height" type="ushort"/>
    <field name="pixelDepth" type="byte"/>
    <field name="imageDescriptor" type="byte"/>
    <field name="imageID" type="byte" length="idLength"/>
    <field name="colorMap" type="byte" length="colorMapLength * (colorMapEntrySize / 8)" cond="colorMapType != 0"/>
    <field name="pixels" type="byte" length="width * height * (pixelDepth / 8)"/>
  </compound>
</description>`

// topDownBit is bit 5 (0x20) of imageDescriptor: set means the first pixel
// row is the top of the image, clear means the bottom (TGA's native order).
const topDownBit = 0x20

var tgaSchema *schema.Schema
var headerCompound *schema.Compound

func init() {
	s, _, err := schema.Load(strings.NewReader(schemaDoc))
	if err != nil {
		panic(err)
	}
	tgaSchema = s
	headerCompound, _ = s.Compound("Header")
}

// Open reads one TGA image from r into an Instance of the Header compound.
func Open(r io.Reader) (*value.Instance, []diag.Warning, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	br := binio.NewReader(buf, binio.LittleEndian)
	scope := expr.NewScope(0, 0)
	return codec.Decode(br, headerCompound, scope)
}

// Save writes inst (an instance of the Header compound) to w, byte-exact
// with what Open would have read back from the result.
func Save(inst *value.Instance, w io.Writer) error {
	bw := binio.NewWriter(binio.LittleEndian)
	scope := expr.NewScope(0, 0)
	if err := codec.Encode(bw, inst, scope); err != nil {
		return err
	}
	_, err := bw.WriteTo(w)
	return err
}

// IsTopDown reports whether the image descriptor's origin bit selects
// top-to-bottom row order.
func IsTopDown(inst *value.Instance) bool {
	slot, ok := inst.Get("imageDescriptor")
	if !ok {
		return false
	}
	v, err := slot.Uint()
	if err != nil {
		return false
	}
	return v&topDownBit != 0
}

// Schema returns the loaded TGA schema, primarily for tooling that wants to
// inspect the Header compound directly.
func Schema() *schema.Schema { return tgaSchema }
