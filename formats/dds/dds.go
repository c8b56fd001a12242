// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package dds implements the DirectDraw Surface container: a fixed 128-byte
// header (4-byte magic + 124-byte DDS_HEADER), an optional 20-byte DX10
// extended header, and a texel payload the engine treats as an opaque byte
// blob (decoding BCn-compressed blocks is out of scope; see spec.md's
// Non-goals).
package dds

import (
	"bytes"
	"io"
	"strings"

	"github.com/blockfmt/engine/binio"
	"github.com/blockfmt/engine/codec"
	"github.com/blockfmt/engine/diag"
	"github.com/blockfmt/engine/expr"
	"github.com/blockfmt/engine/registry"
	"github.com/blockfmt/engine/schema"
	"github.com/blockfmt/engine/value"
)

const schemaDoc = `<?xml version="1.0"?>
<description>
  <basic name="uint" width="4"/>
  <basic name="byte" width="1"/>

  <compound name="PixelFormat">
    <field name="size" type="uint"/>
    <field name="flags" type="uint"/>
    <field name="fourCC" type="byte" length="4"/>
    <field name="rgbBitCount" type="uint"/>
    <field name="rBitMask" type="uint"/>
    <field name="gBitMask" type="uint"/>
    <field name="bBitMask" type="uint"/>
    <field name="aBitMask" type="uint"/>
  </compound>

  <compound name="Header">
    <field name="size" type="uint"/>
    <field name="flags" type="uint"/>
    <field name="height" type="uint"/>
    <field name="width" type="uint"/>
    <field name="pitchOrLinearSize" type="uint"/>
    <field name="depth" type="uint"/>
    <field name="mipMapCount" type="uint"/>
    <field name="reserved1" type="uint" length="11"/>
    <field name="pixelFormat" type="PixelFormat"/>
    <field name="caps" type="uint"/>
    <field name="caps2" type="uint"/>
    <field name="caps3" type="uint"/>
    <field name="caps4" type="uint"/>
    <field name="reserved2" type="uint"/>
  </compound>

  <compound name="DX10Header">
    <field name="dxgiFormat" type="uint"/>
    <field name="resourceDimension" type="uint"/>
    <field name="miscFlag" type="uint"/>
    <field name="arraySize" type="uint"/>
    <field name="miscFlags2" type="uint"/>
  </compound>
</description>`

var magic = []byte("DDS ")
var dx10FourCC = []byte("DX10")

var ddsSchema *schema.Schema
var headerCompound, dx10Compound *schema.Compound

func init() {
	s, _, err := schema.Load(strings.NewReader(schemaDoc))
	if err != nil {
		panic(err)
	}
	ddsSchema = s
	headerCompound, _ = s.Compound("Header")
	dx10Compound, _ = s.Compound("DX10Header")
}

// Register adds the DDS entry to reg so blockio-level tooling can recognize
// the file by its leading magic, even though Open/Save below don't route
// through blockio's block-graph machinery (DDS has no block table, no
// links: a header, an optional extension, and an opaque texel blob).
func Register(reg *registry.Registry) {
	reg.Register(registry.Entry{
		Name:           "DDS",
		Signature:      magic,
		Schema:         ddsSchema,
		HeaderCompound: "Header",
		Endian:         binio.LittleEndian,
	})
}

// Image is a decoded DDS file: its fixed header, optional DX10 extension
// (nil when absent), and the raw texel bytes verbatim.
type Image struct {
	Header *value.Instance
	DX10   *value.Instance
	Texels []byte
}

// Open reads one DDS image from r.
func Open(r io.Reader) (*Image, []diag.Warning, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	br := binio.NewReader(buf, binio.LittleEndian)
	if _, err := br.ReadBytes(len(magic)); err != nil {
		return nil, nil, err
	}

	scope := expr.NewScope(0, 0)
	header, warnings, err := codec.Decode(br, headerCompound, scope)
	if err != nil {
		return nil, warnings, err
	}

	img := &Image{Header: header}
	if hasDX10Extension(header) {
		dx10Scope := expr.NewScope(0, 0)
		dx10, warns, err := codec.Decode(br, dx10Compound, dx10Scope)
		warnings = append(warnings, warns...)
		if err != nil {
			return nil, warnings, err
		}
		img.DX10 = dx10
	}

	texels, err := br.ReadBytes(br.Len())
	if err != nil {
		return nil, warnings, err
	}
	img.Texels = texels
	return img, warnings, nil
}

// Save writes img to w, byte-exact with what Open would read back.
func Save(img *Image, w io.Writer) error {
	bw := binio.NewWriter(binio.LittleEndian)
	bw.WriteBytes(magic)

	scope := expr.NewScope(0, 0)
	if err := codec.Encode(bw, img.Header, scope); err != nil {
		return err
	}
	if img.DX10 != nil {
		dx10Scope := expr.NewScope(0, 0)
		if err := codec.Encode(bw, img.DX10, dx10Scope); err != nil {
			return err
		}
	}
	bw.WriteBytes(img.Texels)

	_, err := bw.WriteTo(w)
	return err
}

func hasDX10Extension(header *value.Instance) bool {
	pfSlot, ok := header.Get("pixelFormat")
	if !ok {
		return false
	}
	pf, err := pfSlot.Instance()
	if err != nil {
		return false
	}
	fccSlot, ok := pf.Get("fourCC")
	if !ok {
		return false
	}
	arr, err := fccSlot.ArrayVal()
	if err != nil || arr.Len() != 4 {
		return false
	}
	raw := make([]byte, 4)
	for i, s := range arr.Elem {
		v, err := s.Uint()
		if err != nil {
			return false
		}
		raw[i] = byte(v)
	}
	return bytes.Equal(raw, dx10FourCC)
}

// Schema returns the loaded DDS schema.
func Schema() *schema.Schema { return ddsSchema }
