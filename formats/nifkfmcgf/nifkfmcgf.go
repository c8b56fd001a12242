// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package nifkfmcgf is a representative block-graph format standing in for
// NetImmerse/Gamebryo's NIF, KFM and CGF families: a zlib-compressed block
// section, a string table for node names, strong child links and weak
// parent-pointer links, a version-gated field, and a template (generic)
// compound instantiated once at package initialisation. The real NIF/CGF type
// libraries are thousands of compound types; this engine's kernel only
// needs one schema subset exercising every wire-level mechanism those
// formats use, not the full catalog (the catalog itself belongs to the
// external toaster/editor tooling this engine feeds).
package nifkfmcgf

import (
	"io"
	"strings"

	"github.com/blockfmt/engine/binio"
	"github.com/blockfmt/engine/blockio"
	"github.com/blockfmt/engine/diag"
	"github.com/blockfmt/engine/registry"
	"github.com/blockfmt/engine/schema"
)

const schemaDoc = `<?xml version="1.0"?>
<description>
  <basic name="uint" width="4"/>
  <basic name="float" width="4" float="true"/>

  <compound name="Header">
    <field name="version" type="uint"/>
    <field name="user_version" type="uint"/>
  </compound>

  <compound name="NiAVObject">
    <field name="nameIndex" type="uint"/>
    <field name="numChildren" type="uint"/>
    <field name="children" type="ref" template="NiAVObject" length="numChildren"/>
    <field name="parent" type="ptr" template="NiAVObject"/>
  </compound>

  <compound name="NiController" inherit="NiAVObject">
    <field name="frequency" type="float"/>
    <field name="numExtraFlags" type="uint" vercond="-10.0.1.0"/>
  </compound>

  <compound name="FloatKeys" template="T">
    <field name="count" type="uint"/>
    <field name="items" type="T" length="count"/>
  </compound>
</description>`

// Signature identifies this representative format on the wire. Real
// NIF/KFM/CGF files each carry their own distinct magic; this engine
// registers one synthetic signature standing in for all three since the
// kernel-level mechanics they exercise are identical.
var Signature = []byte("NKCG")

var formatSchema *schema.Schema

func init() {
	s, _, err := schema.Load(strings.NewReader(schemaDoc))
	if err != nil {
		panic(err)
	}
	formatSchema = s

	// FloatKeys is generic; instantiate the one concrete binding this
	// representative format needs (a key-times/key-values table of floats)
	// and publish it under a block-type-table-friendly name, per the
	// registry/formats-layer instantiation design: schema.Instantiate runs
	// here, once, rather than per-field from codec.
	generic, ok := s.Compounds["FloatKeys"]
	if !ok {
		panic("nifkfmcgf: schema is missing the FloatKeys template")
	}
	concrete, err := s.Instantiate(generic, []string{"float"})
	if err != nil {
		panic(err)
	}
	concrete.Name = "NiFloatKeys"
	s.Compounds["NiFloatKeys"] = concrete
}

// Register adds this format's entry to reg.
func Register(reg *registry.Registry) {
	reg.Register(registry.Entry{
		Name:           "NIFKFMCGF",
		Signature:      Signature,
		Schema:         formatSchema,
		HeaderCompound: "Header",
		Endian:         binio.LittleEndian,
		Compressed:     registry.CompressionZlib,
		StringTable:    true,
	})
}

// Open reads a block graph from r using reg (which must have this format
// registered, e.g. via Register).
func Open(r io.Reader, reg *registry.Registry) (*blockio.Graph, *diag.List, error) {
	return blockio.Open(r, reg)
}

// Save writes g to w.
func Save(g *blockio.Graph, w io.Writer) (*diag.List, error) {
	return blockio.Save(g, w)
}

// Schema returns the loaded schema.
func Schema() *schema.Schema { return formatSchema }
