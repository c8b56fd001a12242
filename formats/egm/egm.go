// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package egm implements the simplest format in the pack: a small header
// plus a flat vertex morph table, with no block graph at all — a single
// implicit root compound. It exists mainly as the smallest regression
// fixture exercising codec's 2-D (jagged) array path: one row per morph
// target, one vertex per affected mesh vertex.
package egm

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
  <basic name="uint" width="4"/>
  <basic name="float" width="4" float="true"/>

  <compound name="Vertex">
    <field name="x" type="float"/>
    <field name="y" type="float"/>
    <field name="z" type="float"/>
  </compound>

  <compound name="Morph">
    <field name="numMorphs" type="uint"/>
    <field name="numVerts" type="uint"/>
    <field name="targets" type="Vertex" length="numMorphs" length2="numVerts"/>
  </compound>
</description>`

var egmSchema *schema.Schema
var rootCompound *schema.Compound

func init() {
	s, _, err := schema.Load(strings.NewReader(schemaDoc))
	if err != nil {
		panic(err)
	}
	egmSchema = s
	rootCompound, _ = s.Compound("Morph")
}

// Open reads one EGM morph table from r.
func Open(r io.Reader) (*value.Instance, []diag.Warning, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	br := binio.NewReader(buf, binio.LittleEndian)
	scope := expr.NewScope(0, 0)
	return codec.Decode(br, rootCompound, scope)
}

// Save writes inst (an instance of the Morph compound) to w.
func Save(inst *value.Instance, w io.Writer) error {
	bw := binio.NewWriter(binio.LittleEndian)
	scope := expr.NewScope(0, 0)
	if err := codec.Encode(bw, inst, scope); err != nil {
		return err
	}
	_, err := bw.WriteTo(w)
	return err
}

// Schema returns the loaded EGM schema.
func Schema() *schema.Schema { return egmSchema }
