// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package schema

import (
	"errors"
	"fmt"
)

// ErrUnknownType is wrapped by ErrSchema when a field, enum or compound
// references a type name not declared anywhere in the description.
var ErrUnknownType = errors.New("schema: unknown type")

// ErrSchemaMalformed is wrapped by ErrSchema for structural XML problems
// (missing required attribute, unparsable version string, cyclic
// inheritance) distinct from an unresolved type reference.
var ErrSchemaMalformed = errors.New("schema: malformed description")

// ErrSchema reports a single problem found while loading a description,
// with enough position context to point a schema author at the offending
// declaration.
type ErrSchema struct {
	Kind string // "type", "enum", "compound", "field"
	Name string // the declaration's own name, e.g. the compound being defined
	Pos  string // e.g. "compound NiNode, field children"
	Err  error
}

func (e *ErrSchema) Error() string {
	return fmt.Sprintf("schema: %s %q (%s): %v", e.Kind, e.Name, e.Pos, e.Err)
}

func (e *ErrSchema) Unwrap() error { return e.Err }

// Warning is a non-fatal issue surfaced during loading (e.g. an enum member
// declared twice with different values, the second silently shadowing the
// first).
type Warning struct {
	Pos     string
	Message string
}

func (w Warning) String() string { return w.Pos + ": " + w.Message }
