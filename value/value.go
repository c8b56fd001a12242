// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package value is the dynamically-typed instance model (C4) that codec
// decodes into and encodes from: one Instance per compound, one Slot per
// declared field, holding whichever payload that field's schema kind
// implies.
package value

import (
	"errors"
	"fmt"

	"github.com/blockfmt/engine/schema"
)

// ErrTypeError is returned when a caller asks a Slot for a payload shape it
// doesn't hold (e.g. Int() on a sub-instance slot).
var ErrTypeError = errors.New("value: type error")

// SlotKind discriminates what a Slot currently holds.
type SlotKind int

const (
	// SlotAbsent means the field's condition/version gate excluded it: no
	// bytes were read or written for it.
	SlotAbsent SlotKind = iota
	// SlotScalar holds an integer, float, string or EnumValue.
	SlotScalar
	// SlotInstance holds a nested *Instance (a KindCompound field).
	SlotInstance
	// SlotArray holds an *Array.
	SlotArray
	// SlotLink holds a *Link (KindRef or KindPtr field).
	SlotLink
)

// EnumValue preserves the raw underlying integer of an enum-typed field
// even when it doesn't match any declared option, so a value read from an
// unrecognized/future enum member round-trips byte-exact instead of being
// silently coerced or dropped.
type EnumValue struct {
	Enum *schema.Enum
	Raw  int64
}

// Name returns the declared option name for v's raw value, or "" if it
// doesn't match any declared option (still a valid, round-trippable value).
func (v EnumValue) Name() string {
	for _, n := range v.Enum.Names {
		if val, _ := v.Enum.ValueOf(n); val == v.Raw {
			return n
		}
	}
	return ""
}

// Known reports whether Raw matches a declared option.
func (v EnumValue) Known() bool { return v.Name() != "" }

// Link is a reference to another block in the graph: a strong (owning) or
// weak (non-owning) link. Before resolution only RawIndex is meaningful;
// after resolution Target holds the resolved block, or nil if RawIndex was
// -1 (a null link).
type Link struct {
	Strong   bool
	RawIndex int32
	Target   interface{} // *blockio.Block, typed at the blockio layer to avoid an import cycle
}

// IsNull reports whether the link is a null reference.
func (l Link) IsNull() bool { return l.RawIndex < 0 }

// Array holds a 1-D or 2-D (jagged) sequence of Slots, all for the same
// declared element field.
type Array struct {
	Elem  []Slot   // valid when not jagged (Length2 nil on the field)
	Rows  [][]Slot // valid when jagged (Length2 present on the field)
	Jagged bool
}

// Len returns the outer length: len(Elem) or len(Rows).
func (a *Array) Len() int {
	if a.Jagged {
		return len(a.Rows)
	}
	return len(a.Elem)
}

// Slot is the value held by one field of an Instance. Exactly one of its
// payload accessors is meaningful, selected by Kind.
type Slot struct {
	Kind SlotKind

	scalar   interface{} // int64, uint64, float32, float64, string, EnumValue
	instance *Instance
	array    *Array
	link     *Link
}

// Int returns the slot's scalar as int64.
func (s Slot) Int() (int64, error) {
	switch v := s.scalar.(type) {
	case int64:
		return v, nil
	case uint64:
		return int64(v), nil
	case EnumValue:
		return v.Raw, nil
	default:
		return 0, fmt.Errorf("%w: slot is not an integer", ErrTypeError)
	}
}

// Uint returns the slot's scalar as uint64.
func (s Slot) Uint() (uint64, error) {
	switch v := s.scalar.(type) {
	case uint64:
		return v, nil
	case int64:
		return uint64(v), nil
	default:
		return 0, fmt.Errorf("%w: slot is not an unsigned integer", ErrTypeError)
	}
}

// Float returns the slot's scalar as float64.
func (s Slot) Float() (float64, error) {
	switch v := s.scalar.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%w: slot is not a float", ErrTypeError)
	}
}

// String returns the slot's scalar as a string.
func (s Slot) String() (string, error) {
	v, ok := s.scalar.(string)
	if !ok {
		return "", fmt.Errorf("%w: slot is not a string", ErrTypeError)
	}
	return v, nil
}

// Enum returns the slot's scalar as an EnumValue.
func (s Slot) Enum() (EnumValue, error) {
	v, ok := s.scalar.(EnumValue)
	if !ok {
		return EnumValue{}, fmt.Errorf("%w: slot is not an enum", ErrTypeError)
	}
	return v, nil
}

// Instance returns the slot's nested instance.
func (s Slot) Instance() (*Instance, error) {
	if s.Kind != SlotInstance {
		return nil, fmt.Errorf("%w: slot is not a sub-instance", ErrTypeError)
	}
	return s.instance, nil
}

// ArrayVal returns the slot's array payload.
func (s Slot) ArrayVal() (*Array, error) {
	if s.Kind != SlotArray {
		return nil, fmt.Errorf("%w: slot is not an array", ErrTypeError)
	}
	return s.array, nil
}

// LinkVal returns the slot's link payload.
func (s Slot) LinkVal() (*Link, error) {
	if s.Kind != SlotLink {
		return nil, fmt.Errorf("%w: slot is not a link", ErrTypeError)
	}
	return s.link, nil
}

// NewScalarSlot wraps a primitive scalar (int64, uint64, float32, float64,
// string or EnumValue).
func NewScalarSlot(v interface{}) Slot { return Slot{Kind: SlotScalar, scalar: v} }

// NewInstanceSlot wraps a nested compound instance.
func NewInstanceSlot(inst *Instance) Slot { return Slot{Kind: SlotInstance, instance: inst} }

// NewArraySlot wraps an array.
func NewArraySlot(a *Array) Slot { return Slot{Kind: SlotArray, array: a} }

// NewLinkSlot wraps a link.
func NewLinkSlot(l *Link) Slot { return Slot{Kind: SlotLink, link: l} }

// AbsentSlot is the zero Slot: SlotAbsent, no payload.
var AbsentSlot = Slot{Kind: SlotAbsent}

// Instance is one decoded/to-be-encoded compound: its schema type plus a
// dense slot vector in the compound's flattened field declaration order.
type Instance struct {
	Compound *schema.Compound
	Slots    []Slot
}

// NewInstance allocates an Instance with every slot initialized absent.
func NewInstance(c *schema.Compound) *Instance {
	return &Instance{Compound: c, Slots: make([]Slot, len(c.Fields))}
}

// Get returns the slot for a named field, or AbsentSlot plus false if no
// such field is declared.
func (inst *Instance) Get(name string) (Slot, bool) {
	for i, f := range inst.Compound.Fields {
		if f.Name == name {
			return inst.Slots[i], true
		}
	}
	return AbsentSlot, false
}

// Set assigns the slot for a named field.
func (inst *Instance) Set(name string, s Slot) bool {
	for i, f := range inst.Compound.Fields {
		if f.Name == name {
			inst.Slots[i] = s
			return true
		}
	}
	return false
}

// TypeName returns the bound compound's declared name.
func (inst *Instance) TypeName() string { return inst.Compound.Name }
