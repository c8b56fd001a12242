// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package codec is the serializer/deserializer (C6): the single driver that
// walks a compound's flattened field list in declared order, threading
// binio reads/writes, schema-compiled expressions and the value instance
// model together.
package codec

import (
	"errors"
	"fmt"

	"github.com/blockfmt/engine/binio"
	"github.com/blockfmt/engine/diag"
	"github.com/blockfmt/engine/expr"
	"github.com/blockfmt/engine/schema"
	"github.com/blockfmt/engine/value"
)

// ErrBitfieldWidth is returned when a bitfield sub-field's declared width
// doesn't fit in its underlying integer's remaining bits.
var ErrBitfieldWidth = errors.New("codec: bitfield does not fit in underlying field")

// Decode reads one instance of compound c from r, evaluating c's fields in
// declared order against scope. scope must already carry the ambient
// version/user_version; Decode extends it one field at a time as each field
// is read, so a later field's condition can see the prior field's value but
// never the reverse (no lookahead, no rewind — spec.md §4.4).
func Decode(r *binio.Reader, c *schema.Compound, scope *expr.Scope) (*value.Instance, []diag.Warning, error) {
	inst := value.NewInstance(c)
	var warnings []diag.Warning

	bitfieldHosts := make(map[string]uint64)

	for i := range c.Fields {
		f := &c.Fields[i]

		include, err := fieldIncluded(f, scope)
		if err != nil {
			return nil, warnings, err
		}
		if !include {
			scope.Set(f.Name, nil)
			continue
		}

		if f.BitfieldOf != "" {
			host, ok := bitfieldHosts[f.BitfieldOf]
			if !ok {
				return nil, warnings, fmt.Errorf("codec: bitfield %q references unread host field %q", f.Name, f.BitfieldOf)
			}
			hostField := c.FieldByName(f.BitfieldOf)
			if hostField == nil {
				return nil, warnings, fmt.Errorf("codec: bitfield %q references undeclared host field %q", f.Name, f.BitfieldOf)
			}
			hostBits := hostWidthBits(hostField)
			if f.BitOffset+f.BitWidth > hostBits {
				return nil, warnings, fmt.Errorf("%w: field %q (offset %d, width %d) exceeds host %q's %d bits", ErrBitfieldWidth, f.Name, f.BitOffset, f.BitWidth, f.BitfieldOf, hostBits)
			}
			raw := extractBits(host, f.BitOffset, f.BitWidth, hostBits, c.BitfieldMSBFirst)
			inst.Slots[i] = value.NewScalarSlot(int64(raw))
			scope.Set(f.Name, int64(raw))
			continue
		}

		slot, warns, err := decodeField(r, f, scope)
		warnings = append(warnings, warns...)
		if err != nil {
			return nil, warnings, err
		}
		inst.Slots[i] = slot
		if u, err := slot.Uint(); err == nil {
			bitfieldHosts[f.Name] = u
		} else if n, err := slot.Int(); err == nil {
			bitfieldHosts[f.Name] = uint64(n)
		}

		scope.Set(f.Name, scopeValue(slot))
	}

	return inst, warnings, nil
}

// Encode writes inst's slots to w in inst.Compound's declared field order,
// rebuilding scope exactly as Decode would have.
func Encode(w *binio.Writer, inst *value.Instance, scope *expr.Scope) error {
	c := inst.Compound
	pendingBitfields := make(map[string][]*schema.Field)
	for i := range c.Fields {
		if host := c.Fields[i].BitfieldOf; host != "" {
			pendingBitfields[host] = append(pendingBitfields[host], &c.Fields[i])
		}
	}

	for i := range c.Fields {
		f := &c.Fields[i]

		include, err := fieldIncluded(f, scope)
		if err != nil {
			return err
		}
		if !include {
			scope.Set(f.Name, nil)
			continue
		}

		if f.BitfieldOf != "" {
			v, err := inst.Slots[i].Int()
			if err != nil {
				return err
			}
			scope.Set(f.Name, v)
			continue
		}

		slot := inst.Slots[i]

		// Pack every present bitfield sub-field that targets this host into
		// the host's integer before encoding, wherever it is declared.
		if subs := pendingBitfields[f.Name]; len(subs) > 0 {
			hostVal, err := slot.Uint()
			if err != nil {
				return err
			}
			hostBits := hostWidthBits(f)
			for _, sub := range subs {
				if sub.BitOffset+sub.BitWidth > hostBits {
					return fmt.Errorf("%w: field %q (offset %d, width %d) exceeds host %q's %d bits", ErrBitfieldWidth, sub.Name, sub.BitOffset, sub.BitWidth, f.Name, hostBits)
				}
				subSlotIdx := fieldIndex(c, sub.Name)
				if inst.Slots[subSlotIdx].Kind == value.SlotAbsent {
					continue
				}
				v, err := inst.Slots[subSlotIdx].Int()
				if err != nil {
					return err
				}
				hostVal = packBits(hostVal, uint64(v), sub.BitOffset, sub.BitWidth, hostBits, c.BitfieldMSBFirst)
			}
			slot = value.NewScalarSlot(hostVal)
		}

		if err := encodeField(w, f, slot, scope); err != nil {
			return err
		}

		scope.Set(f.Name, scopeValue(slot))
	}

	return nil
}

func fieldIndex(c *schema.Compound, name string) int {
	for i, f := range c.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// fieldIncluded evaluates a field's version/user-version range and Cond
// expression against scope.
func fieldIncluded(f *schema.Field, scope *expr.Scope) (bool, error) {
	if f.VersionFrom != nil && scope.Version < *f.VersionFrom {
		return false, nil
	}
	if f.VersionTo != nil && scope.Version > *f.VersionTo {
		return false, nil
	}
	if f.UserVersionFrom != nil && scope.UserVer < *f.UserVersionFrom {
		return false, nil
	}
	if f.UserVersionTo != nil && scope.UserVer > *f.UserVersionTo {
		return false, nil
	}
	if f.Cond != nil {
		ok, err := f.Cond.EvalBool(scope)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// scopeValue extracts the plain Go value a subsequent expression would read
// back out of scope for this slot (nil for non-scalar slots: arrays, links
// and sub-instances are never referenced from length/condition expressions
// by value, only their presence matters and that's handled by fieldIncluded
// having already run before the scope is extended).
func scopeValue(s value.Slot) interface{} {
	switch s.Kind {
	case value.SlotScalar:
		if i, err := s.Int(); err == nil {
			return i
		}
		if fl, err := s.Float(); err == nil {
			return fl
		}
		if str, err := s.String(); err == nil {
			return str
		}
	}
	return nil
}

// hostWidthBits returns the bit width of a bitfield host field's declared
// underlying type (a basic type directly, or an enum's underlying basic
// type), falling back to 64 for anything else so an unusual host type
// degrades to "no effective bound" rather than a spurious overflow error.
func hostWidthBits(f *schema.Field) int {
	switch f.Kind {
	case schema.KindBasic:
		if f.Basic != nil {
			return f.Basic.Width * 8
		}
	case schema.KindEnum:
		if f.Enum != nil && f.Enum.Underlying != nil {
			return f.Enum.Underlying.Width * 8
		}
	}
	return 64
}

// extractBits isolates a width-bit window starting at offset within host.
// LSB-first counts offset from bit 0 (the host's least significant bit);
// MSB-first counts it from the top of the host's declared hostBits width,
// so the same offset/width pair selects a different window depending on
// the enclosing compound's bitfield-msb setting.
func extractBits(host uint64, offset, width, hostBits int, msbFirst bool) uint64 {
	mask := uint64(1)<<uint(width) - 1
	shift := offset
	if msbFirst {
		shift = hostBits - offset - width
	}
	return (host >> uint(shift)) & mask
}

// packBits is extractBits' inverse, used by Encode to fold a bitfield
// sub-field's value back into its host integer before the host is written.
func packBits(host, v uint64, offset, width, hostBits int, msbFirst bool) uint64 {
	mask := uint64(1)<<uint(width) - 1
	shift := offset
	if msbFirst {
		shift = hostBits - offset - width
	}
	host &^= mask << uint(shift)
	host |= (v & mask) << uint(shift)
	return host
}
