// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package codec

import (
	"fmt"

	"github.com/blockfmt/engine/binio"
	"github.com/blockfmt/engine/diag"
	"github.com/blockfmt/engine/expr"
	"github.com/blockfmt/engine/schema"
	"github.com/blockfmt/engine/value"
)

// decodeField reads one field (scalar, enum, sub-compound, array or link)
// according to f.Kind. Array and templated fields recurse through this same
// function per element.
func decodeField(r *binio.Reader, f *schema.Field, scope *expr.Scope) (value.Slot, []diag.Warning, error) {
	if f.IsArray() {
		return decodeArray(r, f, scope)
	}
	return decodeScalarLike(r, f, scope)
}

func decodeScalarLike(r *binio.Reader, f *schema.Field, scope *expr.Scope) (value.Slot, []diag.Warning, error) {
	switch f.Kind {
	case schema.KindBasic:
		return decodeBasic(r, f.Basic)
	case schema.KindEnum:
		return decodeEnum(r, f.Enum)
	case schema.KindString:
		s, err := r.ReadSizedString()
		if err != nil {
			return value.AbsentSlot, nil, err
		}
		return value.NewScalarSlot(s), nil, nil
	case schema.KindCompound:
		inst, warns, err := Decode(r, f.Compound, childScope(scope))
		if err != nil {
			return value.AbsentSlot, warns, err
		}
		return value.NewInstanceSlot(inst), warns, nil
	case schema.KindRef, schema.KindPtr:
		idx, err := r.ReadI32()
		if err != nil {
			return value.AbsentSlot, nil, err
		}
		return value.NewLinkSlot(&value.Link{
			Strong:   f.Kind == schema.KindRef,
			RawIndex: idx,
		}), nil, nil
	default:
		return value.AbsentSlot, nil, fmt.Errorf("codec: unhandled field kind %v for %q", f.Kind, f.Name)
	}
}

func decodeBasic(r *binio.Reader, bt *schema.BasicType) (value.Slot, []diag.Warning, error) {
	if bt.Float {
		switch bt.Width {
		case 4:
			v, err := r.ReadF32()
			return value.NewScalarSlot(float64(v)), nil, err
		case 8:
			v, err := r.ReadF64()
			return value.NewScalarSlot(v), nil, err
		}
		return value.AbsentSlot, nil, fmt.Errorf("codec: unsupported float width %d", bt.Width)
	}
	if bt.Signed {
		v, err := r.ReadUint(bt.Width)
		return value.NewScalarSlot(signExtend(v, bt.Width)), nil, err
	}
	v, err := r.ReadUint(bt.Width)
	return value.NewScalarSlot(v), nil, err
}

func signExtend(v uint64, width int) int64 {
	switch width {
	case 1:
		return int64(int8(v))
	case 2:
		return int64(int16(v))
	case 4:
		return int64(int32(v))
	default:
		return int64(v)
	}
}

func decodeEnum(r *binio.Reader, e *schema.Enum) (value.Slot, []diag.Warning, error) {
	raw, err := r.ReadUint(e.Underlying.Width)
	if err != nil {
		return value.AbsentSlot, nil, err
	}
	ev := value.EnumValue{Enum: e, Raw: int64(raw)}
	var warns []diag.Warning
	if !ev.Known() {
		warns = append(warns, diag.Warning{
			Kind:    diag.KindUnknownEnum,
			Message: fmt.Sprintf("enum %s: unrecognized value %d preserved verbatim", e.Name, raw),
		})
	}
	return value.NewScalarSlot(ev), warns, nil
}

func decodeArray(r *binio.Reader, f *schema.Field, scope *expr.Scope) (value.Slot, []diag.Warning, error) {
	n, err := f.Length1.EvalInt(scope)
	if err != nil {
		return value.AbsentSlot, nil, err
	}
	if n < 0 {
		return value.AbsentSlot, nil, fmt.Errorf("codec: field %q has negative length %d", f.Name, n)
	}

	var warnings []diag.Warning

	if f.Is2D() {
		rows := make([][]value.Slot, n)
		for i := int64(0); i < n; i++ {
			inner, err := f.Length2.EvalInt(scope)
			if err != nil {
				return value.AbsentSlot, warnings, err
			}
			row := make([]value.Slot, inner)
			for j := int64(0); j < inner; j++ {
				s, warns, err := decodeArrayElem(r, f, scope)
				warnings = append(warnings, warns...)
				if err != nil {
					return value.AbsentSlot, warnings, err
				}
				row[j] = s
			}
			rows[i] = row
		}
		return value.NewArraySlot(&value.Array{Jagged: true, Rows: rows}), warnings, nil
	}

	elems := make([]value.Slot, n)
	for i := int64(0); i < n; i++ {
		s, warns, err := decodeArrayElem(r, f, scope)
		warnings = append(warnings, warns...)
		if err != nil {
			return value.AbsentSlot, warnings, err
		}
		elems[i] = s
	}
	return value.NewArraySlot(&value.Array{Elem: elems}), warnings, nil
}

func decodeArrayElem(r *binio.Reader, f *schema.Field, scope *expr.Scope) (value.Slot, []diag.Warning, error) {
	elemField := *f
	elemField.Length1, elemField.Length2 = nil, nil
	return decodeScalarLike(r, &elemField, scope)
}

// childScope derives the scope a nested compound instance evaluates its own
// fields against: same ambient version/user_version, independent field
// bindings (a nested compound's fields are never visible to its own
// siblings' expressions by name). Field.Arg is not evaluated here or
// anywhere else in codec, so no template argument is bound into the scope.
func childScope(parent *expr.Scope) *expr.Scope {
	return expr.NewScope(parent.Version, parent.UserVer)
}

// encodeField is Encode's per-field counterpart to decodeField.
func encodeField(w *binio.Writer, f *schema.Field, slot value.Slot, scope *expr.Scope) error {
	if f.IsArray() {
		return encodeArray(w, f, slot, scope)
	}
	return encodeScalarLike(w, f, slot, scope)
}

func encodeScalarLike(w *binio.Writer, f *schema.Field, slot value.Slot, scope *expr.Scope) error {
	switch f.Kind {
	case schema.KindBasic:
		return encodeBasic(w, f.Basic, slot)
	case schema.KindEnum:
		ev, err := slot.Enum()
		if err != nil {
			return err
		}
		return w.WriteUint(f.Enum.Underlying.Width, uint64(ev.Raw))
	case schema.KindString:
		s, err := slot.String()
		if err != nil {
			return err
		}
		w.WriteSizedString(s)
		return nil
	case schema.KindCompound:
		inst, err := slot.Instance()
		if err != nil {
			return err
		}
		return Encode(w, inst, childScope(scope))
	case schema.KindRef, schema.KindPtr:
		link, err := slot.LinkVal()
		if err != nil {
			return err
		}
		w.WriteI32(link.RawIndex)
		return nil
	default:
		return fmt.Errorf("codec: unhandled field kind %v for %q", f.Kind, f.Name)
	}
}

func encodeBasic(w *binio.Writer, bt *schema.BasicType, slot value.Slot) error {
	if bt.Float {
		v, err := slot.Float()
		if err != nil {
			return err
		}
		switch bt.Width {
		case 4:
			w.WriteF32(float32(v))
		case 8:
			w.WriteF64(v)
		default:
			return fmt.Errorf("codec: unsupported float width %d", bt.Width)
		}
		return nil
	}
	if bt.Signed {
		v, err := slot.Int()
		if err != nil {
			return err
		}
		return w.WriteUint(bt.Width, uint64(v))
	}
	v, err := slot.Uint()
	if err != nil {
		return err
	}
	return w.WriteUint(bt.Width, v)
}

func encodeArray(w *binio.Writer, f *schema.Field, slot value.Slot, scope *expr.Scope) error {
	arr, err := slot.ArrayVal()
	if err != nil {
		return err
	}
	elemField := *f
	elemField.Length1, elemField.Length2 = nil, nil

	if arr.Jagged {
		for _, row := range arr.Rows {
			for _, s := range row {
				if err := encodeScalarLike(w, &elemField, s, scope); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, s := range arr.Elem {
		if err := encodeScalarLike(w, &elemField, s, scope); err != nil {
			return err
		}
	}
	return nil
}
