// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package schema

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/blockfmt/engine/expr"
)

// Load parses a declarative type description from r. The document is an
// element-per-type, attribute-per-field XML layout in the style niftools'
// nifxml.xml uses: top-level <basic>, <enum> and <compound> elements, with
// <compound> nesting <field> children in declaration order.
//
// Loading is two-pass: the first pass registers every basic/enum/compound
// name so field type references resolve regardless of declaration order (an
// enum's storage basic type, read in this same pass, must be declared
// before the enum); the
// second flattens inheritance (<compound inherit="...">) and binds every
// field's type reference, returning ErrUnknownType for anything still
// unresolved. Condition and length expressions are compiled immediately so
// codec never parses expression text per instance.
func Load(r io.Reader) (*Schema, []Warning, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, nil, &ErrSchema{Kind: "document", Pos: "root", Err: fmt.Errorf("%w: %v", ErrSchemaMalformed, err)}
	}
	root := doc.Root()
	if root == nil {
		return nil, nil, &ErrSchema{Kind: "document", Pos: "root", Err: fmt.Errorf("%w: empty document", ErrSchemaMalformed)}
	}

	s := &Schema{
		Basics:    make(map[string]*BasicType),
		Enums:     make(map[string]*Enum),
		Compounds: make(map[string]*Compound),
	}
	var warnings []Warning

	// Pass 1: register names and everything that needs no forward
	// reference (basics in full, enums in full, compounds as empty shells
	// so later field resolution can see every compound name up front).
	type pendingCompound struct {
		elem *etree.Element
		c    *Compound
	}
	var pending []pendingCompound

	for _, child := range root.ChildElements() {
		switch child.Tag {
		case "basic":
			bt, err := parseBasic(child)
			if err != nil {
				return nil, nil, err
			}
			s.Basics[bt.Name] = bt

		case "enum":
			e, warns, err := parseEnum(child, s.Basics)
			if err != nil {
				return nil, nil, err
			}
			warnings = append(warnings, warns...)
			s.Enums[e.Name] = e

		case "compound":
			name := child.SelectAttrValue("name", "")
			if name == "" {
				return nil, nil, &ErrSchema{Kind: "compound", Pos: "root", Err: fmt.Errorf("%w: missing name attribute", ErrSchemaMalformed)}
			}
			c := &Compound{Name: name}
			if tpl := child.SelectAttrValue("template", ""); tpl != "" {
				c.TemplateParams = strings.Split(tpl, ",")
				c.Generic = true
			}
			if msb := child.SelectAttrValue("bitfield-msb", ""); msb == "true" {
				c.BitfieldMSBFirst = true
			}
			s.Compounds[name] = c
			pending = append(pending, pendingCompound{elem: child, c: c})

		default:
			warnings = append(warnings, Warning{Pos: "root", Message: "unrecognized element <" + child.Tag + ">"})
		}
	}

	// Pass 2: link each compound to its parent, then flatten fields
	// recursively (parent before child), memoized by compound so each is
	// flattened exactly once regardless of visit order.
	byName := make(map[string]pendingCompound, len(pending))
	for _, p := range pending {
		if parentName := p.elem.SelectAttrValue("inherit", ""); parentName != "" {
			parent, ok := s.Compounds[parentName]
			if !ok {
				return nil, nil, &ErrSchema{Kind: "compound", Name: p.c.Name, Pos: "inherit=" + parentName, Err: ErrUnknownType}
			}
			p.c.Parent = parent
		}
		byName[p.c.Name] = p
	}

	flattened := make(map[string]bool, len(pending))
	inProgress := make(map[string]bool, len(pending))
	var flatten func(p pendingCompound) error
	flatten = func(p pendingCompound) error {
		if flattened[p.c.Name] {
			return nil
		}
		if inProgress[p.c.Name] {
			return &ErrSchema{Kind: "compound", Name: p.c.Name, Pos: "inherit", Err: fmt.Errorf("%w: cyclic inheritance", ErrSchemaMalformed)}
		}
		inProgress[p.c.Name] = true
		if p.c.Parent != nil {
			parentPending, ok := byName[p.c.Parent.Name]
			if ok {
				if err := flatten(parentPending); err != nil {
					return err
				}
			}
		}
		fields, warns, err := parseFields(p.elem, s)
		if err != nil {
			return err
		}
		warnings = append(warnings, warns...)
		if p.c.Parent != nil {
			p.c.Fields = append(append([]Field{}, p.c.Parent.Fields...), fields...)
		} else {
			p.c.Fields = fields
		}
		flattened[p.c.Name] = true
		inProgress[p.c.Name] = false
		return nil
	}
	for _, p := range pending {
		if err := flatten(p); err != nil {
			return nil, nil, err
		}
	}

	s.tplCache = newTemplateCache(64)
	return s, warnings, nil
}

func parseBasic(el *etree.Element) (*BasicType, error) {
	name := el.SelectAttrValue("name", "")
	if name == "" {
		return nil, &ErrSchema{Kind: "basic", Pos: "root", Err: fmt.Errorf("%w: missing name", ErrSchemaMalformed)}
	}
	widthStr := el.SelectAttrValue("width", "")
	width, err := strconv.Atoi(widthStr)
	if err != nil {
		return nil, &ErrSchema{Kind: "basic", Name: name, Pos: "width", Err: fmt.Errorf("%w: %v", ErrSchemaMalformed, err)}
	}
	return &BasicType{
		Name:      name,
		Width:     width,
		Signed:    el.SelectAttrValue("signed", "") == "true",
		Float:     el.SelectAttrValue("float", "") == "true",
		Char:      el.SelectAttrValue("char", "") == "true",
		BigEndian: el.SelectAttrValue("endian", "") == "big",
	}, nil
}

func parseEnum(el *etree.Element, basics map[string]*BasicType) (*Enum, []Warning, error) {
	name := el.SelectAttrValue("name", "")
	if name == "" {
		return nil, nil, &ErrSchema{Kind: "enum", Pos: "root", Err: fmt.Errorf("%w: missing name", ErrSchemaMalformed)}
	}
	storage := el.SelectAttrValue("storage", "")
	under, ok := basics[storage]
	if !ok {
		return nil, nil, &ErrSchema{Kind: "enum", Name: name, Pos: "storage=" + storage, Err: ErrUnknownType}
	}
	e := &Enum{
		Name:       name,
		Underlying: under,
		Values:     make(map[string]int64),
		IsBitflags: el.SelectAttrValue("bitflags", "") == "true",
	}
	var warnings []Warning
	next := int64(0)
	for _, opt := range el.SelectElements("option") {
		optName := opt.SelectAttrValue("name", "")
		if optName == "" {
			return nil, nil, &ErrSchema{Kind: "enum", Name: name, Pos: "option", Err: fmt.Errorf("%w: missing name", ErrSchemaMalformed)}
		}
		v := next
		if valStr := opt.SelectAttrValue("value", ""); valStr != "" {
			parsed, err := strconv.ParseInt(valStr, 0, 64)
			if err != nil {
				return nil, nil, &ErrSchema{Kind: "enum", Name: name, Pos: "option " + optName, Err: fmt.Errorf("%w: %v", ErrSchemaMalformed, err)}
			}
			v = parsed
		}
		if _, dup := e.Values[optName]; dup {
			warnings = append(warnings, Warning{Pos: "enum " + name, Message: "duplicate option " + optName + ", last value wins"})
		} else {
			e.Names = append(e.Names, optName)
		}
		e.Values[optName] = v
		next = v + 1
	}
	return e, warnings, nil
}

// parseFields resolves one compound element's own (non-inherited) <field>
// children, compiling every condition/length/arg expression.
func parseFields(el *etree.Element, s *Schema) ([]Field, []Warning, error) {
	compoundName := el.SelectAttrValue("name", "")
	var fields []Field
	var warnings []Warning

	for _, fe := range el.SelectElements("field") {
		fname := fe.SelectAttrValue("name", "")
		if fname == "" {
			return nil, nil, &ErrSchema{Kind: "field", Name: compoundName, Pos: "field", Err: fmt.Errorf("%w: missing name", ErrSchemaMalformed)}
		}
		pos := fmt.Sprintf("compound %s, field %s", compoundName, fname)

		typeName := fe.SelectAttrValue("type", "")
		f := Field{Name: fname, Default: fe.SelectAttrValue("default", "")}

		switch {
		case typeName == "ref":
			target := fe.SelectAttrValue("template", "")
			c, ok := s.Compounds[target]
			if !ok {
				return nil, nil, &ErrSchema{Kind: "field", Name: compoundName, Pos: pos, Err: ErrUnknownType}
			}
			f.Kind, f.Compound = KindRef, c
		case typeName == "ptr":
			target := fe.SelectAttrValue("template", "")
			c, ok := s.Compounds[target]
			if !ok {
				return nil, nil, &ErrSchema{Kind: "field", Name: compoundName, Pos: pos, Err: ErrUnknownType}
			}
			f.Kind, f.Compound = KindPtr, c
		case typeName == "string":
			f.Kind = KindString
		case contains(compoundTemplateParams(s, compoundName), typeName):
			f.Kind, f.TplParam = KindTemplateParam, typeName
		default:
			if bt, ok := s.Basics[typeName]; ok {
				f.Kind, f.Basic = KindBasic, bt
			} else if en, ok := s.Enums[typeName]; ok {
				f.Kind, f.Enum = KindEnum, en
			} else if c, ok := s.Compounds[typeName]; ok {
				f.Kind, f.Compound = KindCompound, c
			} else {
				return nil, nil, &ErrSchema{Kind: "field", Name: compoundName, Pos: pos + " type=" + typeName, Err: ErrUnknownType}
			}
		}

		var err error
		if f.Length1, err = compileAttr(fe, "length", pos); err != nil {
			return nil, nil, err
		}
		if f.Length2, err = compileAttr(fe, "length2", pos); err != nil {
			return nil, nil, err
		}
		if f.Cond, err = compileAttr(fe, "cond", pos); err != nil {
			return nil, nil, err
		}
		if f.Arg, err = compileAttr(fe, "arg", pos); err != nil {
			return nil, nil, err
		}

		if f.VersionFrom, f.VersionTo, err = parseVersionRange(fe, "vercond", pos); err != nil {
			return nil, nil, err
		}
		if f.UserVersionFrom, f.UserVersionTo, err = parseVersionRange(fe, "userver", pos); err != nil {
			return nil, nil, err
		}

		if bf := fe.SelectAttrValue("bitfield-of", ""); bf != "" {
			f.BitfieldOf = bf
			off, _ := strconv.Atoi(fe.SelectAttrValue("bit-offset", "0"))
			width, _ := strconv.Atoi(fe.SelectAttrValue("bit-width", "1"))
			f.BitOffset, f.BitWidth = off, width
		}

		fields = append(fields, f)
	}
	return fields, warnings, nil
}

func compileAttr(el *etree.Element, attr, pos string) (*expr.Compiled, error) {
	src := el.SelectAttrValue(attr, "")
	if src == "" {
		return nil, nil
	}
	c, err := expr.Compile(src)
	if err != nil {
		return nil, &ErrSchema{Kind: "field", Pos: pos + " " + attr, Err: err}
	}
	return c, nil
}

// parseVersionRange reads "min-max" (either side optional) from attr,
// e.g. vercond="20.2.0.7-" or vercond="-10.0.1.0", packing each side with
// PackVersion.
func parseVersionRange(el *etree.Element, attr, pos string) (from, to *uint32, err error) {
	raw := el.SelectAttrValue(attr, "")
	if raw == "" {
		return nil, nil, nil
	}
	parts := strings.SplitN(raw, "-", 2)
	if len(parts) != 2 {
		return nil, nil, &ErrSchema{Kind: "field", Pos: pos + " " + attr, Err: fmt.Errorf("%w: expected min-max", ErrSchemaMalformed)}
	}
	if parts[0] != "" {
		v, perr := parseDottedVersion(parts[0])
		if perr != nil {
			return nil, nil, &ErrSchema{Kind: "field", Pos: pos + " " + attr, Err: perr}
		}
		from = &v
	}
	if parts[1] != "" {
		v, perr := parseDottedVersion(parts[1])
		if perr != nil {
			return nil, nil, &ErrSchema{Kind: "field", Pos: pos + " " + attr, Err: perr}
		}
		to = &v
	}
	return from, to, nil
}

func parseDottedVersion(s string) (uint32, error) {
	parts := strings.Split(s, ".")
	var nums [4]uint32
	for i := 0; i < 4 && i < len(parts); i++ {
		n, err := strconv.ParseUint(parts[i], 10, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid version component %q", ErrSchemaMalformed, parts[i])
		}
		nums[i] = uint32(n)
	}
	return PackVersion(nums[0], nums[1], nums[2], nums[3]), nil
}

func compoundTemplateParams(s *Schema, compoundName string) []string {
	c, ok := s.Compounds[compoundName]
	if !ok {
		return nil
	}
	return c.TemplateParams
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
