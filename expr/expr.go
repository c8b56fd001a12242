// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package expr compiles and evaluates the condition and length expressions
// embedded in a schema description (C5). Expressions are compiled once, at
// schema load time, and evaluated many times against a per-instance Scope
// built up field by field as a compound is decoded or encoded.
package expr

import (
	"errors"
	"fmt"
	"math"

	"github.com/casbin/govaluate"
)

// ErrDivideByZero is wrapped by Error when evaluation divides by zero.
var ErrDivideByZero = errors.New("expr: divide by zero")

// ErrMissingField is wrapped by Error when an expression references a name
// not present in the evaluation scope — either a field not yet read (the
// evaluator never looks ahead) or a name that doesn't exist at all.
var ErrMissingField = errors.New("expr: missing field")

// ErrTypeMismatch is wrapped by Error when an expression's evaluated type
// can't be coerced to the type the caller asked for (bool or int64).
var ErrTypeMismatch = errors.New("expr: type mismatch")

// Error reports a failure compiling or evaluating one expression, with the
// original source text for diagnostics.
type Error struct {
	Src string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("expr %q: %v", e.Src, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Compiled is a parsed, reusable expression ready for repeated evaluation
// against different scopes.
type Compiled struct {
	src string
	exp *govaluate.EvaluableExpression
}

// Source returns the original expression text.
func (c *Compiled) Source() string { return c.src }

// Compile parses src once. The same Compiled value may be evaluated
// concurrently against independent Scopes.
func Compile(src string) (*Compiled, error) {
	exp, err := govaluate.NewEvaluableExpression(src)
	if err != nil {
		return nil, &Error{Src: src, Err: err}
	}
	return &Compiled{src: src, exp: exp}, nil
}

// MustCompile is like Compile but panics on error; used for schema-internal
// constants known to be valid at build time.
func MustCompile(src string) *Compiled {
	c, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return c
}

// Scope is the evaluation environment for one in-progress compound: the
// fields read or written so far (in declaration order, extended one field
// at a time), plus the ambient version/user_version and any bound template
// arguments. A Scope is never shared across sibling compound instances.
type Scope struct {
	fields  map[string]interface{}
	Version uint32
	UserVer uint32
}

// NewScope creates an empty scope seeded with the ambient version numbers.
func NewScope(version, userVersion uint32) *Scope {
	return &Scope{
		fields:  make(map[string]interface{}),
		Version: version,
		UserVer: userVersion,
	}
}

// Set binds a field name to its already-read/written value. Called once per
// field, in declaration order, immediately after that field is fully
// decoded or encoded — this is what makes expression evaluation
// field-order-sensitive: a later field can never be seen by an earlier
// field's condition or length expression.
func (s *Scope) Set(name string, v interface{}) {
	s.fields[name] = v
}

// Get returns a previously Set value.
func (s *Scope) Get(name string) (interface{}, bool) {
	v, ok := s.fields[name]
	return v, ok
}

func (s *Scope) parameters() govaluate.Parameters {
	return scopeParams{s}
}

type scopeParams struct{ s *Scope }

func (p scopeParams) Get(name string) (interface{}, error) {
	switch name {
	case "version":
		return int64(p.s.Version), nil
	case "user_version":
		return int64(p.s.UserVer), nil
	}
	v, ok := p.s.fields[name]
	if !ok {
		return nil, ErrMissingField
	}
	return v, nil
}

// EvalBool evaluates c against scope and coerces the result to bool.
func (c *Compiled) EvalBool(scope *Scope) (bool, error) {
	v, err := c.exp.Eval(scope.parameters())
	if err != nil {
		return false, wrapEvalErr(c.src, err)
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case float64:
		return b != 0, nil
	default:
		return false, &Error{Src: c.src, Err: ErrTypeMismatch}
	}
}

// EvalInt evaluates c against scope and coerces the result to int64. Used
// for length and template-argument expressions. A division by zero surfaces
// as ErrDivideByZero rather than the IEEE-754 infinity/NaN govaluate itself
// produces.
func (c *Compiled) EvalInt(scope *Scope) (int64, error) {
	v, err := c.exp.Eval(scope.parameters())
	if err != nil {
		return 0, wrapEvalErr(c.src, err)
	}
	switch n := v.(type) {
	case float64:
		if math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, &Error{Src: c.src, Err: ErrDivideByZero}
		}
		return int64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, &Error{Src: c.src, Err: ErrTypeMismatch}
	}
}

func wrapEvalErr(src string, err error) error {
	if errors.Is(err, ErrMissingField) {
		return &Error{Src: src, Err: ErrMissingField}
	}
	return &Error{Src: src, Err: err}
}
