// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package diag collects the non-fatal warnings a load or save can produce
// (unknown enum values preserved verbatim, trailing bytes after the last
// block, and similar situations spec.md treats as diagnostics rather than
// failures) under one UUID-tagged session.
package diag

import "github.com/google/uuid"

// Kind classifies a Warning for programmatic filtering.
type Kind string

const (
	// KindUnknownEnum flags a field whose raw value didn't match any
	// declared enum option; the value was preserved verbatim.
	KindUnknownEnum Kind = "unknown_enum"
	// KindTrailingBytes flags unconsumed bytes after the last block.
	KindTrailingBytes Kind = "trailing_bytes"
	// KindSchema flags a non-fatal schema loading issue.
	KindSchema Kind = "schema"
	// KindUnreachableWeakLink flags a weak link whose target fell outside
	// the set of blocks reachable from the graph's roots; Save nulls it
	// rather than writing a dangling index.
	KindUnreachableWeakLink Kind = "unreachable_weak_link"
)

// Warning is one diagnostic raised during a load or save.
type Warning struct {
	Kind       Kind
	Message    string
	BlockIndex int // -1 if not associated with a specific block
}

// List accumulates the warnings for one load/save session, tagged with a
// session id so warnings from concurrent operations on the same file are
// never confused with each other in logs.
type List struct {
	Session  uuid.UUID
	Warnings []Warning
}

// NewList starts a fresh, empty diagnostics session.
func NewList() *List {
	return &List{Session: uuid.New()}
}

// Add appends a warning to the session.
func (l *List) Add(kind Kind, blockIndex int, message string) {
	l.Warnings = append(l.Warnings, Warning{Kind: kind, Message: message, BlockIndex: blockIndex})
}

// AddAll appends every warning in ws to the session, preserving order; it's
// the merge point for warnings bubbled up from codec's lower-level,
// session-agnostic []Warning returns.
func (l *List) AddAll(ws []Warning) {
	l.Warnings = append(l.Warnings, ws...)
}

// Empty reports whether no warnings were recorded.
func (l *List) Empty() bool { return len(l.Warnings) == 0 }
