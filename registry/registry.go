// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package registry is the format registry (C9): a table mapping a file's
// signature bytes and declared version range to the schema, header
// compound, endianness and compression strategy blockio needs to frame it.
// A Registry is an explicit value passed to Open/Save rather than global
// mutable state, so tests can register throwaway formats without disturbing
// the module's built-in set (spec.md §9 Open Question, resolved explicit).
package registry

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/blockfmt/engine/binio"
	"github.com/blockfmt/engine/schema"
)

// ErrUnsupportedVersion is returned when a file's signature matches a
// registered format but its version falls outside every registered range
// for that signature.
var ErrUnsupportedVersion = errors.New("registry: unsupported version")

// ErrNoMatch is returned when no registered entry's signature matches the
// probed bytes at all.
var ErrNoMatch = errors.New("registry: no matching format")

// Compression names the optional whole-section compression a format's
// block section may use.
type Compression int

const (
	// CompressionNone means the block section is stored raw.
	CompressionNone Compression = iota
	// CompressionZlib means the block section is zlib-deflated.
	CompressionZlib
	// CompressionFlate means the block section is raw-deflated (no zlib
	// wrapper).
	CompressionFlate
)

// Entry describes one registered format/version combination.
type Entry struct {
	Name           string
	Signature      []byte
	VersionMin     uint32
	VersionMax     uint32 // inclusive; 0 means "no upper bound" when VersionMin is also 0
	Schema         *schema.Schema
	HeaderCompound string
	Endian         binio.Endian
	Compressed     Compression

	// StringTable, when true, means blockio reads a dedicated string table
	// after the header (before the block section); formats with this flag
	// reference strings as table indices rather than inline sized strings.
	StringTable bool

	// StringEncoding selects how raw string-table bytes are transcoded to
	// Go strings. Zero value is StringEncodingUTF8 (no transcoding), the
	// right default for every format whose string table is already UTF-8
	// or ASCII; older formats that carry a Windows-native UTF-16 string
	// table set StringEncodingUTF16LE instead.
	StringEncoding StringEncoding
}

// StringEncoding names the text encoding a format's string table is stored
// in on disk.
type StringEncoding int

const (
	// StringEncodingUTF8 treats string-table bytes as UTF-8 (or ASCII, a
	// subset of it) with no transcoding.
	StringEncodingUTF8 StringEncoding = iota
	// StringEncodingUTF16LE transcodes string-table bytes from
	// little-endian UTF-16, the convention a handful of older
	// Windows-authored formats inherited from the Win32 wide-string APIs.
	StringEncodingUTF16LE
)

func (e Entry) matchesVersion(v uint32) bool {
	if e.VersionMin == 0 && e.VersionMax == 0 {
		return true
	}
	return v >= e.VersionMin && v <= e.VersionMax
}

// Registry holds registered entries in registration order; Probe checks
// them in that order, so a more specific signature should be registered
// before a more general one that shares a prefix.
type Registry struct {
	entries []Entry
	frozen  bool
}

// New returns an empty, mutable registry.
func New() *Registry {
	return &Registry{}
}

// Register adds e to the registry. Idempotent: registering an entry with
// the same Name twice replaces the earlier one in place rather than
// appending a duplicate. Panics if the registry has been Frozen — frozen
// registries are meant to be shared read-only across goroutines per
// spec.md §5.
func (r *Registry) Register(e Entry) {
	if r.frozen {
		panic("registry: Register called on a frozen registry")
	}
	for i, existing := range r.entries {
		if existing.Name == e.Name {
			r.entries[i] = e
			return
		}
	}
	r.entries = append(r.entries, e)
}

// Freeze marks the registry read-only. After Freeze, Register panics;
// Probe remains safe for concurrent use from multiple goroutines.
func (r *Registry) Freeze() *Registry {
	r.frozen = true
	return r
}

// Probe matches header against registered signatures in registration
// order and returns the first entry whose signature is a prefix of header
// and whose version range contains version. If a signature matches but no
// version range does, Probe returns ErrUnsupportedVersion naming that
// format rather than falling through to a weaker match, since spec.md §6
// treats an unsupported version of a recognized format as a distinct
// failure from "not this format at all".
func (r *Registry) Probe(header []byte, version uint32) (Entry, error) {
	sigMatched := false
	var sigName string
	for _, e := range r.entries {
		if !bytes.HasPrefix(header, e.Signature) {
			continue
		}
		sigMatched = true
		sigName = e.Name
		if e.matchesVersion(version) {
			return e, nil
		}
	}
	if sigMatched {
		return Entry{}, fmt.Errorf("%w: format %q, version %#x", ErrUnsupportedVersion, sigName, version)
	}
	return Entry{}, ErrNoMatch
}

// ProbeSignature matches header against registered signatures in
// registration order and returns the first entry whose signature is a
// prefix of header, ignoring version entirely. blockio's Open uses this for
// its first pass, before the file's real version is known from its header;
// it then re-probes with Probe once the version is decoded. Using Probe
// itself for that first pass would reject a format that registers only
// version-banded entries (VersionMin/VersionMax both nonzero) under a
// signature, since no single version value is guaranteed to satisfy every
// band up front.
func (r *Registry) ProbeSignature(header []byte) (Entry, error) {
	for _, e := range r.entries {
		if bytes.HasPrefix(header, e.Signature) {
			return e, nil
		}
	}
	return Entry{}, ErrNoMatch
}

// Entries returns a copy of the registered entries, in registration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
