// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package blockio

import (
	"bytes"
	"compress/flate"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/blockfmt/engine/binio"
	"github.com/blockfmt/engine/codec"
	"github.com/blockfmt/engine/diag"
	"github.com/blockfmt/engine/expr"
	"github.com/blockfmt/engine/registry"
	"github.com/blockfmt/engine/value"
)

// headerProbeWindow is how many leading bytes Open reads before calling
// registry.Probe; large enough to cover every built-in format's signature
// plus its packed version field.
const headerProbeWindow = 64

// Open reads a complete block graph from r, probing reg for the matching
// format by signature and version. The whole stream is buffered into
// memory up front — binio's reader model is a byte slice, not a streaming
// cursor, matching spec.md §5's "no suspension points, no internal
// parallelism" model.
func Open(r io.Reader, reg *registry.Registry) (*Graph, *diag.List, error) {
	return OpenContext(context.Background(), r, reg)
}

// OpenContext is Open with a context honored at the one true suspension
// point: the initial read of the whole stream. Once buffered, decoding
// itself never blocks (spec.md §5). The returned diag.List is this load's
// diagnostic session (spec.md §7): every non-fatal warning raised while
// decoding the header and blocks is accumulated onto it, tagged with a
// session id so warnings from concurrent loads are never confused with
// each other in logs.
func OpenContext(ctx context.Context, r io.Reader, reg *registry.Registry) (*Graph, *diag.List, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	probeLen := headerProbeWindow
	if probeLen > len(buf) {
		probeLen = len(buf)
	}

	// The header compound's own "version"/"user_version" fields aren't
	// known until an entry is chosen, and entry choice itself only needs
	// the signature prefix — so the first pass matches by signature alone,
	// independent of version, to find an entry whose schema can decode the
	// header at all. Once the real version is known, Open re-probes with it
	// below in case the format registers multiple entries under the same
	// signature for different version bands (e.g. NIF 4.x vs NIF 20.x
	// headers differing in layout); a format that registers only
	// version-banded entries for its signature still gets a usable header
	// compound on this first pass.
	entry, err := reg.ProbeSignature(buf[:probeLen])
	if err != nil {
		return nil, nil, err
	}

	br := binio.NewReader(buf, entry.Endian)
	if _, err := br.ReadBytes(len(entry.Signature)); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorruptBlock, err)
	}

	headerC, ok := entry.Schema.Compound(entry.HeaderCompound)
	if !ok {
		return nil, nil, fmt.Errorf("%w: header compound %q not declared in schema", ErrCorruptBlock, entry.HeaderCompound)
	}

	scope := expr.NewScope(0, 0)
	headerInst, warns, err := codec.Decode(br, headerC, scope)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding header: %w", err)
	}
	diags := diag.NewList()
	diags.AddAll(warns)

	version := headerFieldUint(headerInst, "version")
	userVersion := headerFieldUint(headerInst, "user_version")

	if resolved, rerr := reg.Probe(buf[:probeLen], uint32(version)); rerr == nil {
		entry = resolved
	}

	g := &Graph{Entry: entry, Version: uint32(version), UserVersion: uint32(userVersion), Header: headerInst}

	body := buf[br.Pos():]
	if entry.Compressed != registry.CompressionNone {
		decompressed, derr := decompress(body, entry.Compressed)
		if derr != nil {
			return nil, nil, fmt.Errorf("decompressing block section: %w", derr)
		}
		body = decompressed
	}
	bodyReader := binio.NewReader(body, entry.Endian)

	if entry.StringTable {
		n, err := bodyReader.ReadU32()
		if err != nil {
			return nil, diags, fmt.Errorf("%w: reading string table count: %v", ErrCorruptBlock, err)
		}
		g.Strings = make([]string, n)
		for i := range g.Strings {
			s, err := readTableString(bodyReader, entry.StringEncoding)
			if err != nil {
				return nil, diags, fmt.Errorf("%w: reading string table entry %d: %v", ErrCorruptBlock, i, err)
			}
			g.Strings[i] = s
		}
	}

	numTypes, err := bodyReader.ReadU32()
	if err != nil {
		return nil, diags, fmt.Errorf("%w: reading block type count: %v", ErrCorruptBlock, err)
	}
	typeTable := make([]string, numTypes)
	for i := range typeTable {
		name, err := bodyReader.ReadShortString()
		if err != nil {
			return nil, diags, fmt.Errorf("%w: reading block type %d: %v", ErrCorruptBlock, i, err)
		}
		typeTable[i] = name
	}

	numBlocks, err := bodyReader.ReadU32()
	if err != nil {
		return nil, diags, fmt.Errorf("%w: reading block count: %v", ErrCorruptBlock, err)
	}
	typeIndices := make([]uint16, numBlocks)
	for i := range typeIndices {
		idx, err := bodyReader.ReadU16()
		if err != nil {
			return nil, diags, fmt.Errorf("%w: reading block type index %d: %v", ErrCorruptBlock, i, err)
		}
		typeIndices[i] = idx
	}

	blocks := make([]*Block, numBlocks)
	for i := range blocks {
		ti := int(typeIndices[i])
		if ti < 0 || ti >= len(typeTable) {
			return nil, diags, fmt.Errorf("%w: block %d has type index %d outside type table of size %d", ErrCorruptBlock, i, ti, len(typeTable))
		}
		c, ok := entry.Schema.Compound(typeTable[ti])
		if !ok {
			return nil, diags, fmt.Errorf("%w: block %d's type %q not declared in schema", ErrCorruptBlock, i, typeTable[ti])
		}
		blockScope := expr.NewScope(g.Version, g.UserVersion)
		inst, warns, err := codec.Decode(bodyReader, c, blockScope)
		if err != nil {
			return nil, diags, fmt.Errorf("decoding block %d (%s): %w", i, c.Name, err)
		}
		diags.AddAll(warns)
		blocks[i] = &Block{Index: i, Compound: c, Instance: inst}
	}
	g.blocks = blocks

	numRoots, err := bodyReader.ReadU32()
	if err != nil {
		return nil, diags, fmt.Errorf("%w: reading root count: %v", ErrCorruptBlock, err)
	}
	roots := make([]int, numRoots)
	for i := range roots {
		idx, err := bodyReader.ReadI32()
		if err != nil {
			return nil, diags, fmt.Errorf("%w: reading root %d: %v", ErrCorruptBlock, i, err)
		}
		if int(idx) < 0 || int(idx) >= len(blocks) {
			return nil, diags, fmt.Errorf("%w: root %d references out-of-range block %d", ErrCorruptBlock, i, idx)
		}
		roots[i] = int(idx)
	}
	g.roots = roots

	if bodyReader.Len() > 0 {
		diags.Add(diag.KindTrailingBytes, -1, fmt.Sprintf("%d trailing byte(s) after last block", bodyReader.Len()))
	}

	if err := resolveLinks(g); err != nil {
		return nil, diags, err
	}

	return g, diags, nil
}

// headerFieldUint reads a header compound field meant to hold the format's
// version or user_version as an unsigned integer; missing or non-integer
// fields default to 0 (many formats have no user_version concept at all).
func headerFieldUint(inst *value.Instance, name string) uint64 {
	slot, ok := inst.Get(name)
	if !ok {
		return 0
	}
	if u, err := slot.Uint(); err == nil {
		return u
	}
	if n, err := slot.Int(); err == nil {
		return uint64(n)
	}
	return 0
}

// readTableString reads one string-table entry: a 4-byte length prefix
// followed by that many raw bytes, transcoded per enc. UTF-16LE's length
// prefix counts bytes, not code units, matching how the rest of the wire
// format sizes every length-prefixed field.
func readTableString(r *binio.Reader, enc registry.StringEncoding) (string, error) {
	if enc == registry.StringEncodingUTF8 {
		return r.ReadSizedString()
	}
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	raw, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return binio.DecodeUTF16LE(raw)
}

func decompress(body []byte, c registry.Compression) ([]byte, error) {
	switch c {
	case registry.CompressionZlib:
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case registry.CompressionFlate:
		fr := flate.NewReader(bytes.NewReader(body))
		defer fr.Close()
		return io.ReadAll(fr)
	default:
		return body, nil
	}
}
