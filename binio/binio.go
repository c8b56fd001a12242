// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package binio provides the primitive binary codec: fixed-width integers,
// IEEE-754 floats, and the string encodings the block format engine's
// schema-driven layer builds on, all threaded through an explicit
// endianness parameter.
package binio

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"golang.org/x/text/encoding/unicode"
)

// Endian selects the byte order primitives are read/written with.
type Endian int

const (
	// LittleEndian reads/writes least-significant byte first.
	LittleEndian Endian = iota
	// BigEndian reads/writes most-significant byte first.
	BigEndian
)

func (e Endian) order() binary.ByteOrder {
	if e == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// ErrEndOfStream is returned when fewer bytes remain than requested.
var ErrEndOfStream = errors.New("binio: end of stream")

// ErrNegativeLength is returned when a read is asked for a negative length;
// a length larger than the bytes remaining yields ErrEndOfStream instead.
var ErrNegativeLength = errors.New("binio: invalid length prefix")

// Reader sequentially decodes primitives from an underlying byte slice.
// It never rewinds: every Read* call advances the cursor exactly by the
// number of bytes it consumed, even on a short read (the cursor is left at
// len(buf) so a caller probing "how much is left" sees zero).
type Reader struct {
	buf    []byte
	pos    int
	Endian Endian
}

// NewReader wraps buf for sequential decoding with the given endianness.
func NewReader(buf []byte, endian Endian) *Reader {
	return &Reader{buf: buf, Endian: endian}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Seek repositions the cursor to an absolute offset within the buffer.
func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos > len(r.buf) {
		return ErrEndOfStream
	}
	r.pos = pos
	return nil
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeLength
	}
	if r.pos+n > len(r.buf) {
		r.pos = len(r.buf)
		return nil, ErrEndOfStream
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadU8 reads an unsigned 8-bit integer.
func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadI8 reads a signed 8-bit integer.
func (r *Reader) ReadI8() (int8, error) {
	v, err := r.ReadU8()
	return int8(v), err
}

// ReadU16 reads an unsigned 16-bit integer.
func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return r.Endian.order().Uint16(b), nil
}

// ReadI16 reads a signed 16-bit integer.
func (r *Reader) ReadI16() (int16, error) {
	v, err := r.ReadU16()
	return int16(v), err
}

// ReadU32 reads an unsigned 32-bit integer.
func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return r.Endian.order().Uint32(b), nil
}

// ReadI32 reads a signed 32-bit integer.
func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

// ReadU64 reads an unsigned 64-bit integer.
func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return r.Endian.order().Uint64(b), nil
}

// ReadI64 reads a signed 64-bit integer.
func (r *Reader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

// ReadF32 reads an IEEE-754 32-bit float.
func (r *Reader) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadF64 reads an IEEE-754 64-bit float.
func (r *Reader) ReadF64() (float64, error) {
	v, err := r.ReadU64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadUint reads an unsigned integer of the given byte width (1, 2, 4 or 8).
func (r *Reader) ReadUint(width int) (uint64, error) {
	switch width {
	case 1:
		v, err := r.ReadU8()
		return uint64(v), err
	case 2:
		v, err := r.ReadU16()
		return uint64(v), err
	case 4:
		v, err := r.ReadU32()
		return uint64(v), err
	case 8:
		return r.ReadU64()
	default:
		return 0, errInvalidWidth
	}
}

// ReadBytes reads n raw bytes verbatim.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// ReadFixedString reads an n-byte field and trims trailing NUL padding.
func (r *Reader) ReadFixedString(n int) (string, error) {
	b, err := r.take(n)
	if err != nil {
		return "", err
	}
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i]), nil
}

// ReadShortString reads a 1-byte length prefix followed by that many bytes
// ("short string" in spec.md §4.1).
func (r *Reader) ReadShortString() (string, error) {
	n, err := r.ReadU8()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadSizedString reads a 4-byte length prefix followed by that many bytes,
// with no terminator ("sized string" in spec.md §4.1).
func (r *Reader) ReadSizedString() (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadPrefixedString reads a length-prefixed byte string whose prefix is
// prefixWidth bytes wide (1, 2 or 4).
func (r *Reader) ReadPrefixedString(prefixWidth int) (string, error) {
	n, err := r.ReadUint(prefixWidth)
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeUTF16LE transcodes b, a little-endian UTF-16 byte string with no
// length prefix of its own, into a Go string. A handful of older formats
// store their string table this way instead of UTF-8.
func DecodeUTF16LE(b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	s, err := decoder.Bytes(b)
	if err != nil {
		return "", err
	}
	return string(s), nil
}

// EncodeUTF16LE is DecodeUTF16LE's inverse, used when saving a string table
// back out in the same little-endian UTF-16 encoding it was read in.
func EncodeUTF16LE(s string) ([]byte, error) {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	return encoder.Bytes([]byte(s))
}

// Writer sequentially encodes primitives into a growable byte buffer.
type Writer struct {
	buf    []byte
	Endian Endian
}

// NewWriter creates an empty Writer with the given endianness.
func NewWriter(endian Endian) *Writer {
	return &Writer{Endian: endian}
}

// Bytes returns the bytes written so far.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// WriteU8 writes an unsigned 8-bit integer.
func (w *Writer) WriteU8(v uint8) { w.buf = append(w.buf, v) }

// WriteI8 writes a signed 8-bit integer.
func (w *Writer) WriteI8(v int8) { w.WriteU8(uint8(v)) }

// WriteU16 writes an unsigned 16-bit integer.
func (w *Writer) WriteU16(v uint16) {
	b := make([]byte, 2)
	w.Endian.order().PutUint16(b, v)
	w.buf = append(w.buf, b...)
}

// WriteI16 writes a signed 16-bit integer.
func (w *Writer) WriteI16(v int16) { w.WriteU16(uint16(v)) }

// WriteU32 writes an unsigned 32-bit integer.
func (w *Writer) WriteU32(v uint32) {
	b := make([]byte, 4)
	w.Endian.order().PutUint32(b, v)
	w.buf = append(w.buf, b...)
}

// WriteI32 writes a signed 32-bit integer.
func (w *Writer) WriteI32(v int32) { w.WriteU32(uint32(v)) }

// WriteU64 writes an unsigned 64-bit integer.
func (w *Writer) WriteU64(v uint64) {
	b := make([]byte, 8)
	w.Endian.order().PutUint64(b, v)
	w.buf = append(w.buf, b...)
}

// WriteI64 writes a signed 64-bit integer.
func (w *Writer) WriteI64(v int64) { w.WriteU64(uint64(v)) }

// WriteF32 writes an IEEE-754 32-bit float.
func (w *Writer) WriteF32(v float32) { w.WriteU32(math.Float32bits(v)) }

// WriteF64 writes an IEEE-754 64-bit float.
func (w *Writer) WriteF64(v float64) { w.WriteU64(math.Float64bits(v)) }

// WriteUint writes an unsigned integer of the given byte width (1, 2, 4 or 8).
func (w *Writer) WriteUint(width int, v uint64) error {
	switch width {
	case 1:
		w.WriteU8(uint8(v))
	case 2:
		w.WriteU16(uint16(v))
	case 4:
		w.WriteU32(uint32(v))
	case 8:
		w.WriteU64(v)
	default:
		return errInvalidWidth
	}
	return nil
}

// WriteBytes writes raw bytes verbatim.
func (w *Writer) WriteBytes(b []byte) { w.buf = append(w.buf, b...) }

// WriteFixedString writes s into an n-byte field, zero-padding the remainder.
// It truncates s if longer than n.
func (w *Writer) WriteFixedString(s string, n int) {
	b := make([]byte, n)
	copy(b, s)
	w.buf = append(w.buf, b...)
}

// WriteShortString writes a 1-byte length prefix followed by s.
func (w *Writer) WriteShortString(s string) {
	w.WriteU8(uint8(len(s)))
	w.WriteBytes([]byte(s))
}

// WriteSizedString writes a 4-byte length prefix followed by s, unterminated.
func (w *Writer) WriteSizedString(s string) {
	w.WriteU32(uint32(len(s)))
	w.WriteBytes([]byte(s))
}

// WritePrefixedString writes s behind a prefixWidth-byte length prefix.
func (w *Writer) WritePrefixedString(s string, prefixWidth int) error {
	if err := w.WriteUint(prefixWidth, uint64(len(s))); err != nil {
		return err
	}
	w.WriteBytes([]byte(s))
	return nil
}

// WriteTo implements io.WriterTo so a Writer's buffer can be streamed out.
func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	n, err := dst.Write(w.buf)
	return int64(n), err
}

var errInvalidWidth = errors.New("binio: unsupported integer width")
