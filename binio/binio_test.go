// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package binio

import "testing"

func TestReaderWriterRoundTripPrimitives(t *testing.T) {
	w := NewWriter(LittleEndian)
	w.WriteU8(0xAB)
	w.WriteU16(0x1234)
	w.WriteI32(-7)
	w.WriteU64(0xDEADBEEFCAFEBABE)
	w.WriteF32(3.5)
	w.WriteShortString("hi")
	w.WriteSizedString("hello world")

	r := NewReader(w.Bytes(), LittleEndian)
	if v, err := r.ReadU8(); err != nil || v != 0xAB {
		t.Fatalf("ReadU8 = %v, %v", v, err)
	}
	if v, err := r.ReadU16(); err != nil || v != 0x1234 {
		t.Fatalf("ReadU16 = %v, %v", v, err)
	}
	if v, err := r.ReadI32(); err != nil || v != -7 {
		t.Fatalf("ReadI32 = %v, %v", v, err)
	}
	if v, err := r.ReadU64(); err != nil || v != 0xDEADBEEFCAFEBABE {
		t.Fatalf("ReadU64 = %v, %v", v, err)
	}
	if v, err := r.ReadF32(); err != nil || v != 3.5 {
		t.Fatalf("ReadF32 = %v, %v", v, err)
	}
	if v, err := r.ReadShortString(); err != nil || v != "hi" {
		t.Fatalf("ReadShortString = %q, %v", v, err)
	}
	if v, err := r.ReadSizedString(); err != nil || v != "hello world" {
		t.Fatalf("ReadSizedString = %q, %v", v, err)
	}
	if r.Len() != 0 {
		t.Fatalf("expected reader exhausted, %d bytes remain", r.Len())
	}
}

func TestBigEndianRoundTrip(t *testing.T) {
	w := NewWriter(BigEndian)
	w.WriteU32(0x01020304)
	b := w.Bytes()
	if b[0] != 0x01 || b[3] != 0x04 {
		t.Fatalf("expected big-endian byte order, got % x", b)
	}

	r := NewReader(b, BigEndian)
	v, err := r.ReadU32()
	if err != nil || v != 0x01020304 {
		t.Fatalf("ReadU32 = %v, %v", v, err)
	}
}

func TestReadPastEndErrors(t *testing.T) {
	r := NewReader([]byte{0x01}, LittleEndian)
	if _, err := r.ReadU32(); err == nil {
		t.Fatal("expected an error reading 4 bytes from a 1-byte buffer")
	}
}

func TestUTF16LERoundTrip(t *testing.T) {
	const want = "héllo, 世界"
	encoded, err := EncodeUTF16LE(want)
	if err != nil {
		t.Fatalf("EncodeUTF16LE: %v", err)
	}
	if len(encoded)%2 != 0 {
		t.Fatalf("expected an even number of UTF-16 code unit bytes, got %d", len(encoded))
	}

	got, err := DecodeUTF16LE(encoded)
	if err != nil {
		t.Fatalf("DecodeUTF16LE: %v", err)
	}
	if got != want {
		t.Fatalf("DecodeUTF16LE(EncodeUTF16LE(%q)) = %q", want, got)
	}
}

func TestDecodeUTF16LEEmpty(t *testing.T) {
	got, err := DecodeUTF16LE(nil)
	if err != nil || got != "" {
		t.Fatalf("DecodeUTF16LE(nil) = %q, %v", got, err)
	}
}
