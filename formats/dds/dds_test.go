// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dds

import (
	"bytes"
	"testing"

	"github.com/blockfmt/engine/binio"
)

// build2x2Uncompressed hand-assembles a minimal DDS file: 4-byte magic,
// 124-byte header (no DX10 fourCC), 2x2 RGBA8 texel blob.
func build2x2Uncompressed() []byte {
	w := binio.NewWriter(binio.LittleEndian)
	w.WriteBytes(magic)

	w.WriteU32(124) // size
	w.WriteU32(0)   // flags
	w.WriteU32(2)   // height
	w.WriteU32(2)   // width
	w.WriteU32(8)   // pitchOrLinearSize
	w.WriteU32(0)   // depth
	w.WriteU32(0)   // mipMapCount
	for i := 0; i < 11; i++ {
		w.WriteU32(0) // reserved1
	}
	// PixelFormat
	w.WriteU32(32) // size
	w.WriteU32(0)  // flags
	w.WriteBytes([]byte{0, 0, 0, 0}) // fourCC (none)
	w.WriteU32(32)                   // rgbBitCount
	w.WriteU32(0x00ff0000)
	w.WriteU32(0x0000ff00)
	w.WriteU32(0x000000ff)
	w.WriteU32(0xff000000)

	w.WriteU32(0) // caps
	w.WriteU32(0) // caps2
	w.WriteU32(0) // caps3
	w.WriteU32(0) // caps4
	w.WriteU32(0) // reserved2

	texels := []byte{
		0, 0, 255, 255,
		0, 255, 0, 255,
		255, 0, 0, 255,
		255, 255, 255, 255,
	}
	w.WriteBytes(texels)
	return w.Bytes()
}

func TestOpenSaveRoundTrip(t *testing.T) {
	original := build2x2Uncompressed()
	img, warnings, err := Open(bytes.NewReader(original))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if img.DX10 != nil {
		t.Fatal("expected no DX10 extension")
	}
	if len(img.Texels) != 16 {
		t.Fatalf("expected 16 texel bytes, got %d", len(img.Texels))
	}

	var out bytes.Buffer
	if err := Save(img, &out); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !bytes.Equal(out.Bytes(), original) {
		t.Fatalf("round trip mismatch:\n got  % x\n want % x", out.Bytes(), original)
	}
}

func TestPreviewProducesScaledImage(t *testing.T) {
	img, _, err := Open(bytes.NewReader(build2x2Uncompressed()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	preview := Preview(img, 1)
	if preview == nil {
		t.Fatal("expected a non-nil preview")
	}
	b := preview.Bounds()
	if b.Dx() > 1 && b.Dy() > 1 {
		t.Fatalf("expected preview scaled to <=1px on its long side, got %dx%d", b.Dx(), b.Dy())
	}
}
