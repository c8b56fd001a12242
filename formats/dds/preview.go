// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dds

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Preview decodes an uncompressed RGBA8 DDS image's texel blob into a
// standard image.Image and scales it to at most maxDim pixels on its
// longest side. It returns an error-free nil
// for any compressed (fourCC-tagged) format, since decoding BCn blocks is
// out of scope for this engine (spec.md's Non-goals): the caller is expected to check
// img.Header's pixel format flags before calling Preview.
func Preview(img *Image, maxDim int) image.Image {
	widthSlot, _ := img.Header.Get("width")
	heightSlot, _ := img.Header.Get("height")
	width, _ := widthSlot.Uint()
	height, _ := heightSlot.Uint()
	if width == 0 || height == 0 {
		return nil
	}

	src := image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	stride := int(width) * 4
	for y := 0; y < int(height); y++ {
		rowStart := y * stride
		if rowStart+stride > len(img.Texels) {
			break
		}
		row := img.Texels[rowStart : rowStart+stride]
		for x := 0; x < int(width); x++ {
			px := row[x*4 : x*4+4]
			// DDS uncompressed RGBA stores pixels BGRA.
			src.SetRGBA(x, y, color.RGBA{R: px[2], G: px[1], B: px[0], A: px[3]})
		}
	}

	scale := 1.0
	if int(width) > maxDim || int(height) > maxDim {
		if width > height {
			scale = float64(maxDim) / float64(width)
		} else {
			scale = float64(maxDim) / float64(height)
		}
	}
	if scale >= 1.0 {
		return src
	}

	dstW, dstH := int(float64(width)*scale), int(float64(height)*scale)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
