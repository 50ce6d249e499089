// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package readout

import (
	"image"
	"io"
	"strconv"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

// ImageOpts represents the options of an image map.
type ImageOpts struct {
	// Cell is the side of one lane in pixels. Defaults to 8.
	Cell int
	// Top is the highest level, mapped to red.
	Top uint8
	// Labels adds the address of each row on the left and a color scale at the
	// bottom.
	Labels bool

	_ struct{}
}

const (
	labelWidth  = 48
	scaleHeight = 24
	fontSize    = 10
)

// Image renders rows as a map, one row per address and one column per lane.
func Image(rows []Row, opts *ImageOpts) (image.Image, error) {
	cell := opts.Cell
	if cell <= 0 {
		cell = 8
	}
	lanes := 0
	for i := range rows {
		lanes = max(lanes, len(rows[i].Values))
	}
	x0, h := 0, len(rows)*cell
	if opts.Labels {
		x0 = labelWidth
		h += scaleHeight
	}
	dc := gg.NewContext(max(x0+lanes*cell, 1), max(h, 1))
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	for y := range rows {
		for x, v := range rows[y].Values {
			dc.SetColor(LevelColor(v, opts.Top))
			dc.DrawRectangle(float64(x0+x*cell), float64(y*cell), float64(cell), float64(cell))
			dc.Fill()
		}
	}
	if !opts.Labels {
		return dc.Image(), nil
	}
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}
	dc.SetFontFace(truetype.NewFace(f, &truetype.Options{Size: fontSize}))
	dc.SetRGB(0, 0, 0)
	// Label at most one row out of every fontSize pixels.
	every := (fontSize + cell - 1) / cell
	for y := 0; y < len(rows); y += every {
		dc.DrawStringAnchored(strconv.Itoa(rows[y].Addr), float64(x0-4), float64(y*cell)+float64(cell)/2, 1, 0.5)
	}
	top := len(rows) * cell
	n := int(opts.Top) + 1
	w := float64(lanes*cell) / float64(n)
	for v := 0; v < n; v++ {
		dc.SetColor(LevelColor(uint8(v), opts.Top))
		dc.DrawRectangle(float64(x0)+float64(v)*w, float64(top+2), w, scaleHeight/2)
		dc.Fill()
	}
	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored("0", float64(x0), float64(top+scaleHeight-1), 0, 0)
	dc.DrawStringAnchored(strconv.Itoa(int(opts.Top)), float64(x0+lanes*cell), float64(top+scaleHeight-1), 1, 0)
	return dc.Image(), nil
}

// WritePNG renders rows and encodes them to w.
func WritePNG(w io.Writer, rows []Row, opts *ImageOpts) error {
	img, err := Image(rows, opts)
	if err != nil {
		return err
	}
	dc := gg.NewContextForImage(img)
	return dc.EncodePNG(w)
}
