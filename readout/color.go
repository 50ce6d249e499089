// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package readout

import "image/color"

// LevelColor maps v in [0, top] onto a blue to red ramp going through green.
// Values above top are clamped.
func LevelColor(v, top uint8) color.NRGBA {
	if top == 0 {
		return color.NRGBA{0, 0, 128, 255}
	}
	v = min(v, top)
	// Position on the ramp in [0, 510].
	p := int(v) * 510 / int(top)
	if p <= 255 {
		return color.NRGBA{0, uint8(p), uint8(255 - p), 255}
	}
	p -= 255
	return color.NRGBA{uint8(p), uint8(255 - p), 0, 255}
}
