// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package readout

import (
	"bytes"
	"io"
	"os"
	"strconv"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// TermOpts represents the options of a terminal map.
type TermOpts struct {
	// W defaults to stdout.
	W io.Writer
	// Palette defaults to ansi256.Default.
	Palette *ansi256.Palette
	// Top is the highest level, mapped to red.
	Top uint8
	// Color forces ANSI colors on W. When W is nil colors are used only if
	// stdout is a terminal.
	Color bool

	_ struct{}
}

// Term prints one line per row, one colored block per lane.
type Term struct {
	w       io.Writer
	palette ansi256.Palette
	top     uint8
	color   bool

	buf bytes.Buffer
}

// NewTerm returns a terminal map.
func NewTerm(opts *TermOpts) *Term {
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	t := &Term{w: opts.W, palette: *p, top: opts.Top, color: opts.Color}
	if t.w == nil {
		fd := os.Stdout.Fd()
		t.color = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
		t.w = colorable.NewColorableStdout()
	}
	return t
}

func (t *Term) String() string {
	return "readout.Term"
}

// Halt resets the terminal attributes.
func (t *Term) Halt() error {
	if !t.color {
		return nil
	}
	_, err := io.WriteString(t.w, "\033[0m")
	return err
}

// digits covers the 64 ADC codes.
const digits = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ+#"

// Write prints r. Without colors each lane is printed as a single digit, see
// digits.
func (t *Term) Write(r *Row) error {
	t.buf.Reset()
	_, _ = t.buf.WriteString(strconv.Itoa(r.Addr))
	_ = t.buf.WriteByte('\t')
	if t.color {
		_, _ = t.buf.WriteString("\033[0m")
	}
	for _, v := range r.Values {
		if t.color {
			_, _ = t.buf.WriteString(t.palette.Block(LevelColor(v, t.top)))
		} else {
			_ = t.buf.WriteByte(digits[v%64])
		}
	}
	if t.color {
		_, _ = t.buf.WriteString("\033[0m")
	}
	_ = t.buf.WriteByte('\n')
	_, err := t.buf.WriteTo(t.w)
	return err
}

// WriteAll prints every row.
func (t *Term) WriteAll(rows []Row) error {
	for i := range rows {
		if err := t.Write(&rows[i]); err != nil {
			return err
		}
	}
	return nil
}
