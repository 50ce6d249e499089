// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/GermanBionicSystems/rram/ember"
	"github.com/GermanBionicSystems/rram/ember/emberreg"
	"github.com/GermanBionicSystems/rram/readout"
)

func cmdRead(e *env, args []string) (err error) {
	fs := e.flags("read", "")
	start := fs.Int("start", 0, "first address")
	end := fs.Int("end", 1, "address to stop before")
	step := fs.Int("step", 1, "address stride")
	super := fs.Bool("super", false, "reconstruct the full 0-63 range with superread")
	out := fs.String("out", "", "read-out file to append to")
	pngOut := fs.String("png", "", "PNG map to write")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *step <= 0 || *start < 0 || *end <= *start {
		return fmt.Errorf("%w: empty address range", errUsage)
	}
	d, err := e.open()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, d.Close())
	}()
	var w *readout.Writer
	if *out != "" {
		f, err := os.OpenFile(*out, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		w = readout.NewWriter(f)
	}
	top := uint8(emberreg.NumLevels(d.Settings().Misc.NumLevels) - 1)
	if *super {
		top = 63
	}
	term := readout.NewTerm(&readout.TermOpts{W: e.out, Top: top})
	var rows []readout.Row
	for a := *start; a < *end; a += *step {
		if err := d.SetAddr(a); err != nil {
			return err
		}
		var v []uint8
		if *super {
			v, err = d.Superread()
		} else {
			v, err = d.Read()
		}
		if err != nil {
			return err
		}
		r := readout.Row{Addr: a, Time: time.Now(), Values: v}
		if err := term.Write(&r); err != nil {
			return err
		}
		if w != nil {
			if err := w.Write(&r); err != nil {
				return err
			}
		}
		rows = append(rows, r)
	}
	if *pngOut != "" {
		return writePNG(*pngOut, rows, top)
	}
	return nil
}

func writePNG(path string, rows []readout.Row, top uint8) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := readout.WritePNG(f, rows, &readout.ImageOpts{Top: top, Labels: true}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// parseLevels parses a comma separated list of levels, repeated to fill the
// lanes.
func parseLevels(s string) ([]uint8, error) {
	var pat []uint8
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 4)
		if err != nil {
			return nil, fmt.Errorf("%w: level %q", errUsage, f)
		}
		pat = append(pat, uint8(v))
	}
	data := make([]uint8, emberreg.Lanes)
	for k := range data {
		data[k] = pat[k%len(pat)]
	}
	return data, nil
}

func cmdWrite(e *env, args []string) (err error) {
	fs := e.flags("write", "")
	addr := fs.Int("addr", 0, "address to program")
	levels := fs.String("data", "", "comma separated levels, repeated across the lanes")
	bitsArg := fs.String("bits", "", "program the 48 bits of this integer instead of -data")
	native := fs.Bool("native", false, "use the chip's WRITE command instead of host write-verify")
	var nopts ember.NativeOpts
	fs.BoolVar(&nopts.LFSR, "lfsr", false, "native: pseudo-random pattern")
	fs.BoolVar(&nopts.Checkerboard, "checkerboard", false, "native: checkerboard pattern")
	fs.BoolVar(&nopts.Check63, "check63", false, "native: stop on cells reading 63")
	var vopts ember.VerifyOpts
	fs.BoolVar(&vopts.ProbeExtremes, "probe-extremes", false, "probe thresholds 0 and 63 on the chip")
	fs.BoolVar(&vopts.CycleStuck, "cycle-stuck", false, "cycle lanes stuck after RESET")
	if err := parse(fs, args); err != nil {
		return err
	}
	var data []uint8
	switch {
	case *bitsArg != "":
		v, err := strconv.ParseUint(*bitsArg, 0, 64)
		if err != nil {
			return fmt.Errorf("%w: -bits: %w", errUsage, err)
		}
		if data, err = ember.LanesFromBits(v); err != nil {
			return err
		}
	case *levels != "":
		if data, err = parseLevels(*levels); err != nil {
			return err
		}
	case !*native || !nopts.LFSR && !nopts.Checkerboard:
		return fmt.Errorf("%w: -data or -bits is required", errUsage)
	default:
		data = make([]uint8, emberreg.Lanes)
	}
	d, err := e.open()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, d.Close())
	}()
	if err := d.SetAddr(*addr); err != nil {
		return err
	}
	if *native {
		return d.WriteNative(data, nopts)
	}
	residual, err := d.WriteVerify(data, vopts)
	if err != nil {
		var f *ember.WriteFailure
		if errors.As(err, &f) {
			fmt.Fprintf(e.out, "address %d level %d: %d attempts, lanes %#012x left\n", f.Address, f.Level, f.Attempts, f.Mask)
		}
		return err
	}
	p := d.Profile()
	fmt.Fprintf(e.out, "address %d: residual %#012x, %d reads, %d sets, %d resets\n", *addr, residual, p.Reads, p.Sets, p.Resets)
	return nil
}

func cmdCycle(e *env, args []string) (err error) {
	fs := e.flags("cycle", "")
	addr := fs.Int("addr", 0, "address")
	mask := fs.Uint64("mask", 0, "lanes to cycle, 0 for di_init_mask")
	n := fs.Int("n", 1, "number of CYCLE commands")
	if err := parse(fs, args); err != nil {
		return err
	}
	d, err := e.open()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, d.Close())
	}()
	if err := d.SetAddr(*addr); err != nil {
		return err
	}
	for i := 0; i < *n; i++ {
		if err := d.Cycle(*mask, false); err != nil {
			return err
		}
	}
	return nil
}

func cmdEnergy(e *env, args []string) (err error) {
	fs := e.flags("energy", "")
	bpc := fs.Int("bpc", 1, "bits per cell, 1 to 4")
	if err := parse(fs, args); err != nil {
		return err
	}
	d, err := e.open()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, d.Close())
	}()
	return d.ReadEnergy(*bpc)
}

func cmdDiag(e *env, args []string) (err error) {
	fs := e.flags("diag", "")
	if err := parse(fs, args); err != nil {
		return err
	}
	d, err := e.open()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, d.Close())
	}()
	g, err := d.Diagnostics()
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "successes  %d\nfailures   %d\nreads      %d\nsets       %d\nresets     %d\n", g.Successes, g.Failures, g.Reads, g.Sets, g.Resets)
	fmt.Fprintf(e.out, "cycles     %d\nread bits  %d\nset bits   %d\nreset bits %d\n", g.Cycles, g.ReadBits, g.SetBits, g.ResetBits)
	return nil
}

func cmdSetAddr(e *env, args []string) (err error) {
	fs := e.flags("setaddr", "<addr>")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errUsage
	}
	a, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	d, err := e.open()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, d.Close())
	}()
	return d.SetAddr(a)
}

func cmdView(e *env, args []string) error {
	fs := e.flags("view", "<read-out file>")
	top := fs.Int("top", -1, "highest level, -1 for the highest value found")
	pngOut := fs.String("png", "", "PNG map to write instead of printing")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errUsage
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	rows, err := readout.ReadRows(f)
	f.Close()
	if err != nil {
		return err
	}
	t := readout.MaxValue(rows)
	if *top >= 0 {
		t = uint8(min(*top, 63))
	}
	if *pngOut != "" {
		return writePNG(*pngOut, rows, t)
	}
	return readout.NewTerm(&readout.TermOpts{W: e.out, Top: t}).WriteAll(rows)
}

func cmdModes(e *env, args []string) error {
	fs := e.flags("modes", "")
	if err := parse(fs, args); err != nil {
		return err
	}
	for _, m := range ember.TransportModes() {
		fmt.Fprintln(e.out, m)
	}
	return nil
}
