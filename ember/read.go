// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ember

import (
	"fmt"
	"math/bits"
	"strconv"

	"github.com/GermanBionicSystems/rram/ember/emberreg"
)

// Ref selects the ADC reference compared against by SingleRead.
type Ref int

// References of a level.
const (
	// RefUpperRead is the level's upper read reference.
	RefUpperRead Ref = iota
	// RefLowerRead is the previous level's upper read reference, 0 for level
	// 0.
	RefLowerRead
	// RefUpperWrite is the level's upper write reference.
	RefUpperWrite
	// RefLowerWrite is the level's lower write reference.
	RefLowerWrite
)

var refNames = [...]string{"upper_read", "lower_read", "upper_write", "lower_write"}

func (r Ref) String() string {
	if r >= 0 && int(r) < len(refNames) {
		return refNames[r]
	}
	return "Ref(" + strconv.Itoa(int(r)) + ")"
}

// ParseRef returns the Ref named s.
func ParseRef(s string) (Ref, error) {
	for i, n := range refNames {
		if n == s {
			return Ref(i), nil
		}
	}
	return 0, fmt.Errorf("%w: invalid read ref %q", ErrConfig, s)
}

const maxCode = 63

// threshold returns the ADC code that ref designates for level lvl of the
// live table.
func (d *Dev) threshold(lvl int, ref Ref) (uint64, error) {
	if lvl < 0 || lvl >= len(d.live) {
		return 0, fmt.Errorf("%w: level %d out of [0, %d)", ErrConfig, lvl, len(d.live))
	}
	l := &d.live[lvl]
	switch ref {
	case RefUpperRead:
		return l.ADCUpperReadRefLvl, nil
	case RefLowerRead:
		if lvl == 0 {
			return 0, nil
		}
		return d.live[lvl-1].ADCUpperReadRefLvl, nil
	case RefUpperWrite:
		return l.ADCUpperWriteRefLvl, nil
	case RefLowerWrite:
		return l.ADCLowerWriteRefLvl, nil
	default:
		return 0, fmt.Errorf("%w: invalid read ref %d", ErrConfig, int(ref))
	}
}

// SingleRead compares the lanes in mask against one reference of level lvl
// and returns the lanes above it. A zero mask selects the configured
// di_init_mask.
//
// When ignoreMinMax is set a threshold of 0 returns mask and a threshold of
// 63 returns 0 without any bus transaction.
func (d *Dev) SingleRead(lvl int, ref Ref, mask uint64, ignoreMinMax bool) (uint64, error) {
	thr, err := d.threshold(lvl, ref)
	if err != nil {
		return 0, err
	}
	mask = d.maskOr(mask)
	if ignoreMinMax {
		switch thr {
		case 0:
			return mask, nil
		case maxCode:
			return 0, nil
		}
	}
	defer d.overlay(func(s *Settings) {
		l := d.live[lvl]
		l.ADCUpperReadRefLvl = thr
		if len(s.Levels) == 0 {
			s.Levels = append(s.Levels, l)
		} else {
			s.Levels[0] = l
		}
		s.Misc.DIInitMask = mask
	})()
	if err := d.Commit(); err != nil {
		return 0, err
	}
	d.prof.Reads++
	d.prof.CellReads += uint64(emberreg.Popcount(mask))
	if err := d.command(emberreg.NewCommand(emberreg.OpTestRead, 0)); err != nil {
		return 0, err
	}
	v, err := d.t.ReadRegister(emberreg.RegRead)
	if err != nil {
		return 0, err
	}
	read := v.Uint64() & emberreg.LaneMask
	if err := d.mlog.record(d.opts.Chip, d.addr, "READ", mask, lvl, thr, read); err != nil {
		return 0, err
	}
	return read, nil
}

// Read issues a READ and returns one level per lane, limited to bitwidth
// lanes.
func (d *Dev) Read() ([]uint8, error) {
	if err := d.Commit(); err != nil {
		return nil, err
	}
	if err := d.command(emberreg.NewCommand(emberreg.OpRead, 0)); err != nil {
		return nil, err
	}
	n := readPlanes(d.cur.Misc.Levels())
	planes := make([]uint64, n)
	for i := range planes {
		v, err := d.t.ReadRegister(emberreg.RegRead + uint8(i))
		if err != nil {
			return nil, err
		}
		planes[i] = v.Uint64()
	}
	data := transpose(planes)[:d.bitwidth]
	fields := make([]interface{}, 0, 1+len(data))
	fields = append(fields, d.cur.Misc.DIInitMask)
	for _, v := range data {
		fields = append(fields, v)
	}
	if err := d.mlog.record(d.opts.Chip, d.addr, "MLCREAD", fields...); err != nil {
		return nil, err
	}
	return data, nil
}

// readPlanes is ceil(log2(n)).
func readPlanes(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

// transpose rebuilds per-lane values from bit planes: bit i of lane k is bit
// k of planes[i].
func transpose(planes []uint64) []uint8 {
	data := make([]uint8, emberreg.Lanes)
	for i, p := range planes {
		for k := range data {
			data[k] |= uint8(p>>uint(k)&1) << uint(i)
		}
	}
	return data
}

const (
	superPasses = 8
	superWindow = 8
)

// Superread reconstructs the full 0-63 range with 8 READs over shifted 9
// level windows of the live level 0 settings. The working settings are
// restored afterwards.
func (d *Dev) Superread() ([]uint8, error) {
	if len(d.live) == 0 {
		return nil, fmt.Errorf("%w: no level settings", ErrConfig)
	}
	defer d.overlay(func(*Settings) {})()
	var acc []uint8
	for p := 0; p < superPasses; p++ {
		d.cur.Misc.NumLevels = superWindow + 1
		d.cur.Levels = make([]emberreg.Level, superWindow+1)
		for j := range d.cur.Levels {
			d.cur.Levels[j] = d.live[0]
			d.cur.Levels[j].ADCUpperReadRefLvl = uint64(min(p*superWindow+j, maxCode))
		}
		read, err := d.Read()
		if err != nil {
			return nil, err
		}
		acc = mergeSuperread(acc, read, p)
	}
	return acc, nil
}

// mergeSuperread folds the read of pass p into acc. Lanes that saturated the
// previous window, whose value is exactly p*8, take the new reading.
func mergeSuperread(acc, read []uint8, p int) []uint8 {
	base := uint8(p * superWindow)
	if p == 0 || acc == nil {
		out := make([]uint8, len(read))
		for k, r := range read {
			out[k] = r + base
		}
		return out
	}
	for k := range acc {
		if acc[k] == base && k < len(read) {
			acc[k] = read[k] + base
		}
	}
	return acc
}
