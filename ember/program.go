// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ember

import (
	"fmt"

	"github.com/GermanBionicSystems/rram/ember/emberreg"
	"github.com/holiman/uint256"
)

// NativeOpts selects the hardware write modes.
type NativeOpts struct {
	// MultiAddr programs the whole address range and returns immediately.
	MultiAddr bool
	// LFSR programs a pseudo-random pattern, ignoring the data.
	LFSR bool
	// Checkerboard programs a checkerboard pattern, ignoring the data.
	Checkerboard bool
	// Check63 stops programming a cell that reads back as 63.
	Check63 bool
}

func (o *NativeOpts) flags() emberreg.Command {
	var c emberreg.Command
	if o.MultiAddr {
		c |= emberreg.MultiAddr
	}
	if o.LFSR {
		c |= emberreg.LFSR
	}
	if o.Checkerboard {
		c |= emberreg.Checkerboard
	}
	if o.Check63 {
		c |= emberreg.Check63
	}
	return c
}

// VerifyOpts tunes the host driven write-verify.
type VerifyOpts struct {
	// ProbeExtremes issues probes whose threshold is 0 or 63 instead of
	// deciding them on the host.
	ProbeExtremes bool
	// CycleStuck issues a CYCLE on the lanes a RESET sweep could not bring
	// down.
	CycleStuck bool
}

// Pulse describes a single SET or RESET pulse.
type Pulse struct {
	// WL is the word line DAC level.
	WL uint64
	// Drive is the bit line DAC level for SET, the source line DAC level for
	// RESET.
	Drive uint64
	Width emberreg.PulseWidth
	// Mask selects the lanes to pulse. 0 selects the configured di_init_mask.
	Mask      uint64
	MultiAddr bool
}

// LanesFromBits expands the 48 low bits of v into one binary level per lane.
func LanesFromBits(v uint64) ([]uint8, error) {
	if v > emberreg.LaneMask {
		return nil, fmt.Errorf("%w: %#x has more than %d bits", ErrConfig, v, emberreg.Lanes)
	}
	data := make([]uint8, emberreg.Lanes)
	for i := range data {
		data[i] = uint8(v >> uint(i) & 1)
	}
	return data, nil
}

func (d *Dev) checkData(data []uint8) error {
	if len(data) > emberreg.Lanes {
		return fmt.Errorf("%w: %d values for %d lanes", ErrConfig, len(data), emberreg.Lanes)
	}
	n := d.cur.Misc.Levels()
	for i, v := range data {
		if int(v) >= n {
			return fmt.Errorf("%w: lane %d: level %d with num_levels %d", ErrConfig, i, v, n)
		}
	}
	return nil
}

// WriteNative loads one level per lane into the WRITE bit planes and lets the
// chip program and verify the word on its own.
//
// With opts.MultiAddr the command runs over the selected address range and
// WriteNative returns without waiting; poll with WaitForIdle.
func (d *Dev) WriteNative(data []uint8, opts NativeOpts) error {
	if err := d.checkData(data); err != nil {
		return err
	}
	if err := d.Commit(); err != nil {
		return err
	}
	for i, p := range writePlanes(data) {
		if err := d.t.WriteRegister(emberreg.RegWrite+uint8(i), uint256.NewInt(p)); err != nil {
			return err
		}
	}
	if err := d.command(emberreg.NewCommand(emberreg.OpWrite, opts.flags())); err != nil {
		return err
	}
	return d.mlog.record(d.opts.Chip, d.addr, "WRITE", d.cur.Misc.DIInitMask, d.cur.Misc.MaxAttempts)
}

// writePlanes splits per-lane levels into bit planes: bit k of plane i is
// bit i of data[k].
func writePlanes(data []uint8) [emberreg.WritePlanes]uint64 {
	var planes [emberreg.WritePlanes]uint64
	for k, v := range data {
		for i := range planes {
			planes[i] |= uint64(v>>uint(i)&1) << uint(k)
		}
	}
	return planes
}

// WriteVerify programs one level per lane with host driven SET/RESET sweeps.
//
// Levels are programmed in increasing order. Each attempt runs a SET sweep
// then a RESET sweep over the level's DAC ranges; a level is done when an
// attempt after the first finds every targeted lane above its lower write
// reference before pulsing. When max_attempts attempts don't converge a
// *WriteFailure is returned, unless ignore_failures is set, in which case
// the unconverged lanes are accumulated in residual and programming
// continues.
func (d *Dev) WriteVerify(data []uint8, opts VerifyOpts) (residual uint64, err error) {
	if err := d.checkData(data); err != nil {
		return 0, err
	}
	attempts := int(d.cur.Misc.MaxAttempts)
	if attempts == 0 {
		return 0, fmt.Errorf("%w: max_attempts is 0", ErrConfig)
	}
	n := d.cur.Misc.Levels()
	if len(d.live) < n {
		return 0, fmt.Errorf("%w: num_levels is %d but only %d live levels", ErrConfig, n, len(d.live))
	}
	if err := d.Commit(); err != nil {
		return 0, err
	}
	initMask := d.cur.Misc.DIInitMask
	ignore := d.cur.Misc.IgnoreFailures != 0
	if err := d.mlog.record(d.opts.Chip, d.addr, "WRITE", initMask, attempts); err != nil {
		return 0, err
	}
	for lvl := 0; lvl < n; lvl++ {
		target := levelMask(data, lvl) & initMask
		if target == 0 {
			continue
		}
		if err := checkSweeps(lvl, &d.live[lvl]); err != nil {
			return residual, err
		}
		done := false
		var left uint64
		attempt := 0
		for ; attempt < attempts; attempt++ {
			var setLeft, rstLeft uint64
			if done, setLeft, err = d.setSweep(lvl, target, attempt, opts); err != nil {
				return residual, err
			}
			if err := d.plog.record(d.opts.Chip, d.addr, "VERIFY", lvl, attempt, "SET", setLeft); err != nil {
				return residual, err
			}
			if done {
				break
			}
			if rstLeft, err = d.resetSweep(lvl, target, opts); err != nil {
				return residual, err
			}
			if err := d.plog.record(d.opts.Chip, d.addr, "VERIFY", lvl, attempt, "RESET", rstLeft); err != nil {
				return residual, err
			}
			left = setLeft | rstLeft
			if left == 0 {
				left = target
			}
		}
		if done {
			continue
		}
		if !ignore {
			return residual, &WriteFailure{Address: d.addr, Level: lvl, Attempts: attempt, Mask: left}
		}
		d.debug("level %d did not converge on address %d: %#x", lvl, d.addr, left)
		residual |= left
	}
	return residual, nil
}

// WriteBits write-verifies the 48 low bits of v as binary levels.
func (d *Dev) WriteBits(v uint64, opts VerifyOpts) (uint64, error) {
	data, err := LanesFromBits(v)
	if err != nil {
		return 0, err
	}
	return d.WriteVerify(data, opts)
}

// levelMask returns the lanes whose target is lvl.
func levelMask(data []uint8, lvl int) uint64 {
	var m uint64
	for k, v := range data {
		if int(v) == lvl {
			m |= 1 << uint(k)
		}
	}
	return m
}

func checkSweeps(lvl int, s *emberreg.Level) error {
	for _, step := range []struct {
		name string
		v    uint64
	}{
		{"wl_dac_set_lvl_step", s.WLDACSetLvlStep},
		{"bl_dac_set_lvl_step", s.BLDACSetLvlStep},
		{"wl_dac_rst_lvl_step", s.WLDACRstLvlStep},
		{"sl_dac_rst_lvl_step", s.SLDACRstLvlStep},
	} {
		if step.v == 0 {
			return fmt.Errorf("%w: level %d: %s is 0", ErrConfig, lvl, step.name)
		}
	}
	return nil
}

// setSweep runs the SET half of an attempt. It returns done when the level
// needed no pulse on an attempt after the first, and the lanes still below
// the lower write reference when the sweep ran out.
func (d *Dev) setSweep(lvl int, target uint64, attempt int, opts VerifyOpts) (bool, uint64, error) {
	s := &d.live[lvl]
	mask := target
	width := emberreg.PulseWidth{Exp: d.cur.Misc.PWSetCycleExp, Mantissa: d.cur.Misc.PWSetCycleMantissa}
	for wl := s.WLDACSetLvlStart; wl <= s.WLDACSetLvlStop; wl += s.WLDACSetLvlStep {
		for bl := s.BLDACSetLvlStart; bl <= s.BLDACSetLvlStop; bl += s.BLDACSetLvlStep {
			above, err := d.SingleRead(lvl, RefLowerWrite, mask, !opts.ProbeExtremes)
			if err != nil {
				return false, mask, err
			}
			if mask &^= above; mask == 0 {
				first := wl == s.WLDACSetLvlStart && bl == s.BLDACSetLvlStart
				return attempt > 0 && first, 0, nil
			}
			if err := d.SetPulse(Pulse{WL: wl, Drive: bl, Width: width, Mask: mask}); err != nil {
				return false, mask, err
			}
		}
	}
	return false, mask, nil
}

// resetSweep runs the RESET half of an attempt and returns the lanes still
// above the upper write reference when the sweep ran out.
func (d *Dev) resetSweep(lvl int, target uint64, opts VerifyOpts) (uint64, error) {
	s := &d.live[lvl]
	mask := target
	width := emberreg.PulseWidth{Exp: d.cur.Misc.PWRstCycleExp, Mantissa: d.cur.Misc.PWRstCycleMantissa}
	for wl := s.WLDACRstLvlStart; wl <= s.WLDACRstLvlStop; wl += s.WLDACRstLvlStep {
		for sl := s.SLDACRstLvlStart; sl <= s.SLDACRstLvlStop; sl += s.SLDACRstLvlStep {
			above, err := d.SingleRead(lvl, RefUpperWrite, mask, !opts.ProbeExtremes)
			if err != nil {
				return mask, err
			}
			if mask &= above; mask == 0 {
				return 0, nil
			}
			if err := d.ResetPulse(Pulse{WL: wl, Drive: sl, Width: width, Mask: mask}); err != nil {
				return mask, err
			}
		}
	}
	if opts.CycleStuck {
		if err := d.Cycle(mask, false); err != nil {
			return mask, err
		}
	}
	return mask, nil
}

// SetPulse applies one SET pulse. The working settings are restored
// afterwards.
func (d *Dev) SetPulse(p Pulse) error {
	mask := d.maskOr(p.Mask)
	defer d.overlay(func(s *Settings) {
		s.Misc.SetFirst = 1
		s.Misc.DIInitMask = mask
		s.Misc.WLDACSetLvlCycle = p.WL
		s.Misc.BLDACSetLvlCycle = p.Drive
		s.Misc.PWSetCycleExp = p.Width.Exp
		s.Misc.PWSetCycleMantissa = p.Width.Mantissa
	})()
	if err := d.pulse(mask, p.MultiAddr); err != nil {
		return err
	}
	d.prof.Sets++
	d.prof.CellSets += uint64(emberreg.Popcount(mask))
	return d.mlog.record(d.opts.Chip, d.addr, "SET", mask, p.WL, p.Drive, 0, p.Width.Cycles())
}

// ResetPulse applies one RESET pulse. The working settings are restored
// afterwards.
func (d *Dev) ResetPulse(p Pulse) error {
	mask := d.maskOr(p.Mask)
	defer d.overlay(func(s *Settings) {
		s.Misc.SetFirst = 0
		s.Misc.DIInitMask = mask
		s.Misc.WLDACRstLvlCycle = p.WL
		s.Misc.SLDACRstLvlCycle = p.Drive
		s.Misc.PWRstCycleExp = p.Width.Exp
		s.Misc.PWRstCycleMantissa = p.Width.Mantissa
	})()
	if err := d.pulse(mask, p.MultiAddr); err != nil {
		return err
	}
	d.prof.Resets++
	d.prof.CellResets += uint64(emberreg.Popcount(mask))
	return d.mlog.record(d.opts.Chip, d.addr, "RESET", mask, p.WL, 0, p.Drive, p.Width.Cycles())
}

func (d *Dev) pulse(mask uint64, multiAddr bool) error {
	if err := d.Commit(); err != nil {
		return err
	}
	var flags emberreg.Command
	if multiAddr {
		flags = emberreg.MultiAddr
	}
	return d.command(emberreg.NewCommand(emberreg.OpTestPulse, flags))
}

// Cycle applies alternating SET and RESET pulses to mask. A zero mask selects
// the configured di_init_mask.
func (d *Dev) Cycle(mask uint64, multiAddr bool) error {
	mask = d.maskOr(mask)
	defer d.overlay(func(s *Settings) {
		s.Misc.DIInitMask = mask
	})()
	if err := d.Commit(); err != nil {
		return err
	}
	var flags emberreg.Command
	if multiAddr {
		flags = emberreg.MultiAddr
	}
	if err := d.command(emberreg.NewCommand(emberreg.OpCycle, flags)); err != nil {
		return err
	}
	return d.mlog.record(d.opts.Chip, d.addr, "CYCLE", mask, d.cur.Misc.MaxAttempts)
}

// ReadEnergy starts the endless read loop used for energy measurements on
// the checkerboard region for bpc bits per cell. It doesn't wait; pause the
// main clock or reset the chip to stop it.
//
// num_levels is left at bpc.
func (d *Dev) ReadEnergy(bpc int) error {
	if bpc < 1 || bpc > emberreg.WritePlanes {
		return fmt.Errorf("%w: %d bits per cell", ErrConfig, bpc)
	}
	if err := d.SetAddrRange(100+bpc*100, 148+bpc*100, 1); err != nil {
		return err
	}
	d.cur.Misc.NumLevels = uint64(bpc)
	if err := d.Commit(); err != nil {
		return err
	}
	return d.t.WriteRegister(emberreg.RegCmd, uint256.NewInt(uint64(emberreg.NewCommand(emberreg.OpReadEnergy, 0))))
}
