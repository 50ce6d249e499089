// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ember

import (
	"fmt"

	"github.com/GermanBionicSystems/rram/ember/emberreg"
	"github.com/holiman/uint256"
)

// Settings is the working copy of everything Commit sends to the chip.
type Settings struct {
	Misc   emberreg.Misc
	Levels []emberreg.Level
}

func (s *Settings) clone() Settings {
	return Settings{Misc: s.Misc, Levels: append([]emberreg.Level(nil), s.Levels...)}
}

// committed holds the encoded register values last written.
type committed struct {
	misc   *uint256.Int
	levels [emberreg.MaxLevels]*uint256.Int
}

// Settings returns the working settings. Changes are sent to the chip by the
// next Commit, which every operation does first.
func (d *Dev) Settings() *Settings {
	return &d.cur
}

// Levels returns the live per-level table. Single cell probes and
// write-verify derive their level 0 overlay from it.
func (d *Dev) Levels() []emberreg.Level {
	return d.live
}

// Commit writes the registers whose encoding differs from what was last
// committed: MISC, then levels 0 to num_levels-1.
//
// All values are encoded before the first bus transaction so an out of range
// setting leaves the chip untouched.
func (d *Dev) Commit() error {
	misc, err := emberreg.EncodeMisc(&d.cur.Misc)
	if err != nil {
		return configErr(err)
	}
	n := d.cur.Misc.Levels()
	if len(d.cur.Levels) < n {
		return fmt.Errorf("%w: num_levels is %d but only %d level settings", ErrConfig, n, len(d.cur.Levels))
	}
	levels := make([]uint256.Int, n)
	for i := range levels {
		if levels[i], err = emberreg.EncodeLevel(&d.cur.Levels[i]); err != nil {
			return fmt.Errorf("%w: level %d: %w", ErrConfig, i, err)
		}
	}
	if d.last.misc == nil || *d.last.misc != misc {
		if err := d.t.WriteRegister(emberreg.RegMisc, &misc); err != nil {
			return err
		}
		d.last.misc = &misc
	}
	for i := range levels {
		if p := d.last.levels[i]; p != nil && *p == levels[i] {
			continue
		}
		if err := d.t.WriteRegister(emberreg.RegLevel+uint8(i), &levels[i]); err != nil {
			return err
		}
		d.last.levels[i] = &levels[i]
	}
	return nil
}

// overlay applies a transient change to the working settings. The returned
// function restores the previous value.
func (d *Dev) overlay(f func(s *Settings)) (restore func()) {
	saved := d.cur
	d.cur = saved.clone()
	f(&d.cur)
	return func() {
		d.cur = saved
	}
}
