// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ember

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/GermanBionicSystems/rram/ember/emberreg"
	"github.com/holiman/uint256"
)

// Opts holds the options that are not part of the chip configuration.
type Opts struct {
	// Chip names the device under test in the data logs.
	Chip string
	// SkipConnectionTest disables the signature check done by New.
	SkipConnectionTest bool
	// MasterLog and ProgLog override the log files named in the
	// configuration. They are not closed by Close.
	MasterLog io.Writer
	ProgLog   io.Writer
	// IdleTimeout bounds WaitForIdle. 0 waits forever.
	IdleTimeout time.Duration
}

// DefaultOpts is used when nil Opts are passed to New or Open.
var DefaultOpts = Opts{Chip: "ember"}

// Dev is a handle to an EMBER chip.
//
// It is not safe for concurrent use.
type Dev struct {
	t    Transport
	opts Opts

	cur  Settings
	live []emberreg.Level
	last committed

	// diInitMask is the configured mask, used when an operation gets a zero
	// mask.
	diInitMask uint64
	bitwidth   int
	addr       int
	prof       Profile

	mlog, plog *dataLog
	debug      DebugF
}

// New returns a driver for the chip behind t.
//
// It unpauses the main clock, selects the slow clock, checks the connection
// signature unless opts.SkipConnectionTest is set and commits the initial
// settings. t is not closed on failure.
func New(t Transport, cfg *Config, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	levels := append([]emberreg.Level(nil), cfg.LevelSettings...)
	d := &Dev{
		t:          t,
		opts:       *opts,
		cur:        Settings{Misc: cfg.Misc, Levels: append([]emberreg.Level(nil), levels...)},
		live:       levels,
		diInitMask: cfg.DIInitMask,
		bitwidth:   cfg.Bitwidth,
		debug:      noop,
	}
	if d.bitwidth == 0 {
		d.bitwidth = emberreg.Lanes
	}
	if err := d.UnpauseMainClock(); err != nil && !errors.Is(err, ErrUnsupported) {
		return nil, err
	}
	if err := d.SlowMode(); err != nil && !errors.Is(err, ErrUnsupported) {
		return nil, err
	}
	if !opts.SkipConnectionTest {
		v, err := t.ReadRegister(emberreg.RegRAM)
		if err != nil {
			return nil, err
		}
		if !isSignature(&v) {
			return nil, fmt.Errorf("%w: read %s", ErrConnectionFailed, v.Hex())
		}
	}
	if err := d.Commit(); err != nil {
		return nil, err
	}
	now := time.Now()
	var err error
	if d.mlog, err = d.openLog(opts.MasterLog, cfg.MasterLogFile, now); err != nil {
		return nil, err
	}
	if d.plog, err = d.openLog(opts.ProgLog, cfg.ProgLogFile, now); err != nil {
		d.mlog.Close()
		return nil, err
	}
	return d, nil
}

// Open opens the transport selected by cfg and returns a driver for it. The
// transport is closed if anything fails.
func Open(cfg *Config, opts *Opts) (*Dev, error) {
	t, err := OpenTransport(cfg)
	if err != nil {
		return nil, err
	}
	d, err := New(t, cfg, opts)
	if err != nil {
		return nil, errors.Join(err, t.Close())
	}
	return d, nil
}

func (d *Dev) openLog(w io.Writer, path string, now time.Time) (*dataLog, error) {
	if w != nil {
		return newDataLog(w), nil
	}
	return openDataLog(path, now)
}

// Close flushes the logs and closes the transport.
func (d *Dev) Close() error {
	return errors.Join(d.mlog.Close(), d.plog.Close(), d.t.Close())
}

func (d *Dev) String() string {
	return fmt.Sprintf("EMBER{%s}", d.opts.Chip)
}

// Halt pauses the main clock, which freezes the FSM.
func (d *Dev) Halt() error {
	if err := d.PauseMainClock(); err != nil && !errors.Is(err, ErrUnsupported) {
		return err
	}
	return nil
}

// EnableDebug sets the function used to trace driver activity. The
// transport traces its register accesses to f too when it supports it, like
// *SPI does.
func (d *Dev) EnableDebug(f DebugF) {
	d.debug = f
	if t, ok := d.t.(interface{ EnableDebug(DebugF) }); ok {
		t.EnableDebug(f)
	}
}

// Addr returns the start address last selected.
func (d *Dev) Addr() int {
	return d.addr
}

// SetAddr selects a single address.
func (d *Dev) SetAddr(addr int) error {
	return d.SetAddrRange(addr, addr, 1)
}

// SetAddrRange selects the address range used by multi-address commands.
// Single address commands use start.
func (d *Dev) SetAddrRange(start, stop, step int) error {
	v, err := emberreg.EncodeAddress(start, stop, step)
	if err != nil {
		return configErr(err)
	}
	if err := d.t.WriteRegister(emberreg.RegAddr, uint256.NewInt(v)); err != nil {
		return err
	}
	d.addr = start
	return nil
}

// WaitForIdle blocks until the FSM is idle.
//
// While BUSY is asserted the STATE register is read to keep the SPI clock
// running. Afterwards RAM is read until the signature comes back.
func (d *Dev) WaitForIdle() error {
	var deadline time.Time
	if d.opts.IdleTimeout > 0 {
		deadline = time.Now().Add(d.opts.IdleTimeout)
	}
	expired := func() bool {
		return !deadline.IsZero() && time.Now().After(deadline)
	}
	for {
		busy, err := d.t.Busy()
		if err != nil {
			return err
		}
		if !busy {
			break
		}
		s, err := d.t.ReadRegister(emberreg.RegState)
		if err != nil {
			return err
		}
		d.debug("at address %d", emberreg.StateAddress(s))
		if expired() {
			return ErrIdleTimeout
		}
	}
	for {
		v, err := d.t.ReadRegister(emberreg.RegRAM)
		if err != nil {
			return err
		}
		if isSignature(&v) {
			return nil
		}
		if expired() {
			return ErrIdleTimeout
		}
	}
}

// PauseMainClock stops the main clock.
func (d *Dev) PauseMainClock() error {
	return d.clock(func(c ClockControl) error { return c.PauseMainClock(true) })
}

// UnpauseMainClock restarts the main clock.
func (d *Dev) UnpauseMainClock() error {
	return d.clock(func(c ClockControl) error { return c.PauseMainClock(false) })
}

// FastMode selects the fast clock.
func (d *Dev) FastMode() error {
	return d.clock(func(c ClockControl) error { return c.FastClock(true) })
}

// SlowMode selects the slow clock.
func (d *Dev) SlowMode() error {
	return d.clock(func(c ClockControl) error { return c.FastClock(false) })
}

func (d *Dev) clock(f func(c ClockControl) error) error {
	c, ok := d.t.(ClockControl)
	if !ok {
		return ErrUnsupported
	}
	return f(c)
}

// command writes c to RegCmd and, unless it runs over an address range,
// waits for it to complete.
func (d *Dev) command(c emberreg.Command) error {
	if err := d.t.WriteRegister(emberreg.RegCmd, uint256.NewInt(uint64(c))); err != nil {
		return err
	}
	if c.Has(emberreg.MultiAddr) {
		return nil
	}
	return d.WaitForIdle()
}

func (d *Dev) maskOr(mask uint64) uint64 {
	if mask == 0 {
		return d.diInitMask
	}
	return mask
}

var signature = uint256.NewInt(emberreg.Signature)

func isSignature(v *uint256.Int) bool {
	return v.Eq(signature)
}
