// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package embertest is meant to be used to test drivers over a simulated
// EMBER chip.
//
// Chip models each cell as an ADC code in [0, 63]. SET pulses raise the code
// by the committed bl_dac_set_lvl_cycle, RESET pulses lower it by
// sl_dac_rst_lvl_cycle, and reads compare it against the committed level
// references. It can be used directly as a register transport or, through
// Tx, as the conn.Conn behind an SPI transport.
package embertest

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/GermanBionicSystems/rram/ember/emberreg"
	"github.com/holiman/uint256"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// MaxCode is the highest ADC code of a cell.
const MaxCode = 63

// RegWrite is a recorded register write.
type RegWrite struct {
	Reg   uint8
	Value uint256.Int
}

// Chip is a simulated EMBER chip.
type Chip struct {
	// Regs is the register file. RegRAM holds the signature.
	Regs [emberreg.NumRegs]uint256.Int
	// Stuck lanes ignore pulses.
	Stuck uint64
	// BusyPolls is the number of times Busy reports true after each command.
	BusyPolls int
	// Align is the response layout produced by Tx.
	Align emberreg.Alignment
	// Diag are the hardware counters exposed in RegDiag and RegDiag2.
	Diag emberreg.Diagnostics

	// Writes records every register write, Commands every command executed
	// and Reads counts register reads.
	Writes   []RegWrite
	Commands []emberreg.Command
	Reads    int

	Paused bool
	Fast   bool
	Closed bool

	cells map[int]*[emberreg.Lanes]uint8
	busy  int
}

// New returns a chip answering with the signature, all cells at code 0.
func New() *Chip {
	c := &Chip{Align: emberreg.AlignSpidev, cells: map[int]*[emberreg.Lanes]uint8{}}
	c.Regs[emberreg.RegRAM].SetUint64(emberreg.Signature)
	return c
}

// Cell returns the code of a cell.
func (c *Chip) Cell(addr, lane int) uint8 {
	return c.word(addr)[lane]
}

// SetCell sets the code of a cell.
func (c *Chip) SetCell(addr, lane int, code uint8) {
	if code > MaxCode {
		code = MaxCode
	}
	c.word(addr)[lane] = code
}

// SetWord sets the codes of the first len(codes) lanes of addr.
func (c *Chip) SetWord(addr int, codes []uint8) {
	for k, v := range codes {
		c.SetCell(addr, k, v)
	}
}

// Word returns the codes of all lanes of addr.
func (c *Chip) Word(addr int) []uint8 {
	w := c.word(addr)
	return append([]uint8(nil), w[:]...)
}

func (c *Chip) word(addr int) *[emberreg.Lanes]uint8 {
	w := c.cells[addr]
	if w == nil {
		w = &[emberreg.Lanes]uint8{}
		c.cells[addr] = w
	}
	return w
}

// LevelCode returns the code a cell at lvl gets from a native write: just
// above the previous level's upper read reference.
func LevelCode(levels []emberreg.Level, lvl int) uint8 {
	if lvl == 0 || lvl > len(levels) {
		return 0
	}
	code := levels[lvl-1].ADCUpperReadRefLvl + 1
	if code > MaxCode {
		code = MaxCode
	}
	return uint8(code)
}

func (c *Chip) String() string {
	return "embertest.Chip"
}

// ReadRegister reads a register.
func (c *Chip) ReadRegister(reg uint8) (uint256.Int, error) {
	if c.Closed {
		return uint256.Int{}, errors.New("embertest: closed")
	}
	if reg >= emberreg.NumRegs {
		return uint256.Int{}, fmt.Errorf("embertest: invalid register %d", reg)
	}
	c.Reads++
	switch reg {
	case emberreg.RegDiag:
		d1, _ := emberreg.EncodeDiagnostics(&c.Diag)
		return d1, nil
	case emberreg.RegDiag2:
		_, d2 := emberreg.EncodeDiagnostics(&c.Diag)
		return d2, nil
	case emberreg.RegState:
		start, _, _ := c.addr()
		return emberreg.EncodeStateAddress(start), nil
	}
	return c.Regs[reg], nil
}

// WriteRegister writes a register. Writing RegCmd executes the command.
func (c *Chip) WriteRegister(reg uint8, v *uint256.Int) error {
	if c.Closed {
		return errors.New("embertest: closed")
	}
	if reg >= emberreg.NumRegs {
		return fmt.Errorf("embertest: invalid register %d", reg)
	}
	if !emberreg.FitsValue(v) {
		return fmt.Errorf("embertest: value %s overflows register %d", v.Hex(), reg)
	}
	c.Writes = append(c.Writes, RegWrite{Reg: reg, Value: *v})
	if reg == emberreg.RegCmd {
		return c.execute(emberreg.Command(v.Uint64()))
	}
	c.Regs[reg] = *v
	return nil
}

// Busy reports true BusyPolls times after each command.
func (c *Chip) Busy() (bool, error) {
	if c.busy > 0 {
		c.busy--
		return true, nil
	}
	return false, nil
}

// PauseMainClock records the state of the pause line.
func (c *Chip) PauseMainClock(pause bool) error {
	c.Paused = pause
	return nil
}

// FastClock records the state of the clock select line.
func (c *Chip) FastClock(fast bool) error {
	c.Fast = fast
	return nil
}

// Close marks the chip closed. Further register access fails.
func (c *Chip) Close() error {
	c.Closed = true
	return nil
}

// Tx decodes one SPI frame, as sent by an SPI transport.
func (c *Chip) Tx(w, r []byte) error {
	write, reg, v, err := emberreg.ParseFrame(w)
	if err != nil {
		return err
	}
	if write {
		return c.WriteRegister(reg, &v)
	}
	if v, err = c.ReadRegister(reg); err != nil {
		return err
	}
	return c.Align.Encode(r, &v)
}

// Duplex implements conn.Conn.
func (c *Chip) Duplex() conn.Duplex {
	return conn.Full
}

// BusyPin returns a pin whose level follows Busy.
func (c *Chip) BusyPin() gpio.PinIn {
	return &busyPin{Pin: &gpiotest.Pin{N: "BUSY", Num: 7}, c: c}
}

type busyPin struct {
	*gpiotest.Pin
	c *Chip
}

func (p *busyPin) Read() gpio.Level {
	b, _ := p.c.Busy()
	return gpio.Level(b)
}

// WrittenRegs returns the registers written, in order.
func (c *Chip) WrittenRegs() []uint8 {
	out := make([]uint8, len(c.Writes))
	for i, w := range c.Writes {
		out[i] = w.Reg
	}
	return out
}

func (c *Chip) addr() (start, stop, step int) {
	return emberreg.DecodeAddress(c.Regs[emberreg.RegAddr].Uint64())
}

// addresses returns the addresses a command applies to.
func (c *Chip) addresses(multi bool) []int {
	start, stop, step := c.addr()
	if !multi || step == 0 || stop < start {
		return []int{start}
	}
	var out []int
	for a := start; a <= stop; a += step {
		out = append(out, a)
	}
	return out
}

func (c *Chip) levels() []emberreg.Level {
	out := make([]emberreg.Level, emberreg.MaxLevels)
	for i := range out {
		out[i] = emberreg.DecodeLevel(c.Regs[emberreg.RegLevel+uint8(i)])
	}
	return out
}

func (c *Chip) execute(cmd emberreg.Command) error {
	c.Commands = append(c.Commands, cmd)
	c.busy = c.BusyPolls
	misc := emberreg.DecodeMisc(c.Regs[emberreg.RegMisc])
	mask := misc.DIInitMask
	levels := c.levels()
	for _, a := range c.addresses(cmd.Has(emberreg.MultiAddr)) {
		w := c.word(a)
		switch cmd.Opcode() {
		case emberreg.OpTestPulse:
			c.pulse(w, mask, &misc)
		case emberreg.OpTestRead:
			thr := levels[0].ADCUpperReadRefLvl
			var v uint64
			for k := range w {
				if mask>>uint(k)&1 == 1 && uint64(w[k]) > thr {
					v |= 1 << uint(k)
				}
			}
			c.Regs[emberreg.RegRead].SetUint64(v)
			c.Diag.Reads++
			c.Diag.ReadBits += uint32(bits.OnesCount64(mask))
		case emberreg.OpRead:
			c.read(w, levels[:misc.Levels()])
			c.Diag.Reads++
			c.Diag.ReadBits += emberreg.Lanes
		case emberreg.OpWrite:
			c.write(w, a, cmd, mask, levels, misc.Levels())
		case emberreg.OpCycle:
			c.Diag.Cycles++
			c.Diag.Sets++
			c.Diag.Resets++
		case emberreg.OpTestCPulse, emberreg.OpRefresh, emberreg.OpReadEnergy:
		}
	}
	return nil
}

func (c *Chip) pulse(w *[emberreg.Lanes]uint8, mask uint64, m *emberreg.Misc) {
	n := uint32(bits.OnesCount64(mask))
	if m.SetFirst == 1 {
		c.Diag.Sets++
		c.Diag.SetBits += n
	} else {
		c.Diag.Resets++
		c.Diag.ResetBits += n
	}
	for k := range w {
		if mask>>uint(k)&1 == 0 || c.Stuck>>uint(k)&1 == 1 {
			continue
		}
		code := int(w[k])
		if m.SetFirst == 1 {
			code += int(m.BLDACSetLvlCycle)
		} else {
			code -= int(m.SLDACRstLvlCycle)
		}
		w[k] = uint8(min(max(code, 0), MaxCode))
	}
}

// read fills the READ bit planes with, for each lane, the number of levels
// whose upper read reference the cell exceeds.
func (c *Chip) read(w *[emberreg.Lanes]uint8, levels []emberreg.Level) {
	var planes [emberreg.ReadPlanes]uint64
	for k, code := range w {
		v := 0
		for j := 0; j < len(levels)-1; j++ {
			if uint64(code) > levels[j].ADCUpperReadRefLvl {
				v++
			}
		}
		for i := range planes {
			planes[i] |= uint64(v>>uint(i)&1) << uint(k)
		}
	}
	for i, p := range planes {
		c.Regs[emberreg.RegRead+uint8(i)].SetUint64(p)
	}
}

func (c *Chip) write(w *[emberreg.Lanes]uint8, addr int, cmd emberreg.Command, mask uint64, levels []emberreg.Level, n int) {
	var planes [emberreg.WritePlanes]uint64
	for i := range planes {
		planes[i] = c.Regs[emberreg.RegWrite+uint8(i)].Uint64()
	}
	for k := range w {
		if mask>>uint(k)&1 == 0 || c.Stuck>>uint(k)&1 == 1 {
			continue
		}
		lvl := 0
		switch {
		case cmd.Has(emberreg.Checkerboard):
			lvl = (addr + k) % 2 * (n - 1)
		case cmd.Has(emberreg.LFSR):
			lvl = int(lfsr(uint16(addr*emberreg.Lanes+k+1)) % uint16(n))
		default:
			for i, p := range planes {
				lvl |= int(p>>uint(k)&1) << uint(i)
			}
		}
		w[k] = LevelCode(levels, lvl)
		if cmd.Has(emberreg.Check63) && w[k] == MaxCode {
			c.Diag.Failures++
		}
	}
	c.Diag.Successes++
}

// lfsr advances a 16 bit Fibonacci LFSR once.
func lfsr(s uint16) uint16 {
	b := (s ^ s>>2 ^ s>>3 ^ s>>5) & 1
	return s>>1 | b<<15
}

var _ conn.Conn = &Chip{}
