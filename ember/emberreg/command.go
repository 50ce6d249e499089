// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package emberreg

import (
	"fmt"
	"math/bits"

	"github.com/holiman/uint256"
)

// Opcode is a command understood by the chip's FSM.
type Opcode uint8

// FSM opcodes.
const (
	OpTestPulse  Opcode = 0
	OpTestRead   Opcode = 1
	OpTestCPulse Opcode = 2
	OpCycle      Opcode = 3
	OpRead       Opcode = 4
	OpWrite      Opcode = 5
	OpRefresh    Opcode = 6
	OpReadEnergy Opcode = 7
)

var opcodeNames = [...]string{"TEST_PULSE", "TEST_READ", "TEST_CPULSE", "CYCLE", "READ", "WRITE", "REFRESH", "READ_ENERGY"}

func (o Opcode) String() string {
	if int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return fmt.Sprintf("Opcode(%d)", uint8(o))
}

// Command is the value written to RegCmd: an opcode in the low 3 bits and
// mode flags above it.
type Command uint8

// Command flags.
const (
	// MultiAddr repeats the operation over the whole address range set in
	// RegAddr without host intervention.
	MultiAddr Command = 8
	// LFSR programs a pseudo-random pattern instead of the WRITE registers.
	LFSR Command = 16
	// Checkerboard programs a checkerboard pattern.
	Checkerboard Command = 32
	// Check63 stops when a cell reads back as level 63.
	Check63 Command = 64
)

// NewCommand returns the command for op with flags.
func NewCommand(op Opcode, flags Command) Command {
	return Command(op&7) | flags&^7
}

// Opcode returns the opcode part of c.
func (c Command) Opcode() Opcode {
	return Opcode(c & 7)
}

// Has reports whether flag f is set.
func (c Command) Has(f Command) bool {
	return c&f != 0
}

// EncodeAddress packs an address range into a RegAddr value.
func EncodeAddress(start, stop, step int) (uint64, error) {
	for _, a := range []struct {
		name string
		v    int
	}{{"addr_start", start}, {"addr_stop", stop}, {"addr_step", step}} {
		if a.v < 0 || a.v >= 1<<16 {
			return 0, &FieldError{Field: a.name, Value: uint64(a.v), Width: 16}
		}
	}
	return uint64(step)<<32 | uint64(stop)<<16 | uint64(start), nil
}

// DecodeAddress unpacks a RegAddr value.
func DecodeAddress(v uint64) (start, stop, step int) {
	return int(v & 0xFFFF), int(v>>16&0xFFFF), int(v>>32&0xFFFF)
}

// stateAddrShift is the position of the current address in RegState.
const stateAddrShift = 5 + 5 + 1 + 1 + 1 + 5 + 1 + 6 + 48 + 4 + 1 + 6

// StateAddress extracts the address the FSM is working on from a RegState
// value.
func StateAddress(state uint256.Int) int {
	state.Rsh(&state, stateAddrShift)
	return int(state.Uint64() & 0xFFFF)
}

// EncodeStateAddress returns a RegState value reporting addr.
func EncodeStateAddress(addr int) uint256.Int {
	var s uint256.Int
	s.Lsh(s.SetUint64(uint64(addr)&0xFFFF), stateAddrShift)
	return s
}

// Diagnostics are the hardware counters. They wrap around.
type Diagnostics struct {
	Successes uint32
	Failures  uint32
	Reads     uint32
	Sets      uint32
	Resets    uint32
	Cycles    uint64
	ReadBits  uint32
	SetBits   uint32
	ResetBits uint32
}

// DecodeDiagnostics decodes RegDiag and RegDiag2. Counters are peeled from
// the least significant side.
func DecodeDiagnostics(d1, d2 uint256.Int) Diagnostics {
	next32 := func(v *uint256.Int) uint32 {
		x := uint32(v.Uint64())
		v.Rsh(v, 32)
		return x
	}
	var d Diagnostics
	d.Successes = next32(&d1)
	d.Failures = next32(&d1)
	d.Reads = next32(&d1)
	d.Sets = next32(&d1)
	d.Resets = next32(&d1)
	d.Cycles = d2.Uint64()
	d2.Rsh(&d2, 64)
	d.ReadBits = next32(&d2)
	d.SetBits = next32(&d2)
	d.ResetBits = next32(&d2)
	return d
}

// EncodeDiagnostics is the inverse of DecodeDiagnostics.
func EncodeDiagnostics(d *Diagnostics) (uint256.Int, uint256.Int) {
	var d1, d2, x uint256.Int
	for _, c := range []uint32{d.Resets, d.Sets, d.Reads, d.Failures, d.Successes} {
		d1.Lsh(&d1, 32)
		d1.Or(&d1, x.SetUint64(uint64(c)))
	}
	for _, c := range []uint32{d.ResetBits, d.SetBits, d.ReadBits} {
		d2.Lsh(&d2, 32)
		d2.Or(&d2, x.SetUint64(uint64(c)))
	}
	d2.Lsh(&d2, 64)
	d2.Or(&d2, x.SetUint64(d.Cycles))
	return d1, d2
}

// PulseWidth is a pulse width in FSM cycles expressed as mantissa<<exp.
type PulseWidth struct {
	Exp      uint64
	Mantissa uint64
}

// Cycles returns the pulse width in FSM clock cycles.
func (p PulseWidth) Cycles() uint64 {
	return p.Mantissa << p.Exp
}

// Popcount returns the number of lanes set in mask.
func Popcount(mask uint64) int {
	return bits.OnesCount64(mask)
}
