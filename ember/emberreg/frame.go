// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package emberreg

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// FrameBytes is the size of one 168 bit frame:
//
//	[write(1) | register(5) | value(160) | pad(2)]
const FrameBytes = 21

const (
	frameWriteBit = 167
	frameRegShift = 162
	frameValShift = 2
	// Writes are followed by 2 idle bytes, reads by 1 byte during which the
	// response finishes shifting out.
	writeTrailer = 2
	readTrailer  = 1
)

// WriteFrame returns the bytes to transfer to write v into register reg.
func WriteFrame(reg uint8, v *uint256.Int) ([]byte, error) {
	if reg >= NumRegs {
		return nil, fmt.Errorf("emberreg: invalid register %d", reg)
	}
	if !FitsValue(v) {
		return nil, &FieldError{Field: fmt.Sprintf("reg%d", reg), Value: v.Uint64(), Width: ValueBits}
	}
	var f, x uint256.Int
	f.Lsh(uint256.NewInt(1), frameWriteBit)
	f.Or(&f, x.Lsh(x.SetUint64(uint64(reg)), frameRegShift))
	f.Or(&f, x.Lsh(v, frameValShift))
	return frameBytes(&f, writeTrailer), nil
}

// ReadFrame returns the bytes to transfer to read register reg. The response
// is decoded with an Alignment.
func ReadFrame(reg uint8) ([]byte, error) {
	if reg >= NumRegs {
		return nil, fmt.Errorf("emberreg: invalid register %d", reg)
	}
	var f uint256.Int
	f.Lsh(f.SetUint64(uint64(reg)), frameRegShift)
	return frameBytes(&f, readTrailer), nil
}

func frameBytes(f *uint256.Int, trailer int) []byte {
	b := f.Bytes32()
	out := make([]byte, FrameBytes+trailer)
	copy(out, b[32-FrameBytes:])
	return out
}

// ParseFrame decodes a frame produced by WriteFrame or ReadFrame.
func ParseFrame(w []byte) (write bool, reg uint8, v uint256.Int, err error) {
	if len(w) < FrameBytes {
		return false, 0, v, errors.New("emberreg: short frame")
	}
	var f uint256.Int
	f.SetBytes(w[:FrameBytes])
	var x uint256.Int
	write = x.Rsh(&f, frameWriteBit).Uint64()&1 == 1
	reg = uint8(x.Rsh(&f, frameRegShift).Uint64() & 0x1F)
	v.Rsh(&f, frameValShift)
	v.And(&v, &valueMask)
	return write, reg, v, nil
}

// Alignment describes where a read response lands in the bytes received
// while clocking out a ReadFrame. It depends on the SPI master's sampling
// edge.
type Alignment struct {
	// Start and End delimit the big-endian response bytes.
	Start, End int
	// Shift is the number of trailing bits to drop.
	Shift uint
}

var (
	// AlignSpidev is the response layout seen by the Linux spidev master.
	AlignSpidev = Alignment{Start: 1, End: 21}
	// AlignFTDI is the response layout seen by an FTDI MPSSE master, which
	// samples one edge later.
	AlignFTDI = Alignment{Start: 1, End: 22, Shift: 7}
)

// Decode extracts the register value from rx.
func (a Alignment) Decode(rx []byte) (uint256.Int, error) {
	var v uint256.Int
	if len(rx) < a.End {
		return v, fmt.Errorf("emberreg: short response: %d bytes, need %d", len(rx), a.End)
	}
	v.SetBytes(rx[a.Start:a.End])
	v.Rsh(&v, a.Shift)
	v.And(&v, &valueMask)
	return v, nil
}

// Encode places v in rx the way the chip shifts it out. It is the inverse of
// Decode and is used by simulators.
func (a Alignment) Encode(rx []byte, v *uint256.Int) error {
	if len(rx) < a.End {
		return fmt.Errorf("emberreg: short response: %d bytes, need %d", len(rx), a.End)
	}
	var x uint256.Int
	x.And(v, &valueMask)
	x.Lsh(&x, a.Shift)
	b := x.Bytes32()
	n := a.End - a.Start
	copy(rx[a.Start:a.End], b[32-n:])
	return nil
}
