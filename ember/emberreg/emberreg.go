// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package emberreg describes the register protocol of the EMBER RRAM test
// chip: register indices, FSM opcodes, the bit-packed settings registers and
// the 168 bit SPI frame.
//
// All registers carry up to 160 bits of payload. Values are held in a
// uint256.Int so that they can be compared with ==.
package emberreg

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Register indices.
const (
	// RegLevel is the first per-level settings register. Level i lives at
	// RegLevel+i, for i in [0, MaxLevels).
	RegLevel uint8 = 0
	RegMisc  uint8 = 16
	RegAddr  uint8 = 17
	RegWrite uint8 = 18 // 4 consecutive bit-plane registers
	RegCmd   uint8 = 22
	RegState uint8 = 23
	RegDiag  uint8 = 24
	RegRead  uint8 = 25 // 4 consecutive bit-plane registers
	RegDiag2 uint8 = 29
	RegNone  uint8 = 30
	RegRAM   uint8 = 31
)

const (
	// NumRegs is the size of the register file.
	NumRegs = 32
	// MaxLevels is the number of per-level registers.
	MaxLevels = 16
	// WritePlanes is the number of bit planes a native WRITE consumes.
	WritePlanes = 4
	// ReadPlanes is the number of READ bit-plane registers.
	ReadPlanes = 4
)

// Lanes is the number of cells in one addressed word.
const Lanes = 48

// LaneMask has one bit set per lane.
const LaneMask uint64 = 1<<Lanes - 1

// Signature is what RegRAM reads back ("RAM" in ASCII).
const Signature uint64 = 0x52414D

// ValueBits is the widest payload a register can carry.
const ValueBits = 160

// ErrFieldRange is wrapped by every error reporting a value that doesn't fit
// in its declared width.
var ErrFieldRange = errors.New("emberreg: value out of range")

// FieldError reports which field overflowed.
type FieldError struct {
	Field string
	Value uint64
	Width uint
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("emberreg: field %s value %d does not fit in %d bits", e.Field, e.Value, e.Width)
}

// Unwrap returns ErrFieldRange.
func (e *FieldError) Unwrap() error {
	return ErrFieldRange
}

// NumLevels returns the logical number of levels encoded by the 4 bit
// num_levels field. The hardware interprets 0 as 16.
func NumLevels(raw uint64) int {
	return int((raw+15)%16) + 1
}

// valueMask has the low ValueBits bits set.
var valueMask = func() uint256.Int {
	var m uint256.Int
	m.Lsh(uint256.NewInt(1), ValueBits)
	m.Sub(&m, uint256.NewInt(1))
	return m
}()

// FitsValue reports whether v can be carried by a register.
func FitsValue(v *uint256.Int) bool {
	return v.BitLen() <= ValueBits
}
