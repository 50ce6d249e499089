// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ember controls the EMBER RRAM test chip.
//
// The chip exposes 48 lanes of multi-level RRAM cells per address behind a
// register file reached over SPI. Dev keeps a working copy of the chip
// settings, commits only the registers that changed, and implements
// host-driven write-verify, native writes, multi-plane reads and the 64 level
// superread on top of it.
//
// Datasheet
//
// There is no public datasheet. The register layout is described in package
// emberreg.
package ember
