// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package rram is a container for the EMBER RRAM test chip driver and its
// tools.
//
// The driver lives in package ember. Package readout renders what it reads.
package rram
