// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ember

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned when a setting, an address or write data is out
	// of range, or when the configuration names an unknown transport. It is
	// always returned before any bus transaction.
	ErrConfig = errors.New("ember: invalid configuration")

	// ErrConnectionFailed is returned when the chip doesn't answer with the
	// expected signature.
	ErrConnectionFailed = errors.New("ember: no SPI connection detected")

	// ErrUnsupported is returned when the transport can't perform a clock
	// control operation.
	ErrUnsupported = errors.New("ember: operation not supported by transport")

	// ErrIdleTimeout is returned by WaitForIdle when Opts.IdleTimeout
	// elapses.
	ErrIdleTimeout = errors.New("ember: timed out waiting for idle")
)

// WriteFailure is returned when write-verify exhausts max_attempts without
// converging and ignore_failures is not set.
type WriteFailure struct {
	// Address is the start address selected when the failure occurred.
	Address int
	// Level is the level being programmed.
	Level int
	// Attempts is the number of SET/RESET attempts made.
	Attempts int
	// Mask holds the lanes that didn't converge.
	Mask uint64
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("ember: write failed on address %d: level %d did not converge after %d attempts (lanes %#x)", e.Address, e.Level, e.Attempts, e.Mask)
}

func configErr(err error) error {
	return fmt.Errorf("%w: %w", ErrConfig, err)
}
