// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ember

import "github.com/GermanBionicSystems/rram/ember/emberreg"

// Profile counts the operations issued by the host since New.
//
// The Cell counters add the number of lanes each operation touched.
type Profile struct {
	Reads      uint64
	Sets       uint64
	Resets     uint64
	CellReads  uint64
	CellSets   uint64
	CellResets uint64
}

// Profile returns the host side operation counters.
func (d *Dev) Profile() Profile {
	return d.prof
}

// Diagnostics reads the hardware counters.
func (d *Dev) Diagnostics() (emberreg.Diagnostics, error) {
	d1, err := d.t.ReadRegister(emberreg.RegDiag)
	if err != nil {
		return emberreg.Diagnostics{}, err
	}
	d2, err := d.t.ReadRegister(emberreg.RegDiag2)
	if err != nil {
		return emberreg.Diagnostics{}, err
	}
	return emberreg.DecodeDiagnostics(d1, d2), nil
}
