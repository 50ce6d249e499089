// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package emberreg

import (
	"github.com/holiman/uint256"
)

// Field is one named bit-field of a packed register.
type Field struct {
	Name  string
	Width uint
	// Clamp saturates values that are too wide instead of rejecting them.
	Clamp bool
}

func (f *Field) max() uint64 {
	return 1<<f.Width - 1
}

// MiscFields is the layout of RegMisc. The first field occupies the most
// significant bits.
var MiscFields = []Field{
	{Name: "post_read_setup_cycles", Width: 6},
	{Name: "step_write_setup_cycles", Width: 6},
	{Name: "step_read_setup_cycles", Width: 6},
	{Name: "write_to_init_read_setup_cycles", Width: 6},
	{Name: "read_to_init_write_setup_cycles", Width: 6},
	{Name: "idle_to_init_read_setup_cycles", Width: 6},
	{Name: "idle_to_init_write_setup_cycles", Width: 6},

	{Name: "all_dacs_on", Width: 1},
	{Name: "ignore_failures", Width: 1},
	{Name: "di_init_mask", Width: 48},

	{Name: "set_first", Width: 1},

	{Name: "pw_rst_cycle_exp", Width: 3},
	{Name: "pw_rst_cycle_mantissa", Width: 5},
	{Name: "wl_dac_rst_lvl_cycle", Width: 8},
	{Name: "sl_dac_rst_lvl_cycle", Width: 5},

	{Name: "pw_set_cycle_exp", Width: 3},
	{Name: "pw_set_cycle_mantissa", Width: 5},
	{Name: "wl_dac_set_lvl_cycle", Width: 8},
	{Name: "bl_dac_set_lvl_cycle", Width: 5},

	{Name: "num_levels", Width: 4},
	{Name: "use_ecc", Width: 1},
	{Name: "max_attempts", Width: 8, Clamp: true},
}

// LevelFields is the layout of each per-level register.
var LevelFields = []Field{
	{Name: "loop_order_rst", Width: 3},
	{Name: "pw_rst_step_exp", Width: 3},
	{Name: "pw_rst_step_mantissa", Width: 5},
	{Name: "pw_rst_stop_exp", Width: 3},
	{Name: "pw_rst_stop_mantissa", Width: 5},
	{Name: "pw_rst_start_exp", Width: 3},
	{Name: "pw_rst_start_mantissa", Width: 5},
	{Name: "wl_dac_rst_lvl_step", Width: 8},
	{Name: "wl_dac_rst_lvl_stop", Width: 8},
	{Name: "wl_dac_rst_lvl_start", Width: 8},
	{Name: "sl_dac_rst_lvl_step", Width: 5},
	{Name: "sl_dac_rst_lvl_stop", Width: 5},
	{Name: "sl_dac_rst_lvl_start", Width: 5},

	{Name: "loop_order_set", Width: 3},
	{Name: "pw_set_step_exp", Width: 3},
	{Name: "pw_set_step_mantissa", Width: 5},
	{Name: "pw_set_stop_exp", Width: 3},
	{Name: "pw_set_stop_mantissa", Width: 5},
	{Name: "pw_set_start_exp", Width: 3},
	{Name: "pw_set_start_mantissa", Width: 5},
	{Name: "wl_dac_set_lvl_step", Width: 8},
	{Name: "wl_dac_set_lvl_stop", Width: 8},
	{Name: "wl_dac_set_lvl_start", Width: 8},
	{Name: "bl_dac_set_lvl_step", Width: 5},
	{Name: "bl_dac_set_lvl_stop", Width: 5},
	{Name: "bl_dac_set_lvl_start", Width: 5},

	{Name: "adc_upper_write_ref_lvl", Width: 6},
	{Name: "adc_lower_write_ref_lvl", Width: 6},
	{Name: "adc_upper_read_ref_lvl", Width: 6},
	{Name: "adc_read_dac_lvl", Width: 4},
	{Name: "adc_clamp_ref_lvl", Width: 6},
}

// Pack packs values into one register value, the first field in the most
// significant bits.
//
// len(values) must equal len(fields).
func Pack(fields []Field, values []uint64) (uint256.Int, error) {
	var v, x uint256.Int
	if len(values) != len(fields) {
		return v, &FieldError{Field: "<count>", Value: uint64(len(values)), Width: uint(len(fields))}
	}
	for i := range fields {
		f := &fields[i]
		val := values[i]
		if val > f.max() {
			if !f.Clamp {
				return uint256.Int{}, &FieldError{Field: f.Name, Value: val, Width: f.Width}
			}
			val = f.max()
		}
		v.Lsh(&v, f.Width)
		v.Or(&v, x.SetUint64(val))
	}
	return v, nil
}

// Unpack is the inverse of Pack. Bits above the fields' total width are
// ignored.
func Unpack(fields []Field, v uint256.Int) []uint64 {
	out := make([]uint64, len(fields))
	for i := len(fields) - 1; i >= 0; i-- {
		f := &fields[i]
		out[i] = v.Uint64() & f.max()
		v.Rsh(&v, f.Width)
	}
	return out
}

// Width returns the total number of bits occupied by fields.
func Width(fields []Field) uint {
	var w uint
	for i := range fields {
		w += fields[i].Width
	}
	return w
}
