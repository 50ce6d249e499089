// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package emberreg

import (
	"github.com/holiman/uint256"
)

// Misc is the content of RegMisc.
//
// MaxAttempts is not limited to 8 bits: the driver loops use it as is while
// the register receives min(MaxAttempts, 255).
type Misc struct {
	PostReadSetupCycles        uint64 `json:"post_read_setup_cycles"`
	StepWriteSetupCycles       uint64 `json:"step_write_setup_cycles"`
	StepReadSetupCycles        uint64 `json:"step_read_setup_cycles"`
	WriteToInitReadSetupCycles uint64 `json:"write_to_init_read_setup_cycles"`
	ReadToInitWriteSetupCycles uint64 `json:"read_to_init_write_setup_cycles"`
	IdleToInitReadSetupCycles  uint64 `json:"idle_to_init_read_setup_cycles"`
	IdleToInitWriteSetupCycles uint64 `json:"idle_to_init_write_setup_cycles"`
	AllDACsOn                  uint64 `json:"all_dacs_on"`
	IgnoreFailures             uint64 `json:"ignore_failures"`
	DIInitMask                 uint64 `json:"di_init_mask"`
	SetFirst                   uint64 `json:"set_first"`
	PWRstCycleExp              uint64 `json:"pw_rst_cycle_exp"`
	PWRstCycleMantissa         uint64 `json:"pw_rst_cycle_mantissa"`
	WLDACRstLvlCycle           uint64 `json:"wl_dac_rst_lvl_cycle"`
	SLDACRstLvlCycle           uint64 `json:"sl_dac_rst_lvl_cycle"`
	PWSetCycleExp              uint64 `json:"pw_set_cycle_exp"`
	PWSetCycleMantissa         uint64 `json:"pw_set_cycle_mantissa"`
	WLDACSetLvlCycle           uint64 `json:"wl_dac_set_lvl_cycle"`
	BLDACSetLvlCycle           uint64 `json:"bl_dac_set_lvl_cycle"`
	NumLevels                  uint64 `json:"num_levels"`
	UseECC                     uint64 `json:"use_ecc"`
	MaxAttempts                uint64 `json:"max_attempts"`
}

// fields returns pointers to every field, in MiscFields order.
func (m *Misc) fields() []*uint64 {
	return []*uint64{
		&m.PostReadSetupCycles,
		&m.StepWriteSetupCycles,
		&m.StepReadSetupCycles,
		&m.WriteToInitReadSetupCycles,
		&m.ReadToInitWriteSetupCycles,
		&m.IdleToInitReadSetupCycles,
		&m.IdleToInitWriteSetupCycles,
		&m.AllDACsOn,
		&m.IgnoreFailures,
		&m.DIInitMask,
		&m.SetFirst,
		&m.PWRstCycleExp,
		&m.PWRstCycleMantissa,
		&m.WLDACRstLvlCycle,
		&m.SLDACRstLvlCycle,
		&m.PWSetCycleExp,
		&m.PWSetCycleMantissa,
		&m.WLDACSetLvlCycle,
		&m.BLDACSetLvlCycle,
		&m.NumLevels,
		&m.UseECC,
		&m.MaxAttempts,
	}
}

// Levels returns the logical number of levels, see NumLevels.
func (m *Misc) Levels() int {
	return NumLevels(m.NumLevels)
}

// EncodeMisc packs m into a RegMisc value.
func EncodeMisc(m *Misc) (uint256.Int, error) {
	return Pack(MiscFields, load(m.fields()))
}

// DecodeMisc unpacks a RegMisc value.
func DecodeMisc(v uint256.Int) Misc {
	var m Misc
	store(m.fields(), Unpack(MiscFields, v))
	return m
}

// Level is the content of one per-level register. It holds the pulse sweeps
// used to program a cell to the level and the ADC references used to verify
// and read it.
type Level struct {
	LoopOrderRst        uint64 `json:"loop_order_rst"`
	PWRstStepExp        uint64 `json:"pw_rst_step_exp"`
	PWRstStepMantissa   uint64 `json:"pw_rst_step_mantissa"`
	PWRstStopExp        uint64 `json:"pw_rst_stop_exp"`
	PWRstStopMantissa   uint64 `json:"pw_rst_stop_mantissa"`
	PWRstStartExp       uint64 `json:"pw_rst_start_exp"`
	PWRstStartMantissa  uint64 `json:"pw_rst_start_mantissa"`
	WLDACRstLvlStep     uint64 `json:"wl_dac_rst_lvl_step"`
	WLDACRstLvlStop     uint64 `json:"wl_dac_rst_lvl_stop"`
	WLDACRstLvlStart    uint64 `json:"wl_dac_rst_lvl_start"`
	SLDACRstLvlStep     uint64 `json:"sl_dac_rst_lvl_step"`
	SLDACRstLvlStop     uint64 `json:"sl_dac_rst_lvl_stop"`
	SLDACRstLvlStart    uint64 `json:"sl_dac_rst_lvl_start"`
	LoopOrderSet        uint64 `json:"loop_order_set"`
	PWSetStepExp        uint64 `json:"pw_set_step_exp"`
	PWSetStepMantissa   uint64 `json:"pw_set_step_mantissa"`
	PWSetStopExp        uint64 `json:"pw_set_stop_exp"`
	PWSetStopMantissa   uint64 `json:"pw_set_stop_mantissa"`
	PWSetStartExp       uint64 `json:"pw_set_start_exp"`
	PWSetStartMantissa  uint64 `json:"pw_set_start_mantissa"`
	WLDACSetLvlStep     uint64 `json:"wl_dac_set_lvl_step"`
	WLDACSetLvlStop     uint64 `json:"wl_dac_set_lvl_stop"`
	WLDACSetLvlStart    uint64 `json:"wl_dac_set_lvl_start"`
	BLDACSetLvlStep     uint64 `json:"bl_dac_set_lvl_step"`
	BLDACSetLvlStop     uint64 `json:"bl_dac_set_lvl_stop"`
	BLDACSetLvlStart    uint64 `json:"bl_dac_set_lvl_start"`
	ADCUpperWriteRefLvl uint64 `json:"adc_upper_write_ref_lvl"`
	ADCLowerWriteRefLvl uint64 `json:"adc_lower_write_ref_lvl"`
	ADCUpperReadRefLvl  uint64 `json:"adc_upper_read_ref_lvl"`
	ADCReadDACLvl       uint64 `json:"adc_read_dac_lvl"`
	ADCClampRefLvl      uint64 `json:"adc_clamp_ref_lvl"`
}

func (l *Level) fields() []*uint64 {
	return []*uint64{
		&l.LoopOrderRst,
		&l.PWRstStepExp,
		&l.PWRstStepMantissa,
		&l.PWRstStopExp,
		&l.PWRstStopMantissa,
		&l.PWRstStartExp,
		&l.PWRstStartMantissa,
		&l.WLDACRstLvlStep,
		&l.WLDACRstLvlStop,
		&l.WLDACRstLvlStart,
		&l.SLDACRstLvlStep,
		&l.SLDACRstLvlStop,
		&l.SLDACRstLvlStart,
		&l.LoopOrderSet,
		&l.PWSetStepExp,
		&l.PWSetStepMantissa,
		&l.PWSetStopExp,
		&l.PWSetStopMantissa,
		&l.PWSetStartExp,
		&l.PWSetStartMantissa,
		&l.WLDACSetLvlStep,
		&l.WLDACSetLvlStop,
		&l.WLDACSetLvlStart,
		&l.BLDACSetLvlStep,
		&l.BLDACSetLvlStop,
		&l.BLDACSetLvlStart,
		&l.ADCUpperWriteRefLvl,
		&l.ADCLowerWriteRefLvl,
		&l.ADCUpperReadRefLvl,
		&l.ADCReadDACLvl,
		&l.ADCClampRefLvl,
	}
}

// EncodeLevel packs l into a per-level register value.
func EncodeLevel(l *Level) (uint256.Int, error) {
	return Pack(LevelFields, load(l.fields()))
}

// DecodeLevel unpacks a per-level register value.
func DecodeLevel(v uint256.Int) Level {
	var l Level
	store(l.fields(), Unpack(LevelFields, v))
	return l
}

func load(ptrs []*uint64) []uint64 {
	out := make([]uint64, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}

func store(ptrs []*uint64, values []uint64) {
	for i, p := range ptrs {
		*p = values[i]
	}
}
