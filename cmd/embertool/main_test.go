// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GermanBionicSystems/rram/ember/emberreg"
	"github.com/GermanBionicSystems/rram/ember/embertest"
	"github.com/retroenv/retrogolib/log"
)

const simConfig = `{
	"spi_mode": "sim",
	"num_levels": 4,
	"di_init_mask": 281474976710655,
	"max_attempts": 8,
	"pw_set_cycle_mantissa": 1,
	"pw_rst_cycle_mantissa": 1,
	"level_settings": [
		{"wl_dac_set_lvl_start": 1, "wl_dac_set_lvl_stop": 2, "wl_dac_set_lvl_step": 1, "bl_dac_set_lvl_start": 1, "bl_dac_set_lvl_stop": 3, "bl_dac_set_lvl_step": 1, "wl_dac_rst_lvl_start": 1, "wl_dac_rst_lvl_stop": 1, "wl_dac_rst_lvl_step": 1, "sl_dac_rst_lvl_start": 1, "sl_dac_rst_lvl_stop": 2, "sl_dac_rst_lvl_step": 1, "adc_lower_write_ref_lvl": 0, "adc_upper_write_ref_lvl": 5, "adc_upper_read_ref_lvl": 9},
		{"wl_dac_set_lvl_start": 1, "wl_dac_set_lvl_stop": 2, "wl_dac_set_lvl_step": 1, "bl_dac_set_lvl_start": 1, "bl_dac_set_lvl_stop": 3, "bl_dac_set_lvl_step": 1, "wl_dac_rst_lvl_start": 1, "wl_dac_rst_lvl_stop": 1, "wl_dac_rst_lvl_step": 1, "sl_dac_rst_lvl_start": 1, "sl_dac_rst_lvl_stop": 2, "sl_dac_rst_lvl_step": 1, "adc_lower_write_ref_lvl": 12, "adc_upper_write_ref_lvl": 17, "adc_upper_read_ref_lvl": 19},
		{"wl_dac_set_lvl_start": 1, "wl_dac_set_lvl_stop": 2, "wl_dac_set_lvl_step": 1, "bl_dac_set_lvl_start": 1, "bl_dac_set_lvl_stop": 3, "bl_dac_set_lvl_step": 1, "wl_dac_rst_lvl_start": 1, "wl_dac_rst_lvl_stop": 1, "wl_dac_rst_lvl_step": 1, "sl_dac_rst_lvl_start": 1, "sl_dac_rst_lvl_stop": 2, "sl_dac_rst_lvl_step": 1, "adc_lower_write_ref_lvl": 22, "adc_upper_write_ref_lvl": 27, "adc_upper_read_ref_lvl": 29},
		{"wl_dac_set_lvl_start": 1, "wl_dac_set_lvl_stop": 2, "wl_dac_set_lvl_step": 1, "bl_dac_set_lvl_start": 1, "bl_dac_set_lvl_stop": 3, "bl_dac_set_lvl_step": 1, "wl_dac_rst_lvl_start": 1, "wl_dac_rst_lvl_stop": 1, "wl_dac_rst_lvl_step": 1, "sl_dac_rst_lvl_start": 1, "sl_dac_rst_lvl_stop": 2, "sl_dac_rst_lvl_step": 1, "adc_lower_write_ref_lvl": 32, "adc_upper_write_ref_lvl": 37, "adc_upper_read_ref_lvl": 39}
	]
}`

// setup returns the path of a simulated chip configuration and resets the
// simulated chip.
func setup(t *testing.T) (dir, config string) {
	t.Helper()
	sim = embertest.New()
	dir = t.TempDir()
	config = filepath.Join(dir, "config.json")
	if err := os.WriteFile(config, []byte(simConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, config
}

func runOut(t *testing.T, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := run(args, &buf); err != nil {
		t.Fatalf("run(%q): %v\n%s", args, err, buf.String())
	}
	return buf.String()
}

func TestUsage(t *testing.T) {
	var buf bytes.Buffer
	if err := run(nil, &buf); err != errUsage {
		t.Errorf("run() = %v", err)
	}
	if !strings.Contains(buf.String(), "superread") && !strings.Contains(buf.String(), "setaddr") {
		t.Errorf("usage doesn't list the commands:\n%s", buf.String())
	}
	if err := run([]string{"bogus"}, &buf); !errors.Is(err, errUsage) {
		t.Errorf("run(bogus) = %v", err)
	}
	if err := run([]string{"-config", "x", "read", "-end", "0"}, &buf); !errors.Is(err, errUsage) {
		t.Errorf("empty range: %v", err)
	}
	if err := run([]string{"-config", "x", "write"}, &buf); !errors.Is(err, errUsage) {
		t.Errorf("write without data: %v", err)
	}
}

func TestModes(t *testing.T) {
	if s := runOut(t, "modes"); s != "ftdi\nsim\nspidev\n" {
		t.Errorf("modes = %q", s)
	}
}

func TestWriteRead(t *testing.T) {
	dir, config := setup(t)
	s := runOut(t, "-config", config, "write", "-addr", "2", "-data", "0,1,2,3")
	if !strings.HasPrefix(s, "address 2: residual 0") {
		t.Errorf("write = %q", s)
	}
	file := filepath.Join(dir, "readout.tsv")
	line := "2\t" + strings.Repeat("0123", 12) + "\n"
	if s := runOut(t, "-config", config, "read", "-start", "1", "-end", "3", "-out", file); s != "1\t"+strings.Repeat("0", 48)+"\n"+line {
		t.Errorf("read = %q", s)
	}
	if s := runOut(t, "-config", config, "view", "-top", "3", file); !strings.HasSuffix(s, line) {
		t.Errorf("view = %q", s)
	}
	img := filepath.Join(dir, "map.png")
	runOut(t, "-config", config, "view", "-png", img, file)
	f, err := os.Open(img)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Fatal(err)
	}
}

func TestSuperread(t *testing.T) {
	_, config := setup(t)
	sim.SetWord(0, []uint8{0, 8, 63, 30})
	s := runOut(t, "-config", config, "read", "-super")
	if !strings.HasPrefix(s, "0\t08#u0") {
		t.Errorf("read -super = %q", s)
	}
}

func TestWriteBits(t *testing.T) {
	_, config := setup(t)
	runOut(t, "-config", config, "write", "-bits", "0b101")
	got := sim.Word(0)[:3]
	if got[0] <= 12 || got[1] > 5 || got[2] <= 12 {
		t.Errorf("cells = %v", got)
	}
}

func TestWriteNative(t *testing.T) {
	_, config := setup(t)
	runOut(t, "-config", config, "write", "-native", "-checkerboard", "-addr", "1")
	if got := sim.Word(1)[:2]; got[0] != 30 || got[1] != 0 {
		t.Errorf("cells = %v", got)
	}
}

func TestCycle(t *testing.T) {
	_, config := setup(t)
	runOut(t, "-config", config, "cycle", "-n", "3", "-mask", "0xF")
	if sim.Diag.Cycles != 3 {
		t.Errorf("Cycles = %d", sim.Diag.Cycles)
	}
	if m := emberreg.DecodeMisc(sim.Regs[emberreg.RegMisc]).DIInitMask; m != 0xF {
		t.Errorf("di_init_mask = %#x", m)
	}
	s := runOut(t, "-config", config, "diag")
	if !strings.Contains(s, "cycles     3\n") {
		t.Errorf("diag = %q", s)
	}
}

func TestSetAddr(t *testing.T) {
	_, config := setup(t)
	runOut(t, "-config", config, "setaddr", "513")
	if a := sim.Regs[emberreg.RegAddr].Uint64(); a != 513|513<<16|1<<32 {
		t.Errorf("address register = %#x", a)
	}
	var buf bytes.Buffer
	if err := run([]string{"-config", config, "setaddr"}, &buf); err != errUsage {
		t.Errorf("setaddr without address: %v", err)
	}
}

func TestEnergy(t *testing.T) {
	_, config := setup(t)
	runOut(t, "-config", config, "energy", "-bpc", "2")
	c := sim.Commands[len(sim.Commands)-1]
	if c.Opcode() != emberreg.OpReadEnergy {
		t.Errorf("command = %s", c.Opcode())
	}
	var buf bytes.Buffer
	if err := run([]string{"-config", config, "energy", "-bpc", "5"}, &buf); err == nil {
		t.Error("expected error")
	}
}

func TestVerbose(t *testing.T) {
	_, config := setup(t)
	old := createLogger
	defer func() { createLogger = old }()
	var levels []bool
	createLogger = func(verbose bool) *log.Logger {
		levels = append(levels, verbose)
		return log.NewTestLogger(t)
	}
	runOut(t, "-config", config, "-v", "write", "-addr", "1", "-data", "1")
	runOut(t, "-config", config, "diag")
	if len(levels) != 2 || !levels[0] || levels[1] {
		t.Errorf("logger levels = %v, want [true false]", levels)
	}
	debugf(log.NewTestLogger(t))("at address %d", 1)
}
