// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ember

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/GermanBionicSystems/rram/ember/emberreg"
	"github.com/GermanBionicSystems/rram/ember/embertest"
	"github.com/google/go-cmp/cmp"
)

// testLevels returns 4 levels with write windows (lower, upper] of
// (0, 5], (12, 17], (22, 27], (32, 37] and read references 9, 19, 29, 39.
func testLevels() []emberreg.Level {
	refs := [][3]uint64{{0, 5, 9}, {12, 17, 19}, {22, 27, 29}, {32, 37, 39}}
	out := make([]emberreg.Level, len(refs))
	for i, r := range refs {
		out[i] = emberreg.Level{
			WLDACSetLvlStart:    1,
			WLDACSetLvlStop:     2,
			WLDACSetLvlStep:     1,
			BLDACSetLvlStart:    1,
			BLDACSetLvlStop:     3,
			BLDACSetLvlStep:     1,
			WLDACRstLvlStart:    1,
			WLDACRstLvlStop:     1,
			WLDACRstLvlStep:     1,
			SLDACRstLvlStart:    1,
			SLDACRstLvlStop:     2,
			SLDACRstLvlStep:     1,
			ADCLowerWriteRefLvl: r[0],
			ADCUpperWriteRefLvl: r[1],
			ADCUpperReadRefLvl:  r[2],
		}
	}
	return out
}

func testConfig() *Config {
	c := DefaultConfig()
	c.SPIMode = "test-sim"
	c.DIInitMask = emberreg.LaneMask
	c.NumLevels = 4
	c.MaxAttempts = 8
	c.PWSetCycleMantissa = 1
	c.PWRstCycleMantissa = 1
	c.LevelSettings = testLevels()
	return &c
}

func newDev(t *testing.T, cfg *Config) (*Dev, *embertest.Chip) {
	t.Helper()
	chip := embertest.New()
	d, err := New(chip, cfg, &Opts{Chip: "test"})
	if err != nil {
		t.Fatal(err)
	}
	return d, chip
}

var simChip *embertest.Chip

func init() {
	if err := RegisterTransport("test-sim", func(*Config) (Transport, error) { return simChip, nil }); err != nil {
		panic(err)
	}
}

func TestNew(t *testing.T) {
	chip := embertest.New()
	chip.Paused = true
	chip.Fast = true
	d, err := New(chip, testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if chip.Paused || chip.Fast {
		t.Errorf("paused=%t fast=%t, want unpaused slow clock", chip.Paused, chip.Fast)
	}
	want := []uint8{emberreg.RegMisc, 0, 1, 2, 3}
	if diff := cmp.Diff(chip.WrittenRegs(), want); diff != "" {
		t.Errorf("initial commit (-got +want):\n%s", diff)
	}
	if s := d.String(); s != "EMBER{ember}" {
		t.Errorf("String() = %q", s)
	}
	if diff := cmp.Diff(d.Profile(), Profile{}); diff != "" {
		t.Errorf("Profile() (-got +want):\n%s", diff)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if !chip.Closed {
		t.Error("transport not closed")
	}
}

func TestNew_connectionFailed(t *testing.T) {
	chip := embertest.New()
	chip.Regs[emberreg.RegRAM].SetUint64(0x123)
	_, err := New(chip, testConfig(), nil)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("expected ErrConnectionFailed, got %v", err)
	}
	if len(chip.Writes) != 0 {
		t.Errorf("settings committed after failed connection test: %v", chip.WrittenRegs())
	}

	if _, err := New(chip, testConfig(), &Opts{SkipConnectionTest: true}); err != nil {
		t.Fatal(err)
	}
}

func TestNew_invalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.NumLevels = 0
	chip := embertest.New()
	if _, err := New(chip, cfg, nil); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	if chip.Reads != 0 || len(chip.Writes) != 0 {
		t.Error("bus used before validation")
	}
}

func TestOpen(t *testing.T) {
	simChip = embertest.New()
	d, err := Open(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	simChip = embertest.New()
	simChip.Regs[emberreg.RegRAM].Clear()
	if _, err := Open(testConfig(), nil); !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("expected ErrConnectionFailed, got %v", err)
	}
	if !simChip.Closed {
		t.Error("transport leaked on failure")
	}

	cfg := testConfig()
	cfg.SPIMode = "bitbang"
	if _, err := Open(cfg, nil); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestTransportModes(t *testing.T) {
	got := TransportModes()
	for _, m := range []string{"ftdi", "spidev", "test-sim"} {
		found := false
		for _, g := range got {
			found = found || g == m
		}
		if !found {
			t.Errorf("%q not in %v", m, got)
		}
	}
	if err := RegisterTransport("spidev", func(*Config) (Transport, error) { return nil, nil }); err == nil {
		t.Error("duplicate registration should fail")
	}
}

func TestCommit_idempotent(t *testing.T) {
	d, chip := newDev(t, testConfig())
	chip.Writes = nil
	for i := 0; i < 3; i++ {
		if err := d.Commit(); err != nil {
			t.Fatal(err)
		}
	}
	if len(chip.Writes) != 0 {
		t.Errorf("unchanged settings wrote %v", chip.WrittenRegs())
	}
}

func TestCommit_minimal(t *testing.T) {
	d, chip := newDev(t, testConfig())
	data := []struct {
		name   string
		change func(s *Settings)
		want   []uint8
	}{
		{"misc", func(s *Settings) { s.Misc.SetFirst = 1 }, []uint8{emberreg.RegMisc}},
		{"level 2", func(s *Settings) { s.Levels[2].ADCClampRefLvl = 7 }, []uint8{2}},
		{"both", func(s *Settings) {
			s.Misc.UseECC = 1
			s.Levels[0].LoopOrderSet = 3
			s.Levels[3].LoopOrderRst = 3
		}, []uint8{emberreg.RegMisc, 0, 3}},
		{"beyond num_levels", func(s *Settings) {
			s.Levels = append(s.Levels, emberreg.Level{ADCClampRefLvl: 1})
		}, nil},
	}
	for _, line := range data {
		chip.Writes = nil
		line.change(d.Settings())
		if err := d.Commit(); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(chip.WrittenRegs(), line.want, cmp.Comparer(func(a, b []uint8) bool { return bytes.Equal(a, b) })); diff != "" {
			t.Errorf("%s (-got +want):\n%s", line.name, diff)
		}
		got := emberreg.DecodeMisc(chip.Regs[emberreg.RegMisc])
		if diff := cmp.Diff(got, d.Settings().Misc); diff != "" {
			t.Errorf("%s: MISC register (-got +want):\n%s", line.name, diff)
		}
	}
}

func TestCommit_errorsBeforeBus(t *testing.T) {
	d, chip := newDev(t, testConfig())
	chip.Writes = nil

	d.Settings().Misc.NumLevels = 16
	err := d.Commit()
	if !errors.Is(err, ErrConfig) || !errors.Is(err, emberreg.ErrFieldRange) {
		t.Fatalf("expected field range error, got %v", err)
	}
	d.Settings().Misc.NumLevels = 0
	if err := d.Commit(); !errors.Is(err, ErrConfig) {
		t.Fatalf("16 levels with 4 settings: expected ErrConfig, got %v", err)
	}
	d.Settings().Misc.NumLevels = 4
	d.Settings().Levels[3].WLDACSetLvlStop = 256
	if err := d.Commit(); !errors.Is(err, emberreg.ErrFieldRange) {
		t.Fatalf("expected field range error, got %v", err)
	}
	if len(chip.Writes) != 0 {
		t.Errorf("invalid settings reached the bus: %v", chip.WrittenRegs())
	}
}

func TestCommit_numLevels(t *testing.T) {
	cfg := testConfig()
	for len(cfg.LevelSettings) < emberreg.MaxLevels {
		cfg.LevelSettings = append(cfg.LevelSettings, emberreg.Level{ADCUpperReadRefLvl: 50})
	}
	cfg.NumLevels = 0
	_, chip := newDev(t, cfg)
	var want []uint8
	want = append(want, emberreg.RegMisc)
	for i := uint8(0); i < emberreg.MaxLevels; i++ {
		want = append(want, i)
	}
	if diff := cmp.Diff(chip.WrittenRegs(), want); diff != "" {
		t.Errorf("num_levels=0 (-got +want):\n%s", diff)
	}
}

func TestOverlay(t *testing.T) {
	d, _ := newDev(t, testConfig())
	before := d.Settings().clone()
	restore := d.overlay(func(s *Settings) {
		s.Misc.DIInitMask = 1
		s.Levels[0].ADCUpperReadRefLvl = 60
	})
	if d.Settings().Levels[0].ADCUpperReadRefLvl != 60 {
		t.Fatal("overlay not applied")
	}
	restore()
	if diff := cmp.Diff(*d.Settings(), before); diff != "" {
		t.Errorf("restore (-got +want):\n%s", diff)
	}
	if d.Levels()[0].ADCUpperReadRefLvl != 9 {
		t.Error("overlay modified the live table")
	}
}

func TestOverlay_keepsCallerLevels(t *testing.T) {
	d, chip := newDev(t, testConfig())
	levels := d.Settings().Levels
	if _, err := d.SingleRead(1, RefUpperRead, 1, true); err != nil {
		t.Fatal(err)
	}
	if got := levels[0].ADCUpperReadRefLvl; got != 9 {
		t.Errorf("held level 0 upper read reference = %d, want 9", got)
	}
	levels[2].ADCClampRefLvl = 7
	n := len(chip.Writes)
	if err := d.Commit(); err != nil {
		t.Fatal(err)
	}
	want := []uint8{emberreg.RegMisc, emberreg.RegLevel, emberreg.RegLevel + 2}
	if diff := cmp.Diff(chip.WrittenRegs()[n:], want); diff != "" {
		t.Errorf("Commit() after edit through held Levels (-got +want):\n%s", diff)
	}
}

func TestSetAddr(t *testing.T) {
	d, chip := newDev(t, testConfig())
	if err := d.SetAddrRange(10, 65535, 3); err != nil {
		t.Fatal(err)
	}
	start, stop, step := emberreg.DecodeAddress(chip.Regs[emberreg.RegAddr].Uint64())
	if start != 10 || stop != 65535 || step != 3 || d.Addr() != 10 {
		t.Errorf("address = %d %d %d, Addr() = %d", start, stop, step, d.Addr())
	}
	chip.Writes = nil
	for _, bad := range []int{-1, 65536} {
		if err := d.SetAddr(bad); !errors.Is(err, ErrConfig) {
			t.Errorf("SetAddr(%d): expected ErrConfig, got %v", bad, err)
		}
	}
	if len(chip.Writes) != 0 || d.Addr() != 10 {
		t.Error("invalid address reached the bus")
	}
}

func TestWaitForIdle(t *testing.T) {
	d, chip := newDev(t, testConfig())
	chip.BusyPolls = 3
	chip.Reads = 0
	if err := d.Cycle(0, false); err != nil {
		t.Fatal(err)
	}
	// 3 STATE reads while busy, then RAM.
	if chip.Reads != 4 {
		t.Errorf("Reads = %d, want 4", chip.Reads)
	}
}

func TestWaitForIdle_timeout(t *testing.T) {
	chip := embertest.New()
	d, err := New(chip, testConfig(), &Opts{IdleTimeout: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	chip.BusyPolls = 1 << 30
	if err := d.Cycle(0, false); !errors.Is(err, ErrIdleTimeout) {
		t.Fatalf("expected ErrIdleTimeout, got %v", err)
	}
}

// plain hides the clock control methods of the simulator.
type plain struct {
	Transport
}

func TestClock(t *testing.T) {
	d, chip := newDev(t, testConfig())
	if err := d.FastMode(); err != nil || !chip.Fast {
		t.Errorf("FastMode() = %v, fast = %t", err, chip.Fast)
	}
	if err := d.SlowMode(); err != nil || chip.Fast {
		t.Errorf("SlowMode() = %v, fast = %t", err, chip.Fast)
	}
	if err := d.Halt(); err != nil || !chip.Paused {
		t.Errorf("Halt() = %v, paused = %t", err, chip.Paused)
	}
	if err := d.UnpauseMainClock(); err != nil || chip.Paused {
		t.Errorf("UnpauseMainClock() = %v, paused = %t", err, chip.Paused)
	}

	d, err := New(plain{embertest.New()}, testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.PauseMainClock(); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	if err := d.Halt(); err != nil {
		t.Errorf("Halt() = %v", err)
	}
}

func TestDiagnostics(t *testing.T) {
	d, chip := newDev(t, testConfig())
	chip.Diag = emberreg.Diagnostics{Successes: 1, Failures: 2, Reads: 3, Sets: 4, Resets: 5, Cycles: 1 << 33, ReadBits: 7, SetBits: 8, ResetBits: 9}
	got, err := d.Diagnostics()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got, chip.Diag); diff != "" {
		t.Errorf("Diagnostics() (-got +want):\n%s", diff)
	}
}

func TestParseConfig(t *testing.T) {
	const doc = `{
		"num_levels": 2,
		"di_init_mask": 281474976710655,
		"max_attempts": 300,
		"ignore_failures": 1,
		"set_first": 1,
		"spi_mode": "ftdi",
		"bitwidth": 16,
		"master_log_file": "logs/master.log",
		"level_settings": [
			{"adc_upper_read_ref_lvl": 10, "wl_dac_set_lvl_step": 1},
			{"adc_upper_read_ref_lvl": 20, "loop_order_rst": 7}
		]
	}`
	c, err := ParseConfig(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultConfig()
	want.NumLevels = 2
	want.DIInitMask = emberreg.LaneMask
	want.MaxAttempts = 300
	want.IgnoreFailures = 1
	want.SetFirst = 1
	want.SPIMode = "ftdi"
	want.Bitwidth = 16
	want.MasterLogFile = "logs/master.log"
	want.LevelSettings = []emberreg.Level{
		{ADCUpperReadRefLvl: 10, WLDACSetLvlStep: 1},
		{ADCUpperReadRefLvl: 20, LoopOrderRst: 7},
	}
	if diff := cmp.Diff(*c, want); diff != "" {
		t.Errorf("ParseConfig() (-got +want):\n%s", diff)
	}
}

func TestParseConfig_errors(t *testing.T) {
	data := []struct {
		name string
		doc  string
	}{
		{"syntax", `{"num_levels": }`},
		{"overflow", `{"num_levels": 1, "set_first": 2, "level_settings": [{}]}`},
		{"level overflow", `{"num_levels": 1, "level_settings": [{"adc_clamp_ref_lvl": 64}]}`},
		{"too few levels", `{"num_levels": 3, "level_settings": [{}, {}]}`},
		{"bitwidth", `{"num_levels": 1, "bitwidth": 49, "level_settings": [{}]}`},
	}
	for _, line := range data {
		if _, err := ParseConfig(strings.NewReader(line.doc)); !errors.Is(err, ErrConfig) {
			t.Errorf("%s: expected ErrConfig, got %v", line.name, err)
		}
	}
}

func TestLoadConfig_missing(t *testing.T) {
	if _, err := LoadConfig("does/not/exist.json"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSessionName(t *testing.T) {
	now := time.Unix(1700000000, 0)
	if got := sessionName("logs/master.log", now); got != "logs/master.1700000000.log" {
		t.Errorf("sessionName() = %q", got)
	}
	if got := sessionName("prog", now); got != "prog.1700000000.log" {
		t.Errorf("sessionName() = %q", got)
	}
}
