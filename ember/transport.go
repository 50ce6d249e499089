// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ember

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/GermanBionicSystems/rram/ember/emberreg"
	"github.com/holiman/uint256"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3/ftdi"
)

// DebugF the debug function type.
type DebugF func(string, ...interface{})

// Transport moves register values to and from the chip.
//
// Errors returned by a Transport are fatal to the operation in progress. They
// are never retried.
type Transport interface {
	ReadRegister(reg uint8) (uint256.Int, error)
	WriteRegister(reg uint8, v *uint256.Int) error
	// Busy reports whether the FSM is executing a command.
	Busy() (bool, error)
	Close() error
}

// ClockControl is implemented by transports wired to the main clock pause and
// clock select lines.
type ClockControl interface {
	// PauseMainClock stops (true) or restarts (false) the main clock.
	PauseMainClock(pause bool) error
	// FastClock selects the fast (true) or slow (false) clock.
	FastClock(fast bool) error
}

// SPI is a Transport over a periph SPI connection with a BUSY input and
// optional clock control outputs.
type SPI struct {
	c      conn.Conn
	busy   gpio.PinIn
	pause  gpio.PinOut
	clkSel gpio.PinOut
	align  emberreg.Alignment
	closer io.Closer
	debug  DebugF
}

// NewSPI returns a transport using c. busy is required. pause and clkSel may
// be nil, in which case the matching ClockControl method returns
// ErrUnsupported.
//
// align selects where read responses land in the received bytes; it depends
// on the SPI master.
func NewSPI(c conn.Conn, busy gpio.PinIn, pause, clkSel gpio.PinOut, align emberreg.Alignment) (*SPI, error) {
	if c == nil {
		return nil, errors.New("ember: nil SPI connection")
	}
	if busy == nil {
		return nil, errors.New("ember: BUSY pin is required")
	}
	if err := busy.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("ember: can't configure BUSY pin: %w", err)
	}
	return &SPI{c: c, busy: busy, pause: pause, clkSel: clkSel, align: align, debug: noop}, nil
}

// EnableDebug sets the function used to trace register traffic.
func (s *SPI) EnableDebug(f DebugF) {
	s.debug = f
}

func (s *SPI) String() string {
	return fmt.Sprintf("ember.SPI{%s}", s.c)
}

// ReadRegister implements Transport.
func (s *SPI) ReadRegister(reg uint8) (uint256.Int, error) {
	w, err := emberreg.ReadFrame(reg)
	if err != nil {
		return uint256.Int{}, err
	}
	r := make([]byte, len(w))
	if err := s.c.Tx(w, r); err != nil {
		return uint256.Int{}, fmt.Errorf("ember: read register %d: %w", reg, err)
	}
	v, err := s.align.Decode(r)
	if err != nil {
		return v, err
	}
	s.debug("read %s from reg %d", v.Hex(), reg)
	return v, nil
}

// WriteRegister implements Transport.
func (s *SPI) WriteRegister(reg uint8, v *uint256.Int) error {
	w, err := emberreg.WriteFrame(reg, v)
	if err != nil {
		return err
	}
	s.debug("write %s to reg %d", v.Hex(), reg)
	if err := s.c.Tx(w, nil); err != nil {
		return fmt.Errorf("ember: write register %d: %w", reg, err)
	}
	return nil
}

// Busy implements Transport.
func (s *SPI) Busy() (bool, error) {
	return s.busy.Read() == gpio.High, nil
}

// PauseMainClock implements ClockControl.
func (s *SPI) PauseMainClock(pause bool) error {
	if s.pause == nil {
		return ErrUnsupported
	}
	return s.pause.Out(gpio.Level(pause))
}

// FastClock implements ClockControl.
func (s *SPI) FastClock(fast bool) error {
	if s.clkSel == nil {
		return ErrUnsupported
	}
	return s.clkSel.Out(gpio.Level(fast))
}

// Close releases the SPI port if the transport opened it.
func (s *SPI) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

// OpenSpidev opens the transport on a Linux spidev port, using the pins named
// in cfg.
func OpenSpidev(cfg *Config) (*SPI, error) {
	busy := gpioreg.ByName(cfg.BusyPin)
	if busy == nil {
		return nil, fmt.Errorf("%w: unknown busy_pin %q", ErrConfig, cfg.BusyPin)
	}
	pause, err := optionalPin("mclk_pause_pin", cfg.MCLKPausePin)
	if err != nil {
		return nil, err
	}
	clkSel, err := optionalPin("clksel_pin", cfg.ClkSelPin)
	if err != nil {
		return nil, err
	}
	p, err := spireg.Open(cfg.SPIDevice)
	if err != nil {
		return nil, fmt.Errorf("ember: can't open SPI %q: %w", cfg.SPIDevice, err)
	}
	c, err := p.Connect(physic.Frequency(cfg.SPIFreq)*physic.Hertz, spi.Mode1, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("ember: can't initialize SPI: %w", err)
	}
	s, err := NewSPI(c, busy, pause, clkSel, emberreg.AlignSpidev)
	if err != nil {
		p.Close()
		return nil, err
	}
	s.closer = p
	return s, nil
}

func optionalPin(key, name string) (gpio.PinOut, error) {
	if name == "" {
		return nil, nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: unknown %s %q", ErrConfig, key, name)
	}
	return p, nil
}

// OpenFTDI opens the transport on the first FT232H found. The MPSSE port
// drives SPI on D0-D3, D4 pauses the main clock, D5 is BUSY and D6 selects the
// clock.
func OpenFTDI(cfg *Config) (*SPI, error) {
	var dev *ftdi.FT232H
	for _, d := range ftdi.All() {
		if f, ok := d.(*ftdi.FT232H); ok {
			dev = f
			break
		}
	}
	if dev == nil {
		return nil, errors.New("ember: no FT232H found")
	}
	p, err := dev.SPI()
	if err != nil {
		return nil, fmt.Errorf("ember: can't open FTDI SPI: %w", err)
	}
	c, err := p.Connect(physic.Frequency(cfg.SPIFreq)*physic.Hertz, spi.Mode1, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("ember: can't initialize FTDI SPI: %w", err)
	}
	s, err := NewSPI(c, dev.D5, dev.D4, dev.D6, emberreg.AlignFTDI)
	if err != nil {
		p.Close()
		return nil, err
	}
	s.closer = p
	return s, nil
}

// Opener opens a Transport described by a configuration.
type Opener func(cfg *Config) (Transport, error)

var (
	mu      sync.Mutex
	openers = map[string]Opener{
		"spidev": func(cfg *Config) (Transport, error) { return OpenSpidev(cfg) },
		"ftdi":   func(cfg *Config) (Transport, error) { return OpenFTDI(cfg) },
	}
)

// RegisterTransport makes an Opener available under the spi_mode name.
func RegisterTransport(mode string, o Opener) error {
	if mode == "" || o == nil {
		return errors.New("ember: invalid transport registration")
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := openers[mode]; ok {
		return fmt.Errorf("ember: transport %q already registered", mode)
	}
	openers[mode] = o
	return nil
}

// TransportModes returns the registered spi_mode names.
func TransportModes() []string {
	mu.Lock()
	defer mu.Unlock()
	out := make([]string, 0, len(openers))
	for m := range openers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// OpenTransport opens the transport selected by cfg.SPIMode.
func OpenTransport(cfg *Config) (Transport, error) {
	mu.Lock()
	o := openers[cfg.SPIMode]
	mu.Unlock()
	if o == nil {
		return nil, fmt.Errorf("%w: invalid SPI backend driver %q", ErrConfig, cfg.SPIMode)
	}
	return o(cfg)
}

func noop(string, ...interface{}) {}

var (
	_ Transport    = &SPI{}
	_ ClockControl = &SPI{}
)
