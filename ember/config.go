// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ember

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/GermanBionicSystems/rram/ember/emberreg"
)

// Config is the declarative description of a chip setup. It is read from the
// same JSON documents the bench uses: every misc setting at the top level,
// one object per level in level_settings, plus transport selection and log
// paths.
type Config struct {
	emberreg.Misc
	LevelSettings []emberreg.Level `json:"level_settings"`

	// SPIMode selects the transport registered under that name: "spidev" or
	// "ftdi", or any name added with RegisterTransport.
	SPIMode string `json:"spi_mode"`
	// SPIFreq is the SPI clock in Hz.
	SPIFreq int64 `json:"spi_freq"`
	// Bitwidth is the number of lanes returned by Read and Superread. 0
	// returns all of them.
	Bitwidth int `json:"bitwidth"`

	MasterLogFile string `json:"master_log_file"`
	ProgLogFile   string `json:"prog_log_file"`

	// spidev only.
	SPIDevice    string `json:"spi_device"`
	BusyPin      string `json:"busy_pin"`
	MCLKPausePin string `json:"mclk_pause_pin"`
	ClkSelPin    string `json:"clksel_pin"`
}

// DefaultConfig returns the values used for keys absent from a configuration
// document.
func DefaultConfig() Config {
	return Config{
		SPIMode:      "spidev",
		SPIFreq:      1000000,
		Bitwidth:     emberreg.Lanes,
		BusyPin:      "GPIO7",
		MCLKPausePin: "GPIO25",
	}
}

// LoadConfig reads and validates the configuration file at path.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ember: %w", err)
	}
	defer f.Close()
	c, err := ParseConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ParseConfig decodes and validates a JSON configuration.
func ParseConfig(r io.Reader) (*Config, error) {
	c := DefaultConfig()
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every setting fits its register field and that enough
// level settings are supplied for num_levels.
func (c *Config) Validate() error {
	if _, err := emberreg.EncodeMisc(&c.Misc); err != nil {
		return configErr(err)
	}
	if n := c.Levels(); len(c.LevelSettings) < n {
		return fmt.Errorf("%w: num_levels is %d but only %d level_settings", ErrConfig, n, len(c.LevelSettings))
	}
	if len(c.LevelSettings) > emberreg.MaxLevels {
		return fmt.Errorf("%w: %d level_settings, at most %d", ErrConfig, len(c.LevelSettings), emberreg.MaxLevels)
	}
	for i := range c.LevelSettings {
		if _, err := emberreg.EncodeLevel(&c.LevelSettings[i]); err != nil {
			return fmt.Errorf("%w: level %d: %w", ErrConfig, i, err)
		}
	}
	if c.Bitwidth < 0 || c.Bitwidth > emberreg.Lanes {
		return fmt.Errorf("%w: bitwidth %d out of [0, %d]", ErrConfig, c.Bitwidth, emberreg.Lanes)
	}
	if c.SPIFreq < 0 {
		return fmt.Errorf("%w: negative spi_freq", ErrConfig)
	}
	return nil
}
