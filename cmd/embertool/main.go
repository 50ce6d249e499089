// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// embertool drives an EMBER chip from the command line.
//
// Usage:
//
//	embertool [-config file] [-chip name] [-v] <command> [flags]
//
// Commands are read, write, cycle, energy, diag, setaddr, view and modes.
// "embertool <command> -h" lists the flags of a command.
//
// The "sim" spi_mode runs against a simulated chip kept for the lifetime of
// the process.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/GermanBionicSystems/rram/ember"
	"github.com/GermanBionicSystems/rram/ember/embertest"
	"github.com/retroenv/retrogolib/log"
	"periph.io/x/host/v3"
)

var sim = embertest.New()

func init() {
	err := ember.RegisterTransport("sim", func(*ember.Config) (ember.Transport, error) {
		sim.Closed = false
		return sim, nil
	})
	if err != nil {
		panic(err)
	}
}

// errUsage is returned when the command line is invalid. The usage has
// already been printed.
var errUsage = errors.New("invalid usage")

type env struct {
	config  string
	chip    string
	verbose bool
	out     io.Writer
	logger  *log.Logger
}

// createLogger returns the logger of the tool, at debug level when verbose.
var createLogger = func(verbose bool) *log.Logger {
	cfg := log.DefaultConfig()
	if verbose {
		cfg.Level = log.DebugLevel
	}
	return log.NewWithConfig(cfg)
}

// debugf returns a DebugF logging to l at debug level.
func debugf(l *log.Logger) ember.DebugF {
	return func(format string, args ...interface{}) {
		l.Debug(fmt.Sprintf(format, args...))
	}
}

type command struct {
	help string
	run  func(e *env, args []string) error
}

var commands = map[string]command{
	"read":    {"read a range of addresses", cmdRead},
	"write":   {"program one address", cmdWrite},
	"cycle":   {"apply SET/RESET cycles", cmdCycle},
	"energy":  {"start the read energy loop", cmdEnergy},
	"diag":    {"print the hardware counters", cmdDiag},
	"setaddr": {"set the address register", cmdSetAddr},
	"view":    {"render a read-out file", cmdView},
	"modes":   {"list the transports", cmdModes},
}

func run(args []string, out io.Writer) error {
	e := &env{out: out}
	fs := flag.NewFlagSet("embertool", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&e.config, "config", "settings/config.json", "configuration file")
	fs.StringVar(&e.chip, "chip", ember.DefaultOpts.Chip, "chip name used in the logs")
	fs.BoolVar(&e.verbose, "v", false, "trace driver activity and register traffic")
	fs.Usage = func() {
		fmt.Fprintf(out, "usage: embertool [flags] <command> [command flags]\n\nflags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(out, "\ncommands:\n")
		names := make([]string, 0, len(commands))
		for n := range commands {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintf(out, "  %-8s %s\n", n, commands[n].help)
		}
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}
	c, ok := commands[fs.Arg(0)]
	if !ok {
		fs.Usage()
		return fmt.Errorf("%w: unknown command %q", errUsage, fs.Arg(0))
	}
	e.logger = createLogger(e.verbose)
	return c.run(e, fs.Args()[1:])
}

// open opens the chip described by the configuration file.
func (e *env) open() (*ember.Dev, error) {
	cfg, err := ember.LoadConfig(e.config)
	if err != nil {
		return nil, err
	}
	if cfg.SPIMode != "sim" {
		if _, err := host.Init(); err != nil {
			return nil, err
		}
	}
	d, err := ember.Open(cfg, &ember.Opts{Chip: e.chip})
	if err != nil {
		return nil, err
	}
	if e.verbose {
		d.EnableDebug(debugf(e.logger))
	}
	return d, nil
}

// flags returns a flag set for the named command, printing its usage to
// e.out.
func (e *env) flags(name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.out)
	fs.Usage = func() {
		fmt.Fprintf(e.out, "usage: embertool %s [flags] %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	return nil
}

func mainImpl() error {
	err := run(os.Args[1:], os.Stdout)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

func main() {
	if err := mainImpl(); err != nil {
		if err != errUsage {
			createLogger(false).Error("embertool failed", log.Err(err))
		}
		os.Exit(1)
	}
}
