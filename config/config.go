// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config describes the run configuration of an SSP module.
package config // import "github.com/go-lpc/ssp/config"

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/ssp/conddb"
	"github.com/go-lpc/ssp/device"
	"github.com/go-lpc/ssp/millislice"
	"github.com/go-lpc/ssp/registry"
	"github.com/go-lpc/ssp/regmap"
	"sigs.k8s.io/yaml"
)

// Config is a run configuration.
type Config struct {
	Link      Link             `json:"link"`
	Slices    Slices           `json:"millislices"`
	Registers []regmap.Setting `json:"registers,omitempty"`

	CondDB *CondDB `json:"conddb,omitempty"` // register overrides from the condition database
	RunLog string  `json:"runlog,omitempty"` // path to the run catalog
}

// Link locates the module.
type Link struct {
	Kind  string `json:"kind"`            // usb, tcp or emu
	Index int    `json:"index,omitempty"` // USB unit or emulated module number
	Addr  string `json:"addr,omitempty"`  // module address for TCP links
}

// Slices holds the millislice windowing tunables.
type Slices struct {
	Length          uint64  `json:"length"`            // ticks
	Overlap         uint64  `json:"overlap"`           // ticks
	External        bool    `json:"external"`          // use the external timestamp
	ClockMHz        float64 `json:"clock_mhz"`         // hardware clock rate
	EmptyWriteDelay string  `json:"empty_write_delay"` // e.g. "1s"
	RunStart        *uint64 `json:"run_start,omitempty"`
}

// CondDB locates the register settings of a board in the condition database.
type CondDB struct {
	Host  string `json:"host"`
	Board int    `json:"board,omitempty"` // zero means the last registered board
}

// Default returns the default configuration, an emulated module with the
// default windowing.
func Default() Config {
	return Config{
		Link: Link{Kind: registry.Emulated.String()},
		Slices: Slices{
			Length:          millislice.DefaultLength,
			Overlap:         millislice.DefaultOverlap,
			ClockMHz:        millislice.DefaultClockMHz,
			EmptyWriteDelay: millislice.DefaultEmptyWriteDelay.String(),
		},
	}
}

// Load reads a YAML configuration file.
// Fields missing from the file keep their default value.
func Load(fname string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(fname)
	if err != nil {
		return cfg, fmt.Errorf("config: could not read %q: %w", fname, err)
	}
	err = yaml.Unmarshal(raw, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("config: could not decode %q: %w", fname, err)
	}
	err = cfg.Validate()
	if err != nil {
		return cfg, fmt.Errorf("config: invalid configuration %q: %w", fname, err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (cfg Config) Save(fname string) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: could not encode configuration: %w", err)
	}
	err = os.WriteFile(fname, raw, 0644)
	if err != nil {
		return fmt.Errorf("config: could not write %q: %w", fname, err)
	}
	return nil
}

// Validate checks the consistency of the configuration.
func (cfg Config) Validate() error {
	_, err := cfg.Locator()
	if err != nil {
		return err
	}
	_, err = cfg.emptyWriteDelay()
	if err != nil {
		return err
	}
	if cfg.Slices.Length == 0 {
		return fmt.Errorf("config: invalid zero millislice length")
	}
	if cfg.Slices.ClockMHz <= 0 {
		return fmt.Errorf("config: invalid clock rate %v MHz", cfg.Slices.ClockMHz)
	}
	regs := regmap.Default()
	for _, s := range cfg.Registers {
		_, err = regs.Lookup(s.Name)
		if err != nil {
			return err
		}
	}
	return nil
}

// Locator returns the location of the module.
func (cfg Config) Locator() (registry.Locator, error) {
	kind, err := registry.ParseKind(cfg.Link.Kind)
	if err != nil {
		return registry.Locator{}, err
	}
	loc := registry.Locator{
		Kind:  kind,
		Index: cfg.Link.Index,
		Addr:  cfg.Link.Addr,
	}
	if kind == registry.TCP && loc.Addr == "" {
		return loc, fmt.Errorf("config: missing address of TCP link")
	}
	return loc, nil
}

func (cfg Config) emptyWriteDelay() (time.Duration, error) {
	if cfg.Slices.EmptyWriteDelay == "" {
		return millislice.DefaultEmptyWriteDelay, nil
	}
	d, err := time.ParseDuration(cfg.Slices.EmptyWriteDelay)
	if err != nil {
		return 0, fmt.Errorf("config: invalid empty write delay: %w", err)
	}
	return d, nil
}

// Options returns the device options implementing the windowing tunables.
func (cfg Config) Options() ([]device.Option, error) {
	delay, err := cfg.emptyWriteDelay()
	if err != nil {
		return nil, err
	}
	opts := []device.Option{
		device.WithMillisliceLength(cfg.Slices.Length),
		device.WithMillisliceOverlap(cfg.Slices.Overlap),
		device.WithExternalTimestamp(cfg.Slices.External),
		device.WithClockRate(cfg.Slices.ClockMHz),
		device.WithEmptyWriteDelay(delay),
	}
	if cfg.Slices.RunStart != nil {
		opts = append(opts, device.WithRunStart(*cfg.Slices.RunStart))
	}
	return opts, nil
}

// Configure writes the default register set to a stopped device, then the
// settings of the condition database, if any, then the configured
// register overrides.
func (cfg Config) Configure(ctx context.Context, dev *device.Device, msg log.MsgStream) error {
	err := dev.Configure()
	if err != nil {
		return fmt.Errorf("config: could not configure device: %w", err)
	}

	if cfg.CondDB != nil {
		settings, err := cfg.CondDB.settings(ctx)
		if err != nil {
			return err
		}
		msg.Infof("applying %d register settings from condition database", len(settings))
		err = dev.Apply(settings...)
		if err != nil {
			return fmt.Errorf("config: could not apply condition database settings: %w", err)
		}
	}

	err = dev.Apply(cfg.Registers...)
	if err != nil {
		return fmt.Errorf("config: could not apply register settings: %w", err)
	}
	return nil
}

func (cdb CondDB) settings(ctx context.Context) ([]regmap.Setting, error) {
	db, err := openCondDB(cdb.Host, "ssp")
	if err != nil {
		return nil, fmt.Errorf("config: could not open condition database: %w", err)
	}
	defer db.Close()

	board := uint32(cdb.Board)
	if board == 0 {
		board, err = db.LastBoard(ctx)
		if err != nil {
			return nil, err
		}
	}
	return db.RegisterSettings(ctx, board)
}

var openCondDB = conddb.Open
