// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ssp-tdaq starts a TDAQ server driving an SSP module.
//
// The millislices are published on the "/slices" output, as
// little-endian 32b words.
//
// Example:
//
//	$> ssp-tdaq -id ssp-01 -lvl dbg -rc-addr :44000 ./run.yaml
package main // import "github.com/go-lpc/ssp/cmd/ssp-tdaq"

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/ssp/config"
	"github.com/go-lpc/ssp/device"
	"github.com/go-lpc/ssp/millislice"
	"github.com/go-lpc/ssp/registry"
)

func main() {
	cmd := flags.New()

	fname := ""
	if len(cmd.Args) > 0 {
		fname = cmd.Args[0]
	}
	dev := newServer(fname, registry.New())

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/slices", dev.slices)

	srv.RunHandle(dev.run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

const idle = 100 * time.Millisecond

type server struct {
	fname string
	reg   *registry.Registry

	mu  sync.Mutex
	cfg config.Config
	dev *device.Device

	data chan []byte
}

func newServer(fname string, reg *registry.Registry) *server {
	return &server{
		fname: fname,
		reg:   reg,
		data:  make(chan []byte, 1024),
	}
}

func (srv *server) device() *device.Device {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.dev
}

// OnConfig loads the run configuration and creates the device.
func (srv *server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.dev != nil && srv.dev.State() != device.Uninitialized {
		ctx.Msg.Errorf("could not reconfigure %v device", srv.dev.State())
		return fmt.Errorf("could not reconfigure %v device", srv.dev.State())
	}

	cfg := config.Default()
	if srv.fname != "" {
		var err error
		cfg, err = config.Load(srv.fname)
		if err != nil {
			ctx.Msg.Errorf("could not load configuration: %+v", err)
			return fmt.Errorf("could not load configuration: %w", err)
		}
	}

	loc, err := cfg.Locator()
	if err != nil {
		return fmt.Errorf("invalid module location: %w", err)
	}
	opts, err := cfg.Options()
	if err != nil {
		return fmt.Errorf("invalid windowing configuration: %w", err)
	}
	opts = append(opts, device.WithMsgStream(ctx.Msg))

	srv.cfg = cfg
	srv.dev = device.New(srv.reg, loc, opts...)
	return nil
}

// OnInit opens the module and writes its register set.
func (srv *server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.dev == nil {
		return fmt.Errorf("could not initialize unconfigured device")
	}
	if srv.dev.State() == device.Uninitialized {
		err := srv.dev.Initialize()
		if err != nil {
			ctx.Msg.Errorf("could not initialize device %v: %+v", srv.dev.Locator(), err)
			return fmt.Errorf("could not initialize device %v: %w", srv.dev.Locator(), err)
		}
	}

	err := srv.cfg.Configure(ctx.Ctx, srv.dev, ctx.Msg)
	if err != nil {
		ctx.Msg.Errorf("could not configure device %v: %+v", srv.dev.Locator(), err)
		return fmt.Errorf("could not configure device %v: %w", srv.dev.Locator(), err)
	}
	return nil
}

// OnReset stops the acquisition, if any, and closes the module.
func (srv *server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	srv.mu.Lock()
	defer srv.mu.Unlock()

	err := srv.close(ctx)
	srv.dev = nil
	srv.drain()
	return err
}

func (srv *server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.dev == nil || srv.dev.State() != device.Stopped {
		return fmt.Errorf("could not start acquisition: device not initialized")
	}
	srv.drain()
	err := srv.dev.Start()
	if err != nil {
		return fmt.Errorf("could not start acquisition: %w", err)
	}
	return nil
}

func (srv *server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.dev == nil {
		ctx.Msg.Debugf("received /stop command... (no device)")
		return nil
	}
	err := srv.dev.Stop()
	ctx.Msg.Debugf("received /stop command... -> %v", srv.dev.Stats())
	if err != nil {
		return fmt.Errorf("acquisition ended with an error: %w", err)
	}
	return nil
}

func (srv *server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	srv.mu.Lock()
	defer srv.mu.Unlock()

	return srv.close(ctx)
}

// close stops and shuts down the device.
func (srv *server) close(ctx tdaq.Context) error {
	if srv.dev == nil {
		return nil
	}
	var err error
	if srv.dev.State() == device.Running {
		err = srv.dev.Stop()
		if err != nil {
			ctx.Msg.Warnf("acquisition ended with an error: %+v", err)
		}
	}
	if srv.dev.State() == device.Stopped {
		e := srv.dev.Shutdown()
		if e != nil && err == nil {
			err = e
		}
	}
	return err
}

func (srv *server) drain() {
	for {
		select {
		case <-srv.data:
		default:
			return
		}
	}
}

func (srv *server) slices(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-srv.data:
		dst.Body = data
	}
	return nil
}

// run moves the millislices of the device to the output.
func (srv *server) run(ctx tdaq.Context) error {
	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		default:
		}

		dev := srv.device()
		if dev == nil {
			select {
			case <-ctx.Ctx.Done():
				return nil
			case <-time.After(idle):
			}
			continue
		}
		slice, ok := dev.Millislice()
		if !ok {
			continue
		}

		buf := new(bytes.Buffer)
		err := millislice.NewWriter(buf).Write(slice)
		if err != nil {
			ctx.Msg.Errorf("could not encode millislice: %+v", err)
			return err
		}
		select {
		case <-ctx.Ctx.Done():
			return nil
		case srv.data <- buf.Bytes():
		}
	}
}
