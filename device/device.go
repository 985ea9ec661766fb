// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package device drives an SSP module: run control, register access and
// the read loop turning the event stream into millislices.
package device // import "github.com/go-lpc/ssp/device"

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/ssp/ctrl"
	"github.com/go-lpc/ssp/event"
	"github.com/go-lpc/ssp/millislice"
	"github.com/go-lpc/ssp/queue"
	"github.com/go-lpc/ssp/registry"
	"github.com/go-lpc/ssp/regmap"
	"github.com/go-lpc/ssp/transport"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotStopped is returned when configuring a device that is not stopped.
	ErrNotStopped = errors.New("device: device not stopped")
	// ErrNotOpen is returned when accessing registers of an unopened device.
	ErrNotOpen = errors.New("device: device not open")
)

// State is the run state of a device.
type State uint8

const (
	Uninitialized State = iota
	Stopped
	Running
)

func (st State) String() string {
	switch st {
	case Uninitialized:
		return "uninitialized"
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	}
	return fmt.Sprintf("State(%d)", uint8(st))
}

// idlePoll is the sleep of the read loop when no event is available.
const idlePoll = time.Millisecond

// Device is an SSP module.
type Device struct {
	msg  log.MsgStream
	reg  *registry.Registry
	loc  registry.Locator
	regs *regmap.Map

	cfg  millislice.Config
	copt []ctrl.Option
	sopt []event.SyncOption
	pop  time.Duration

	state    State
	ctrlOnly bool
	link     transport.Transport
	cli      *ctrl.Client

	slices *queue.Queue
	stats  counters

	daq struct {
		cancel context.CancelFunc
		grp    *errgroup.Group

		mu  sync.Mutex
		err error
	}
}

// New creates a device for the module at loc, opened through reg.
func New(reg *registry.Registry, loc registry.Locator, opts ...Option) *Device {
	dev := &Device{
		msg:    log.NewMsgStream("ssp", log.LvlInfo, os.Stdout),
		reg:    reg,
		loc:    loc,
		regs:   regmap.Default(),
		cfg:    millislice.DefaultConfig(),
		pop:    queue.DefaultTimeout,
		slices: queue.New(),
	}
	for _, opt := range opts {
		opt(dev)
	}
	return dev
}

// State returns the run state of the device.
func (dev *Device) State() State { return dev.state }

// Locator returns the location of the module.
func (dev *Device) Locator() registry.Locator { return dev.loc }

// RegMap returns the register map of the device.
func (dev *Device) RegMap() *regmap.Map { return dev.regs }

func (dev *Device) open(ctrlOnly bool) error {
	if dev.link != nil {
		return fmt.Errorf("device: could not open %v: %w", dev.loc, registry.ErrAlreadyOpen)
	}
	link, err := dev.reg.Open(dev.loc, ctrlOnly)
	if err != nil {
		dev.msg.Errorf("unable to get handle to device %v: %+v", dev.loc, err)
		return err
	}
	dev.link = link
	dev.ctrlOnly = ctrlOnly
	dev.cli = ctrl.NewClient(link, append([]ctrl.Option{ctrl.WithMsgStream(dev.msg)}, dev.copt...)...)
	return nil
}

// OpenSlowControl opens the control channel of the device only.
// The device can then be configured but not started.
func (dev *Device) OpenSlowControl() error {
	dev.msg.Infof("opening %v device for slow control only...", dev.loc)
	err := dev.open(true)
	if err != nil {
		return err
	}
	dev.state = Stopped
	return nil
}

// Initialize opens the device and puts it in a stopped state.
func (dev *Device) Initialize() error {
	dev.msg.Infof("initializing %v device...", dev.loc)
	err := dev.open(false)
	if err != nil {
		return err
	}
	return dev.Stop()
}

// Start enables the acquisition logic and spawns the read loop.
// Start refuses to run a device that is not stopped or that was opened
// for slow control only. A zero millislice length is refused as well.
func (dev *Device) Start() error {
	if dev.state != Stopped {
		dev.msg.Warnf("attempt to start acquisition on %v device refused", dev.state)
		return nil
	}
	if dev.ctrlOnly {
		dev.msg.Errorf("attempt to start run on slow control interface refused")
		return nil
	}
	if dev.cfg.Length == 0 {
		dev.msg.Errorf("attempt to start run with a zero millislice length refused")
		return nil
	}

	dev.msg.Infof("device interface starting run")

	// order matters.
	for _, op := range []struct {
		name string
		f    func() error
	}{
		{"channel_pulsed_control", func() error { return dev.cli.Write(regmap.ChannelPulsedControl, 0x1) }},
		{"bias_control", func() error { return dev.cli.Write(regmap.BiasControl, 0x1) }},
		{"mon_control", func() error { return dev.cli.WriteMask(regmap.MonControl, 0x1, 0x1) }},
		{"event_data_control", func() error { return dev.cli.Write(regmap.EventDataCtl, 0x0) }},
		{"fifo_control", func() error { return dev.cli.Write(regmap.FIFOControl, 0x0) }},
		{"eventDataControl", func() error { return dev.cli.Write(regmap.EventDataControl, 0x0) }},
		{"master_logic_control", func() error { return dev.cli.Write(regmap.MasterLogicControl, 0x1) }},
	} {
		err := op.f()
		if err != nil {
			return fmt.Errorf("device: could not start run (%s): %w", op.name, err)
		}
	}

	if n := dev.slices.Reset(); n > 0 {
		dev.msg.Warnf("dropping %d millislices left over from previous run", n)
	}
	dev.setErr(nil)
	dev.stats.reset()

	var (
		rdr = event.NewSync(dev.link, append([]event.SyncOption{event.WithMsgStream(dev.msg)}, dev.sopt...)...)
		bld = millislice.NewBuilder(sink{dev}, dev.cfg, dev.msg)
	)

	ctx, cancel := context.WithCancel(context.Background())
	dev.daq.cancel = cancel
	dev.daq.grp, ctx = errgroup.WithContext(ctx)
	dev.daq.grp.Go(func() error {
		return dev.loop(ctx, rdr, bld)
	})

	dev.state = Running
	dev.msg.Infof("run started")
	return nil
}

func (dev *Device) loop(ctx context.Context, rdr *event.Sync, bld *millislice.Builder) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		rec, err := rdr.Next()
		dev.stats.skipped.Store(rdr.Skipped())
		if err != nil {
			err = fmt.Errorf("device: could not read event: %w", err)
			dev.msg.Errorf("%+v", err)
			dev.setErr(err)
			return err
		}

		if rec == nil {
			time.Sleep(idlePoll)
			bld.Idle(idlePoll)
			continue
		}

		err = bld.Add(rec)
		if err != nil {
			err = fmt.Errorf("device: %w: %v", event.ErrEventRead, err)
			dev.setErr(err)
			return err
		}
		dev.stats.events.Inc()
	}
}

// Stop stops the read loop and the acquisition logic, and flushes the
// data channel.
// Stop returns the error that ended the read loop, if any.
func (dev *Device) Stop() error {
	if dev.state != Running && dev.state != Uninitialized {
		dev.msg.Warnf("running stop command for non-running device")
	}
	if dev.link == nil {
		dev.msg.Errorf("attempt to stop unopened device refused")
		return nil
	}

	running := dev.state == Running
	if running {
		dev.msg.Infof("device interface stopping run")
	}

	var loopErr error
	if dev.daq.grp != nil {
		dev.daq.cancel()
		loopErr = dev.daq.grp.Wait()
		dev.daq.grp = nil
		dev.daq.cancel = nil
		dev.msg.Infof("read loop terminated")
	}

	for _, op := range []struct {
		name string
		f    func() error
	}{
		{"eventDataControl", func() error { return dev.cli.Write(regmap.EventDataControl, 0x0013001F) }},
		{"master_logic_control", func() error { return dev.cli.Clear(regmap.MasterLogicControl, 0x1) }},
		{"fifo_control", func() error { return dev.cli.Write(regmap.FIFOControl, 0x08000000) }},
		{"PurgeDDR", func() error { return dev.cli.Write(regmap.PurgeDDR, 0x1) }},
		{"event_data_control", func() error { return dev.cli.Write(regmap.EventDataCtl, 0x00020001) }},
	} {
		err := op.f()
		if err != nil {
			return fmt.Errorf("device: could not stop run (%s): %w", op.name, err)
		}
	}

	if !dev.ctrlOnly {
		err := dev.link.PurgeData()
		if err != nil {
			return fmt.Errorf("device: could not purge data channel: %w", err)
		}
	}
	dev.msg.Infof("hardware set to stopped state")
	dev.state = Stopped

	if running {
		dev.msg.Infof("device interface stop transition complete")
	}
	return loopErr
}

// Shutdown closes a stopped device.
func (dev *Device) Shutdown() error {
	if dev.state != Stopped {
		dev.msg.Warnf("attempt to shut down %v device refused", dev.state)
		return nil
	}
	err := dev.reg.Close(dev.link)
	dev.link = nil
	dev.cli = nil
	dev.ctrlOnly = false
	dev.state = Uninitialized
	if err != nil {
		return fmt.Errorf("device: could not shut down %v: %w", dev.loc, err)
	}
	return nil
}

// Millislice returns the next completed millislice, waiting at most for
// the pop timeout. It returns false when no slice became available.
func (dev *Device) Millislice() ([]uint32, bool) {
	return dev.slices.Pop(dev.pop)
}

// Err returns the error that ended the read loop, if any.
func (dev *Device) Err() error {
	dev.daq.mu.Lock()
	defer dev.daq.mu.Unlock()
	return dev.daq.err
}

func (dev *Device) setErr(err error) {
	dev.daq.mu.Lock()
	dev.daq.err = err
	dev.daq.mu.Unlock()
}

// sink hands completed millislices over to the queue.
type sink struct {
	dev *Device
}

func (s sink) Push(slice []uint32) {
	s.dev.stats.slices.Inc()
	if len(slice) > 1 && slice[1] == 0 {
		s.dev.stats.empty.Inc()
	}
	s.dev.slices.Push(slice)
}
