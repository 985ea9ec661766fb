// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/ssp/ctrl"
	"github.com/go-lpc/ssp/event"
	"github.com/go-lpc/ssp/regmap"
)

// Option configures a Device.
type Option func(*Device)

// WithMsgStream sets the logger of the device.
func WithMsgStream(msg log.MsgStream) Option {
	return func(dev *Device) { dev.msg = msg }
}

// WithRegMap sets the register map used for by-name register access.
func WithRegMap(regs *regmap.Map) Option {
	return func(dev *Device) { dev.regs = regs }
}

// WithCtrlOptions configures the control protocol client.
func WithCtrlOptions(opts ...ctrl.Option) Option {
	return func(dev *Device) { dev.copt = opts }
}

// WithSyncOptions configures the event synchronizer.
func WithSyncOptions(opts ...event.SyncOption) Option {
	return func(dev *Device) { dev.sopt = opts }
}

// WithPopTimeout sets the maximum wait of Millislice.
func WithPopTimeout(timeout time.Duration) Option {
	return func(dev *Device) { dev.pop = timeout }
}

// WithMillisliceLength sets the length of the millislices, in ticks.
func WithMillisliceLength(n uint64) Option {
	return func(dev *Device) { dev.cfg.Length = n }
}

// WithMillisliceOverlap sets the overlap between consecutive millislices, in ticks.
func WithMillisliceOverlap(n uint64) Option {
	return func(dev *Device) { dev.cfg.Overlap = n }
}

// WithExternalTimestamp selects the external timestamp for windowing.
func WithExternalTimestamp(v bool) Option {
	return func(dev *Device) { dev.cfg.External = v }
}

// WithClockRate sets the hardware clock rate in MHz.
func WithClockRate(mhz float64) Option {
	return func(dev *Device) { dev.cfg.ClockMHz = mhz }
}

// WithEmptyWriteDelay sets the silence after which millislices are
// emitted even without events.
func WithEmptyWriteDelay(d time.Duration) Option {
	return func(dev *Device) { dev.cfg.EmptyWriteDelay = d }
}

// WithRunStart sets the tick at which the run starts.
// Events older than the run start are discarded.
func WithRunStart(ts uint64) Option {
	return func(dev *Device) {
		dev.cfg.RunStart = ts
		dev.cfg.HasRunStart = true
	}
}

// SetMillisliceLength sets the length of the millislices of the next run.
func (dev *Device) SetMillisliceLength(n uint64) { WithMillisliceLength(n)(dev) }

// SetMillisliceOverlap sets the overlap of the millislices of the next run.
func (dev *Device) SetMillisliceOverlap(n uint64) { WithMillisliceOverlap(n)(dev) }

// SetUseExternalTimestamp selects the timestamp used by the next run.
func (dev *Device) SetUseExternalTimestamp(v bool) { WithExternalTimestamp(v)(dev) }

// SetHardwareClockRateInMHz sets the hardware clock rate.
func (dev *Device) SetHardwareClockRateInMHz(mhz float64) { WithClockRate(mhz)(dev) }

// SetEmptyWriteDelay sets the silence after which empty millislices are emitted.
func (dev *Device) SetEmptyWriteDelay(d time.Duration) { WithEmptyWriteDelay(d)(dev) }

// SetRunStart sets the tick at which the next run starts.
func (dev *Device) SetRunStart(ts uint64) { WithRunStart(ts)(dev) }
