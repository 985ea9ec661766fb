// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-lpc/ssp/ctrl"
	"github.com/go-lpc/ssp/event"
	"github.com/go-lpc/ssp/regmap"
)

const (
	emuClock    = 150e6 // Hz
	emuPayload  = 100   // words
	emuChannels = regmap.NumChannels
)

// Emulator is an in-process SSP module.
//
// Control packets are answered from a register file. Writing 0x1 to
// master_logic_control starts an event generator; writing 0x00020001
// to event_data_control stops it. Generated events carry the module_id
// register value of the time the generator started.
type Emulator struct {
	cfg  config
	id   int
	mean time.Duration // mean time between two events
	seed int64

	open     bool
	ctrlOnly bool
	regs     map[uint32]uint32
	rsp      []byte // pending control responses

	mu   sync.Mutex
	data []uint32

	quit chan struct{}
	done chan struct{}
}

// EmulatorOption configures an Emulator.
type EmulatorOption func(*Emulator)

// WithEventInterval sets the mean time between two emulated events.
func WithEventInterval(mean time.Duration) EmulatorOption {
	return func(emu *Emulator) { emu.mean = mean }
}

// WithSeed sets the seed of the emulator random generator.
func WithSeed(seed int64) EmulatorOption {
	return func(emu *Emulator) { emu.seed = seed }
}

// WithLinkOptions configures the link side of the emulator.
func WithLinkOptions(opts ...Option) EmulatorOption {
	return func(emu *Emulator) { emu.cfg = newConfig(opts) }
}

// NewEmulator creates the emulated module number id.
func NewEmulator(id int, opts ...EmulatorOption) *Emulator {
	emu := &Emulator{
		cfg:  newConfig(nil),
		id:   id,
		mean: 100 * time.Millisecond,
		seed: int64(id),
	}
	for _, opt := range opts {
		opt(emu)
	}
	return emu
}

// ID returns the emulated module number.
func (emu *Emulator) ID() int { return emu.id }

func (emu *Emulator) Open(ctrlOnly bool) error {
	if emu.open {
		return fmt.Errorf("transport: emulated device %d already open", emu.id)
	}
	emu.open = true
	emu.ctrlOnly = ctrlOnly
	emu.regs = make(map[uint32]uint32)
	emu.rsp = nil
	emu.cfg.msg.Infof("emulated device %d open", emu.id)
	return nil
}

func (emu *Emulator) Close() error {
	if !emu.open {
		return nil
	}
	emu.stop()
	emu.mu.Lock()
	emu.data = nil
	emu.mu.Unlock()
	emu.open = false
	emu.cfg.msg.Infof("emulated device %d closed", emu.id)
	return nil
}

func (emu *Emulator) Send(p []byte) (int, error) {
	if !emu.open {
		return 0, ErrNotOpen
	}
	req, err := ctrl.Unmarshal(p)
	if err != nil {
		return 0, fmt.Errorf("transport: could not decode control request: %w", err)
	}

	rsp := emu.handle(req)
	raw, err := rsp.Marshal()
	if err != nil {
		return 0, fmt.Errorf("transport: could not encode control response: %w", err)
	}
	emu.rsp = append(emu.rsp, raw...)
	return len(p), nil
}

func (emu *Emulator) handle(req ctrl.Packet) ctrl.Packet {
	arg := func(i int) uint32 {
		if i < len(req.Data) {
			return req.Data[i]
		}
		return 0
	}

	switch req.Cmd {
	case ctrl.CmdRead:
		return ctrl.NewResponse(req, ctrl.StatusNoError, emu.regs[req.Addr])

	case ctrl.CmdReadMask:
		return ctrl.NewResponse(req, ctrl.StatusNoError, emu.regs[req.Addr]&arg(0))

	case ctrl.CmdWrite:
		emu.write(req.Addr, arg(0))
		return ctrl.NewResponse(req, ctrl.StatusNoError)

	case ctrl.CmdWriteMask:
		mask, v := arg(0), arg(1)
		emu.regs[req.Addr] = (emu.regs[req.Addr] &^ mask) | (v & mask)
		return ctrl.NewResponse(req, ctrl.StatusNoError, emu.regs[req.Addr])

	case ctrl.CmdArrayRead, ctrl.CmdFifoRead:
		data := make([]uint32, req.Size)
		for i := range data {
			data[i] = emu.regs[req.Addr+4*uint32(i)]
		}
		return ctrl.NewResponse(req, ctrl.StatusNoError, data...)

	case ctrl.CmdArrayWrite, ctrl.CmdFifoWrite, ctrl.CmdNVWrite, ctrl.CmdNVArrayWrite:
		for i, v := range req.Data {
			emu.regs[req.Addr+4*uint32(i)] = v
		}
		return ctrl.NewResponse(req, ctrl.StatusNoError)

	case ctrl.CmdNVEraseSector, ctrl.CmdNVEraseBlock, ctrl.CmdNVEraseChip:
		return ctrl.NewResponse(req, ctrl.StatusNoError)
	}

	return ctrl.NewResponse(req, ctrl.StatusCommand)
}

func (emu *Emulator) write(addr, v uint32) {
	emu.regs[addr] = v
	switch {
	case addr == regmap.MasterLogicControl && v == 0x00000001:
		emu.start()
	case addr == regmap.EventDataCtl && v == 0x00020001:
		emu.stop()
	}
}

func (emu *Emulator) Recv(p []byte) (int, error) {
	if !emu.open {
		return 0, ErrNotOpen
	}
	n := copy(p, emu.rsp)
	emu.rsp = emu.rsp[n:]
	return n, nil
}

func (emu *Emulator) PurgeControl() error {
	if !emu.open {
		return ErrNotOpen
	}
	emu.rsp = nil
	return nil
}

func (emu *Emulator) Pending() (int, error) {
	if err := emu.checkData(); err != nil {
		return 0, err
	}
	emu.mu.Lock()
	defer emu.mu.Unlock()
	return len(emu.data), nil
}

func (emu *Emulator) ReadData(max int) ([]uint32, error) {
	if err := emu.checkData(); err != nil {
		return nil, err
	}
	emu.mu.Lock()
	defer emu.mu.Unlock()
	if max > len(emu.data) {
		max = len(emu.data)
	}
	out := make([]uint32, max)
	copy(out, emu.data)
	emu.data = append(emu.data[:0], emu.data[max:]...)
	return out, nil
}

func (emu *Emulator) PurgeData() error {
	if err := emu.checkData(); err != nil {
		return err
	}
	emu.mu.Lock()
	emu.data = emu.data[:0]
	emu.mu.Unlock()
	return nil
}

func (emu *Emulator) checkData() error {
	switch {
	case !emu.open:
		return ErrNotOpen
	case emu.ctrlOnly:
		return ErrCtrlOnly
	}
	return nil
}

// Push queues raw words on the data channel.
func (emu *Emulator) Push(words ...uint32) {
	emu.mu.Lock()
	emu.data = append(emu.data, words...)
	emu.mu.Unlock()
}

func (emu *Emulator) start() {
	if emu.quit != nil {
		return
	}
	emu.cfg.msg.Debugf("creating emulator goroutine...")
	emu.quit = make(chan struct{})
	emu.done = make(chan struct{})
	go emu.loop(uint16(emu.regs[regmap.ModuleID]&0xFFF), emu.quit, emu.done)
}

func (emu *Emulator) stop() {
	if emu.quit == nil {
		return
	}
	close(emu.quit)
	<-emu.done
	emu.quit = nil
	emu.done = nil
}

func (emu *Emulator) loop(module uint16, quit, done chan struct{}) {
	defer close(done)

	var (
		rnd = rand.New(rand.NewSource(emu.seed))
		beg = time.Now()
	)

	for {
		wait := time.Duration(rnd.ExpFloat64() * float64(emu.mean))
		select {
		case <-quit:
			return
		case <-time.After(wait):
		}

		var (
			ts   = uint64(time.Since(beg).Seconds() * emuClock)
			ch   = uint32(rnd.Intn(emuChannels))
			hdr  event.Header
			data = make([]uint32, emuPayload)
		)
		hdr.Group2 = module<<4 | uint16(ch)
		hdr.SetTimestamp(ts)
		for i := range data {
			data[i] = uint32(i) + ch
		}
		rec := event.New(hdr, data)
		emu.Push(rec.AppendWords(nil)...)
	}
}

var (
	_ Transport = (*Emulator)(nil)
)
