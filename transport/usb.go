// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/ziutek/ftdi"
)

const (
	// VendorID is the USB vendor ID of the FTDI chip of SSP modules.
	VendorID = 0x0403
	// ProductID is the USB product ID of the FT2232H chip of SSP modules.
	ProductID = 0x6010

	ctrlBaudrate = 921600
	ctrlLatency  = 2 // ms
	dataLatency  = 2 // ms
	dataChunk    = 0x10000
)

// ErrNoSuchSerial is returned when no FTDI unit matches a serial number.
var ErrNoSuchSerial = errors.New("transport: no FTDI unit with that serial number")

type ftdiDevice interface {
	Reset() error

	SetBaudrate(br int) error
	SetLineProperties(bits ftdi.DataBits, stops ftdi.StopBits, parity ftdi.Parity) error
	SetFlowControl(flowctrl ftdi.FlowCtrl) error
	SetLatencyTimer(lt int) error
	SetWriteChunkSize(cs int) error
	SetReadChunkSize(cs int) error
	PurgeBuffers() error

	io.Writer
	io.Reader
	io.Closer
}

var (
	ftdiOpen = ftdiOpenImpl
)

func ftdiOpenImpl(vid, pid uint16, serial string, ch ftdi.Channel) (ftdiDevice, error) {
	devs, err := ftdi.FindAll(int(vid), int(pid))
	if err != nil {
		return nil, fmt.Errorf("could not list FTDI units: %w", err)
	}
	defer func() {
		for _, dev := range devs {
			dev.Close()
		}
	}()

	for _, dev := range devs {
		if dev.Serial != serial {
			continue
		}
		return ftdi.OpenUSBDev(dev, ch)
	}
	return nil, fmt.Errorf("could not find FTDI unit %q: %w", serial, ErrNoSuchSerial)
}

// ftdiChannel buffers what the FTDI chip hands out, so the queue length
// can be known without a blocking read.
type ftdiChannel struct {
	ft  ftdiDevice
	buf []byte
	tmp []byte
}

func newFTDIChannel(ft ftdiDevice) *ftdiChannel {
	return &ftdiChannel{ft: ft, tmp: make([]byte, dataChunk)}
}

func (ch *ftdiChannel) fill() error {
	n, err := ch.ft.Read(ch.tmp)
	if n > 0 {
		ch.buf = append(ch.buf, ch.tmp[:n]...)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (ch *ftdiChannel) queued() (int, error) {
	err := ch.fill()
	return len(ch.buf), err
}

func (ch *ftdiChannel) read(p []byte) (int, error) {
	if len(ch.buf) == 0 {
		err := ch.fill()
		if err != nil {
			return 0, err
		}
	}
	n := copy(p, ch.buf)
	ch.buf = append(ch.buf[:0], ch.buf[n:]...)
	return n, nil
}

// USB is a link to an SSP module over its FT2232H chip.
//
// Channel B carries the control packets, channel A the event stream.
type USB struct {
	cfg    config
	vid    uint16
	pid    uint16
	serial string

	ctrlOnly bool
	ctrl     *ftdiChannel
	data     *ftdiChannel
	words    words
}

// NewUSB creates a USB link to the SSP module with the provided serial number.
func NewUSB(serial string, opts ...Option) *USB {
	return &USB{
		cfg:    newConfig(opts),
		vid:    VendorID,
		pid:    ProductID,
		serial: serial,
	}
}

// Serial returns the serial number of the FTDI unit.
func (usb *USB) Serial() string { return usb.serial }

func (usb *USB) Open(ctrlOnly bool) error {
	if usb.ctrl != nil {
		return fmt.Errorf("transport: USB unit %q already open", usb.serial)
	}
	usb.ctrlOnly = ctrlOnly

	ctrl, err := ftdiOpen(usb.vid, usb.pid, usb.serial, ftdi.ChannelB)
	if err != nil {
		return fmt.Errorf("transport: could not open USB control channel of %q: %w", usb.serial, err)
	}
	err = usb.initCtrl(ctrl)
	if err != nil {
		ctrl.Close()
		return fmt.Errorf("transport: could not configure USB control channel of %q: %w", usb.serial, err)
	}
	usb.ctrl = newFTDIChannel(ctrl)
	usb.cfg.msg.Infof("opened control path of %q", usb.serial)

	if ctrlOnly {
		return nil
	}

	data, err := ftdiOpen(usb.vid, usb.pid, usb.serial, ftdi.ChannelA)
	if err != nil {
		ctrl.Close()
		usb.ctrl = nil
		return fmt.Errorf("transport: could not open USB data channel of %q: %w", usb.serial, err)
	}
	err = usb.initData(data)
	if err != nil {
		data.Close()
		ctrl.Close()
		usb.ctrl = nil
		return fmt.Errorf("transport: could not configure USB data channel of %q: %w", usb.serial, err)
	}
	usb.data = newFTDIChannel(data)
	usb.words = words{ch: usb.data}
	usb.cfg.msg.Infof("opened data path of %q", usb.serial)

	return nil
}

func (usb *USB) initCtrl(ft ftdiDevice) error {
	var err error

	err = ft.Reset()
	if err != nil {
		return fmt.Errorf("could not reset USB: %w", err)
	}

	err = ft.SetBaudrate(ctrlBaudrate)
	if err != nil {
		return fmt.Errorf("could not set baudrate to %d: %w", ctrlBaudrate, err)
	}

	err = ft.SetLineProperties(ftdi.DataBits8, ftdi.StopBits1, ftdi.ParityNone)
	if err != nil {
		return fmt.Errorf("could not set line properties to 8N1: %w", err)
	}

	err = ft.SetFlowControl(ftdi.FlowCtrlDisable)
	if err != nil {
		return fmt.Errorf("could not disable flow control: %w", err)
	}

	err = ft.SetLatencyTimer(ctrlLatency)
	if err != nil {
		return fmt.Errorf("could not set latency timer to %d: %w", ctrlLatency, err)
	}

	err = ft.PurgeBuffers()
	if err != nil {
		return fmt.Errorf("could not purge USB buffers: %w", err)
	}

	return nil
}

func (usb *USB) initData(ft ftdiDevice) error {
	var err error

	err = ft.SetLatencyTimer(dataLatency)
	if err != nil {
		return fmt.Errorf("could not set latency timer to %d: %w", dataLatency, err)
	}

	err = ft.SetReadChunkSize(dataChunk)
	if err != nil {
		return fmt.Errorf("could not set read chunk-size to 0x%x: %w", dataChunk, err)
	}

	err = ft.SetWriteChunkSize(dataChunk)
	if err != nil {
		return fmt.Errorf("could not set write chunk-size to 0x%x: %w", dataChunk, err)
	}

	err = ft.SetFlowControl(ftdi.FlowCtrlRTSCTS)
	if err != nil {
		return fmt.Errorf("could not enable RTS/CTS flow control: %w", err)
	}

	return nil
}

// Close purges and closes both channels.
func (usb *USB) Close() error {
	if usb.ctrl == nil {
		return nil
	}

	var errs []error
	if usb.data != nil {
		if err := usb.PurgeData(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := usb.PurgeControl(); err != nil {
		errs = append(errs, err)
	}
	if err := usb.ctrl.ft.Close(); err != nil {
		errs = append(errs, fmt.Errorf("transport: could not close USB control channel: %w", err))
	}
	if usb.data != nil {
		if err := usb.data.ft.Close(); err != nil {
			errs = append(errs, fmt.Errorf("transport: could not close USB data channel: %w", err))
		}
	}
	usb.ctrl = nil
	usb.data = nil
	usb.cfg.msg.Infof("closed %q", usb.serial)

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (usb *USB) Send(p []byte) (int, error) {
	if usb.ctrl == nil {
		return 0, ErrNotOpen
	}
	return usb.ctrl.ft.Write(p)
}

func (usb *USB) Recv(p []byte) (int, error) {
	if usb.ctrl == nil {
		return 0, ErrNotOpen
	}
	return usb.ctrl.read(p)
}

func (usb *USB) PurgeControl() error {
	if usb.ctrl == nil {
		return ErrNotOpen
	}
	return purge(usb.ctrl)
}

func (usb *USB) Pending() (int, error) {
	if err := usb.checkData(); err != nil {
		return 0, err
	}
	return usb.words.pending()
}

func (usb *USB) ReadData(max int) ([]uint32, error) {
	if err := usb.checkData(); err != nil {
		return nil, err
	}
	return usb.words.readWords(max)
}

func (usb *USB) PurgeData() error {
	if err := usb.checkData(); err != nil {
		return err
	}
	return usb.words.purge()
}

func (usb *USB) checkData() error {
	switch {
	case usb.ctrl == nil:
		return ErrNotOpen
	case usb.ctrlOnly || usb.data == nil:
		return ErrCtrlOnly
	}
	return nil
}

var (
	_ Transport = (*USB)(nil)
)
