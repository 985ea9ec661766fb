// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/ssp/ctrl"
	"github.com/go-lpc/ssp/event"
	"github.com/go-lpc/ssp/regmap"
	"github.com/ziutek/ftdi"
)

func discard() Option {
	return WithMsgStream(log.NewMsgStream("test", log.LvlError, io.Discard))
}

// memChannel is a byte channel whose content refills once.
type memChannel struct {
	buf    []byte
	refill []byte
	reads  int
}

func (ch *memChannel) queued() (int, error) {
	if len(ch.buf) == 0 && ch.refill != nil {
		ch.buf, ch.refill = ch.refill, nil
		return 0, nil
	}
	return len(ch.buf), nil
}

func (ch *memChannel) read(p []byte) (int, error) {
	ch.reads++
	n := copy(p, ch.buf)
	ch.buf = ch.buf[n:]
	return n, nil
}

func TestPurge(t *testing.T) {
	ch := &memChannel{
		buf:    make([]byte, 1000),
		refill: make([]byte, 10),
	}
	err := purge(ch)
	if err != nil {
		t.Fatalf("could not purge: %+v", err)
	}
	if len(ch.buf) != 0 || ch.refill != nil {
		t.Fatalf("channel not drained: %d bytes left", len(ch.buf))
	}
	// 1000 bytes in chunks of 256, then the 10 refilled bytes.
	if got, want := ch.reads, 4+1; got != want {
		t.Fatalf("invalid number of reads: got=%d, want=%d", got, want)
	}
}

func TestWords(t *testing.T) {
	raw := make([]byte, 4*5+2)
	for i := 0; i < 5; i++ {
		binary.LittleEndian.PutUint32(raw[4*i:], uint32(0x11110000+i))
	}
	ch := &memChannel{buf: raw}
	w := words{ch: ch}

	n, err := w.pending()
	if err != nil {
		t.Fatalf("could not get pending words: %+v", err)
	}
	if n != 5 {
		t.Fatalf("invalid pending words: got=%d, want=5", n)
	}

	got, err := w.readWords(3)
	if err != nil {
		t.Fatalf("could not read words: %+v", err)
	}
	if want := []uint32{0x11110000, 0x11110001, 0x11110002}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid words:\ngot= %x\nwant=%x", got, want)
	}

	got, err = w.readWords(10)
	if err != nil {
		t.Fatalf("could not read words: %+v", err)
	}
	if want := []uint32{0x11110003, 0x11110004}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid words:\ngot= %x\nwant=%x", got, want)
	}
	if got, want := len(w.rem), 2; got != want {
		t.Fatalf("invalid remainder: got=%d, want=%d", got, want)
	}

	// complete the partial word.
	ch.buf = []byte{0xAA, 0xAA}
	got, err = w.readWords(1)
	if err != nil {
		t.Fatalf("could not read words: %+v", err)
	}
	if want := []uint32{0xAAAA0000}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid words:\ngot= %x\nwant=%x", got, want)
	}
}

type fakeFTDI struct {
	name   string
	calls  []string
	closed bool
	w      bytes.Buffer
	r      bytes.Buffer
}

func (dev *fakeFTDI) Reset() error {
	dev.calls = append(dev.calls, "reset")
	return nil
}

func (dev *fakeFTDI) SetBaudrate(br int) error {
	dev.calls = append(dev.calls, "baudrate")
	if br != ctrlBaudrate {
		return errors.New("invalid baudrate")
	}
	return nil
}

func (dev *fakeFTDI) SetLineProperties(bits ftdi.DataBits, stops ftdi.StopBits, parity ftdi.Parity) error {
	dev.calls = append(dev.calls, "line")
	return nil
}

func (dev *fakeFTDI) SetFlowControl(flowctrl ftdi.FlowCtrl) error {
	switch flowctrl {
	case ftdi.FlowCtrlRTSCTS:
		dev.calls = append(dev.calls, "rts-cts")
	default:
		dev.calls = append(dev.calls, "no-flow")
	}
	return nil
}

func (dev *fakeFTDI) SetLatencyTimer(lt int) error {
	dev.calls = append(dev.calls, "latency")
	return nil
}

func (dev *fakeFTDI) SetWriteChunkSize(cs int) error {
	dev.calls = append(dev.calls, "wchunk")
	return nil
}

func (dev *fakeFTDI) SetReadChunkSize(cs int) error {
	dev.calls = append(dev.calls, "rchunk")
	return nil
}

func (dev *fakeFTDI) PurgeBuffers() error {
	dev.calls = append(dev.calls, "purge")
	return nil
}

func (dev *fakeFTDI) Write(p []byte) (int, error) { return dev.w.Write(p) }

func (dev *fakeFTDI) Read(p []byte) (int, error) {
	if dev.r.Len() == 0 {
		return 0, nil
	}
	return dev.r.Read(p)
}

func (dev *fakeFTDI) Close() error {
	dev.closed = true
	return nil
}

func TestUSB(t *testing.T) {
	devs := make(map[ftdi.Channel]*fakeFTDI)
	ftdiOpen = func(vid, pid uint16, serial string, ch ftdi.Channel) (ftdiDevice, error) {
		if vid != VendorID || pid != ProductID {
			t.Fatalf("invalid vid/pid: 0x%x/0x%x", vid, pid)
		}
		if serial != "FT1234" {
			return nil, ErrNoSuchSerial
		}
		dev := &fakeFTDI{name: serial}
		devs[ch] = dev
		return dev, nil
	}
	defer func() {
		ftdiOpen = ftdiOpenImpl
	}()

	bad := NewUSB("FT0000", discard())
	if err := bad.Open(false); !errors.Is(err, ErrNoSuchSerial) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrNoSuchSerial)
	}

	usb := NewUSB("FT1234", discard())
	if _, err := usb.Send([]byte{1}); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrNotOpen)
	}

	err := usb.Open(false)
	if err != nil {
		t.Fatalf("could not open USB link: %+v", err)
	}

	ctl, data := devs[ftdi.ChannelB], devs[ftdi.ChannelA]
	if ctl == nil || data == nil {
		t.Fatalf("both channels should be opened")
	}
	if got, want := ctl.calls, []string{"reset", "baudrate", "line", "no-flow", "latency", "purge"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid control channel setup:\ngot= %q\nwant=%q", got, want)
	}
	if got, want := data.calls, []string{"latency", "rchunk", "wchunk", "rts-cts"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid data channel setup:\ngot= %q\nwant=%q", got, want)
	}

	n, err := usb.Send([]byte{1, 2, 3})
	if err != nil || n != 3 {
		t.Fatalf("could not send: n=%d, err=%+v", n, err)
	}
	if got, want := ctl.w.Bytes(), []byte{1, 2, 3}; !bytes.Equal(got, want) {
		t.Fatalf("invalid sent bytes: got=%v, want=%v", got, want)
	}

	ctl.r.Write([]byte{4, 5})
	buf := make([]byte, 4)
	n, err = usb.Recv(buf)
	if err != nil || n != 2 {
		t.Fatalf("could not receive: n=%d, err=%+v", n, err)
	}

	var raw [8]byte
	binary.LittleEndian.PutUint32(raw[0:], event.Marker)
	binary.LittleEndian.PutUint32(raw[4:], 42)
	data.r.Write(raw[:])
	pending, err := usb.Pending()
	if err != nil || pending != 2 {
		t.Fatalf("invalid pending words: n=%d, err=%+v", pending, err)
	}
	words, err := usb.ReadData(8)
	if err != nil {
		t.Fatalf("could not read data: %+v", err)
	}
	if want := []uint32{event.Marker, 42}; !reflect.DeepEqual(words, want) {
		t.Fatalf("invalid data:\ngot= %x\nwant=%x", words, want)
	}

	data.r.Write(make([]byte, 1024))
	err = usb.PurgeData()
	if err != nil {
		t.Fatalf("could not purge data: %+v", err)
	}
	if pending, _ := usb.Pending(); pending != 0 {
		t.Fatalf("data channel not purged: %d words left", pending)
	}

	err = usb.Close()
	if err != nil {
		t.Fatalf("could not close USB link: %+v", err)
	}
	if !ctl.closed || !data.closed {
		t.Fatalf("channels not closed")
	}
}

func TestUSBCtrlOnly(t *testing.T) {
	var opened []ftdi.Channel
	ftdiOpen = func(vid, pid uint16, serial string, ch ftdi.Channel) (ftdiDevice, error) {
		opened = append(opened, ch)
		return &fakeFTDI{}, nil
	}
	defer func() {
		ftdiOpen = ftdiOpenImpl
	}()

	usb := NewUSB("FT1234", discard())
	err := usb.Open(true)
	if err != nil {
		t.Fatalf("could not open USB link: %+v", err)
	}
	defer usb.Close()

	if got, want := opened, []ftdi.Channel{ftdi.ChannelB}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid opened channels: got=%v, want=%v", got, want)
	}
	if _, err := usb.Pending(); !errors.Is(err, ErrCtrlOnly) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrCtrlOnly)
	}
}

func TestTCP(t *testing.T) {
	lctl, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not create control listener: %+v", err)
	}
	defer lctl.Close()

	ldata, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not create data listener: %+v", err)
	}
	defer ldata.Close()

	srv := make(chan [2]net.Conn, 1)
	go func() {
		cctl, err := lctl.Accept()
		if err != nil {
			return
		}
		cdata, err := ldata.Accept()
		if err != nil {
			return
		}
		srv <- [2]net.Conn{cctl, cdata}
	}()

	tcp := NewTCP("127.0.0.1", discard(), WithTimeout(100*time.Millisecond))
	tcp.ctrlPort = lctl.Addr().(*net.TCPAddr).Port
	tcp.dataPort = ldata.Addr().(*net.TCPAddr).Port

	err = tcp.Open(false)
	if err != nil {
		t.Fatalf("could not open TCP link: %+v", err)
	}
	defer tcp.Close()

	conns := <-srv
	defer conns[0].Close()
	defer conns[1].Close()

	// echo server on the control socket.
	go func() {
		buf := make([]byte, 64)
		for {
			n, err := conns[0].Read(buf)
			if err != nil {
				return
			}
			_, _ = conns[0].Write(buf[:n])
		}
	}()

	req, err := ctrl.NewRequest(ctrl.CmdWrite, 0x10, 1, 0x42)
	if err != nil {
		t.Fatalf("could not create request: %+v", err)
	}
	raw, err := req.Marshal()
	if err != nil {
		t.Fatalf("could not marshal request: %+v", err)
	}
	if _, err := tcp.Send(raw); err != nil {
		t.Fatalf("could not send: %+v", err)
	}
	got := make([]byte, len(raw))
	if _, err := io.ReadFull(recvReader{tcp}, got); err != nil {
		t.Fatalf("could not receive: %+v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("invalid echo:\ngot= %v\nwant=%v", got, raw)
	}

	// no answer: Recv times out with no data.
	n, err := tcp.Recv(got)
	if err != nil || n != 0 {
		t.Fatalf("expected a timeout: n=%d, err=%v", n, err)
	}

	var words [3 * 4]byte
	binary.LittleEndian.PutUint32(words[0:], event.Marker)
	binary.LittleEndian.PutUint32(words[4:], 1)
	binary.LittleEndian.PutUint32(words[8:], 2)
	if _, err := conns[1].Write(words[:]); err != nil {
		t.Fatalf("could not write data: %+v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		n, err := tcp.Pending()
		if err != nil {
			t.Fatalf("could not get pending words: %+v", err)
		}
		if n >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for data words (got=%d)", n)
		}
		time.Sleep(time.Millisecond)
	}
	data, err := tcp.ReadData(16)
	if err != nil {
		t.Fatalf("could not read data: %+v", err)
	}
	if want := []uint32{event.Marker, 1, 2}; !reflect.DeepEqual(data, want) {
		t.Fatalf("invalid data:\ngot= %x\nwant=%x", data, want)
	}

	if err := tcp.PurgeData(); err != nil {
		t.Fatalf("could not purge data: %+v", err)
	}
}

type recvReader struct{ tcp *TCP }

func (r recvReader) Read(p []byte) (int, error) {
	n, err := r.tcp.Recv(p)
	if n == 0 && err == nil {
		return 0, io.ErrUnexpectedEOF
	}
	return n, err
}

func TestTCPNoDevice(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not create listener: %+v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	tcp := NewTCP("127.0.0.1", discard(), WithTimeout(100*time.Millisecond))
	tcp.slowPort = port
	if err := tcp.Open(true); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestEmulator(t *testing.T) {
	emu := NewEmulator(0,
		WithLinkOptions(discard()),
		WithEventInterval(time.Millisecond),
		WithSeed(1234),
	)
	err := emu.Open(false)
	if err != nil {
		t.Fatalf("could not open emulator: %+v", err)
	}
	defer emu.Close()

	if err := emu.Open(false); err == nil {
		t.Fatalf("expected an error re-opening the emulator")
	}

	cli := ctrl.NewClient(emu,
		ctrl.WithDelays(0, 0),
		ctrl.WithMsgStream(log.NewMsgStream("test", log.LvlError, io.Discard)),
	)

	err = cli.Write(0x1000, 0xcafe)
	if err != nil {
		t.Fatalf("could not write register: %+v", err)
	}
	v, err := cli.Read(0x1000)
	if err != nil {
		t.Fatalf("could not read register: %+v", err)
	}
	if v != 0xcafe {
		t.Fatalf("invalid register value: got=0x%x, want=0xcafe", v)
	}
	err = cli.ArrayWrite(0x2000, []uint32{1, 2, 3})
	if err != nil {
		t.Fatalf("could not write array: %+v", err)
	}
	vs, err := cli.ArrayRead(0x2000, 3)
	if err != nil {
		t.Fatalf("could not read array: %+v", err)
	}
	if want := []uint32{1, 2, 3}; !reflect.DeepEqual(vs, want) {
		t.Fatalf("invalid array: got=%v, want=%v", vs, want)
	}

	err = cli.Write(regmap.MasterLogicControl, 1)
	if err != nil {
		t.Fatalf("could not start emulator: %+v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		n, err := emu.Pending()
		if err != nil {
			t.Fatalf("could not get pending words: %+v", err)
		}
		if n >= 2*(event.HeaderWords+emuPayload) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for emulated events")
		}
		time.Sleep(time.Millisecond)
	}

	err = cli.Write(regmap.EventDataCtl, 0x00020001)
	if err != nil {
		t.Fatalf("could not stop emulator: %+v", err)
	}

	var (
		sync = event.NewSync(emu, event.WithMsgStream(log.NewMsgStream("test", log.LvlError, io.Discard)))
		prev uint64
	)
	for i := 0; i < 2; i++ {
		rec, err := sync.Next()
		if err != nil {
			t.Fatalf("could not read emulated event: %+v", err)
		}
		if rec == nil {
			t.Fatalf("missing emulated event %d", i)
		}
		if got, want := len(rec.Data), emuPayload; got != want {
			t.Fatalf("invalid payload size: got=%d, want=%d", got, want)
		}
		ch := uint32(rec.Header.ChannelID())
		if ch >= emuChannels {
			t.Fatalf("invalid channel %d", ch)
		}
		if rec.Data[7] != 7+ch {
			t.Fatalf("invalid payload: got=%d, want=%d", rec.Data[7], 7+ch)
		}
		ts := rec.Header.ExternalTimestamp()
		if ts != rec.Header.InternalTimestamp() {
			t.Fatalf("inconsistent timestamps: ext=%d, int=%d", ts, rec.Header.InternalTimestamp())
		}
		if ts < prev {
			t.Fatalf("non monotonic timestamps: %d < %d", ts, prev)
		}
		prev = ts
	}

	if err := emu.PurgeData(); err != nil {
		t.Fatalf("could not purge data: %+v", err)
	}
	if n, _ := emu.Pending(); n != 0 {
		t.Fatalf("data channel not purged: %d words left", n)
	}
}

func TestEmulatorCtrlOnly(t *testing.T) {
	emu := NewEmulator(1, WithLinkOptions(discard()))
	if _, err := emu.Pending(); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrNotOpen)
	}
	if err := emu.Open(true); err != nil {
		t.Fatalf("could not open emulator: %+v", err)
	}
	defer emu.Close()
	if _, err := emu.ReadData(1); !errors.Is(err, ErrCtrlOnly) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrCtrlOnly)
	}
}
