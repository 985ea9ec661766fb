// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

const (
	// CtrlPort is the TCP port of the control channel.
	CtrlPort = 55001
	// SlowCtrlPort is the TCP port of the control channel when the link
	// is opened for slow control only.
	SlowCtrlPort = 55002
	// DataPort is the TCP port of the data channel.
	DataPort = 55010
)

// tcpChannel is one socket of a TCP link.
type tcpChannel struct {
	conn    net.Conn
	timeout time.Duration
	buf     []byte
}

func (ch *tcpChannel) queued() (int, error) {
	n, err := pending(ch)
	return n + len(ch.buf), err
}

func (ch *tcpChannel) read(p []byte) (int, error) {
	if len(ch.buf) > 0 {
		n := copy(p, ch.buf)
		ch.buf = append(ch.buf[:0], ch.buf[n:]...)
		return n, nil
	}
	return ch.readTimeout(p, ch.timeout)
}

// readTimeout reads from the socket, returning 0, nil on timeout.
func (ch *tcpChannel) readTimeout(p []byte, timeout time.Duration) (int, error) {
	err := ch.conn.SetReadDeadline(time.Now().Add(timeout))
	if err != nil {
		return 0, err
	}
	n, err := ch.conn.Read(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		err = nil
	}
	return n, err
}

// TCP is a link to an SSP module over ethernet.
type TCP struct {
	cfg  config
	addr string // host name or IP address of the module

	ctrlOnly bool
	ctrl     *tcpChannel
	data     *tcpChannel
	words    words

	ctrlPort int
	slowPort int
	dataPort int
}

// NewTCP creates a TCP link to the SSP module at the provided address.
func NewTCP(addr string, opts ...Option) *TCP {
	return &TCP{
		cfg:      newConfig(opts),
		addr:     addr,
		ctrlPort: CtrlPort,
		slowPort: SlowCtrlPort,
		dataPort: DataPort,
	}
}

// Addr returns the address of the module.
func (tcp *TCP) Addr() string { return tcp.addr }

func (tcp *TCP) dial(port int) (*tcpChannel, error) {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(tcp.addr, strconv.Itoa(port)), tcp.cfg.timeout)
	if err != nil {
		return nil, err
	}
	return &tcpChannel{conn: conn, timeout: tcp.cfg.timeout}, nil
}

func (tcp *TCP) Open(ctrlOnly bool) error {
	if tcp.ctrl != nil {
		return fmt.Errorf("transport: TCP link to %q already open", tcp.addr)
	}
	tcp.ctrlOnly = ctrlOnly

	port := tcp.ctrlPort
	if ctrlOnly {
		port = tcp.slowPort
	}

	tcp.cfg.msg.Infof("looking for SSP ethernet device at %s", tcp.addr)
	ctrl, err := tcp.dial(port)
	if err != nil {
		return fmt.Errorf("transport: could not connect control channel to %s:%d: %w", tcp.addr, port, err)
	}
	tcp.ctrl = ctrl

	if ctrlOnly {
		tcp.cfg.msg.Infof("connected to SSP ethernet device at %s", tcp.addr)
		return nil
	}

	data, err := tcp.dial(tcp.dataPort)
	if err != nil {
		_ = tcp.ctrl.conn.Close()
		tcp.ctrl = nil
		return fmt.Errorf("transport: could not connect data channel to %s:%d: %w", tcp.addr, tcp.dataPort, err)
	}
	data.timeout = time.Millisecond
	tcp.data = data
	tcp.words = words{ch: tcp.data}
	tcp.cfg.msg.Infof("connected to SSP ethernet device at %s", tcp.addr)

	return nil
}

func (tcp *TCP) Close() error {
	if tcp.ctrl == nil {
		return nil
	}

	var err error
	if tcp.data != nil {
		if e := tcp.data.conn.Close(); e != nil {
			err = fmt.Errorf("transport: could not close data socket: %w", e)
		}
	}
	if e := tcp.ctrl.conn.Close(); e != nil && err == nil {
		err = fmt.Errorf("transport: could not close control socket: %w", e)
	}
	tcp.ctrl = nil
	tcp.data = nil
	tcp.cfg.msg.Infof("device closed")
	return err
}

func (tcp *TCP) Send(p []byte) (int, error) {
	if tcp.ctrl == nil {
		return 0, ErrNotOpen
	}
	err := tcp.ctrl.conn.SetWriteDeadline(time.Now().Add(tcp.cfg.timeout))
	if err != nil {
		return 0, err
	}
	return tcp.ctrl.conn.Write(p)
}

func (tcp *TCP) Recv(p []byte) (int, error) {
	if tcp.ctrl == nil {
		return 0, ErrNotOpen
	}
	return tcp.ctrl.read(p)
}

func (tcp *TCP) PurgeControl() error {
	if tcp.ctrl == nil {
		return ErrNotOpen
	}
	return purge(tcp.ctrl)
}

func (tcp *TCP) Pending() (int, error) {
	if err := tcp.checkData(); err != nil {
		return 0, err
	}
	return tcp.words.pending()
}

func (tcp *TCP) ReadData(max int) ([]uint32, error) {
	if err := tcp.checkData(); err != nil {
		return nil, err
	}
	return tcp.words.readWords(max)
}

func (tcp *TCP) PurgeData() error {
	if err := tcp.checkData(); err != nil {
		return err
	}
	return tcp.words.purge()
}

func (tcp *TCP) checkData() error {
	switch {
	case tcp.ctrl == nil:
		return ErrNotOpen
	case tcp.ctrlOnly || tcp.data == nil:
		return ErrCtrlOnly
	}
	return nil
}

var (
	_ Transport = (*TCP)(nil)
)
