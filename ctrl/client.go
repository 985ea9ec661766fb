// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctrl

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-daq/tdaq/log"
)

// Conn is the control channel of a link.
type Conn interface {
	// Send writes p to the control channel.
	Send(p []byte) (int, error)
	// Recv reads at most len(p) bytes from the control channel.
	// Recv returns 0, nil when no data arrived in time.
	Recv(p []byte) (int, error)
	// PurgeControl drains the control channel.
	PurgeControl() error
}

// DefaultRetries is the number of resends attempted after a failed exchange.
const DefaultRetries = 3

// Client issues control requests over a link.
type Client struct {
	conn Conn
	msg  log.MsgStream

	retries int
	settle  time.Duration // delay between send and receive
	pause   time.Duration // delay after a successful exchange
}

// Option configures a Client.
type Option func(*Client)

// WithRetries sets the number of resends after a failed exchange.
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = n }
}

// WithDelays sets the delays between send and receive, and after receive.
func WithDelays(settle, pause time.Duration) Option {
	return func(c *Client) {
		c.settle = settle
		c.pause = pause
	}
}

// WithMsgStream sets the logger of the client.
func WithMsgStream(msg log.MsgStream) Option {
	return func(c *Client) { c.msg = msg }
}

// NewClient creates a control client sending requests over conn.
func NewClient(conn Conn, opts ...Option) *Client {
	c := &Client{
		conn:    conn,
		msg:     log.NewMsgStream("ssp-ctrl", log.LvlInfo, os.Stdout),
		retries: DefaultRetries,
		settle:  100 * time.Microsecond,
		pause:   2 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendReceive sends req and waits for its response.
// Failed exchanges are retried after purging the control channel.
func (c *Client) SendReceive(req Packet) (Packet, error) {
	var (
		rsp Packet
		err error
	)
	for try := 0; ; try++ {
		rsp, err = c.exchange(req)
		if err == nil {
			break
		}
		if try >= c.retries {
			c.msg.Errorf("send/receive of %v failed, giving up: %+v", &req, err)
			return rsp, fmt.Errorf("ctrl: could not send/receive %v after %d retries: %w", &req, c.retries, err)
		}
		if perr := c.conn.PurgeControl(); perr != nil {
			return rsp, fmt.Errorf("ctrl: could not purge control channel: %w", perr)
		}
		c.msg.Warnf("send/receive of %v failed %d times, retrying...", &req, try+1)
	}

	if rsp.Status != StatusNoError {
		return rsp, &StatusError{Cmd: req.Cmd, Addr: req.Addr, Status: rsp.Status}
	}
	return rsp, nil
}

func (c *Client) exchange(req Packet) (Packet, error) {
	raw, err := req.Marshal()
	if err != nil {
		return Packet{}, err
	}

	n, err := c.conn.Send(raw)
	switch {
	case err != nil:
		return Packet{}, fmt.Errorf("ctrl: could not send %v: %w", &req, err)
	case n != len(raw):
		return Packet{}, fmt.Errorf("ctrl: could not send %v: %w", &req, io.ErrShortWrite)
	}

	if c.settle > 0 {
		time.Sleep(c.settle)
	}

	buf := make([]byte, ResponseSize(req))
	err = c.recv(buf)
	if err != nil {
		return Packet{}, fmt.Errorf("ctrl: could not receive response to %v: %w", &req, err)
	}

	if c.pause > 0 {
		time.Sleep(c.pause)
	}

	return Unmarshal(buf)
}

func (c *Client) recv(buf []byte) error {
	got := 0
	for got < len(buf) {
		n, err := c.conn.Recv(buf[got:])
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("got %d bytes, want %d: %w", got, len(buf), ErrTruncated)
		}
		got += n
	}
	return nil
}

func (c *Client) do(cmd Command, addr, size uint32, data ...uint32) (Packet, error) {
	req, err := NewRequest(cmd, addr, size, data...)
	if err != nil {
		return Packet{}, err
	}
	return c.SendReceive(req)
}

func (c *Client) word(rsp Packet) (uint32, error) {
	if len(rsp.Data) < 1 {
		return 0, fmt.Errorf("ctrl: empty %v response: %w", &rsp, ErrTruncated)
	}
	return rsp.Data[0], nil
}

// Read reads the register at addr.
func (c *Client) Read(addr uint32) (uint32, error) {
	rsp, err := c.do(CmdRead, addr, 1)
	if err != nil {
		return 0, err
	}
	return c.word(rsp)
}

// ReadMask reads the bits selected by mask of the register at addr.
func (c *Client) ReadMask(addr, mask uint32) (uint32, error) {
	rsp, err := c.do(CmdReadMask, addr, 1, mask)
	if err != nil {
		return 0, err
	}
	return c.word(rsp)
}

// Write writes v to the register at addr.
func (c *Client) Write(addr, v uint32) error {
	_, err := c.do(CmdWrite, addr, 1, v)
	return err
}

// WriteMask writes the bits of v selected by mask to the register at addr.
func (c *Client) WriteMask(addr, mask, v uint32) error {
	_, err := c.do(CmdWriteMask, addr, 1, mask, v)
	return err
}

// Set sets the bits selected by mask.
func (c *Client) Set(addr, mask uint32) error {
	return c.WriteMask(addr, mask, 0xFFFFFFFF)
}

// Clear clears the bits selected by mask.
func (c *Client) Clear(addr, mask uint32) error {
	return c.WriteMask(addr, mask, 0x00000000)
}

// ArrayRead reads n contiguous registers starting at addr.
func (c *Client) ArrayRead(addr uint32, n int) ([]uint32, error) {
	if n < 0 || n > MaxData {
		return nil, fmt.Errorf("ctrl: could not read %d words at 0x%08x: %w", n, addr, ErrTooLarge)
	}
	rsp, err := c.do(CmdArrayRead, addr, uint32(n))
	if err != nil {
		return nil, err
	}
	if len(rsp.Data) < n {
		return nil, fmt.Errorf("ctrl: short array read at 0x%08x (got=%d, want=%d): %w",
			addr, len(rsp.Data), n, ErrTruncated,
		)
	}
	return rsp.Data[:n], nil
}

// ArrayWrite writes data to contiguous registers starting at addr.
func (c *Client) ArrayWrite(addr uint32, data []uint32) error {
	_, err := c.do(CmdArrayWrite, addr, uint32(len(data)), data...)
	return err
}

// NVWrite writes v to non-volatile memory at addr.
func (c *Client) NVWrite(addr, v uint32) error {
	_, err := c.do(CmdNVWrite, addr, 1, v)
	return err
}

// NVArrayWrite writes data to non-volatile memory starting at addr.
func (c *Client) NVArrayWrite(addr uint32, data []uint32) error {
	_, err := c.do(CmdNVArrayWrite, addr, uint32(len(data)), data...)
	return err
}

// NVEraseSector erases the non-volatile memory sector holding addr.
func (c *Client) NVEraseSector(addr uint32) error {
	_, err := c.do(CmdNVEraseSector, addr, 0)
	return err
}

// NVEraseBlock erases the non-volatile memory block holding addr.
func (c *Client) NVEraseBlock(addr uint32) error {
	_, err := c.do(CmdNVEraseBlock, addr, 0)
	return err
}

// NVEraseChip erases the whole non-volatile memory.
func (c *Client) NVEraseChip(addr uint32) error {
	_, err := c.do(CmdNVEraseChip, addr, 0)
	return err
}
