// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transport provides the physical links to an SSP module:
// a USB FTDI pair, a TCP socket pair and an in-process emulator.
package transport // import "github.com/go-lpc/ssp/transport"

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-daq/tdaq/log"
)

var (
	// ErrNotOpen is returned when using a closed link.
	ErrNotOpen = errors.New("transport: link not open")
	// ErrCtrlOnly is returned when using the data channel of a
	// link opened for slow control only.
	ErrCtrlOnly = errors.New("transport: link opened for slow control only")
)

// Transport is a link to an SSP module.
//
// The control channel carries control packets, the data channel carries
// the event stream pushed by the module.
type Transport interface {
	// Open opens the link. When ctrlOnly is true, only the control
	// channel is opened.
	Open(ctrlOnly bool) error
	Close() error

	// Send writes p to the control channel.
	Send(p []byte) (int, error)
	// Recv reads at most len(p) bytes from the control channel.
	Recv(p []byte) (int, error)
	// PurgeControl drains the control channel.
	PurgeControl() error

	// Pending returns the number of 32b words queued on the data channel.
	Pending() (int, error)
	// ReadData reads at most max words already queued on the data channel.
	ReadData(max int) ([]uint32, error)
	// PurgeData drains the data channel.
	PurgeData() error
}

type config struct {
	msg     log.MsgStream
	timeout time.Duration // control channel I/O timeout
}

func newConfig(opts []Option) config {
	cfg := config{
		msg:     log.NewMsgStream("ssp-link", log.LvlInfo, os.Stdout),
		timeout: time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Option configures a link.
type Option func(*config)

// WithMsgStream sets the logger of a link.
func WithMsgStream(msg log.MsgStream) Option {
	return func(cfg *config) { cfg.msg = msg }
}

// WithTimeout sets the I/O timeout of the control channel.
func WithTimeout(timeout time.Duration) Option {
	return func(cfg *config) { cfg.timeout = timeout }
}

// byteChannel is a raw byte stream with a queue length.
type byteChannel interface {
	queued() (int, error)
	read(p []byte) (int, error)
}

const (
	purgeChunk = 256
	purgeWait  = 10 * time.Millisecond
)

// purge drains ch until it stays empty for purgeWait.
func purge(ch byteChannel) error {
	buf := make([]byte, purgeChunk)
	for {
		n, err := ch.queued()
		if err != nil {
			return fmt.Errorf("transport: could not get queue status: %w", err)
		}
		if n > 0 {
			if n > len(buf) {
				n = len(buf)
			}
			_, err = ch.read(buf[:n])
			if err != nil {
				return fmt.Errorf("transport: could not drain channel: %w", err)
			}
			continue
		}

		time.Sleep(purgeWait)
		n, err = ch.queued()
		if err != nil {
			return fmt.Errorf("transport: could not get queue status: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
}

// words assembles 32b little-endian words from a byte channel,
// keeping partial words around for the next read.
type words struct {
	ch  byteChannel
	rem []byte
}

func (w *words) pending() (int, error) {
	n, err := w.ch.queued()
	if err != nil {
		return 0, err
	}
	return (n + len(w.rem)) / 4, nil
}

func (w *words) readWords(max int) ([]uint32, error) {
	avail, err := w.ch.queued()
	if err != nil {
		return nil, err
	}
	want := 4*max - len(w.rem)
	if want > avail {
		want = avail
	}
	if want > 0 {
		buf := make([]byte, want)
		n, err := w.ch.read(buf)
		if err != nil {
			return nil, err
		}
		w.rem = append(w.rem, buf[:n]...)
	}

	n := len(w.rem) / 4
	if n > max {
		n = max
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(w.rem[4*i:])
	}
	w.rem = append(w.rem[:0], w.rem[4*n:]...)
	return out, nil
}

func (w *words) reset() { w.rem = w.rem[:0] }

// purge drains the underlying channel and drops partial words.
func (w *words) purge() error {
	w.reset()
	return purge(w.ch)
}
