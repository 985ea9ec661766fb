// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package millislice

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/ssp/event"
)

var (
	// ErrTimestamp reports an event older than the current slice.
	ErrTimestamp = errors.New("millislice: event timestamp before current slice")

	// ErrLength reports a builder configured with a zero slice length.
	ErrLength = errors.New("millislice: invalid zero slice length")
)

const (
	DefaultLength          = 100000000 // ticks
	DefaultOverlap         = 10000000  // ticks
	DefaultClockMHz        = 128.0
	DefaultEmptyWriteDelay = time.Second
)

// Sink receives the completed millislices.
type Sink interface {
	Push(slice []uint32)
}

// Config holds the windowing tunables.
type Config struct {
	Length          uint64        // slice length in ticks
	Overlap         uint64        // overlap with the next slice in ticks
	External        bool          // use the external timestamp
	ClockMHz        float64       // hardware clock rate
	EmptyWriteDelay time.Duration // silence after which a slice is emitted anyway

	RunStart    uint64 // first tick of the run
	HasRunStart bool   // whether RunStart was set
}

// DefaultConfig returns the default windowing configuration.
func DefaultConfig() Config {
	return Config{
		Length:          DefaultLength,
		Overlap:         DefaultOverlap,
		ClockMHz:        DefaultClockMHz,
		EmptyWriteDelay: DefaultEmptyWriteDelay,
	}
}

// Builder assigns event records to millislices.
type Builder struct {
	cfg  Config
	sink Sink
	msg  log.MsgStream

	seen      bool   // whether an event was accepted
	discarded int    // events dropped before the run start
	start     uint64 // first tick of the current slice
	this      []*event.Record
	next      []*event.Record

	silence time.Duration
	warned  bool
}

// NewBuilder creates a millislice builder pushing slices to sink.
func NewBuilder(sink Sink, cfg Config, msg log.MsgStream) *Builder {
	if msg == nil {
		msg = log.NewMsgStream("ssp-slice", log.LvlInfo, os.Stdout)
	}
	if cfg.ClockMHz <= 0 {
		cfg.ClockMHz = DefaultClockMHz
	}
	b := &Builder{
		cfg:  cfg,
		sink: sink,
		msg:  msg,
	}
	if cfg.HasRunStart {
		b.start = cfg.RunStart
	}
	return b
}

// Start returns the first tick of the current slice.
func (b *Builder) Start() uint64 { return b.start }

// Seen returns whether an event was accepted.
func (b *Builder) Seen() bool { return b.seen }

func (b *Builder) end() uint64 { return b.start + b.cfg.Length + b.cfg.Overlap }

// Add places an event record in the current and/or next slice,
// emitting every slice the event closes.
// Add fails with ErrLength when the slice length is zero.
func (b *Builder) Add(rec *event.Record) error {
	if b.cfg.Length == 0 {
		return ErrLength
	}
	b.silence = 0
	b.warned = false

	ts := rec.Header.Timestamp(b.cfg.External)

	if !b.seen {
		switch {
		case !b.cfg.HasRunStart:
			b.cfg.RunStart = ts
			b.cfg.HasRunStart = true
			b.start = ts
		case ts < b.cfg.RunStart:
			b.discarded++
			return nil
		default:
			if b.discarded == 0 {
				b.msg.Warnf("SSP daq did not see any events before start time: may have missed first valid events")
			}
		}
		b.seen = true
	}

	b.msg.Debugf("got event with timestamp %d (%v from run start)",
		ts, b.sinceRunStart(ts),
	)

	if ts < b.start {
		b.msg.Errorf("event seen with timestamp %d before start of current slice %d", ts, b.start)
		return fmt.Errorf("timestamp=%d, slice start=%d: %w", ts, b.start, ErrTimestamp)
	}

	for ts >= b.end() {
		b.msg.Debugf("building millislice with %d events", len(b.this))
		b.advance()
	}

	b.this = append(b.this, rec)
	if ts >= b.start+b.cfg.Length {
		b.next = append(b.next, rec)
	}
	return nil
}

// Idle accounts for a period without events. Once the accumulated
// silence exceeds the empty-write delay, the current slice is emitted,
// full or empty.
func (b *Builder) Idle(d time.Duration) {
	b.silence += d
	if b.silence <= b.cfg.EmptyWriteDelay || !b.seen || b.cfg.Length == 0 {
		return
	}
	if !b.warned {
		b.msg.Warnf("seeing no events, starting to write empty slices")
		b.warned = true
	}
	b.advance()
	b.silence -= b.sliceDuration()
}

// advance emits the current slice and moves to the next one.
func (b *Builder) advance() {
	b.sink.Push(Build(b.start, b.end(), b.this))
	b.start += b.cfg.Length
	b.this, b.next = b.next, b.this[:0:0]
}

func (b *Builder) sliceDuration() time.Duration {
	us := float64(b.cfg.Length) / b.cfg.ClockMHz
	return time.Duration(us * float64(time.Microsecond))
}

func (b *Builder) sinceRunStart(ts uint64) time.Duration {
	if ts < b.cfg.RunStart {
		return 0
	}
	us := float64(ts-b.cfg.RunStart) / b.cfg.ClockMHz
	return time.Duration(us * float64(time.Microsecond))
}
