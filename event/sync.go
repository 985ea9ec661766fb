// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"errors"
	"os"
	"time"

	"github.com/go-daq/tdaq/log"
	"golang.org/x/xerrors"
)

// ErrEventRead reports a corrupted or truncated event stream.
var ErrEventRead = errors.New("event: could not read event")

// Source is the data channel of a link.
type Source interface {
	// Pending returns the number of queued 32b words.
	Pending() (int, error)
	// ReadData reads at most max queued words.
	ReadData(max int) ([]uint32, error)
}

// Sync reassembles event records from a data stream.
type Sync struct {
	src Source
	msg log.MsgStream

	poll    time.Duration
	timeout time.Duration

	skipped uint64 // total number of words skipped while resynchronizing
}

// SyncOption configures a Sync.
type SyncOption func(*Sync)

// WithMsgStream sets the logger of the synchronizer.
func WithMsgStream(msg log.MsgStream) SyncOption {
	return func(s *Sync) { s.msg = msg }
}

// WithTimeout sets how long to wait for the rest of an event once its
// marker has been seen.
func WithTimeout(timeout time.Duration) SyncOption {
	return func(s *Sync) { s.timeout = timeout }
}

// NewSync creates a synchronizer reading from src.
func NewSync(src Source, opts ...SyncOption) *Sync {
	s := &Sync{
		src:     src,
		msg:     log.NewMsgStream("ssp-sync", log.LvlInfo, os.Stdout),
		poll:    10 * time.Microsecond,
		timeout: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Skipped returns the number of non-marker words dropped so far.
func (s *Sync) Skipped() uint64 { return s.skipped }

// Next reads the next event record from the stream.
// Next returns a nil record and a nil error when no event is available.
func (s *Sync) Next() (*Record, error) {
	skipped := 0
	for {
		n, err := s.src.Pending()
		if err != nil {
			return nil, xerrors.Errorf("event: could not get data queue length: %w", err)
		}
		var words []uint32
		if n > 0 {
			words, err = s.src.ReadData(1)
			if err != nil {
				return nil, xerrors.Errorf("event: could not read data word: %w", err)
			}
		}
		if len(words) == 0 {
			if skipped > 0 {
				s.msg.Warnf("skipped %d words and has not seen header for next event", skipped)
			}
			return nil, nil
		}
		if words[0] == Marker {
			break
		}
		skipped++
		s.skipped++
	}

	if skipped > 0 {
		s.msg.Warnf("skipped %d words before finding next event header", skipped)
	}

	raw := make([]uint32, HeaderWords)
	raw[0] = Marker
	body, err := s.read(HeaderWords - 1)
	if err != nil {
		return nil, xerrors.Errorf("event: could not read event header: %w", err)
	}
	copy(raw[1:], body)

	var rec Record
	err = rec.Header.Decode(raw)
	if err != nil {
		return nil, xerrors.Errorf("event: could not decode event header: %w", err)
	}
	if int(rec.Header.Length) < HeaderWords {
		return nil, xerrors.Errorf(
			"event: invalid event length (got=%d, want>=%d): %w",
			rec.Header.Length, HeaderWords, ErrEventRead,
		)
	}

	rec.Data, err = s.read(int(rec.Header.Length) - HeaderWords)
	if err != nil {
		return nil, xerrors.Errorf("event: could not read event payload: %w", err)
	}

	return &rec, nil
}

// read waits until n words are queued and reads them.
func (s *Sync) read(n int) ([]uint32, error) {
	if n == 0 {
		return []uint32{}, nil
	}

	deadline := time.Now().Add(s.timeout)
	for {
		queued, err := s.src.Pending()
		if err != nil {
			return nil, xerrors.Errorf("could not get data queue length: %w", err)
		}
		if queued >= n {
			break
		}
		if time.Now().After(deadline) {
			s.msg.Errorf("SSP delayed %v before delivering %d words, giving up", s.timeout, n)
			return nil, xerrors.Errorf("timeout waiting for %d words (got=%d): %w", n, queued, ErrEventRead)
		}
		time.Sleep(s.poll)
	}

	words, err := s.src.ReadData(n)
	if err != nil {
		return nil, xerrors.Errorf("could not read %d words: %w", n, err)
	}
	if len(words) != n {
		s.msg.Errorf("SSP returned %d words even though its queue held %d", len(words), n)
		return nil, xerrors.Errorf("short read (got=%d, want=%d): %w", len(words), n, ErrEventRead)
	}
	return words, nil
}
