// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"

	"go.uber.org/atomic"
)

// Stats are the counters of the current (or last) run.
type Stats struct {
	Events       uint64 `json:"events"`        // event records placed in slices
	Slices       uint64 `json:"slices"`        // millislices emitted
	EmptySlices  uint64 `json:"empty_slices"`  // millislices without event
	SkippedWords uint64 `json:"skipped_words"` // words dropped while looking for an event header
}

func (st Stats) String() string {
	return fmt.Sprintf(
		"events=%d slices=%d (empty=%d) skipped-words=%d",
		st.Events, st.Slices, st.EmptySlices, st.SkippedWords,
	)
}

type counters struct {
	events  atomic.Uint64
	slices  atomic.Uint64
	empty   atomic.Uint64
	skipped atomic.Uint64
}

func (c *counters) reset() {
	c.events.Store(0)
	c.slices.Store(0)
	c.empty.Store(0)
	c.skipped.Store(0)
}

// Stats returns the counters of the current (or last) run.
// Stats can be called while the device is running.
func (dev *Device) Stats() Stats {
	return Stats{
		Events:       dev.stats.events.Load(),
		Slices:       dev.stats.slices.Load(),
		EmptySlices:  dev.stats.empty.Load(),
		SkippedWords: dev.stats.skipped.Load(),
	}
}
