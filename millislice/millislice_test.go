// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package millislice

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/ssp/event"
)

type sliceSink struct {
	slices [][]uint32
}

func (s *sliceSink) Push(slice []uint32) { s.slices = append(s.slices, slice) }

type decoded struct {
	hdr  Header
	recs []event.Record
}

func (s *sliceSink) decode(t *testing.T) []decoded {
	t.Helper()
	out := make([]decoded, len(s.slices))
	for i, slice := range s.slices {
		hdr, recs, err := Decode(slice)
		if err != nil {
			t.Fatalf("could not decode slice %d: %+v", i, err)
		}
		out[i] = decoded{hdr, recs}
	}
	return out
}

func newRec(ts uint64) *event.Record {
	var hdr event.Header
	hdr.SetTimestamp(ts)
	hdr.Group2 = uint16(ts % 12)
	rec := event.New(hdr, []uint32{uint32(ts), uint32(ts >> 32)})
	return &rec
}

func stamps(recs []event.Record) []uint64 {
	out := make([]uint64, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].Header.InternalTimestamp())
	}
	return out
}

func newTestBuilder(cfg Config) (*Builder, *sliceSink, *bytes.Buffer) {
	sink := new(sliceSink)
	buf := new(bytes.Buffer)
	b := NewBuilder(sink, cfg, log.NewMsgStream("slice", log.LvlDebug, buf))
	return b, sink, buf
}

func TestEndToEnd(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Length = 1000000
	cfg.Overlap = 100000
	cfg.RunStart = 0
	cfg.HasRunStart = true

	b, sink, msg := newTestBuilder(cfg)
	for _, ts := range []uint64{500000, 999999, 1050000, 2500000} {
		err := b.Add(newRec(ts))
		if err != nil {
			t.Fatalf("could not add event %d: %+v", ts, err)
		}
	}
	if !strings.Contains(msg.String(), "did not see any events before start time") {
		t.Fatalf("missing run start warning:\n%s", msg.String())
	}

	got := sink.decode(t)
	want := []struct {
		start, end uint64
		ts         []uint64
	}{
		{0, 1100000, []uint64{500000, 999999, 1050000}},
		{1000000, 2100000, []uint64{1050000}},
	}
	if len(got) != len(want) {
		t.Fatalf("invalid number of slices: got=%d, want=%d", len(got), len(want))
	}
	for i := range want {
		if got, want := got[i].hdr.Start, want[i].start; got != want {
			t.Fatalf("slice %d: invalid start: got=%d, want=%d", i, got, want)
		}
		if got, want := got[i].hdr.End, want[i].end; got != want {
			t.Fatalf("slice %d: invalid end: got=%d, want=%d", i, got, want)
		}
		if got, want := stamps(got[i].recs), want[i].ts; !reflect.DeepEqual(got, want) {
			t.Fatalf("slice %d: invalid events: got=%v, want=%v", i, got, want)
		}
	}

	// the event at 2500000 sits in the current slice [2000000, 3100000).
	if got, want := b.Start(), uint64(2000000); got != want {
		t.Fatalf("invalid current slice: got=%d, want=%d", got, want)
	}
	if got := len(b.this); got != 1 {
		t.Fatalf("invalid pending events: got=%d, want=1", got)
	}

	// a far away event flushes the pending slice and emits empty ones.
	err := b.Add(newRec(5200000))
	if err != nil {
		t.Fatalf("could not add event: %+v", err)
	}
	got = sink.decode(t)
	if got, want := len(got), 5; got != want {
		t.Fatalf("invalid number of slices: got=%d, want=%d", got, want)
	}
	if got, want := stamps(got[2].recs), []uint64{2500000}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid events: got=%v, want=%v", got, want)
	}
	for _, i := range []int{3, 4} {
		if got[i].hdr.NTriggers != 0 || got[i].hdr.Length != HeaderWords {
			t.Fatalf("slice %d should be empty: %+v", i, got[i].hdr)
		}
	}
}

func TestFirstEventSetsRunStart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Length = 100
	cfg.Overlap = 10

	b, sink, _ := newTestBuilder(cfg)
	for _, ts := range []uint64{1000, 1050, 1105, 1250} {
		if err := b.Add(newRec(ts)); err != nil {
			t.Fatalf("could not add event: %+v", err)
		}
	}
	got := sink.decode(t)
	if len(got) != 2 {
		t.Fatalf("invalid number of slices: got=%d, want=2", len(got))
	}
	if got, want := got[0].hdr, (Header{Length: got[0].hdr.Length, NTriggers: 3, Start: 1000, End: 1110}); got != want {
		t.Fatalf("invalid first slice:\ngot= %+v\nwant=%+v", got, want)
	}
	if got, want := stamps(got[1].recs), []uint64{1105}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid second slice: got=%v, want=%v", got, want)
	}
}

func TestZeroLength(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Length = 0
	cfg.Overlap = 10
	cfg.EmptyWriteDelay = 0

	b, sink, _ := newTestBuilder(cfg)
	done := make(chan error, 1)
	go func() {
		err := b.Add(newRec(50))
		b.Idle(time.Second)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrLength) {
			t.Fatalf("invalid error: got=%v, want=%v", err, ErrLength)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("builder with zero length did not return")
	}
	if len(sink.slices) != 0 {
		t.Fatalf("unexpected millislices: got=%d, want=0", len(sink.slices))
	}
}

func TestRunStartDiscards(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Length = 100
	cfg.Overlap = 10
	cfg.RunStart = 500
	cfg.HasRunStart = true

	b, sink, msg := newTestBuilder(cfg)
	for _, ts := range []uint64{10, 20, 499, 500, 650} {
		if err := b.Add(newRec(ts)); err != nil {
			t.Fatalf("could not add event: %+v", err)
		}
	}
	if got, want := b.discarded, 3; got != want {
		t.Fatalf("invalid discarded events: got=%d, want=%d", got, want)
	}
	if strings.Contains(msg.String(), "did not see any events before start time") {
		t.Fatalf("unexpected warning:\n%s", msg.String())
	}
	got := sink.decode(t)
	if len(got) != 1 {
		t.Fatalf("invalid number of slices: got=%d, want=1", len(got))
	}
	if got, want := stamps(got[0].recs), []uint64{500}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid slice: got=%v, want=%v", got, want)
	}
}

func TestTimestampBeforeSlice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Length = 100
	cfg.Overlap = 10

	b, _, _ := newTestBuilder(cfg)
	for _, ts := range []uint64{1000, 1300} {
		if err := b.Add(newRec(ts)); err != nil {
			t.Fatalf("could not add event: %+v", err)
		}
	}
	err := b.Add(newRec(1150))
	if !errors.Is(err, ErrTimestamp) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrTimestamp)
	}
}

func TestExternalTimestamp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Length = 100
	cfg.Overlap = 10
	cfg.External = true

	b, sink, _ := newTestBuilder(cfg)
	var hdr event.Header
	hdr.Ext = [4]uint16{1000, 0, 0, 0} // internal timestamp stays 0
	rec := event.New(hdr, nil)
	if err := b.Add(&rec); err != nil {
		t.Fatalf("could not add event: %+v", err)
	}
	if got, want := b.Start(), uint64(1000); got != want {
		t.Fatalf("invalid run start: got=%d, want=%d", got, want)
	}
	if len(sink.slices) != 0 {
		t.Fatalf("unexpected slices")
	}
}

// TestWindowing checks every event lands in exactly the slices whose
// [start, start+length+overlap) range contains it, and that slices
// tile the observed time range.
func TestWindowing(t *testing.T) {
	const (
		length  = 1000
		overlap = 150
	)
	cfg := DefaultConfig()
	cfg.Length = length
	cfg.Overlap = overlap
	cfg.RunStart = 0
	cfg.HasRunStart = true

	rnd := rand.New(rand.NewSource(42))
	var tss []uint64
	ts := uint64(0)
	for i := 0; i < 2000; i++ {
		ts += 1 + uint64(rnd.ExpFloat64()*200)
		if i%500 == 0 {
			ts += 5 * length // long gap
		}
		tss = append(tss, ts)
	}

	b, sink, _ := newTestBuilder(cfg)
	for _, ts := range tss {
		if err := b.Add(newRec(ts)); err != nil {
			t.Fatalf("could not add event %d: %+v", ts, err)
		}
	}
	// flush the last slices.
	if err := b.Add(newRec(tss[len(tss)-1] + 2*length + overlap)); err != nil {
		t.Fatalf("could not flush: %+v", err)
	}

	slices := sink.decode(t)
	var (
		start = uint64(0)
		count = make(map[uint64]int)
	)
	for i, s := range slices {
		if s.hdr.Start != start {
			t.Fatalf("slice %d: gap in coverage: start=%d, want=%d", i, s.hdr.Start, start)
		}
		if s.hdr.End != s.hdr.Start+length+overlap {
			t.Fatalf("slice %d: invalid end %d", i, s.hdr.End)
		}
		if int(s.hdr.NTriggers) != len(s.recs) {
			t.Fatalf("slice %d: invalid number of triggers", i)
		}
		got := stamps(s.recs)
		if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i] < got[j] }) {
			t.Fatalf("slice %d: events not in delivery order", i)
		}
		for _, ts := range got {
			if ts < s.hdr.Start || ts >= s.hdr.End {
				t.Fatalf("slice %d [%d, %d) holds event %d", i, s.hdr.Start, s.hdr.End, ts)
			}
			count[ts]++
		}
		start += length
	}

	last := slices[len(slices)-1].hdr.Start
	for _, ts := range tss {
		want := 0
		for s := uint64(0); s <= last; s += length {
			if s <= ts && ts < s+length+overlap {
				want++
			}
		}
		if got := count[ts]; got != want {
			t.Fatalf("event %d: found in %d slices, want %d", ts, got, want)
		}
	}
}

func TestBoundaryDuplication(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Length = 100
	cfg.Overlap = 10
	cfg.RunStart = 0
	cfg.HasRunStart = true

	b, sink, _ := newTestBuilder(cfg)
	for _, ts := range []uint64{99, 100, 109, 110, 250} {
		if err := b.Add(newRec(ts)); err != nil {
			t.Fatalf("could not add event: %+v", err)
		}
	}
	got := sink.decode(t)
	if len(got) != 2 {
		t.Fatalf("invalid number of slices: got=%d, want=2", len(got))
	}
	if got, want := stamps(got[0].recs), []uint64{99, 100, 109}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid first slice: got=%v, want=%v", got, want)
	}
	if got, want := stamps(got[1].recs), []uint64{100, 109, 110}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid second slice: got=%v, want=%v", got, want)
	}
	for i := 0; i < 2; i++ {
		lhs := got[0].recs[1+i].AppendWords(nil)
		rhs := got[1].recs[i].AppendWords(nil)
		if !reflect.DeepEqual(lhs, rhs) {
			t.Fatalf("duplicated event %d differs:\n%x\n%x", i, lhs, rhs)
		}
	}
}

func TestSilence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Length = 128000 // 1ms at 128MHz
	cfg.Overlap = 12800
	cfg.EmptyWriteDelay = 10 * time.Millisecond

	b, sink, msg := newTestBuilder(cfg)

	// no event seen yet: silence never emits.
	for i := 0; i < 100; i++ {
		b.Idle(time.Millisecond)
	}
	if len(sink.slices) != 0 {
		t.Fatalf("slices emitted before first event")
	}

	if err := b.Add(newRec(1000000)); err != nil {
		t.Fatalf("could not add event: %+v", err)
	}
	for i := 0; i < 10; i++ {
		b.Idle(time.Millisecond)
	}
	if len(sink.slices) != 0 {
		t.Fatalf("slices emitted before silence threshold")
	}

	b.Idle(time.Millisecond)
	b.Idle(time.Millisecond)
	b.Idle(time.Millisecond)

	got := sink.decode(t)
	if len(got) != 3 {
		t.Fatalf("invalid number of slices: got=%d, want=3", len(got))
	}
	if got, want := stamps(got[0].recs), []uint64{1000000}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid first slice: got=%v, want=%v", got, want)
	}
	for i, s := range got {
		if want := uint64(1000000 + i*128000); s.hdr.Start != want {
			t.Fatalf("slice %d: invalid start: got=%d, want=%d", i, s.hdr.Start, want)
		}
	}
	if got[1].hdr.NTriggers != 0 || got[2].hdr.NTriggers != 0 {
		t.Fatalf("silence slices should be empty")
	}
	if n := strings.Count(msg.String(), "seeing no events"); n != 1 {
		t.Fatalf("invalid number of silence warnings: got=%d, want=1", n)
	}

	// events resume in the current window.
	if err := b.Add(newRec(b.Start() + 5)); err != nil {
		t.Fatalf("could not add event: %+v", err)
	}
}

func TestSilenceKeepsOverlap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Length = 128000
	cfg.Overlap = 12800
	cfg.EmptyWriteDelay = time.Millisecond

	b, sink, _ := newTestBuilder(cfg)
	for _, ts := range []uint64{0, 130000} {
		if err := b.Add(newRec(ts)); err != nil {
			t.Fatalf("could not add event: %+v", err)
		}
	}
	b.Idle(2 * time.Millisecond)
	b.Idle(2 * time.Millisecond)

	got := sink.decode(t)
	if len(got) != 2 {
		t.Fatalf("invalid number of slices: got=%d, want=2", len(got))
	}
	if got, want := stamps(got[0].recs), []uint64{0, 130000}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid first slice: got=%v, want=%v", got, want)
	}
	if got, want := stamps(got[1].recs), []uint64{130000}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid second slice: got=%v, want=%v", got, want)
	}
}

func TestRW(t *testing.T) {
	slices := [][]uint32{
		Build(0, 110, []*event.Record{newRec(1), newRec(2)}),
		Build(100, 210, nil),
		Build(200, 310, []*event.Record{newRec(250)}),
	}

	buf := new(bytes.Buffer)
	w := NewWriter(buf)
	for _, slice := range slices {
		if err := w.Write(slice); err != nil {
			t.Fatalf("could not write slice: %+v", err)
		}
	}
	if err := w.Write([]uint32{1}); err == nil {
		t.Fatalf("expected an error writing a short slice")
	}

	r := NewReader(buf)
	for i, want := range slices {
		got, err := r.Read()
		if err != nil {
			t.Fatalf("could not read slice %d: %+v", i, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("slice %d: invalid r/w round-trip:\ngot= %x\nwant=%x", i, got, want)
		}
	}
	if _, err := r.Read(); err != io.EOF {
		t.Fatalf("invalid error: got=%v, want=%v", err, io.EOF)
	}

	r = NewReader(bytes.NewReader([]byte{6, 0, 0, 0, 1}))
	if _, err := r.Read(); err == nil || err == io.EOF {
		t.Fatalf("expected a truncation error, got=%v", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	good := Build(0, 10, []*event.Record{newRec(1)})
	for _, tc := range []struct {
		name  string
		slice []uint32
	}{
		{"short-header", good[:3]},
		{"length-mismatch", good[:len(good)-1]},
		{"trailing", append(append([]uint32{}, good[0]+1), append(good[1:], 0)...)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := Decode(tc.slice); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}
