// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package event decodes SSP event records from the data stream.
package event // import "github.com/go-lpc/ssp/event"

import (
	"fmt"
)

const (
	// Marker is the sync word starting every event record.
	Marker = 0xAAAAAAAA
	// HeaderWords is the size of an event header in 32b words.
	HeaderWords = 12
)

// Header is the fixed-size header of an SSP event record.
type Header struct {
	Marker     uint32
	Length     uint16 // record length in 32b words, header included
	Group1     uint16 // trigger type, status flags, header type
	TriggerID  uint16
	Group2     uint16 // module and channel IDs
	Ext        [4]uint16
	PeakSumLow uint16
	Group3     uint16 // peak time, peak sum high byte
	PreriseLow uint16
	Group4     uint16 // integrated sum low byte, prerise high byte
	IntSumHigh uint16
	Baseline   uint16
	CFD        [4]uint16
	Int        [4]uint16 // word 0 is reserved
}

// Words encodes the header in its wire layout.
func (hdr *Header) Words() []uint32 {
	pack := func(lo, hi uint16) uint32 { return uint32(lo) | uint32(hi)<<16 }
	return []uint32{
		hdr.Marker,
		pack(hdr.Length, hdr.Group1),
		pack(hdr.TriggerID, hdr.Group2),
		pack(hdr.Ext[0], hdr.Ext[1]),
		pack(hdr.Ext[2], hdr.Ext[3]),
		pack(hdr.PeakSumLow, hdr.Group3),
		pack(hdr.PreriseLow, hdr.Group4),
		pack(hdr.IntSumHigh, hdr.Baseline),
		pack(hdr.CFD[0], hdr.CFD[1]),
		pack(hdr.CFD[2], hdr.CFD[3]),
		pack(hdr.Int[0], hdr.Int[1]),
		pack(hdr.Int[2], hdr.Int[3]),
	}
}

// Decode decodes the header from its wire layout.
func (hdr *Header) Decode(words []uint32) error {
	if len(words) < HeaderWords {
		return fmt.Errorf("event: header too short (got=%d words, want=%d)", len(words), HeaderWords)
	}
	lo := func(i int) uint16 { return uint16(words[i]) }
	hi := func(i int) uint16 { return uint16(words[i] >> 16) }

	hdr.Marker = words[0]
	hdr.Length, hdr.Group1 = lo(1), hi(1)
	hdr.TriggerID, hdr.Group2 = lo(2), hi(2)
	hdr.Ext = [4]uint16{lo(3), hi(3), lo(4), hi(4)}
	hdr.PeakSumLow, hdr.Group3 = lo(5), hi(5)
	hdr.PreriseLow, hdr.Group4 = lo(6), hi(6)
	hdr.IntSumHigh, hdr.Baseline = lo(7), hi(7)
	hdr.CFD = [4]uint16{lo(8), hi(8), lo(9), hi(9)}
	hdr.Int = [4]uint16{lo(10), hi(10), lo(11), hi(11)}
	return nil
}

func (hdr *Header) TriggerType() uint8 { return uint8(hdr.Group1 >> 8) }
func (hdr *Header) Status() uint8      { return uint8(hdr.Group1>>4) & 0xF }
func (hdr *Header) HeaderType() uint8  { return uint8(hdr.Group1) & 0xF }
func (hdr *Header) ModuleID() uint16   { return hdr.Group2 >> 4 }
func (hdr *Header) ChannelID() uint8   { return uint8(hdr.Group2) & 0xF }

// SyncDelay returns the number of ticks since the last sync pulse.
func (hdr *Header) SyncDelay() uint32 { return uint32(hdr.Ext[1])<<16 | uint32(hdr.Ext[0]) }

// SyncCount returns the number of sync pulses seen.
func (hdr *Header) SyncCount() uint32 { return uint32(hdr.Ext[3])<<16 | uint32(hdr.Ext[2]) }

// PeakSum returns the signed 24b peak sum.
func (hdr *Header) PeakSum() int32 {
	v := (uint32(hdr.Group3&0xFF) << 16) | uint32(hdr.PeakSumLow)
	if v&0x800000 != 0 {
		v |= 0xFF000000
	}
	return int32(v)
}

// PeakTime returns the offset of the peak sum within the readout window.
func (hdr *Header) PeakTime() uint8 { return uint8(hdr.Group3 >> 8) }

func (hdr *Header) Prerise() uint32 {
	return uint32(hdr.Group4&0xFF)<<16 | uint32(hdr.PreriseLow)
}

func (hdr *Header) IntegratedSum() uint32 {
	return uint32(hdr.IntSumHigh)<<8 | uint32(hdr.Group4>>8)
}

// ExternalTimestamp returns the 64b timestamp built from the
// external timestamp words.
func (hdr *Header) ExternalTimestamp() uint64 {
	var ts uint64
	for i, w := range hdr.Ext {
		ts |= uint64(w) << (16 * i)
	}
	return ts
}

// InternalTimestamp returns the 48b free running timestamp.
func (hdr *Header) InternalTimestamp() uint64 {
	var ts uint64
	for i := 1; i < len(hdr.Int); i++ {
		ts |= uint64(hdr.Int[i]) << (16 * (i - 1))
	}
	return ts
}

// SetTimestamp sets both the external and the internal timestamp words to ts.
func (hdr *Header) SetTimestamp(ts uint64) {
	for i := range hdr.Ext {
		hdr.Ext[i] = uint16(ts >> (16 * i))
	}
	hdr.Int[0] = 0
	for i := 1; i < len(hdr.Int); i++ {
		hdr.Int[i] = uint16(ts >> (16 * (i - 1)))
	}
}

// Timestamp returns the external or internal timestamp of the event.
func (hdr *Header) Timestamp(external bool) uint64 {
	if external {
		return hdr.ExternalTimestamp()
	}
	return hdr.InternalTimestamp()
}

// Record is an event header and its payload.
type Record struct {
	Header Header
	Data   []uint32
}

// Len returns the size of the record in 32b words.
func (rec *Record) Len() int { return HeaderWords + len(rec.Data) }

// AppendWords appends the wire layout of the record to dst.
func (rec *Record) AppendWords(dst []uint32) []uint32 {
	dst = append(dst, rec.Header.Words()...)
	return append(dst, rec.Data...)
}

// New creates a record with the provided payload, fixing its length.
func New(hdr Header, data []uint32) Record {
	hdr.Marker = Marker
	hdr.Length = uint16(HeaderWords + len(data))
	return Record{Header: hdr, Data: data}
}
