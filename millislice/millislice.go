// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package millislice groups SSP event records into overlapping time windows.
package millislice // import "github.com/go-lpc/ssp/millislice"

import (
	"fmt"

	"github.com/go-lpc/ssp/event"
)

// HeaderWords is the size of a millislice header in 32b words.
const HeaderWords = 6

// Header describes a millislice.
type Header struct {
	Length    uint32 // slice length in 32b words, header included
	NTriggers uint32 // number of event records
	Start     uint64 // first tick of the slice
	End       uint64 // end of the slice, overlap included (exclusive)
}

// Words encodes the header in its wire layout.
func (hdr Header) Words() []uint32 {
	return []uint32{
		hdr.Length,
		hdr.NTriggers,
		uint32(hdr.Start), uint32(hdr.Start >> 32),
		uint32(hdr.End), uint32(hdr.End >> 32),
	}
}

// Decode decodes the header from its wire layout.
func (hdr *Header) Decode(words []uint32) error {
	if len(words) < HeaderWords {
		return fmt.Errorf("millislice: header too short (got=%d words, want=%d)", len(words), HeaderWords)
	}
	hdr.Length = words[0]
	hdr.NTriggers = words[1]
	hdr.Start = uint64(words[2]) | uint64(words[3])<<32
	hdr.End = uint64(words[4]) | uint64(words[5])<<32
	return nil
}

// Build serializes the event records into a millislice spanning [start, end).
func Build(start, end uint64, recs []*event.Record) []uint32 {
	n := HeaderWords
	for _, rec := range recs {
		n += rec.Len()
	}
	hdr := Header{
		Length:    uint32(n),
		NTriggers: uint32(len(recs)),
		Start:     start,
		End:       end,
	}
	buf := make([]uint32, 0, n)
	buf = append(buf, hdr.Words()...)
	for _, rec := range recs {
		buf = rec.AppendWords(buf)
	}
	return buf
}

// Decode decodes a serialized millislice.
func Decode(slice []uint32) (Header, []event.Record, error) {
	var hdr Header
	err := hdr.Decode(slice)
	if err != nil {
		return hdr, nil, err
	}
	if int(hdr.Length) != len(slice) {
		return hdr, nil, fmt.Errorf(
			"millislice: invalid slice length (header=%d, buffer=%d)",
			hdr.Length, len(slice),
		)
	}

	recs := make([]event.Record, 0, hdr.NTriggers)
	beg := HeaderWords
	for i := 0; i < int(hdr.NTriggers); i++ {
		var rec event.Record
		err = rec.Header.Decode(slice[beg:])
		if err != nil {
			return hdr, nil, fmt.Errorf("millislice: could not decode event %d: %w", i, err)
		}
		end := beg + int(rec.Header.Length)
		if int(rec.Header.Length) < event.HeaderWords || end > len(slice) {
			return hdr, nil, fmt.Errorf(
				"millislice: invalid event %d length %d", i, rec.Header.Length,
			)
		}
		rec.Data = slice[beg+event.HeaderWords : end]
		recs = append(recs, rec)
		beg = end
	}
	if beg != len(slice) {
		return hdr, nil, fmt.Errorf("millislice: %d trailing words", len(slice)-beg)
	}
	return hdr, recs, nil
}
