// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-lpc/ssp/event"
	"github.com/go-lpc/ssp/millislice"
)

func newRecord(ts uint64, ch uint8, data ...uint32) *event.Record {
	var hdr event.Header
	hdr.SetTimestamp(ts)
	hdr.Group2 = 0xABC<<4 | uint16(ch)
	hdr.Baseline = 42
	rec := event.New(hdr, data)
	return &rec
}

func TestDump(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "ssp.slices"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	err = millislice.NewWriter(f).Write(millislice.Build(0, 1100, nil))
	if err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	xmain(io.Discard, []string{"-ext", f.Name()})
}

func TestProcess(t *testing.T) {
	tmp := t.TempDir()

	for _, tc := range []struct {
		name   string
		slices [][]uint32
		raw    []byte
		want   string
		err    error
	}{
		{
			name: "simple",
			slices: [][]uint32{
				millislice.Build(1000, 2100, []*event.Record{
					newRecord(1000, 1, 0x1, 0x2),
					newRecord(2050, 3),
				}),
				millislice.Build(2000, 3100, []*event.Record{
					newRecord(2050, 3),
				}),
			},
			want: `=== millislice 0 ===
Start:          1000
End:            2100
Triggers:          2
  module=0xabc ch= 1 ts=1000 peak-sum=0 baseline=42 words=14
  module=0xabc ch= 3 ts=2050 peak-sum=0 baseline=42 words=12
=== millislice 1 ===
Start:          2000
End:            3100
Triggers:          1
  module=0xabc ch= 3 ts=2050 peak-sum=0 baseline=42 words=12
`,
		},
		{
			name: "truncated",
			raw:  []byte{0x06, 0x00, 0x00},
			err:  fmt.Errorf("could not read millislice: millislice: could not read slice header: %w", io.ErrUnexpectedEOF),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fname := filepath.Join(tmp, tc.name+".slices")
			f, err := os.Create(fname)
			if err != nil {
				t.Fatalf("could not create millislice file: %+v", err)
			}
			defer f.Close()

			switch {
			case tc.raw != nil:
				_, err = f.Write(tc.raw)
				if err != nil {
					t.Fatalf("could not write raw data: %+v", err)
				}
			default:
				w := millislice.NewWriter(f)
				for _, slice := range tc.slices {
					err = w.Write(slice)
					if err != nil {
						t.Fatalf("could not write millislice: %+v", err)
					}
				}
			}

			err = f.Close()
			if err != nil {
				t.Fatalf("could not close millislice file: %+v", err)
			}

			out := new(strings.Builder)
			err = process(out, fname, false)
			switch {
			case err != nil && tc.err != nil:
				if got, want := err.Error(), tc.err.Error(); got != want {
					t.Fatalf("invalid error:\ngot= %v\nwant=%v\n", got, want)
				}
			case err != nil && tc.err == nil:
				t.Fatalf("could not ssp-dump: %+v", err)
			case err == nil && tc.err == nil:
				if got, want := out.String(), tc.want; got != want {
					t.Fatalf("invalid ssp-dump output:\ngot:\n%s\nwant:\n%s\n", got, want)
				}
			case err == nil && tc.err != nil:
				t.Fatalf("invalid error:\ngot= %v\nwant=%v\n", err, tc.err)
			}
		})
	}
}
