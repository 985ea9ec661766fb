// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"compress/flate"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-lpc/ssp/event"
	"github.com/go-lpc/ssp/millislice"
	"go-hep.org/x/hep/lcio"
)

func TestRunNbrFrom(t *testing.T) {
	for _, tc := range []struct {
		fname string
		run   int32
		err   bool
	}{
		{fname: "./ssp_063.slices", run: 63},
		{fname: "/some/dir/ssp_663.slices", run: 663},
		{fname: "../some/dir/ssp_9.slices", run: 9},
		{fname: "run.slices", err: true},
	} {
		t.Run(tc.fname, func(t *testing.T) {
			got, err := runNbrFrom(tc.fname)
			switch {
			case tc.err:
				if err == nil {
					t.Fatalf("expected an error")
				}
				return
			case err != nil:
				t.Fatalf("could not infer run-nbr: %+v", err)
			}
			if got != tc.run {
				t.Fatalf("invalid run: got=%d, want=%d", got, tc.run)
			}
		})
	}
}

func TestSSP2LCIO(t *testing.T) {
	tmp := t.TempDir()

	var hdr event.Header
	hdr.SetTimestamp(1234)
	rec := event.New(hdr, nil)

	fname := filepath.Join(tmp, "ssp_063.slices")
	f, err := os.Create(fname)
	if err != nil {
		t.Fatalf("could not create millislice file: %+v", err)
	}
	defer f.Close()

	w := millislice.NewWriter(f)
	for _, slice := range [][]uint32{
		millislice.Build(1000, 2100, []*event.Record{&rec}),
		millislice.Build(2000, 3100, nil),
	} {
		err = w.Write(slice)
		if err != nil {
			t.Fatalf("could not write millislice: %+v", err)
		}
	}
	err = f.Close()
	if err != nil {
		t.Fatalf("could not close millislice file: %+v", err)
	}

	oname := fname + ".lcio"
	err = process(oname, flate.DefaultCompression, -1, fname)
	if err != nil {
		t.Fatalf("could not convert millislice file: %+v", err)
	}

	r, err := lcio.Open(oname)
	if err != nil {
		t.Fatalf("could not open LCIO file: %+v", err)
	}
	defer r.Close()

	n := 0
	for r.Next() {
		if got, want := r.Event().RunNumber, int32(63); got != want {
			t.Fatalf("invalid run number: got=%d, want=%d", got, want)
		}
		n++
	}
	if got, want := n, 2; got != want {
		t.Fatalf("invalid number of events: got=%d, want=%d", got, want)
	}
}
