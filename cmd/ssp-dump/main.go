// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// ssp-dump decodes and displays millislice files.
//
// Usage: ssp-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> ssp-dump ./ssp_063.slices
//	=== millislice 0 ===
//	Start:          1000
//	End:            2100
//	Triggers:          2
//	  module=0xabc ch= 1 ts=1000 peak-sum=0 baseline=42 words=14
//	  module=0xabc ch= 3 ts=2050 peak-sum=0 baseline=42 words=12
//	[...]
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/ssp/millislice"
)

func main() {
	log.SetPrefix("ssp-dump: ")
	log.SetFlags(0)

	xmain(os.Stdout, os.Args[1:])
}

func xmain(w io.Writer, args []string) {
	fset := flag.NewFlagSet("ssp-dump", flag.ExitOnError)
	ext := fset.Bool("ext", false, "display external timestamps")

	fset.Usage = func() {
		fmt.Printf(`ssp-dump decodes and displays millislice files.

Usage: ssp-dump [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> ssp-dump ./ssp_063.slices
 === millislice 0 ===
 Start:          1000
 End:            2100
 Triggers:          2
   module=0xabc ch= 1 ts=1000 peak-sum=0 baseline=42 words=14
   module=0xabc ch= 3 ts=2050 peak-sum=0 baseline=42 words=12
 [...]

`)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		log.Fatalf("could not parse arguments: %+v", err)
	}

	if fset.NArg() == 0 {
		fset.Usage()
		log.Fatalf("missing path to input millislice file")
	}

	for _, fname := range fset.Args() {
		err := process(w, fname, *ext)
		if err != nil {
			log.Fatalf("could not dump file %q: %+v", fname, err)
		}
	}
}

func process(w io.Writer, fname string, ext bool) error {
	wbuf := bufio.NewWriter(w)
	defer wbuf.Flush()

	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	r := millislice.NewReader(bufio.NewReader(f))
	for i := 0; ; i++ {
		slice, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("could not read millislice: %w", err)
		}
		hdr, recs, err := millislice.Decode(slice)
		if err != nil {
			return fmt.Errorf("could not decode millislice %d: %w", i, err)
		}
		fmt.Fprintf(wbuf, "=== millislice %d ===\n", i)
		fmt.Fprintf(wbuf, "Start:    % 10d\n", hdr.Start)
		fmt.Fprintf(wbuf, "End:      % 10d\n", hdr.End)
		fmt.Fprintf(wbuf, "Triggers: % 10d\n", hdr.NTriggers)

		for _, rec := range recs {
			fmt.Fprintf(wbuf, "  module=0x%03x ch=%2d ts=%d peak-sum=%d baseline=%d words=%d\n",
				rec.Header.ModuleID(), rec.Header.ChannelID(),
				rec.Header.Timestamp(ext), rec.Header.PeakSum(),
				rec.Header.Baseline, rec.Len(),
			)
		}
	}
}
