// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ssp2lcio converts a millislice file to an LCIO one.
package main // import "github.com/go-lpc/ssp/cmd/ssp2lcio"

import (
	"compress/flate"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-lpc/ssp/internal/xcnv"
	"github.com/go-lpc/ssp/millislice"
	"go-hep.org/x/hep/lcio"
)

var (
	msg = log.New(os.Stdout, "ssp2lcio: ", 0)
)

func main() {
	var (
		oname = flag.String("o", "out.lcio", "path to output LCIO file")
		compr = flag.Int("lvl", flate.DefaultCompression, "compression level for output LCIO file")
		run   = flag.Int("run", -1, "run number (default: inferred from ssp_RUN.slices file name)")
	)

	flag.Usage = func() {
		fmt.Printf(`Usage: ssp2lcio [OPTIONS] file.slices

ex:
 $> ssp2lcio -o out.lcio -lvl=9 ./ssp_063.slices
 $> ssp2lcio -o out.lcio -run=63 ./run.slices

options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		msg.Fatalf("missing input millislice file")
	}

	if *oname == "" {
		flag.Usage()
		msg.Fatalf("invalid output LCIO file name")
	}

	err := process(*oname, *compr, int32(*run), flag.Arg(0))
	if err != nil {
		msg.Fatalf("could not convert millislice file: %+v", err)
	}
}

func process(oname string, lvl int, run int32, fname string) error {
	f, err := os.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open millislice file: %w", err)
	}
	defer f.Close()

	if run < 0 {
		run, err = runNbrFrom(fname)
		if err != nil {
			return fmt.Errorf("could not infer run from %q: %w", fname, err)
		}
	}

	w, err := lcio.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create output LCIO file: %w", err)
	}
	defer w.Close()

	w.SetCompressionLevel(lvl)

	err = xcnv.Slices2LCIO(w, millislice.NewReader(f), run, msg)
	if err != nil {
		return fmt.Errorf("could not convert millislices to LCIO: %w", err)
	}

	err = w.Close()
	if err != nil {
		return fmt.Errorf("could not close output LCIO file: %w", err)
	}

	return nil
}

func runNbrFrom(fname string) (int32, error) {
	var (
		name = filepath.Base(fname)
		run  int32
	)
	_, err := fmt.Sscanf(name, "ssp_%d.slices", &run)
	return run, err
}
