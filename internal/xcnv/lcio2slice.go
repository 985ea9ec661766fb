// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"fmt"
	"io"
	"log"

	"github.com/go-lpc/ssp/millislice"
	"go-hep.org/x/hep/lcio"
)

// LCIO2Slices extracts the millislices stored in the LCIO events of r.
func LCIO2Slices(w *millislice.Writer, r *lcio.Reader, freq int, msg *log.Logger) error {
	if freq <= 0 {
		freq = 1
	}
	i := 0
	for r.Next() {
		if i%freq == 0 {
			msg.Printf("processing evt %d...", i)
		}
		evt := r.Event()
		if !evt.Has(RawCollection) {
			return fmt.Errorf("event %d has no %q collection", i, RawCollection)
		}
		obj, ok := evt.Get(RawCollection).(*lcio.GenericObject)
		if !ok || len(obj.Data) != 1 {
			return fmt.Errorf("event %d: invalid %q collection", i, RawCollection)
		}
		slice := u32sFrom(obj.Data[0].I32s)
		_, _, err := millislice.Decode(slice)
		if err != nil {
			return fmt.Errorf("event %d: invalid millislice: %w", i, err)
		}
		err = w.Write(slice)
		if err != nil {
			return fmt.Errorf("could not write millislice %d: %w", i, err)
		}
		i++
	}

	err := r.Err()
	if err != nil && err != io.EOF {
		return fmt.Errorf("could not read LCIO events: %w", err)
	}
	return nil
}

func u32sFrom(raw []int32) []uint32 {
	o := make([]uint32, len(raw))
	for i, v := range raw {
		o[i] = uint32(v)
	}
	return o
}
