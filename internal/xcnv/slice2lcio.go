// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package xcnv

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/go-lpc/ssp/event"
	"github.com/go-lpc/ssp/millislice"
	"go-hep.org/x/hep/lcio"
)

// Slices2LCIO converts the millislices of r into LCIO events, one event
// per millislice.
func Slices2LCIO(w *lcio.Writer, r *millislice.Reader, run int32, msg *log.Logger) error {
	for i := 0; ; i++ {
		if i%100 == 0 {
			msg.Printf("processing slice %d...", i)
		}
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

		if i == 0 {
			err = w.WriteRunHeader(&lcio.RunHeader{
				RunNumber: run,
				Detector:  Detector,
				Params: lcio.Params{
					Ints: map[string][]int32{
						"SliceHeaderWords": {millislice.HeaderWords},
						"EventHeaderWords": {event.HeaderWords},
					},
				},
			})
			if err != nil {
				return fmt.Errorf("could not write run header: %w", err)
			}
		}

		evt := lcio.Event{
			RunNumber:   run,
			EventNumber: int32(i),
			TimeStamp:   int64(hdr.Start),
			Detector:    Detector,
		}
		evt.Add(RawCollection, &lcio.GenericObject{
			Data: []lcio.GenericObjectData{{I32s: i32sFrom(slice)}},
		})
		evt.Add(TriggerCollection, triggers(recs))

		err = w.WriteEvent(&evt)
		if err != nil {
			return fmt.Errorf("could not write millislice %d: %w", i, err)
		}
	}
}

func triggers(recs []event.Record) *lcio.GenericObject {
	trgs := &lcio.GenericObject{
		Data: make([]lcio.GenericObjectData, len(recs)),
	}
	for i := range recs {
		hdr := &recs[i].Header
		var (
			its = hdr.InternalTimestamp()
			ets = hdr.ExternalTimestamp()
		)
		trgs.Data[i].I32s = []int32{
			int32(hdr.ModuleID()),
			int32(hdr.ChannelID()),
			hdr.PeakSum(),
			int32(hdr.Prerise()),
			int32(hdr.IntegratedSum()),
			int32(hdr.Baseline),
			int32(uint32(its)), int32(uint32(its >> 32)),
			int32(uint32(ets)), int32(uint32(ets >> 32)),
		}
	}
	return trgs
}

func i32sFrom(words []uint32) []int32 {
	o := make([]int32, len(words))
	for i, v := range words {
		o[i] = int32(v)
	}
	return o
}
