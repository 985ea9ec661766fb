// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xcnv provides tools to convert millislice files to/from LCIO.
package xcnv // import "github.com/go-lpc/ssp/internal/xcnv"

const (
	// Detector is the detector name of converted LCIO runs and events.
	Detector = "SSP"

	// RawCollection holds the serialized millislice of an event.
	RawCollection = "SSP_MILLISLICE"

	// TriggerCollection holds one entry per event record of a millislice:
	// module, channel, peak-sum, prerise, integrated-sum, baseline,
	// and the 64b internal and external timestamps as low/high pairs.
	TriggerCollection = "SSP_TRIGGERS"
)
