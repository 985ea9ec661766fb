// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conddb

import "fmt"

// Board describes an SSP module registered in the condition database.
type Board struct {
	ID       uint32 `json:"id"`
	Serial   string `json:"serial"`    // FTDI serial number
	ModuleID uint32 `json:"module_id"` // value reported in the event headers
	Link     string `json:"link"`      // usb or tcp
	Addr     string `json:"addr"`      // address of TCP links
}

func (brd Board) String() string {
	switch brd.Link {
	case "tcp":
		return fmt.Sprintf("board=%d module=0x%03x link=tcp addr=%s", brd.ID, brd.ModuleID, brd.Addr)
	default:
		return fmt.Sprintf("board=%d module=0x%03x link=%s serial=%s", brd.ID, brd.ModuleID, brd.Link, brd.Serial)
	}
}
