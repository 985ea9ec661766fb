// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctrl

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/gopacket"
)

func TestPacketCodec(t *testing.T) {
	for _, tc := range []struct {
		name string
		cmd  Command
		addr uint32
		size uint32
		data []uint32
		want int
	}{
		{name: "read", cmd: CmdRead, addr: 0x80000500, size: 1, want: 20},
		{name: "write", cmd: CmdWrite, addr: 0x80000500, size: 1, data: []uint32{1}, want: 24},
		{name: "write-mask", cmd: CmdWriteMask, addr: 0x40000420, size: 1, data: []uint32{1, 1}, want: 28},
		{name: "array-write", cmd: CmdArrayWrite, addr: 0x80000080, size: 4, data: []uint32{1, 2, 3, 4}, want: 36},
		{name: "nv-erase-chip", cmd: CmdNVEraseChip, want: 20},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req, err := NewRequest(tc.cmd, tc.addr, tc.size, tc.data...)
			if err != nil {
				t.Fatalf("could not create request: %+v", err)
			}
			raw, err := req.Marshal()
			if err != nil {
				t.Fatalf("could not marshal request: %+v", err)
			}
			if got, want := len(raw), tc.want; got != want {
				t.Fatalf("invalid wire size: got=%d, want=%d", got, want)
			}
			if got, want := raw[0], byte(tc.want); got != want {
				t.Fatalf("invalid length field: got=%d, want=%d", got, want)
			}

			pkt := gopacket.NewPacket(raw, LayerTypeCtrl, gopacket.Default)
			if err := pkt.ErrorLayer(); err != nil {
				t.Fatalf("could not decode packet: %+v", err.Error())
			}
			layer, ok := pkt.Layer(LayerTypeCtrl).(*Packet)
			if !ok {
				t.Fatalf("could not find control layer")
			}
			if got, want := layer.Header, req.Header; got != want {
				t.Fatalf("invalid header:\ngot= %#v\nwant=%#v", got, want)
			}
			if len(tc.data) > 0 && !reflect.DeepEqual(layer.Data, tc.data) {
				t.Fatalf("invalid data:\ngot= %v\nwant=%v", layer.Data, tc.data)
			}
		})
	}
}

func TestUnmarshalTruncated(t *testing.T) {
	_, err := Unmarshal(make([]byte, HeaderSize-1))
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrTruncated)
	}

	pkt := gopacket.NewPacket([]byte{1, 2, 3}, LayerTypeCtrl, gopacket.Default)
	if pkt.ErrorLayer() == nil {
		t.Fatalf("expected a decoding error")
	}
}

func TestNewRequestTooLarge(t *testing.T) {
	_, err := NewRequest(CmdArrayRead, 0, MaxData+1)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrTooLarge)
	}
	_, err = NewRequest(CmdArrayWrite, 0, 1, make([]uint32, MaxData+1)...)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("invalid error: got=%v, want=%v", err, ErrTooLarge)
	}
}

func TestResponseSize(t *testing.T) {
	for _, tc := range []struct {
		cmd  Command
		size uint32
		want int
	}{
		{CmdRead, 1, 24},
		{CmdReadMask, 1, 24},
		{CmdWriteMask, 1, 24},
		{CmdWrite, 1, 20},
		{CmdArrayRead, 12, 20 + 48},
		{CmdFifoRead, 3, 32},
		{CmdArrayWrite, 12, 20},
		{CmdNVWrite, 1, 20},
		{CmdNVEraseBlock, 0, 20},
	} {
		t.Run(tc.cmd.String(), func(t *testing.T) {
			req := Packet{Header: Header{Cmd: tc.cmd, Size: tc.size}}
			if got, want := ResponseSize(req), tc.want; got != want {
				t.Fatalf("invalid response size: got=%d, want=%d", got, want)
			}
		})
	}
}

func TestStrings(t *testing.T) {
	if got, want := CmdNVEraseSector.String(), "nv-erase-sector"; got != want {
		t.Fatalf("invalid command name: got=%q, want=%q", got, want)
	}
	if got, want := Command(42).String(), "Command(42)"; got != want {
		t.Fatalf("invalid command name: got=%q, want=%q", got, want)
	}
	if got, want := StatusAlign.String(), "misaligned address"; got != want {
		t.Fatalf("invalid status name: got=%q, want=%q", got, want)
	}
	if got, want := Status(99).String(), "Status(99)"; got != want {
		t.Fatalf("invalid status name: got=%q, want=%q", got, want)
	}
	err := &StatusError{Cmd: CmdWrite, Addr: 0x80000500, Status: StatusWrite}
	if got, want := err.Error(), "ctrl: write at 0x80000500 failed: write error"; got != want {
		t.Fatalf("invalid error message:\ngot= %q\nwant=%q", got, want)
	}
}
